package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/logging"
	"github.com/wrongjunior/updaterelay/internal/metrics"
	"github.com/wrongjunior/updaterelay/internal/service"
	transportServer "github.com/wrongjunior/updaterelay/internal/transport/server"
)

const waitFor = 3 * time.Second

type relay struct {
	srv     *httptest.Server
	svc     *service.UpdateService
	metrics *metrics.Metrics
	wsURL   string
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	logger := logging.Discard()
	m := metrics.New()
	svc := service.NewUpdateService(service.Options{Metrics: m}, logger)
	srv := httptest.NewServer(transportServer.SetupRouter(
		transportServer.NewHandler(svc, m, logger),
		transportServer.RouterOptions{WSPath: "/socket.io/"},
	))
	t.Cleanup(func() {
		svc.Shutdown()
		srv.Close()
	})
	return &relay{
		srv:     srv,
		svc:     svc,
		metrics: m,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/",
	}
}

func (r *relay) submit(t *testing.T, msg string) domain.Update {
	t.Helper()
	u, err := r.svc.Submit(domain.SubmitRequest{Message: msg})
	require.NoError(t, err)
	return u
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func startSubscriber(t *testing.T, url string, opts Options) (*Subscriber, *service.ClientService) {
	t.Helper()
	feed := service.NewClientService(nil, nil, logging.Discard())
	sub := NewSubscriber(url, feed, opts, logging.Discard())
	sub.Start(context.Background())
	t.Cleanup(sub.Close)
	return sub, feed
}

func TestSubscriberInitialBatchThenLive(t *testing.T) {
	r := newRelay(t)
	r.submit(t, "a")
	r.submit(t, "b")

	sub, feed := startSubscriber(t, r.wsURL, Options{})
	require.Eventually(t, func() bool { return len(feed.Updates()) == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, r.svc.Snapshot(), feed.Updates())
	assert.Equal(t, Connected, sub.State())

	live := r.submit(t, "c")
	require.Eventually(t, func() bool { return len(feed.Updates()) == 3 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, live, feed.Updates()[0])
	assert.Equal(t, r.svc.Snapshot(), feed.Updates())
}

func TestSubscriberReconnectsAndResyncs(t *testing.T) {
	r := newRelay(t)
	for _, m := range []string{"a", "b", "c"} {
		r.submit(t, m)
	}
	states := &stateLog{}
	sub, feed := startSubscriber(t, r.wsURL, Options{
		ReconnectDelay: 50 * time.Millisecond,
		OnState:        states.record,
	})
	require.Eventually(t, func() bool { return len(feed.Updates()) == 3 }, waitFor, 10*time.Millisecond)

	// сервер закрывает все подписки; пока клиент отключён, приходят новые обновления
	r.svc.Shutdown()
	require.Eventually(t, func() bool { return sub.Generation() >= 2 }, waitFor, 10*time.Millisecond)
	r.submit(t, "d")
	r.submit(t, "e")

	require.Eventually(t, func() bool {
		return sub.State() == Connected && assert.ObjectsAreEqual(r.svc.Snapshot(), feed.Updates())
	}, waitFor, 10*time.Millisecond)
	assert.Len(t, feed.Updates(), 5)
	assert.Contains(t, states.snapshot(), Disconnected)
	assert.Contains(t, states.snapshot(), Reconnecting)
}

func TestSubscriberRetriesUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	states := &stateLog{}
	sub, _ := startSubscriber(t, url, Options{ReconnectDelay: 20 * time.Millisecond, OnState: states.record})

	require.Eventually(t, func() bool { return sub.Generation() >= 3 }, waitFor, 5*time.Millisecond)
	got := states.snapshot()
	require.NotEmpty(t, got)
	assert.Equal(t, Connecting, got[0])
	assert.NotContains(t, got, Connected)

	sub.Close()
	gen := sub.Generation()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, gen, sub.Generation(), "no reconnects after Close")
	assert.Equal(t, Disconnected, sub.State())
}

func TestSubscriberSupersededAttemptDoesNotReconnect(t *testing.T) {
	r := newRelay(t)
	sub, _ := startSubscriber(t, r.wsURL, Options{ReconnectDelay: 20 * time.Millisecond})
	require.Eventually(t, func() bool { return sub.State() == Connected }, waitFor, 10*time.Millisecond)
	require.Equal(t, uint64(1), sub.Generation())

	sub.Reconnect()
	require.Eventually(t, func() bool { return sub.State() == Connected }, waitFor, 10*time.Millisecond)

	// устаревшая попытка не запускает своё переподключение
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, uint64(2), sub.Generation())
	assert.Eventually(t, func() bool { return r.svc.Stats().Subscribers == 1 }, waitFor, 10*time.Millisecond)
}

func TestSubscriberSendsKeepalive(t *testing.T) {
	r := newRelay(t)
	sub, _ := startSubscriber(t, r.wsURL, Options{KeepaliveInterval: 20 * time.Millisecond})
	require.Eventually(t, func() bool { return sub.State() == Connected }, waitFor, 10*time.Millisecond)

	require.Eventually(t, func() bool { return testutil.ToFloat64(r.metrics.Heartbeats) >= 2 }, waitFor, 10*time.Millisecond)
	assert.Empty(t, r.svc.Snapshot())

	sub.Close()
	time.Sleep(50 * time.Millisecond)
	count := testutil.ToFloat64(r.metrics.Heartbeats)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, testutil.ToFloat64(r.metrics.Heartbeats), "keepalive stops with the connection")
}

func TestSubscriberDropsMalformedMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range []string{
			`not json`,
			`{"type":"initial-updates","data":[{"id":2,"message":"two","type":"info","title":"Update","timestamp":"2024-05-01T10:00:00Z"}]}`,
			`{"type":"new-update","data":"oops"}`,
			`{"type":"mystery"}`,
			`{"type":"new-update","data":{"id":3,"message":"three","type":"error","title":"Update","timestamp":"2024-05-01T10:00:01Z"}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		conn.ReadMessage()
	}))
	defer srv.Close()

	sub, feed := startSubscriber(t, "ws"+strings.TrimPrefix(srv.URL, "http"), Options{})
	require.Eventually(t, func() bool { return len(feed.Updates()) == 2 }, waitFor, 10*time.Millisecond)

	updates := feed.Updates()
	assert.Equal(t, int64(3), updates[0].ID)
	assert.Equal(t, int64(2), updates[1].ID)
	assert.Equal(t, Connected, sub.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
