package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/logging"
)

func TestListenFallsBackToNextPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	ln, err := Listen("127.0.0.1", port, 10, logging.Discard())
	if err != nil {
		// соседние порты тоже могут быть заняты на машине с тестами
		t.Skipf("no free neighbouring port: %v", err)
	}
	defer ln.Close()
	assert.Greater(t, ln.Addr().(*net.TCPAddr).Port, port)
}

func TestListenReportsPortConflict(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	_, err = Listen("127.0.0.1", port, 1, logging.Discard())
	require.Error(t, err)
	var conflict *domain.PortConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, port, conflict.Port)
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0, 1, logging.Discard())
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "pong") })
	srv := New(ln, mux, logging.Discard())

	hookCalled := make(chan struct{})
	srv.OnShutdown(func() { close(hookCalled) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return true
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-hookCalled:
	default:
		t.Fatal("shutdown hook not called")
	}
}
