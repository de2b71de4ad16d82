package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wrongjunior/updaterelay/internal/domain"
)

// State описывает состояние подписки.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Handler получает разобранные кадры сервера. Вызовы идут из одной горутины.
type Handler interface {
	ReplaceAll(updates []domain.Update)
	Prepend(update domain.Update)
}

// Options настраивает Subscriber.
type Options struct {
	ReconnectDelay    time.Duration
	KeepaliveInterval time.Duration
	Dialer            *websocket.Dialer
	OnState           func(State)
}

// Subscriber реализует транспортный слой клиента: подключение, получение
// сообщений, keepalive и переподключение с фиксированной паузой.
//
// Каждая попытка подключения получает номер поколения. Переподключаться и
// слать heartbeat может только текущее поколение; устаревшие попытки
// завершаются молча.
type Subscriber struct {
	ServerURL string
	Logger    *slog.Logger
	Handler   Handler

	reconnectDelay    time.Duration
	keepaliveInterval time.Duration
	dialer            *websocket.Dialer
	onState           func(State)

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	generation  uint64
	attempts    uint64
	stopAttempt context.CancelFunc
	state       State
	wg          sync.WaitGroup
}

// NewSubscriber создаёт новый экземпляр транспорта клиента.
func NewSubscriber(serverURL string, handler Handler, opts Options, logger *slog.Logger) *Subscriber {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Subscriber{
		ServerURL:         serverURL,
		Logger:            logger,
		Handler:           handler,
		reconnectDelay:    opts.ReconnectDelay,
		keepaliveInterval: opts.KeepaliveInterval,
		dialer:            opts.Dialer,
		onState:           opts.OnState,
		state:             Disconnected,
	}
}

// Start открывает первое подключение. Подписка живёт, пока не отменён ctx
// или не вызван Close.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.connect()
}

// Reconnect заменяет текущее подключение новым. Старая попытка становится
// устаревшей и не планирует собственного переподключения.
func (s *Subscriber) Reconnect() {
	s.connect()
}

// Close останавливает подписку и ждёт завершения всех горутин.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.setState(Disconnected)
}

// State возвращает текущее состояние.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation возвращает номер текущей попытки подключения.
func (s *Subscriber) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Subscriber) connect() {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.stopAttempt != nil {
		s.stopAttempt()
	}
	s.generation++
	gen := s.generation
	s.attempts++
	next := Connecting
	if s.attempts > 1 {
		next = Reconnecting
	}
	attemptCtx, stop := context.WithCancel(s.ctx)
	s.stopAttempt = stop
	s.wg.Add(1)
	s.mu.Unlock()

	s.transition(gen, next)
	go s.run(attemptCtx, gen)
}

// run обслуживает одну попытку подключения от дозвона до закрытия.
func (s *Subscriber) run(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	conn, _, err := s.dialer.DialContext(ctx, s.ServerURL, nil)
	if err != nil {
		if ctx.Err() == nil {
			s.Logger.Error("Connection failed", "error", &domain.TransportError{Op: "dial", Err: err}, "generation", gen)
		}
	} else {
		s.serve(ctx, conn, gen)
	}

	s.transition(gen, Disconnected)
	if !s.isCurrent(gen) || s.parentDone() {
		return
	}

	timer := time.NewTimer(s.reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		if s.isCurrent(gen) {
			s.Logger.Info("Attempting to reconnect...", "generation", gen)
			s.connect()
		}
	case <-ctx.Done():
	}
}

// serve читает кадры, пока соединение открыто. Keepalive живёт ровно столько же.
func (s *Subscriber) serve(ctx context.Context, conn *websocket.Conn, gen uint64) {
	defer conn.Close()
	if !s.transition(gen, Connected) {
		return
	}
	s.Logger.Info("Connected to server", "url", s.ServerURL, "generation", gen)

	connCtx, stop := context.WithCancel(ctx)
	var helpers sync.WaitGroup
	defer func() {
		stop()
		helpers.Wait()
	}()

	helpers.Add(2)
	go func() {
		defer helpers.Done()
		<-connCtx.Done()
		conn.Close()
	}()
	go func() {
		defer helpers.Done()
		s.keepalive(connCtx, conn, gen)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.Logger.Warn("Disconnected from server", "error", &domain.TransportError{Op: "read", Err: err}, "generation", gen)
			}
			return
		}
		if !s.isCurrent(gen) {
			return
		}
		s.dispatch(raw)
	}
}

func (s *Subscriber) dispatch(raw []byte) {
	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		s.Logger.Error("Error parsing message", "error", err)
		return
	}
	switch env.Type {
	case domain.KindInitialUpdates:
		updates, err := env.Updates()
		if err != nil {
			s.Logger.Error("Error parsing initial updates", "error", err)
			return
		}
		s.Handler.ReplaceAll(updates)
	case domain.KindNewUpdate:
		update, err := env.Update()
		if err != nil {
			s.Logger.Error("Error parsing update", "error", err)
			return
		}
		s.Handler.Prepend(update)
	case domain.KindHeartbeatResponse:
		s.Logger.Debug("Heartbeat acknowledged", "timestamp", env.HeartbeatTimestamp())
	default:
		s.Logger.Debug("Ignoring message", "type", env.Type)
	}
}

// keepalive периодически отправляет heartbeat, пока поколение актуально.
// Читает соединение только serve, поэтому keepalive остаётся единственным писателем.
func (s *Subscriber) keepalive(ctx context.Context, conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(s.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.isCurrent(gen) {
				return
			}
			ts := time.Now().UnixMilli()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteJSON(domain.Envelope{Type: domain.KindHeartbeat, Timestamp: &ts})
			if err != nil {
				s.Logger.Warn("Heartbeat failed", "error", &domain.TransportError{Op: "write", Err: err})
				return
			}
			s.Logger.Debug("Sending heartbeat...", "generation", gen)
		case <-ctx.Done():
			return
		}
	}
}

// transition меняет состояние, только если gen является текущим поколением.
func (s *Subscriber) transition(gen uint64, next State) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(next)
	}
	return true
}

func (s *Subscriber) setState(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(next)
	}
}

func (s *Subscriber) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Subscriber) parentDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx == nil || s.ctx.Err() != nil
}
