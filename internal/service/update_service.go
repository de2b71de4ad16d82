package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/metrics"
)

// Subscription описывает открытую подписку одного клиента.
// Initial содержит снимок истории на момент подписки; все обновления,
// принятые после него, приходят в Events() в порядке приёма.
type Subscription struct {
	ID      string
	Initial []domain.Update
	events  chan domain.Update
	once    sync.Once
}

// Events возвращает канал живых обновлений. Канал закрывается при отписке,
// остановке сервиса или если подписчик не успевает читать.
func (s *Subscription) Events() <-chan domain.Update {
	return s.events
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.events) })
}

// Overview содержит сводку состояния сервиса для /health.
type Overview struct {
	Uptime      time.Duration
	Subscribers int
	HistorySize int
}

// Options настраивает UpdateService.
type Options struct {
	Capacity int              // ёмкость истории
	Buffer   int              // буфер канала одного подписчика
	Metrics  *metrics.Metrics // nil, если нужен собственный набор метрик
	Now      func() time.Time // nil означает time.Now
}

// UpdateService реализует бизнес-логику сервера: хранение последних обновлений,
// регистрация подписчиков и рассылка.
type UpdateService struct {
	mu      sync.Mutex
	history *History
	clients map[*Subscription]struct{}
	buffer  int
	lastID  int64

	now     func() time.Time
	started time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewUpdateService создаёт новый экземпляр сервиса.
func NewUpdateService(opts Options, logger *slog.Logger) *UpdateService {
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &UpdateService{
		history: NewHistory(opts.Capacity),
		clients: make(map[*Subscription]struct{}),
		buffer:  opts.Buffer,
		now:     opts.Now,
		started: opts.Now(),
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Submit проверяет запрос, сохраняет обновление и рассылает его всем подписчикам.
// Вставка, усечение и рассылка выполняются под одним мьютексом, поэтому
// каждый подписчик видит обновления в том же порядке, что и история.
func (s *UpdateService) Submit(req domain.SubmitRequest) (domain.Update, error) {
	req, err := req.Normalize()
	if err != nil {
		field := "request"
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			field = verr.Field
		}
		s.metrics.Rejected.WithLabelValues(field).Inc()
		s.logger.Info("Update rejected", "field", field, "error", err)
		return domain.Update{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	update := domain.Update{
		ID:        id,
		Message:   req.Message,
		Type:      req.Type,
		Title:     req.Title,
		Timestamp: now.Truncate(time.Millisecond),
	}
	s.history.Push(update)
	s.metrics.Submitted.WithLabelValues(string(update.Type)).Inc()
	s.metrics.HistorySize.Set(float64(s.history.Len()))

	s.broadcastLocked(update)
	s.logger.Info("Update accepted", "id", update.ID, "type", update.Type, "subscribers", len(s.clients))
	return update, nil
}

// broadcastLocked раздаёт обновление без блокировки. Подписчик с переполненным
// буфером отключается: переподключившись, он получит свежий снимок.
func (s *UpdateService) broadcastLocked(update domain.Update) {
	for sub := range s.clients {
		select {
		case sub.events <- update:
			s.metrics.Delivered.Inc()
		default:
			delete(s.clients, sub)
			sub.close()
			s.metrics.Evicted.Inc()
			s.metrics.Subscribers.Set(float64(len(s.clients)))
			s.logger.Warn("Subscriber evicted: buffer full", "subscription", sub.ID)
		}
	}
}

// Snapshot возвращает копию истории, новые обновления первыми.
func (s *UpdateService) Snapshot() []domain.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot()
}

// Subscribe атомарно снимает историю и регистрирует подписчика.
func (s *UpdateService) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		events: make(chan domain.Update, s.buffer),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Initial = s.history.Snapshot()
	s.clients[sub] = struct{}{}
	s.metrics.Subscribers.Set(float64(len(s.clients)))
	s.logger.Info("Client registered", "subscription", sub.ID, "initial", len(sub.Initial))
	return sub
}

// Unsubscribe удаляет подписчика. Повторный вызов безопасен.
func (s *UpdateService) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[sub]; ok {
		delete(s.clients, sub)
		s.metrics.Subscribers.Set(float64(len(s.clients)))
		s.logger.Info("Client unregistered", "subscription", sub.ID)
	}
	sub.close()
}

// Keepalive отвечает на heartbeat клиента меткой времени сервера.
// История и рассылка не затрагиваются.
func (s *UpdateService) Keepalive(subscriptionID string, clientTimestamp int64) domain.Heartbeat {
	s.metrics.Heartbeats.Inc()
	s.logger.Debug("Heartbeat received", "subscription", subscriptionID, "timestamp", clientTimestamp)
	return domain.Heartbeat{Timestamp: s.now().UnixMilli()}
}

// Stats возвращает сводку для проверки состояния.
func (s *UpdateService) Stats() Overview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Overview{
		Uptime:      s.now().Sub(s.started),
		Subscribers: len(s.clients),
		HistorySize: s.history.Len(),
	}
}

// Shutdown закрывает все подписки.
func (s *UpdateService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.clients {
		delete(s.clients, sub)
		sub.close()
	}
	s.metrics.Subscribers.Set(0)
	s.logger.Info("UpdateService shutdown")
}
