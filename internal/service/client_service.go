package service

import (
	"log/slog"
	"math"
	"sync"

	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/repository"
)

// TypeStat хранит число обновлений категории и их доля в процентах.
type TypeStat struct {
	Count      int
	Percentage int
}

// FeedStats описывает сводку по локальной ленте клиента.
type FeedStats struct {
	Total  int
	ByType map[domain.UpdateType]TypeStat
	Latest *domain.Update
}

// ComputeStats считает распределение обновлений по категориям.
// Доля округляется до целого процента, половина вверх.
func ComputeStats(updates []domain.Update) FeedStats {
	stats := FeedStats{
		Total:  len(updates),
		ByType: make(map[domain.UpdateType]TypeStat, 4),
	}
	counts := make(map[domain.UpdateType]int, 4)
	for _, u := range updates {
		counts[u.Type]++
	}
	for _, t := range domain.Types() {
		st := TypeStat{Count: counts[t]}
		if stats.Total > 0 {
			st.Percentage = int(math.Round(float64(st.Count) / float64(stats.Total) * 100))
		}
		stats.ByType[t] = st
	}
	if len(updates) > 0 {
		latest := updates[0]
		stats.Latest = &latest
	}
	return stats
}

// Listener получает уведомления об изменении локальной ленты.
type Listener interface {
	Replaced(updates []domain.Update, stats FeedStats)
	Added(update domain.Update, stats FeedStats)
}

// ClientService содержит бизнес-логику клиента: локальная лента обновлений
// и, при наличии репозитория, журнал полученных обновлений.
type ClientService struct {
	repo     repository.UpdateRepository
	listener Listener
	logger   *slog.Logger

	mu      sync.Mutex
	updates []domain.Update
}

// NewClientService создаёт новый клиентский сервис. repo и listener могут быть nil.
func NewClientService(repo repository.UpdateRepository, listener Listener, logger *slog.Logger) *ClientService {
	return &ClientService{
		repo:     repo,
		listener: listener,
		logger:   logger,
		updates:  []domain.Update{},
	}
}

// ReplaceAll заменяет ленту целиком содержимым initial-updates.
func (cs *ClientService) ReplaceAll(updates []domain.Update) {
	cs.mu.Lock()
	cs.updates = append(make([]domain.Update, 0, len(updates)), updates...)
	snapshot := cs.snapshotLocked()
	cs.mu.Unlock()

	cs.logger.Info("Initial updates received", "count", len(updates))
	for i := len(updates) - 1; i >= 0; i-- {
		cs.save(updates[i])
	}
	if cs.listener != nil {
		cs.listener.Replaced(snapshot, ComputeStats(snapshot))
	}
}

// Prepend добавляет живое обновление в начало ленты. Ограничения на длину
// на стороне клиента нет: сервер уже присылает ограниченную историю.
func (cs *ClientService) Prepend(update domain.Update) {
	cs.mu.Lock()
	cs.updates = append(cs.updates, domain.Update{})
	copy(cs.updates[1:], cs.updates)
	cs.updates[0] = update
	snapshot := cs.snapshotLocked()
	cs.mu.Unlock()

	cs.logger.Info("Processing update", "id", update.ID, "type", update.Type)
	cs.save(update)
	if cs.listener != nil {
		cs.listener.Added(update, ComputeStats(snapshot))
	}
}

// Updates возвращает копию ленты, новые обновления первыми.
func (cs *ClientService) Updates() []domain.Update {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.snapshotLocked()
}

// Stats возвращает сводку по текущей ленте.
func (cs *ClientService) Stats() FeedStats {
	return ComputeStats(cs.Updates())
}

func (cs *ClientService) snapshotLocked() []domain.Update {
	out := make([]domain.Update, len(cs.updates))
	copy(out, cs.updates)
	return out
}

func (cs *ClientService) save(update domain.Update) {
	if cs.repo == nil {
		return
	}
	if err := cs.repo.Save(update); err != nil {
		cs.logger.Error("Error saving update", "error", err)
	}
}
