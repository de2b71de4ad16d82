package service

import "github.com/wrongjunior/updaterelay/internal/domain"

// History хранит ограниченный список обновлений, новые в начале.
// Не потокобезопасен: владеет им UpdateService под своим мьютексом.
type History struct {
	items    []domain.Update
	capacity int
}

// NewHistory создаёт пустую историю заданной ёмкости.
func NewHistory(capacity int) *History {
	return &History{
		items:    make([]domain.Update, 0, capacity+1),
		capacity: capacity,
	}
}

// Push вставляет обновление в начало, затем отбрасывает самое старое,
// если длина превысила ёмкость.
func (h *History) Push(u domain.Update) {
	h.items = append(h.items, domain.Update{})
	copy(h.items[1:], h.items)
	h.items[0] = u
	if len(h.items) > h.capacity {
		h.items = h.items[:len(h.items)-1]
	}
}

// Snapshot возвращает копию истории. Последующие Push её не меняют.
func (h *History) Snapshot() []domain.Update {
	out := make([]domain.Update, len(h.items))
	copy(out, h.items)
	return out
}

// Len возвращает текущее число записей.
func (h *History) Len() int { return len(h.items) }

// Capacity возвращает ёмкость истории.
func (h *History) Capacity() int { return h.capacity }
