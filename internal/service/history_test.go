package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrongjunior/updaterelay/internal/domain"
)

func TestHistoryNewestFirst(t *testing.T) {
	h := NewHistory(100)
	for i := int64(1); i <= 3; i++ {
		h.Push(domain.Update{ID: i})
	}
	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 2, 1}, ids(snap))
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(100)
	for i := int64(1); i <= 100; i++ {
		h.Push(domain.Update{ID: i})
		assert.LessOrEqual(t, h.Len(), 100)
	}
	before := h.Snapshot()
	require.Len(t, before, 100)
	assert.Equal(t, int64(1), before[99].ID)

	h.Push(domain.Update{ID: 101})
	after := h.Snapshot()
	require.Len(t, after, 100)
	assert.Equal(t, int64(101), after[0].ID)
	// вытеснена ровно самая старая запись
	assert.Equal(t, int64(2), after[99].ID)
	assert.Equal(t, before[:99], after[1:])
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := NewHistory(2)
	h.Push(domain.Update{ID: 1, Message: "first"})
	snap := h.Snapshot()

	h.Push(domain.Update{ID: 2})
	h.Push(domain.Update{ID: 3})

	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].ID)
	assert.Equal(t, "first", snap[0].Message)

	snap[0].Message = "mutated"
	assert.Equal(t, []int64{3, 2}, ids(h.Snapshot()))
}

func TestHistoryCapacityOne(t *testing.T) {
	h := NewHistory(1)
	h.Push(domain.Update{ID: 1})
	h.Push(domain.Update{ID: 2})
	assert.Equal(t, []int64{2}, ids(h.Snapshot()))
	assert.Equal(t, 1, h.Capacity())
}

func ids(updates []domain.Update) []int64 {
	out := make([]int64, len(updates))
	for i, u := range updates {
		out[i] = u.ID
	}
	return out
}
