package service

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/logging"
	"github.com/wrongjunior/updaterelay/internal/repository"
)

type recordingListener struct {
	replaced [][]domain.Update
	added    []domain.Update
	last     FeedStats
}

func (l *recordingListener) Replaced(updates []domain.Update, stats FeedStats) {
	l.replaced = append(l.replaced, updates)
	l.last = stats
}

func (l *recordingListener) Added(update domain.Update, stats FeedStats) {
	l.added = append(l.added, update)
	l.last = stats
}

func upd(id int64, typ domain.UpdateType) domain.Update {
	return domain.Update{ID: id, Type: typ, Message: "m", Title: "Update", Timestamp: time.UnixMilli(id).UTC()}
}

func TestClientServiceReplaceThenPrepend(t *testing.T) {
	listener := &recordingListener{}
	cs := NewClientService(nil, listener, logging.Discard())

	cs.Prepend(upd(1, domain.TypeInfo))
	cs.ReplaceAll([]domain.Update{upd(20, domain.TypeError), upd(10, domain.TypeInfo)})
	assert.Equal(t, []int64{20, 10}, ids(cs.Updates()))

	cs.Prepend(upd(30, domain.TypeSuccess))
	cs.Prepend(upd(40, domain.TypeWarning))
	assert.Equal(t, []int64{40, 30, 20, 10}, ids(cs.Updates()))

	require.Len(t, listener.replaced, 1)
	assert.Len(t, listener.added, 3)
	assert.Equal(t, 4, listener.last.Total)
	require.NotNil(t, listener.last.Latest)
	assert.Equal(t, int64(40), listener.last.Latest.ID)
}

func TestClientServiceNoClientBound(t *testing.T) {
	cs := NewClientService(nil, nil, logging.Discard())
	for i := int64(1); i <= 150; i++ {
		cs.Prepend(upd(i, domain.TypeInfo))
	}
	assert.Len(t, cs.Updates(), 150)
}

func TestClientServiceUpdatesIsCopy(t *testing.T) {
	cs := NewClientService(nil, nil, logging.Discard())
	input := []domain.Update{upd(2, domain.TypeInfo), upd(1, domain.TypeInfo)}
	cs.ReplaceAll(input)
	input[0].Message = "changed"

	got := cs.Updates()
	assert.Equal(t, "m", got[0].Message)
	got[1].Message = "changed"
	assert.Equal(t, "m", cs.Updates()[1].Message)
}

func TestClientServiceJournal(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	repo := repository.NewSQLiteRepository(db)
	require.NoError(t, repo.Init())

	cs := NewClientService(repo, nil, logging.Discard())
	cs.ReplaceAll([]domain.Update{upd(2, domain.TypeInfo), upd(1, domain.TypeInfo)})
	// повторный снимок после переподключения не дублирует записи
	cs.ReplaceAll([]domain.Update{upd(3, domain.TypeError), upd(2, domain.TypeInfo), upd(1, domain.TypeInfo)})
	cs.Prepend(upd(4, domain.TypeWarning))

	recent, err := repo.Recent(10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 2, 1}, ids(recent))
}

func TestComputeStats(t *testing.T) {
	empty := ComputeStats(nil)
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.Latest)
	assert.Equal(t, TypeStat{}, empty.ByType[domain.TypeError])

	updates := []domain.Update{
		upd(8, domain.TypeError),
		upd(7, domain.TypeInfo),
		upd(6, domain.TypeInfo),
		upd(5, domain.TypeInfo),
		upd(4, domain.TypeSuccess),
		upd(3, domain.TypeSuccess),
		upd(2, domain.TypeSuccess),
		upd(1, domain.TypeWarning),
	}
	stats := ComputeStats(updates)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, TypeStat{Count: 3, Percentage: 38}, stats.ByType[domain.TypeInfo])
	assert.Equal(t, TypeStat{Count: 1, Percentage: 13}, stats.ByType[domain.TypeError])
	assert.Equal(t, TypeStat{Count: 1, Percentage: 13}, stats.ByType[domain.TypeWarning])
	assert.Equal(t, int64(8), stats.Latest.ID)
}
