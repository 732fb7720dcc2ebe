package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

// fakeBoardStore serves canned stats per board and records replacements.
type fakeBoardStore struct {
	stats    map[string][]repositories.OwnerStat
	errs     map[string]error
	boards   map[string][]*models.LeaderboardEntry
	purged   int64
	purgeCut time.Time
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{
		stats:  map[string][]repositories.OwnerStat{},
		errs:   map[string]error{},
		boards: map[string][]*models.LeaderboardEntry{},
	}
}

func (f *fakeBoardStore) serve(board string, _ int) ([]repositories.OwnerStat, error) {
	if err := f.errs[board]; err != nil {
		return nil, err
	}
	return f.stats[board], nil
}

func (f *fakeBoardStore) RichestOwners(_ context.Context, limit int) ([]repositories.OwnerStat, error) {
	return f.serve(models.BoardRichest, limit)
}

func (f *fakeBoardStore) TopMiners(_ context.Context, limit int) ([]repositories.OwnerStat, error) {
	return f.serve(models.BoardMostMined, limit)
}

func (f *fakeBoardStore) AvgDurability(_ context.Context, limit int) ([]repositories.OwnerStat, error) {
	return f.serve(models.BoardMostEfficient, limit)
}

func (f *fakeBoardStore) RigCounts(_ context.Context, limit int) ([]repositories.OwnerStat, error) {
	return f.serve(models.BoardMostRigs, limit)
}

func (f *fakeBoardStore) BlockWins(_ context.Context, limit int) ([]repositories.OwnerStat, error) {
	return f.serve(models.BoardBlockChampion, limit)
}

func (f *fakeBoardStore) PurgeStale(_ context.Context, before time.Time) (int64, error) {
	f.purgeCut = before
	return f.purged, nil
}

func (f *fakeBoardStore) ReplaceBoard(_ context.Context, board string, entries []*models.LeaderboardEntry) error {
	f.boards[board] = entries
	return nil
}

func (f *fakeBoardStore) GetPage(_ context.Context, board string, page, pageSize int) ([]*models.LeaderboardEntry, error) {
	return f.boards[board], nil
}

func (f *fakeBoardStore) GetUserRank(_ context.Context, board string, userID int64) (*models.LeaderboardEntry, error) {
	for _, e := range f.boards[board] {
		if e.UserID == userID {
			return e, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func TestRank_OrdersAndNumbers(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stats := []repositories.OwnerStat{
		{UserID: 3, Value: 100},
		{UserID: 1, Value: 300},
		{UserID: 2, Value: 200},
	}

	entries := Rank(models.BoardRichest, stats, 100, now)
	require.Len(t, entries, 3)

	assert.Equal(t, int64(1), entries[0].UserID)
	assert.Equal(t, int64(2), entries[1].UserID)
	assert.Equal(t, int64(3), entries[2].UserID)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		assert.Equal(t, models.BoardRichest, e.BoardType)
		assert.Equal(t, now, e.LastUpdated)
	}
}

// Equal values break ties by ascending owner id, so repeated runs over the
// same snapshot never reshuffle.
func TestRank_TieBreakDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		stats := []repositories.OwnerStat{
			{UserID: 9, Value: 50},
			{UserID: 2, Value: 50},
			{UserID: 5, Value: 50},
		}

		entries := Rank(models.BoardRichest, stats, 100, now)
		require.Len(t, entries, 3)
		assert.Equal(t, int64(2), entries[0].UserID)
		assert.Equal(t, int64(5), entries[1].UserID)
		assert.Equal(t, int64(9), entries[2].UserID)
	}
}

func TestRank_TruncatesToTopN(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stats := make([]repositories.OwnerStat, 150)
	for i := range stats {
		stats[i] = repositories.OwnerStat{UserID: int64(i + 1), Value: float64(i)}
	}

	entries := Rank(models.BoardRichest, stats, 100, now)
	require.Len(t, entries, 100)
	assert.Equal(t, int64(150), entries[0].UserID)
	assert.Equal(t, 100, entries[99].Rank)
}

func TestRank_EmptyStats(t *testing.T) {
	entries := Rank(models.BoardRichest, nil, 100, time.Now())
	assert.Empty(t, entries)
}

func TestRefresh_RebuildsAllBoards(t *testing.T) {
	store := newFakeBoardStore()
	store.stats[models.BoardRichest] = []repositories.OwnerStat{{UserID: 1, Value: 500}}
	store.stats[models.BoardMostMined] = []repositories.OwnerStat{{UserID: 2, Value: 0.4}}

	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	agg := NewAggregator(store, clock, Config{TopN: 100, Freshness: time.Hour})

	require.NoError(t, agg.Refresh(context.Background()))

	assert.Len(t, store.boards, 5)
	require.Len(t, store.boards[models.BoardRichest], 1)
	assert.Equal(t, int64(1), store.boards[models.BoardRichest][0].UserID)
	// Boards with no qualifying owners end up empty, not missing.
	assert.Empty(t, store.boards[models.BoardBlockChampion])
	assert.Equal(t, clock.Time.Add(-time.Hour), store.purgeCut)
}

// A dropout disappears from the cache on the next refresh because the
// board is replaced wholesale.
func TestRefresh_DropoutRemoved(t *testing.T) {
	store := newFakeBoardStore()
	store.stats[models.BoardRichest] = []repositories.OwnerStat{
		{UserID: 1, Value: 500},
		{UserID: 2, Value: 400},
	}

	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	agg := NewAggregator(store, clock, Config{TopN: 100, Freshness: time.Hour})
	require.NoError(t, agg.Refresh(context.Background()))
	require.Len(t, store.boards[models.BoardRichest], 2)

	store.stats[models.BoardRichest] = []repositories.OwnerStat{{UserID: 2, Value: 400}}
	clock.Advance(15 * time.Minute)
	require.NoError(t, agg.Refresh(context.Background()))

	entries := store.boards[models.BoardRichest]
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
}

func TestRefresh_OneBoardFailingContinues(t *testing.T) {
	store := newFakeBoardStore()
	store.stats[models.BoardRichest] = []repositories.OwnerStat{{UserID: 1, Value: 500}}
	store.errs[models.BoardMostMined] = errors.New("query timeout")

	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	agg := NewAggregator(store, clock, Config{TopN: 100, Freshness: time.Hour})

	require.NoError(t, agg.Refresh(context.Background()))
	assert.Contains(t, store.boards, models.BoardRichest)
	assert.NotContains(t, store.boards, models.BoardMostMined)
}

func TestRefresh_AllBoardsFailingErrors(t *testing.T) {
	store := newFakeBoardStore()
	boom := errors.New("db down")
	for _, key := range []string{
		models.BoardRichest, models.BoardMostMined, models.BoardMostEfficient,
		models.BoardMostRigs, models.BoardBlockChampion,
	} {
		store.errs[key] = boom
	}

	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	agg := NewAggregator(store, clock, Config{TopN: 100, Freshness: time.Hour})

	assert.Error(t, agg.Refresh(context.Background()))
}

// Refreshing twice over the same snapshot produces identical boards.
func TestRefresh_Idempotent(t *testing.T) {
	store := newFakeBoardStore()
	store.stats[models.BoardRichest] = []repositories.OwnerStat{
		{UserID: 3, Value: 100},
		{UserID: 1, Value: 100},
		{UserID: 2, Value: 250},
	}

	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	agg := NewAggregator(store, clock, Config{TopN: 100, Freshness: time.Hour})

	require.NoError(t, agg.Refresh(context.Background()))
	first := store.boards[models.BoardRichest]

	require.NoError(t, agg.Refresh(context.Background()))
	second := store.boards[models.BoardRichest]

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].UserID, second[i].UserID)
		assert.Equal(t, first[i].Rank, second[i].Rank)
	}
}
