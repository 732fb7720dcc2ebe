package lottery

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

// fakeRigs embeds the interface so only ActiveRigs needs a real body.
type fakeRigs struct {
	repositories.RigRepository
	rigs []repositories.ActiveRig
}

func (f *fakeRigs) ActiveRigs(_ context.Context) ([]repositories.ActiveRig, error) {
	return f.rigs, nil
}

type fakeBlocks struct {
	current *models.Block
	awards  []repositories.BlockAward
	closed  []int64
	spawned int
	nextNum int64
}

func (f *fakeBlocks) GetCurrentBlock(_ context.Context) (*models.Block, error) {
	if f.current == nil {
		return nil, repositories.ErrNotFound
	}
	copy := *f.current
	return &copy, nil
}

func (f *fakeBlocks) GetRecentBlocks(_ context.Context, _ int) ([]*models.Block, error) {
	return nil, nil
}

func (f *fakeBlocks) SpawnNextBlock(_ context.Context, reward float64, at time.Time) (*models.Block, error) {
	f.spawned++
	f.nextNum++
	f.current = &models.Block{
		ID:          f.nextNum,
		BlockNumber: f.nextNum,
		BlockReward: reward,
		SpawnedAt:   at,
	}
	return f.current, nil
}

func (f *fakeBlocks) Award(_ context.Context, award repositories.BlockAward) error {
	f.awards = append(f.awards, award)
	f.nextNum = award.BlockNumber + 1
	f.current = &models.Block{
		ID:          f.nextNum,
		BlockNumber: f.nextNum,
		BlockReward: award.NextReward,
		SpawnedAt:   award.Now,
	}
	return nil
}

func (f *fakeBlocks) CloseWithoutWinner(_ context.Context, blockID int64, nextReward float64, at time.Time) error {
	f.closed = append(f.closed, blockID)
	f.nextNum = f.current.BlockNumber + 1
	f.current = &models.Block{
		ID:          f.nextNum,
		BlockNumber: f.nextNum,
		BlockReward: nextReward,
		SpawnedAt:   at,
	}
	return nil
}

func (f *fakeBlocks) CountWins(_ context.Context, userID int64) (int, error) {
	var n int
	for _, a := range f.awards {
		if a.WinnerUserID == userID {
			n++
		}
	}
	return n, nil
}

func TestTotalWeight(t *testing.T) {
	assert.Equal(t, 0.0, TotalWeight(nil))
	assert.InDelta(t, 100.0, TotalWeight([]Competitor{
		{UserID: 1, Hashrate: 30},
		{UserID: 2, Hashrate: 70},
	}), 1e-12)
}

// Two competitors with weights 30 and 70: a draw of 29.999 lands in the
// first band, 30.001 in the second, and exactly 30 goes to the earlier
// competitor under the <= rule.
func TestPickWinner_Boundary(t *testing.T) {
	competitors := []Competitor{
		{UserID: 1, Hashrate: 30},
		{UserID: 2, Hashrate: 70},
	}

	tests := []struct {
		draw float64
		want int64
	}{
		{0, 1},
		{29.999, 1},
		{30, 1},
		{30.001, 2},
		{100, 2},
	}

	for _, tt := range tests {
		winner, ok := PickWinner(competitors, tt.draw)
		require.True(t, ok, "draw %v", tt.draw)
		assert.Equal(t, tt.want, winner.UserID, "draw %v", tt.draw)
	}
}

func TestPickWinner_DrawBeyondTotal(t *testing.T) {
	competitors := []Competitor{{UserID: 1, Hashrate: 30}}
	_, ok := PickWinner(competitors, 30.5)
	assert.False(t, ok)
}

// Over many seeded rounds each competitor's win share converges on its
// weight share.
func TestSelectWinner_Distribution(t *testing.T) {
	lot := New(nil, nil, nil, rand.New(rand.NewSource(99)), Config{})

	wins := map[int64]int{}
	const rounds = 20000
	for i := 0; i < rounds; i++ {
		competitors := []Competitor{
			{UserID: 1, Hashrate: 30},
			{UserID: 2, Hashrate: 70},
		}
		winner, _ := lot.selectWinner(competitors)
		wins[winner.UserID]++
	}

	assert.InDelta(t, 0.30, float64(wins[1])/rounds, 0.02)
	assert.InDelta(t, 0.70, float64(wins[2])/rounds, 0.02)
}

func TestRunCheck_SpawnsFirstBlock(t *testing.T) {
	blocks := &fakeBlocks{}
	clock := &engine.FixedClock{Time: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	lot := New(blocks, &fakeRigs{}, clock, rand.New(rand.NewSource(1)), Config{
		Interval: time.Hour,
		Reward:   0.05,
	})

	require.NoError(t, lot.RunCheck(context.Background()))
	assert.Equal(t, 1, blocks.spawned)
	assert.Equal(t, int64(1), blocks.current.BlockNumber)
}

// Block #1 resolves on the very next check regardless of elapsed time, so
// a fresh deployment is not stalled a full interval.
func TestRunCheck_FirstBlockResolvesImmediately(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	blocks := &fakeBlocks{
		current: &models.Block{ID: 1, BlockNumber: 1, BlockReward: 0.05, SpawnedAt: now},
		nextNum: 1,
	}
	rigs := &fakeRigs{rigs: []repositories.ActiveRig{
		{RigID: 10, UserID: 1, HashRate: 0.01},
	}}

	clock := &engine.FixedClock{Time: now}
	lot := New(blocks, rigs, clock, rand.New(rand.NewSource(1)), Config{
		Interval: time.Hour,
		Reward:   0.05,
	})

	require.NoError(t, lot.RunCheck(context.Background()))
	require.Len(t, blocks.awards, 1)
	assert.Equal(t, int64(1), blocks.awards[0].WinnerUserID)
	assert.Equal(t, int64(2), blocks.current.BlockNumber)
}

func TestRunCheck_NotDueIsNoOp(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	blocks := &fakeBlocks{
		current: &models.Block{ID: 2, BlockNumber: 2, BlockReward: 0.05, SpawnedAt: now.Add(-30 * time.Minute)},
		nextNum: 2,
	}

	clock := &engine.FixedClock{Time: now}
	lot := New(blocks, &fakeRigs{}, clock, rand.New(rand.NewSource(1)), Config{
		Interval: time.Hour,
		Reward:   0.05,
	})

	require.NoError(t, lot.RunCheck(context.Background()))
	assert.Empty(t, blocks.awards)
	assert.Empty(t, blocks.closed)
	assert.Equal(t, int64(2), blocks.current.BlockNumber)
}

// An empty competitor pool closes the round winnerless but still opens the
// next one.
func TestRunCheck_EmptyPoolClosesWinnerless(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	blocks := &fakeBlocks{
		current: &models.Block{ID: 2, BlockNumber: 2, BlockReward: 0.05, SpawnedAt: now.Add(-2 * time.Hour)},
		nextNum: 2,
	}

	clock := &engine.FixedClock{Time: now}
	lot := New(blocks, &fakeRigs{}, clock, rand.New(rand.NewSource(1)), Config{
		Interval: time.Hour,
		Reward:   0.05,
	})

	require.NoError(t, lot.RunCheck(context.Background()))
	assert.Equal(t, []int64{2}, blocks.closed)
	assert.Empty(t, blocks.awards)
	assert.Equal(t, int64(3), blocks.current.BlockNumber)
}

func TestRunCheck_AwardUsesUpgradedWeight(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	blocks := &fakeBlocks{
		current: &models.Block{ID: 2, BlockNumber: 2, BlockReward: 0.05, SpawnedAt: now.Add(-2 * time.Hour)},
		nextNum: 2,
	}
	rigs := &fakeRigs{rigs: []repositories.ActiveRig{
		{RigID: 10, UserID: 1, HashRate: 0.01, UpgradeLevel: 5},
		{RigID: 11, UserID: 2, HashRate: 0.01, UpgradeLevel: 0},
	}}

	clock := &engine.FixedClock{Time: now}
	lot := New(blocks, rigs, clock, rand.New(rand.NewSource(1)), Config{
		Interval: time.Hour,
		Reward:   0.05,
	})

	require.NoError(t, lot.RunCheck(context.Background()))
	require.Len(t, blocks.awards, 1)
	// 0.01*1.5 + 0.01*1.0
	assert.InDelta(t, 0.025, blocks.awards[0].TotalHashrate, 1e-12)
}

func TestOdds(t *testing.T) {
	rigs := &fakeRigs{rigs: []repositories.ActiveRig{
		{RigID: 10, UserID: 1, HashRate: 0.03},
		{RigID: 11, UserID: 1, HashRate: 0.02},
		{RigID: 12, UserID: 2, HashRate: 0.05},
	}}
	lot := New(&fakeBlocks{}, rigs, engine.SystemClock(), rand.New(rand.NewSource(1)), Config{})

	odds, err := lot.Odds(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, odds, 1e-9)

	odds, err = lot.Odds(context.Background(), 2)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, odds, 1e-9)

	odds, err = lot.Odds(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, odds)
}

func TestOdds_EmptyNetwork(t *testing.T) {
	lot := New(&fakeBlocks{}, &fakeRigs{}, engine.SystemClock(), rand.New(rand.NewSource(1)), Config{})

	odds, err := lot.Odds(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, odds)
}

func TestNetworkHashrate(t *testing.T) {
	rigs := &fakeRigs{rigs: []repositories.ActiveRig{
		{RigID: 10, UserID: 1, HashRate: 0.01, UpgradeLevel: 2},
		{RigID: 11, UserID: 2, HashRate: 0.02},
	}}
	lot := New(&fakeBlocks{}, rigs, engine.SystemClock(), rand.New(rand.NewSource(1)), Config{})

	total, err := lot.NetworkHashrate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.01*1.2+0.02, total, 1e-12)
}
