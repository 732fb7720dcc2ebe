package mining

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

func baseSnapshot(lastMined time.Time) Snapshot {
	return Snapshot{
		RigID:        1,
		UserID:       100,
		RigName:      "Scrapyard GPU",
		HashRate:     0.01,
		PowerPerDay:  48,
		UpgradeLevel: 0,
		Durability:   100,
		Active:       true,
		LastMined:    lastMined,
	}
}

func TestAccrue_SkipsNoOps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{
			name:   "inactive rig",
			mutate: func(s *Snapshot) { s.Active = false },
		},
		{
			name:   "dead rig",
			mutate: func(s *Snapshot) { s.Durability = 0 },
		},
		{
			name:   "window under one hour",
			mutate: func(s *Snapshot) { s.LastMined = now.Add(-59 * time.Minute) },
		},
		{
			name:   "zero elapsed",
			mutate: func(s *Snapshot) { s.LastMined = now },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSnapshot(now.Add(-2 * time.Hour))
			tt.mutate(&s)

			_, ok := Accrue(s, 4.0, now)
			assert.False(t, ok)
		})
	}
}

func TestAccrue_TenHoursFullCondition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := baseSnapshot(now.Add(-10 * time.Hour))

	out, ok := Accrue(s, 4.0, now)
	require.True(t, ok)

	// rate 0.01/hr, level 0, full condition, 10 hours.
	assert.InDelta(t, 0.1, out.Mined, 1e-12)
	assert.InDelta(t, 10.0, out.Hours, 1e-12)
	// 4.0/day over 10 hours.
	assert.InDelta(t, 100-4.0/24*10, out.NewDurability, 1e-9)
	// 48 credits/day over 10 hours.
	assert.InDelta(t, 20.0, out.PowerCost, 1e-9)
}

func TestAccrue_UpgradeMultiplier(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := baseSnapshot(now.Add(-10 * time.Hour))
	s.UpgradeLevel = 3

	out, ok := Accrue(s, 0, now)
	require.True(t, ok)
	assert.InDelta(t, 0.1*1.3, out.Mined, 1e-12)
}

func TestAccrue_ConditionSteps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		durability float64
		multiplier float64
	}{
		{100, 1.0},
		{50, 1.0},
		{49.9, 0.75},
		{25, 0.75},
		{24.9, 0.50},
		{1, 0.50},
	}

	for _, tt := range tests {
		s := baseSnapshot(now.Add(-time.Hour))
		s.Durability = tt.durability

		out, ok := Accrue(s, 0, now)
		require.True(t, ok, "durability %v", tt.durability)
		assert.InDelta(t, 0.01*tt.multiplier, out.Mined, 1e-12,
			"durability %v", tt.durability)
	}
}

func TestAccrue_OutputLinearInHours(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	one, ok := Accrue(baseSnapshot(now.Add(-time.Hour)), 0, now)
	require.True(t, ok)
	five, ok := Accrue(baseSnapshot(now.Add(-5*time.Hour)), 0, now)
	require.True(t, ok)

	assert.InDelta(t, one.Mined*5, five.Mined, 1e-12)
	assert.InDelta(t, one.PowerCost*5, five.PowerCost, 1e-12)
}

func TestAccrue_DurabilityFloorsAtZero(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := baseSnapshot(now.Add(-48 * time.Hour))
	s.Durability = 3

	out, ok := Accrue(s, 4.0, now)
	require.True(t, ok)
	// Two days at 4/day would take 8 points off 3.
	assert.Equal(t, 0.0, out.NewDurability)
	// Output still accrues for the window at the worn-condition rate.
	assert.InDelta(t, 0.01*48*0.50, out.Mined, 1e-12)
}

func TestAccrue_DegradationIndependentOfOutput(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := baseSnapshot(now.Add(-6 * time.Hour))
	worn := baseSnapshot(now.Add(-6 * time.Hour))
	worn.Durability = 30

	outFresh, ok := Accrue(fresh, 4.0, now)
	require.True(t, ok)
	outWorn, ok := Accrue(worn, 4.0, now)
	require.True(t, ok)

	// Same window, same wear, regardless of condition tier.
	assert.InDelta(t, 100-outFresh.NewDurability, 30-outWorn.NewDurability, 1e-9)
}

type fakeRigRepo struct {
	repositories.RigRepository

	rigs   []repositories.ActiveRig
	errFor map[int64]error

	mu      sync.Mutex
	applied []repositories.AccrualUpdate
}

func (f *fakeRigRepo) ActiveRigs(ctx context.Context) ([]repositories.ActiveRig, error) {
	return f.rigs, nil
}

func (f *fakeRigRepo) ApplyAccrual(ctx context.Context, upd repositories.AccrualUpdate) error {
	if err := f.errFor[upd.RigID]; err != nil {
		return err
	}
	f.mu.Lock()
	f.applied = append(f.applied, upd)
	f.mu.Unlock()
	return nil
}

func activeRigFleet(n int, lastMined time.Time) []repositories.ActiveRig {
	rigs := make([]repositories.ActiveRig, n)
	for i := range rigs {
		rigs[i] = repositories.ActiveRig{
			RigID:            int64(i + 1),
			UserID:           int64(i + 1),
			RigName:          "Scrapyard GPU",
			HashRate:         0.01,
			PowerConsumption: 48,
			Durability:       100,
			LastMined:        lastMined,
		}
	}
	return rigs
}

func TestRunAccrual_ProcessesEveryRigAcrossBatches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Enough rigs to span several batches, so every batch goroutine has to
	// run to completion for the counts to add up.
	repo := &fakeRigRepo{rigs: activeRigFleet(batchSize*2+7, now.Add(-2*time.Hour))}

	eng := NewEngine(repo, &engine.FixedClock{Time: now}, Config{DegradationPerDay: 4.0})
	require.NoError(t, eng.RunAccrual(context.Background()))

	require.Len(t, repo.applied, batchSize*2+7)
	seen := make(map[int64]bool, len(repo.applied))
	for _, upd := range repo.applied {
		assert.False(t, seen[upd.RigID], "rig %d accrued twice", upd.RigID)
		seen[upd.RigID] = true
		assert.False(t, upd.RequireCash)
	}
}

func TestRunAccrual_ShutdownPolicyRequiresCash(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRigRepo{rigs: activeRigFleet(3, now.Add(-2*time.Hour))}

	eng := NewEngine(repo, &engine.FixedClock{Time: now}, Config{
		DegradationPerDay: 4.0,
		PowerPolicy:       PowerPolicyShutdown,
	})
	require.NoError(t, eng.RunAccrual(context.Background()))

	require.Len(t, repo.applied, 3)
	for _, upd := range repo.applied {
		assert.True(t, upd.RequireCash)
	}
}

func TestRunAccrual_PowerShortfallDoesNotAbortPass(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRigRepo{
		rigs:   activeRigFleet(3, now.Add(-2*time.Hour)),
		errFor: map[int64]error{2: repositories.ErrPowerShortfall},
	}

	eng := NewEngine(repo, &engine.FixedClock{Time: now}, Config{
		DegradationPerDay: 4.0,
		PowerPolicy:       PowerPolicyShutdown,
	})
	require.NoError(t, eng.RunAccrual(context.Background()))

	// The broke owner's rig is skipped; the rest of the fleet still accrues.
	require.Len(t, repo.applied, 2)
	for _, upd := range repo.applied {
		assert.NotEqual(t, int64(2), upd.RigID)
	}
}
