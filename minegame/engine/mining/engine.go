package mining

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	batchSize            = 50
	maxConcurrentBatches = 5
)

// PowerPolicy decides what happens when an owner cannot afford a rig's
// power draw for the elapsed window.
type PowerPolicy string

const (
	// PowerPolicyAbsorb debits what cash there is, floors the balance at
	// zero and keeps mining. Matches the game's historical behavior.
	PowerPolicyAbsorb PowerPolicy = "absorb"
	// PowerPolicyShutdown powers the rig off instead of mining when the
	// owner cannot cover the draw.
	PowerPolicyShutdown PowerPolicy = "shutdown"
)

type Config struct {
	// DegradationPerDay is durability percentage points lost per day of
	// operation. At the default 4.0 a fresh rig lasts around 25 days.
	DegradationPerDay float64
	PowerPolicy       PowerPolicy
}

// Snapshot is one rig's state as read at the start of the pass. Accrual is
// a pure function of a snapshot and the current time.
type Snapshot struct {
	RigID        int64
	UserID       int64
	RigName      string
	HashRate     float64 // BTC per hour at full condition, no upgrades
	PowerPerDay  float64 // credits per day
	UpgradeLevel int
	Durability   float64
	Active       bool
	LastMined    time.Time
}

// Outcome is what one accrual produces: mined BTC, the degraded condition
// and the power bill for the window.
type Outcome struct {
	RigID         int64
	UserID        int64
	RigName       string
	Hours         float64
	Mined         float64
	NewDurability float64
	PowerCost     float64
}

// Accrue computes a single rig's mining outcome. It reports false for
// no-ops: inactive rigs, dead rigs, and windows under one hour (accrual is
// hourly-quantized to avoid churn on tiny ticks). Degradation applies
// whenever the window is processed, independent of output.
func Accrue(s Snapshot, degradationPerDay float64, now time.Time) (Outcome, bool) {
	if !s.Active || s.Durability <= 0 {
		return Outcome{}, false
	}

	hours := now.Sub(s.LastMined).Hours()
	if hours < 1.0 {
		return Outcome{}, false
	}

	mined := s.HashRate * hours * models.UpgradeMultiplier(s.UpgradeLevel) * models.ConditionMultiplier(s.Durability)

	loss := degradationPerDay / 24 * hours
	newDurability := s.Durability - loss
	if newDurability < 0 {
		newDurability = 0
	}

	return Outcome{
		RigID:         s.RigID,
		UserID:        s.UserID,
		RigName:       s.RigName,
		Hours:         hours,
		Mined:         mined,
		NewDurability: newDurability,
		PowerCost:     s.PowerPerDay / 24 * hours,
	}, true
}

// Engine runs the periodic accrual pass over every active rig.
type Engine struct {
	rigs  repositories.RigRepository
	clock engine.Clock
	sem   *semaphore.Weighted
	cfg   Config
}

func NewEngine(rigs repositories.RigRepository, clock engine.Clock, cfg Config) *Engine {
	if cfg.PowerPolicy == "" {
		cfg.PowerPolicy = PowerPolicyAbsorb
	}
	return &Engine{
		rigs:  rigs,
		clock: clock,
		sem:   semaphore.NewWeighted(maxConcurrentBatches),
		cfg:   cfg,
	}
}

func snapshotOf(a repositories.ActiveRig) Snapshot {
	return Snapshot{
		RigID:        a.RigID,
		UserID:       a.UserID,
		RigName:      a.RigName,
		HashRate:     a.HashRate,
		PowerPerDay:  a.PowerConsumption,
		UpgradeLevel: a.UpgradeLevel,
		Durability:   a.Durability,
		Active:       true,
		LastMined:    a.LastMined,
	}
}

// RunAccrual processes all active rigs in bounded batches. Each rig's
// update is atomic on its own; a failure on one rig is counted and the
// pass moves on.
func (e *Engine) RunAccrual(ctx context.Context) error {
	now := e.clock.Now()

	rigs, err := e.rigs.ActiveRigs(ctx)
	if err != nil {
		return err
	}
	if len(rigs) == 0 {
		return nil
	}

	var (
		processed int32
		failures  int32
		skipped   int32

		minedMu    sync.Mutex
		totalMined float64
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < len(rigs); i += batchSize {
		end := i + batchSize
		if end > len(rigs) {
			end = len(rigs)
		}
		batch := rigs[i:end]

		// Acquire before launching so at most maxConcurrentBatches batches
		// are in flight at once.
		if err := e.sem.Acquire(gctx, 1); err != nil {
			g.Wait()
			return err
		}

		g.Go(func() error {
			defer e.sem.Release(1)
			for _, rig := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}

				outcome, ok := Accrue(snapshotOf(rig), e.cfg.DegradationPerDay, now)
				if !ok {
					atomic.AddInt32(&skipped, 1)
					continue
				}

				err := e.rigs.ApplyAccrual(gctx, repositories.AccrualUpdate{
					RigID:         outcome.RigID,
					UserID:        outcome.UserID,
					RigName:       outcome.RigName,
					Hours:         outcome.Hours,
					MinedAmount:   outcome.Mined,
					NewDurability: outcome.NewDurability,
					PowerCost:     outcome.PowerCost,
					RequireCash:   e.cfg.PowerPolicy == PowerPolicyShutdown,
					Now:           now,
				})
				if err != nil {
					atomic.AddInt32(&failures, 1)
					if !errors.Is(err, repositories.ErrPowerShortfall) {
						slog.Error("Accrual failed for rig",
							slog.String("type", "mining"),
							slog.Int64("rig_id", outcome.RigID),
							slog.Int64("user_id", outcome.UserID),
							slog.Any("error", err))
					}
					continue
				}

				atomic.AddInt32(&processed, 1)
				minedMu.Lock()
				totalMined += outcome.Mined
				minedMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Accrual pass completed",
		slog.String("type", "mining"),
		slog.Int("rigs", len(rigs)),
		slog.Int("processed", int(atomic.LoadInt32(&processed))),
		slog.Int("skipped", int(atomic.LoadInt32(&skipped))),
		slog.Int("errors", int(atomic.LoadInt32(&failures))),
		slog.Float64("total_mined", totalMined),
		slog.Duration("took", time.Since(start)))

	return nil
}
