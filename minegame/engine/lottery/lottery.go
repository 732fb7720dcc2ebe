package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

type Config struct {
	// Interval is how long a block stays open before it can resolve.
	Interval time.Duration
	// Reward is the lump sum credited to the winner, in BTC.
	Reward float64
}

// Competitor is one eligible rig with its lottery weight.
type Competitor struct {
	RigID    int64
	UserID   int64
	RigName  string
	Hashrate float64 // effective: base rate times upgrade multiplier
}

// Lottery runs the periodic weighted block competition.
type Lottery struct {
	blocks repositories.BlockRepository
	rigs   repositories.RigRepository
	clock  engine.Clock
	rng    *rand.Rand
	cfg    Config
}

func New(blocks repositories.BlockRepository, rigs repositories.RigRepository, clock engine.Clock, rng *rand.Rand, cfg Config) *Lottery {
	return &Lottery{
		blocks: blocks,
		rigs:   rigs,
		clock:  clock,
		rng:    rng,
		cfg:    cfg,
	}
}

// TotalWeight sums the competitors' effective hashrates.
func TotalWeight(competitors []Competitor) float64 {
	var total float64
	for _, c := range competitors {
		total += c.Hashrate
	}
	return total
}

// PickWinner walks the list accumulating weight and selects the first
// competitor whose cumulative weight reaches the draw. The comparison is
// <=, so a draw landing exactly on a boundary goes to the earlier
// competitor; the caller shuffles the list first, which removes any
// positional bias from that tie rule. Reports false when the walk selects
// nobody.
func PickWinner(competitors []Competitor, draw float64) (Competitor, bool) {
	var cumulative float64
	for _, c := range competitors {
		cumulative += c.Hashrate
		if draw <= cumulative {
			return c, true
		}
	}
	return Competitor{}, false
}

// selectWinner shuffles, draws uniformly in [0, total] and walks. The
// uniform fallback covers floating-point edge cases only; it is not part of
// the probability model.
func (l *Lottery) selectWinner(competitors []Competitor) (Competitor, float64) {
	l.rng.Shuffle(len(competitors), func(i, j int) {
		competitors[i], competitors[j] = competitors[j], competitors[i]
	})

	total := TotalWeight(competitors)
	draw := l.rng.Float64() * total

	if winner, ok := PickWinner(competitors, draw); ok {
		return winner, total
	}
	return competitors[l.rng.Intn(len(competitors))], total
}

// RunCheck resolves the open block if it is due and spawns the next one.
// With no open block it just spawns the first.
func (l *Lottery) RunCheck(ctx context.Context) error {
	now := l.clock.Now()

	block, err := l.blocks.GetCurrentBlock(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		_, err := l.blocks.SpawnNextBlock(ctx, l.cfg.Reward, now)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to load current block: %w", err)
	}

	if !block.ReadyToSolve(now, l.cfg.Interval) {
		return nil
	}

	competitors, err := l.competitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load competitors: %w", err)
	}

	if len(competitors) == 0 {
		// Nobody mining: the round closes winnerless but a fresh one must
		// still open.
		if err := l.blocks.CloseWithoutWinner(ctx, block.ID, l.cfg.Reward, now); err != nil {
			return err
		}
		slog.Info("Block closed with no competitors",
			slog.String("type", "lottery"),
			slog.Int64("block_number", block.BlockNumber))
		return nil
	}

	winner, total := l.selectWinner(competitors)

	if err := l.blocks.Award(ctx, repositories.BlockAward{
		BlockID:       block.ID,
		BlockNumber:   block.BlockNumber,
		Reward:        block.BlockReward,
		TotalHashrate: total,
		WinnerUserID:  winner.UserID,
		WinnerRigID:   winner.RigID,
		WinnerRigName: winner.RigName,
		NextReward:    l.cfg.Reward,
		Now:           now,
	}); err != nil {
		return fmt.Errorf("failed to award block: %w", err)
	}

	slog.Info("Block solved",
		slog.String("type", "lottery"),
		slog.Int64("block_number", block.BlockNumber),
		slog.Int64("winner_user_id", winner.UserID),
		slog.Int64("winner_rig_id", winner.RigID),
		slog.Float64("reward", block.BlockReward),
		slog.Float64("total_hashrate", total))

	return nil
}

func (l *Lottery) competitors(ctx context.Context) ([]Competitor, error) {
	rigs, err := l.rigs.ActiveRigs(ctx)
	if err != nil {
		return nil, err
	}
	competitors := make([]Competitor, 0, len(rigs))
	for _, r := range rigs {
		competitors = append(competitors, Competitor{
			RigID:    r.RigID,
			UserID:   r.UserID,
			RigName:  r.RigName,
			Hashrate: r.EffectiveHashRate(),
		})
	}
	return competitors, nil
}

// Odds returns the owner's win chance as a percentage of total network
// hashrate, derived from the same weighting used at resolution.
func (l *Lottery) Odds(ctx context.Context, userID int64) (float64, error) {
	competitors, err := l.competitors(ctx)
	if err != nil {
		return 0, err
	}

	total := TotalWeight(competitors)
	if total == 0 {
		return 0, nil
	}

	var mine float64
	for _, c := range competitors {
		if c.UserID == userID {
			mine += c.Hashrate
		}
	}
	return mine / total * 100, nil
}

// NetworkHashrate returns the sum of all eligible rigs' effective
// hashrates.
func (l *Lottery) NetworkHashrate(ctx context.Context) (float64, error) {
	competitors, err := l.competitors(ctx)
	if err != nil {
		return 0, err
	}
	return TotalWeight(competitors), nil
}
