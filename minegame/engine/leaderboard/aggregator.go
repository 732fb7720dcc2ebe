package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
)

type Config struct {
	// TopN is how many owners each board keeps.
	TopN int
	// Freshness is the window after which cached entries count as stale and
	// are purged before a refresh.
	Freshness time.Duration
}

// Board pairs a cache key with the query producing its owner aggregates.
type Board struct {
	Key   string
	Fetch func(ctx context.Context, limit int) ([]repositories.OwnerStat, error)
}

// Aggregator recomputes the cached rankings for every board.
type Aggregator struct {
	store  repositories.LeaderboardRepository
	clock  engine.Clock
	boards []Board
	cfg    Config
}

func NewAggregator(store repositories.LeaderboardRepository, clock engine.Clock, cfg Config) *Aggregator {
	return &Aggregator{
		store: store,
		clock: clock,
		cfg:   cfg,
		boards: []Board{
			{Key: models.BoardRichest, Fetch: store.RichestOwners},
			{Key: models.BoardMostMined, Fetch: store.TopMiners},
			{Key: models.BoardMostEfficient, Fetch: store.AvgDurability},
			{Key: models.BoardMostRigs, Fetch: store.RigCounts},
			{Key: models.BoardBlockChampion, Fetch: store.BlockWins},
		},
	}
}

// Rank orders stats by value descending with owner id ascending as the
// deterministic tie-break, then assigns dense 1-based ranks. Repeated runs
// over the same snapshot produce identical output.
func Rank(board string, stats []repositories.OwnerStat, topN int, now time.Time) []*models.LeaderboardEntry {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Value != stats[j].Value {
			return stats[i].Value > stats[j].Value
		}
		return stats[i].UserID < stats[j].UserID
	})

	if topN > 0 && len(stats) > topN {
		stats = stats[:topN]
	}

	entries := make([]*models.LeaderboardEntry, len(stats))
	for i, s := range stats {
		entries[i] = &models.LeaderboardEntry{
			BoardType:   board,
			UserID:      s.UserID,
			Rank:        i + 1,
			StatValue:   s.Value,
			LastUpdated: now,
		}
	}
	return entries
}

// Refresh purges stale cache rows, then rebuilds every board from the
// current snapshot. A board that fails is logged and the rest still
// refresh; a board with no qualifying owners ends up empty rather than
// showing ancient data.
func (a *Aggregator) Refresh(ctx context.Context) error {
	now := a.clock.Now()

	purged, err := a.store.PurgeStale(ctx, now.Add(-a.cfg.Freshness))
	if err != nil {
		return fmt.Errorf("failed to purge stale entries: %w", err)
	}

	var failed int
	for _, board := range a.boards {
		stats, err := board.Fetch(ctx, a.cfg.TopN)
		if err != nil {
			failed++
			slog.Error("Failed to compute board",
				slog.String("type", "leaderboard"),
				slog.String("board", board.Key),
				slog.Any("error", err))
			continue
		}

		entries := Rank(board.Key, stats, a.cfg.TopN, now)
		if err := a.store.ReplaceBoard(ctx, board.Key, entries); err != nil {
			failed++
			slog.Error("Failed to replace board",
				slog.String("type", "leaderboard"),
				slog.String("board", board.Key),
				slog.Any("error", err))
			continue
		}
	}

	slog.Info("Leaderboard refresh completed",
		slog.String("type", "leaderboard"),
		slog.Int("boards", len(a.boards)),
		slog.Int("failed", failed),
		slog.Int64("stale_purged", purged))

	if failed == len(a.boards) {
		return fmt.Errorf("all %d boards failed to refresh", failed)
	}
	return nil
}
