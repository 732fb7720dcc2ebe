package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"
)

// OwnerStat is one owner's aggregate value for a single leaderboard metric.
type OwnerStat struct {
	UserID int64   `bun:"user_id"`
	Value  float64 `bun:"value"`
}

// LeaderboardRepository computes owner stats and caches ranked boards. The
// stat queries order by value descending with user id ascending as the
// tie-break, so a truncated top-N stays stable across refreshes.
type LeaderboardRepository interface {
	RichestOwners(ctx context.Context, limit int) ([]OwnerStat, error)
	TopMiners(ctx context.Context, limit int) ([]OwnerStat, error)
	AvgDurability(ctx context.Context, limit int) ([]OwnerStat, error)
	RigCounts(ctx context.Context, limit int) ([]OwnerStat, error)
	BlockWins(ctx context.Context, limit int) ([]OwnerStat, error)
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
	// ReplaceBoard swaps out every cached row for the board in one
	// transaction. Owners missing from entries disappear from the cache.
	ReplaceBoard(ctx context.Context, board string, entries []*models.LeaderboardEntry) error
	GetPage(ctx context.Context, board string, page, pageSize int) ([]*models.LeaderboardEntry, error)
	GetUserRank(ctx context.Context, board string, userID int64) (*models.LeaderboardEntry, error)
}

type leaderboardRepository struct {
	db *bun.DB
}

func NewLeaderboardRepository(db *bun.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

func (r *leaderboardRepository) RichestOwners(ctx context.Context, limit int) ([]OwnerStat, error) {
	var stats []OwnerStat
	err := r.db.NewSelect().
		Model((*models.Wallet)(nil)).
		ColumnExpr("user_id, crypto_balance AS value").
		Where("crypto_balance > 0").
		OrderExpr("crypto_balance DESC, user_id ASC").
		Limit(limit).
		Scan(ctx, &stats)
	return stats, err
}

func (r *leaderboardRepository) TopMiners(ctx context.Context, limit int) ([]OwnerStat, error) {
	var stats []OwnerStat
	err := r.db.NewSelect().
		Model((*models.Wallet)(nil)).
		ColumnExpr("user_id, total_mined AS value").
		Where("total_mined > 0").
		OrderExpr("total_mined DESC, user_id ASC").
		Limit(limit).
		Scan(ctx, &stats)
	return stats, err
}

func (r *leaderboardRepository) AvgDurability(ctx context.Context, limit int) ([]OwnerStat, error) {
	var stats []OwnerStat
	err := r.db.NewSelect().
		Model((*models.UserRig)(nil)).
		ColumnExpr("user_id, AVG(durability) AS value").
		GroupExpr("user_id").
		OrderExpr("value DESC, user_id ASC").
		Limit(limit).
		Scan(ctx, &stats)
	return stats, err
}

func (r *leaderboardRepository) RigCounts(ctx context.Context, limit int) ([]OwnerStat, error) {
	var stats []OwnerStat
	err := r.db.NewSelect().
		Model((*models.UserRig)(nil)).
		ColumnExpr("user_id, COUNT(*)::float AS value").
		GroupExpr("user_id").
		OrderExpr("value DESC, user_id ASC").
		Limit(limit).
		Scan(ctx, &stats)
	return stats, err
}

func (r *leaderboardRepository) BlockWins(ctx context.Context, limit int) ([]OwnerStat, error) {
	var stats []OwnerStat
	err := r.db.NewSelect().
		Model((*models.Block)(nil)).
		ColumnExpr("winner_user_id AS user_id, COUNT(*)::float AS value").
		Where("is_solved = TRUE").
		Where("winner_user_id IS NOT NULL").
		GroupExpr("winner_user_id").
		OrderExpr("value DESC, user_id ASC").
		Limit(limit).
		Scan(ctx, &stats)
	return stats, err
}

func (r *leaderboardRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.LeaderboardEntry)(nil)).
		Where("last_updated < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *leaderboardRepository) ReplaceBoard(ctx context.Context, board string, entries []*models.LeaderboardEntry) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.LeaderboardEntry)(nil)).
			Where("board_type = ?", board).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear board %s: %w", board, err)
		}

		if len(entries) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().
			Model(&entries).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert board %s: %w", board, err)
		}
		return nil
	})
}

func (r *leaderboardRepository) GetPage(ctx context.Context, board string, page, pageSize int) ([]*models.LeaderboardEntry, error) {
	if page < 1 {
		page = 1
	}
	var entries []*models.LeaderboardEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("board_type = ?", board).
		Order("rank ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(ctx)
	return entries, err
}

func (r *leaderboardRepository) GetUserRank(ctx context.Context, board string, userID int64) (*models.LeaderboardEntry, error) {
	entry := new(models.LeaderboardEntry)
	err := r.db.NewSelect().
		Model(entry).
		Where("board_type = ?", board).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}
