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

// BlockAward is the full outcome of a resolved round, committed atomically:
// the block closes, the winner is paid, the log row lands and the next
// round opens in the same transaction.
type BlockAward struct {
	BlockID       int64
	BlockNumber   int64
	Reward        float64
	TotalHashrate float64
	WinnerUserID  int64
	WinnerRigID   int64
	WinnerRigName string
	NextReward    float64
	Now           time.Time
}

type BlockRepository interface {
	GetCurrentBlock(ctx context.Context) (*models.Block, error)
	GetRecentBlocks(ctx context.Context, limit int) ([]*models.Block, error)
	SpawnNextBlock(ctx context.Context, reward float64, at time.Time) (*models.Block, error)
	Award(ctx context.Context, award BlockAward) error
	// CloseWithoutWinner marks the round solved with null winner columns and
	// opens the next round.
	CloseWithoutWinner(ctx context.Context, blockID int64, nextReward float64, at time.Time) error
	CountWins(ctx context.Context, userID int64) (int, error)
}

type blockRepository struct {
	db           *bun.DB
	startingCash float64
}

func NewBlockRepository(db *bun.DB, startingCash float64) BlockRepository {
	return &blockRepository{db: db, startingCash: startingCash}
}

func (r *blockRepository) GetCurrentBlock(ctx context.Context) (*models.Block, error) {
	block := new(models.Block)
	err := r.db.NewSelect().
		Model(block).
		Where("is_solved = FALSE").
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return block, err
}

func (r *blockRepository) GetRecentBlocks(ctx context.Context, limit int) ([]*models.Block, error) {
	var blocks []*models.Block
	err := r.db.NewSelect().
		Model(&blocks).
		Where("is_solved = TRUE").
		Order("solved_at DESC").
		Limit(limit).
		Scan(ctx)
	return blocks, err
}

func (r *blockRepository) SpawnNextBlock(ctx context.Context, reward float64, at time.Time) (*models.Block, error) {
	block := new(models.Block)
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		block, err = spawnBlock(ctx, tx, reward, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

func spawnBlock(ctx context.Context, tx bun.Tx, reward float64, at time.Time) (*models.Block, error) {
	var lastNumber int64
	err := tx.NewSelect().
		Model((*models.Block)(nil)).
		ColumnExpr("COALESCE(MAX(block_number), 0)").
		Scan(ctx, &lastNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to read last block number: %w", err)
	}

	block := &models.Block{
		BlockNumber: lastNumber + 1,
		BlockReward: reward,
		SpawnedAt:   at,
	}
	if _, err := tx.NewInsert().Model(block).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to spawn block: %w", err)
	}
	return block, nil
}

func (r *blockRepository) Award(ctx context.Context, award BlockAward) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Block)(nil)).
			Set("winner_user_id = ?", award.WinnerUserID).
			Set("winner_rig_id = ?", award.WinnerRigID).
			Set("total_hashrate = ?", award.TotalHashrate).
			Set("solved_at = ?", award.Now).
			Set("is_solved = TRUE").
			Where("id = ?", award.BlockID).
			Where("is_solved = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to close block: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if err := ensureWallet(ctx, tx, award.WinnerUserID, r.startingCash, award.Now); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*models.Wallet)(nil)).
			Set("crypto_balance = crypto_balance + ?", award.Reward).
			Set("total_mined = total_mined + ?", award.Reward).
			Set("updated_at = ?", award.Now).
			Where("user_id = ?", award.WinnerUserID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to credit winner: %w", err)
		}

		if err := insertTransaction(ctx, tx, &models.Transaction{
			UserID: award.WinnerUserID,
			Type:   models.TxBlockReward,
			Amount: award.Reward,
			Description: fmt.Sprintf("Won Block #%d with %s",
				award.BlockNumber, award.WinnerRigName),
			CreatedAt: award.Now,
		}); err != nil {
			return err
		}

		_, err = spawnBlock(ctx, tx, award.NextReward, award.Now)
		return err
	})
}

func (r *blockRepository) CloseWithoutWinner(ctx context.Context, blockID int64, nextReward float64, at time.Time) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Block)(nil)).
			Set("solved_at = ?", at).
			Set("is_solved = TRUE").
			Where("id = ?", blockID).
			Where("is_solved = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to close block: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		_, err = spawnBlock(ctx, tx, nextReward, at)
		return err
	})
}

func (r *blockRepository) CountWins(ctx context.Context, userID int64) (int, error) {
	return r.db.NewSelect().
		Model((*models.Block)(nil)).
		Where("winner_user_id = ?", userID).
		Where("is_solved = TRUE").
		Count(ctx)
}
