package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"
)

type TransactionRepository interface {
	Log(ctx context.Context, txn *models.Transaction) error
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
	GetByUserAndType(ctx context.Context, userID int64, txType string, limit int) ([]*models.Transaction, error)
}

type transactionRepository struct {
	db *bun.DB
}

func NewTransactionRepository(db *bun.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// insertTransaction appends a log row inside whatever transaction the
// caller is running. Every row gets a uuid reference for export handles.
func insertTransaction(ctx context.Context, db bun.IDB, txn *models.Transaction) error {
	if txn.Reference == "" {
		txn.Reference = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	_, err := db.NewInsert().Model(txn).Exec(ctx)
	return err
}

func (r *transactionRepository) Log(ctx context.Context, txn *models.Transaction) error {
	return insertTransaction(ctx, r.db, txn)
}

func (r *transactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := r.db.NewSelect().
		Model(&txns).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return txns, err
}

func (r *transactionRepository) GetByUserAndType(ctx context.Context, userID int64, txType string, limit int) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := r.db.NewSelect().
		Model(&txns).
		Where("user_id = ?", userID).
		Where("type = ?", txType).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return txns, err
}
