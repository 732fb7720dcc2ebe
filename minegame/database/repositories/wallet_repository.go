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

type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error)
	GetByUser(ctx context.Context, userID int64) (*models.Wallet, error)
	CreditCash(ctx context.Context, userID int64, amount float64, now time.Time) error
	// SellCrypto debits the asset balance at the given price and returns the
	// proceeds. The withdrawal is rejected outright when the balance is
	// short; crediting the proceeds is the caller's concern (external
	// ledger).
	SellCrypto(ctx context.Context, userID int64, amount, price float64, now time.Time) (float64, error)
	// BuyCrypto debits cash and credits the asset balance at the given
	// price, returning the credits spent.
	BuyCrypto(ctx context.Context, userID int64, amount, price float64, now time.Time) (float64, error)
}

type walletRepository struct {
	db           *bun.DB
	startingCash float64
}

func NewWalletRepository(db *bun.DB, startingCash float64) WalletRepository {
	return &walletRepository{db: db, startingCash: startingCash}
}

// ensureWallet creates the user's wallet row if missing. Wallets are lazy:
// the first accrual, purchase or trade brings one into existence with the
// configured starting cash.
func ensureWallet(ctx context.Context, db bun.IDB, userID int64, startingCash float64, now time.Time) error {
	_, err := db.NewInsert().
		Model(&models.Wallet{
			UserID:      userID,
			CashBalance: startingCash,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

// debitCash spends credits, rejecting the operation when the balance is
// insufficient. The guard lives in the WHERE clause so concurrent debits
// cannot overdraw.
func debitCash(ctx context.Context, db bun.IDB, userID int64, amount float64, now time.Time) error {
	res, err := db.NewUpdate().
		Model((*models.Wallet)(nil)).
		Set("cash_balance = cash_balance - ?", amount).
		Set("credits_spent = credits_spent + ?", int64(amount)).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Where("cash_balance >= ?", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit cash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *walletRepository) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*models.Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID, r.startingCash, now); err != nil {
		return nil, err
	}
	return r.GetByUser(ctx, userID)
}

func (r *walletRepository) GetByUser(ctx context.Context, userID int64) (*models.Wallet, error) {
	wallet := new(models.Wallet)
	err := r.db.NewSelect().
		Model(wallet).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return wallet, err
}

func (r *walletRepository) CreditCash(ctx context.Context, userID int64, amount float64, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.Wallet)(nil)).
		Set("cash_balance = cash_balance + ?", amount).
		Set("credits_earned = credits_earned + ?", int64(amount)).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *walletRepository) SellCrypto(ctx context.Context, userID int64, amount, price float64, now time.Time) (float64, error) {
	proceeds := amount * price

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Wallet)(nil)).
			Set("crypto_balance = crypto_balance - ?", amount).
			Set("total_sold = total_sold + ?", amount).
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Where("crypto_balance >= ?", amount).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to debit crypto: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInsufficientBalance
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  userID,
			Type:    models.TxSell,
			Amount:  -amount,
			Credits: proceeds,
			Description: fmt.Sprintf("Sold %.6f BTC at %.2f each for %.2f credits",
				amount, price, proceeds),
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	return proceeds, nil
}

func (r *walletRepository) BuyCrypto(ctx context.Context, userID int64, amount, price float64, now time.Time) (float64, error) {
	cost := amount * price

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureWallet(ctx, tx, userID, r.startingCash, now); err != nil {
			return err
		}
		if err := debitCash(ctx, tx, userID, cost, now); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.Wallet)(nil)).
			Set("crypto_balance = crypto_balance + ?", amount).
			Set("total_bought = total_bought + ?", amount).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to credit crypto: %w", err)
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  userID,
			Type:    models.TxBuy,
			Amount:  amount,
			Credits: -cost,
			Description: fmt.Sprintf("Bought %.6f BTC at %.2f each for %.2f credits",
				amount, price, cost),
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	return cost, nil
}
