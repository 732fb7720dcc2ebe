package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Wallet holds a user's liquid credits and mined crypto. One row per user,
// created lazily on first need. CryptoBalance never goes negative:
// withdrawals that exceed it are rejected, not clamped.
type Wallet struct {
	bun.BaseModel `bun:"table:wallets,alias:w"`

	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        int64     `bun:"user_id,notnull,unique"`
	CashBalance   float64   `bun:"cash_balance,notnull,default:0"`
	CryptoBalance float64   `bun:"crypto_balance,notnull,default:0"`
	TotalMined    float64   `bun:"total_mined,notnull,default:0"`
	TotalSold     float64   `bun:"total_sold,notnull,default:0"`
	TotalBought   float64   `bun:"total_bought,notnull,default:0"`
	CreditsEarned int64     `bun:"credits_earned,notnull,default:0"`
	CreditsSpent  int64     `bun:"credits_spent,notnull,default:0"`
	LastPayout    time.Time `bun:"last_payout,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// NetCrypto returns mined + bought - sold over the wallet's lifetime.
func (w *Wallet) NetCrypto() float64 {
	return w.TotalMined + w.TotalBought - w.TotalSold
}

func (w *Wallet) HasCrypto(amount float64) bool {
	return w.CryptoBalance >= amount
}

func (w *Wallet) HasCash(amount float64) bool {
	return w.CashBalance >= amount
}
