package economy

import (
	"context"
	"time"

	"github.com/icgames/cryptomine/minegame/database/repositories"
)

// ExternalLedger receives the liquid proceeds of asset sales. The game
// treats the destination as opaque; the default just credits the player's
// own cash balance.
type ExternalLedger interface {
	Credit(ctx context.Context, userID int64, amount float64, now time.Time) error
}

type walletLedger struct {
	wallets repositories.WalletRepository
}

// NewWalletLedger returns an ExternalLedger backed by the internal wallet
// cash balance.
func NewWalletLedger(wallets repositories.WalletRepository) ExternalLedger {
	return &walletLedger{wallets: wallets}
}

func (l *walletLedger) Credit(ctx context.Context, userID int64, amount float64, now time.Time) error {
	return l.wallets.CreditCash(ctx, userID, amount, now)
}
