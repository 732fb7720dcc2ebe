package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"
)

// ActiveRig is the joined projection the engine passes iterate over: one
// active rig with its catalog ratings attached.
type ActiveRig struct {
	RigID            int64     `bun:"rig_id"`
	UserID           int64     `bun:"user_id"`
	RigName          string    `bun:"rig_name"`
	HashRate         float64   `bun:"hash_rate"`
	PowerConsumption float64   `bun:"power_consumption"`
	UpgradeLevel     int       `bun:"upgrade_level"`
	Durability       float64   `bun:"durability"`
	LastMined        time.Time `bun:"last_mined"`
}

// EffectiveHashRate is base rate times the upgrade multiplier. The lottery
// weighs competitors with this exact formula, and the odds query must match
// it.
func (a *ActiveRig) EffectiveHashRate() float64 {
	return a.HashRate * models.UpgradeMultiplier(a.UpgradeLevel)
}

// AccrualUpdate is the outcome of one rig's accrual, applied atomically:
// rig bookkeeping, wallet credit/debit and the log row commit together or
// not at all.
type AccrualUpdate struct {
	RigID         int64
	UserID        int64
	RigName       string
	Hours         float64
	MinedAmount   float64
	NewDurability float64
	PowerCost     float64
	RequireCash   bool // shutdown policy: deactivate instead of mining when cash < PowerCost
	Now           time.Time
}

type RigRepository interface {
	GetByID(ctx context.Context, id int64) (*models.UserRig, error)
	GetByUser(ctx context.Context, userID int64) ([]*models.UserRig, error)
	ActiveRigs(ctx context.Context) ([]ActiveRig, error)
	ActiveRigsByUser(ctx context.Context, userID int64) ([]ActiveRig, error)
	SetActive(ctx context.Context, rigID int64, active bool) error
	ApplyAccrual(ctx context.Context, upd AccrualUpdate) error
	Purchase(ctx context.Context, userID int64, rigType *models.RigType, now time.Time) (*models.UserRig, error)
	Upgrade(ctx context.Context, rigID, userID int64, now time.Time) (int64, error)
	Repair(ctx context.Context, rigID, userID int64, now time.Time) (int64, error)
	Scrap(ctx context.Context, rigID, userID int64, now time.Time) (float64, error)
}

type rigRepository struct {
	db           *bun.DB
	startingCash float64
}

func NewRigRepository(db *bun.DB, startingCash float64) RigRepository {
	return &rigRepository{db: db, startingCash: startingCash}
}

func (r *rigRepository) GetByID(ctx context.Context, id int64) (*models.UserRig, error) {
	rig := new(models.UserRig)
	err := r.db.NewSelect().
		Model(rig).
		Relation("RigType").
		Where("ur.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rig, err
}

func (r *rigRepository) GetByUser(ctx context.Context, userID int64) ([]*models.UserRig, error) {
	var rigs []*models.UserRig
	err := r.db.NewSelect().
		Model(&rigs).
		Relation("RigType").
		Where("ur.user_id = ?", userID).
		Order("ur.purchased_at ASC").
		Scan(ctx)
	return rigs, err
}

const activeRigColumns = `ur.id AS rig_id, ur.user_id, rt.name AS rig_name,
	rt.hash_rate, rt.power_consumption, ur.upgrade_level, ur.durability, ur.last_mined`

func (r *rigRepository) ActiveRigs(ctx context.Context) ([]ActiveRig, error) {
	var rigs []ActiveRig
	err := r.db.NewSelect().
		Model((*models.UserRig)(nil)).
		ColumnExpr(activeRigColumns).
		Join("INNER JOIN rig_types AS rt ON rt.id = ur.rig_type_id").
		Where("ur.is_active = TRUE").
		Where("ur.durability > 0").
		Scan(ctx, &rigs)
	return rigs, err
}

func (r *rigRepository) ActiveRigsByUser(ctx context.Context, userID int64) ([]ActiveRig, error) {
	var rigs []ActiveRig
	err := r.db.NewSelect().
		Model((*models.UserRig)(nil)).
		ColumnExpr(activeRigColumns).
		Join("INNER JOIN rig_types AS rt ON rt.id = ur.rig_type_id").
		Where("ur.is_active = TRUE").
		Where("ur.durability > 0").
		Where("ur.user_id = ?", userID).
		Scan(ctx, &rigs)
	return rigs, err
}

func (r *rigRepository) SetActive(ctx context.Context, rigID int64, active bool) error {
	res, err := r.db.NewUpdate().
		Model((*models.UserRig)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", rigID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyAccrual commits one rig's mining outcome. The wallet row is created
// on first need with the configured starting cash.
func (r *rigRepository) ApplyAccrual(ctx context.Context, upd AccrualUpdate) error {
	var shortfall bool
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureWallet(ctx, tx, upd.UserID, r.startingCash, upd.Now); err != nil {
			return err
		}

		if upd.RequireCash {
			wallet := new(models.Wallet)
			err := tx.NewSelect().
				Model(wallet).
				Where("user_id = ?", upd.UserID).
				For("UPDATE").
				Scan(ctx)
			if err != nil {
				return fmt.Errorf("failed to lock wallet: %w", err)
			}
			if wallet.CashBalance < upd.PowerCost {
				// The power-off must survive the transaction, so the closure
				// returns nil and the shortfall is reported after commit.
				if _, err := tx.NewUpdate().
					Model((*models.UserRig)(nil)).
					Set("is_active = FALSE").
					Where("id = ?", upd.RigID).
					Exec(ctx); err != nil {
					return err
				}
				slog.Warn("Rig powered off, owner cannot cover power draw",
					slog.String("type", "mining"),
					slog.Int64("rig_id", upd.RigID),
					slog.Int64("user_id", upd.UserID),
					slog.Float64("power_cost", upd.PowerCost))
				shortfall = true
				return nil
			}
		}

		res, err := tx.NewUpdate().
			Model((*models.UserRig)(nil)).
			Set("last_mined = ?", upd.Now).
			Set("total_mined = total_mined + ?", upd.MinedAmount).
			Set("durability = ?", upd.NewDurability).
			Where("id = ?", upd.RigID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update rig: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		// Power debit floors at zero under the absorb policy; the shortfall
		// is not tracked as debt.
		if _, err := tx.NewUpdate().
			Model((*models.Wallet)(nil)).
			Set("crypto_balance = crypto_balance + ?", upd.MinedAmount).
			Set("total_mined = total_mined + ?", upd.MinedAmount).
			Set("cash_balance = GREATEST(0, cash_balance - ?)", upd.PowerCost).
			Set("last_payout = ?", upd.Now).
			Set("updated_at = ?", upd.Now).
			Where("user_id = ?", upd.UserID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  upd.UserID,
			Type:    models.TxMiningReward,
			Amount:  upd.MinedAmount,
			Credits: -upd.PowerCost,
			Description: fmt.Sprintf("%s mined %.6f BTC (%.1f hrs, power: %.2f cr)",
				upd.RigName, upd.MinedAmount, upd.Hours, upd.PowerCost),
			CreatedAt: upd.Now,
		})
	})
	if err != nil {
		return err
	}
	if shortfall {
		return ErrPowerShortfall
	}
	return nil
}

func (r *rigRepository) Purchase(ctx context.Context, userID int64, rigType *models.RigType, now time.Time) (*models.UserRig, error) {
	rig := &models.UserRig{
		UserID:        userID,
		RigTypeID:     rigType.ID,
		PurchasePrice: rigType.BaseCost,
		Durability:    models.MaxDurability,
		IsActive:      true,
		LastMined:     now,
		PurchasedAt:   now,
	}

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureWallet(ctx, tx, userID, r.startingCash, now); err != nil {
			return err
		}
		if err := debitCash(ctx, tx, userID, float64(rigType.BaseCost), now); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(rig).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create rig: %w", err)
		}
		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:      userID,
			Type:        models.TxPurchase,
			Credits:     -float64(rigType.BaseCost),
			Description: fmt.Sprintf("Purchased %s for %d credits", rigType.Name, rigType.BaseCost),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	return rig, nil
}

// Upgrade raises the rig one level and returns the credits spent.
func (r *rigRepository) Upgrade(ctx context.Context, rigID, userID int64, now time.Time) (int64, error) {
	var cost int64
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		rig, err := lockRig(ctx, tx, rigID, userID)
		if err != nil {
			return err
		}
		if rig.UpgradeLevel >= models.MaxUpgradeLevel {
			return ErrMaxUpgradeLevel
		}

		cost = rig.RigType.UpgradeCost(rig.UpgradeLevel + 1)
		if err := debitCash(ctx, tx, userID, float64(cost), now); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.UserRig)(nil)).
			Set("upgrade_level = upgrade_level + 1").
			Where("id = ?", rigID).
			Exec(ctx); err != nil {
			return err
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  userID,
			Type:    models.TxUpgrade,
			Credits: -float64(cost),
			Description: fmt.Sprintf("Upgraded %s to level %d for %d credits",
				rig.RigType.Name, rig.UpgradeLevel+1, cost),
			CreatedAt: now,
		})
	})
	return cost, err
}

// Repair restores the rig to full durability and returns the credits spent.
func (r *rigRepository) Repair(ctx context.Context, rigID, userID int64, now time.Time) (int64, error) {
	var cost int64
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		rig, err := lockRig(ctx, tx, rigID, userID)
		if err != nil {
			return err
		}

		restored := models.MaxDurability - rig.Durability
		cost = rig.RigType.RepairCost(restored)
		if cost == 0 {
			return nil
		}
		if err := debitCash(ctx, tx, userID, float64(cost), now); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.UserRig)(nil)).
			Set("durability = ?", models.MaxDurability).
			Where("id = ?", rigID).
			Exec(ctx); err != nil {
			return err
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  userID,
			Type:    models.TxRepair,
			Credits: -float64(cost),
			Description: fmt.Sprintf("Repaired %s (%.1f%% restored) for %d credits",
				rig.RigType.Name, restored, cost),
			CreatedAt: now,
		})
	})
	return cost, err
}

// Scrap removes the rig and refunds a fraction of the purchase price: 20%
// base, up to 20% more from remaining durability, 5% per upgrade level.
func (r *rigRepository) Scrap(ctx context.Context, rigID, userID int64, now time.Time) (float64, error) {
	var refund float64
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		rig, err := lockRig(ctx, tx, rigID, userID)
		if err != nil {
			return err
		}

		price := float64(rig.PurchasePrice)
		refund = price * (0.20 + 0.20*rig.Durability/models.MaxDurability + 0.05*float64(rig.UpgradeLevel))

		if _, err := tx.NewDelete().
			Model((*models.UserRig)(nil)).
			Where("id = ?", rigID).
			Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*models.Wallet)(nil)).
			Set("cash_balance = cash_balance + ?", refund).
			Set("credits_earned = credits_earned + ?", int64(refund)).
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return err
		}

		return insertTransaction(ctx, tx, &models.Transaction{
			UserID:  userID,
			Type:    models.TxScrap,
			Credits: refund,
			Description: fmt.Sprintf("Scrapped %s for %.0f credits",
				rig.RigType.Name, refund),
			CreatedAt: now,
		})
	})
	return refund, err
}

func lockRig(ctx context.Context, tx bun.Tx, rigID, userID int64) (*models.UserRig, error) {
	rig := new(models.UserRig)
	err := tx.NewSelect().
		Model(rig).
		Relation("RigType").
		Where("ur.id = ?", rigID).
		Where("ur.user_id = ?", userID).
		For("UPDATE OF ur").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock rig: %w", err)
	}
	return rig, nil
}
