package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MaxUpgradeLevel      = 5
	UpgradeBonusPerLevel = 0.10
	MaxDurability        = 100.0
)

// UserRig is a mining rig owned by a user. Durability only moves down
// between repairs; accrual stops entirely once it reaches zero.
type UserRig struct {
	bun.BaseModel `bun:"table:user_rigs,alias:ur"`

	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        int64     `bun:"user_id,notnull"`
	RigTypeID     int64     `bun:"rig_type_id,notnull"`
	PurchasePrice int64     `bun:"purchase_price,notnull"`
	Durability    float64   `bun:"durability,notnull,default:100"`
	UpgradeLevel  int       `bun:"upgrade_level,notnull,default:0"`
	IsActive      bool      `bun:"is_active,notnull,default:true"`
	LastMined     time.Time `bun:"last_mined,notnull"`
	TotalMined    float64   `bun:"total_mined,notnull,default:0"`
	PurchasedAt   time.Time `bun:"purchased_at,notnull"`

	RigType *RigType `bun:"rel:belongs-to,join:rig_type_id=id"`
}

// UpgradeMultiplier returns the throughput multiplier for an upgrade level.
func UpgradeMultiplier(level int) float64 {
	return 1.0 + UpgradeBonusPerLevel*float64(level)
}

func (r *UserRig) UpgradeMultiplier() float64 {
	return UpgradeMultiplier(r.UpgradeLevel)
}

// ConditionMultiplier returns the output penalty step for the rig's
// current durability: full output at >=50, 0.75 below 50, 0.50 below 25.
func ConditionMultiplier(durability float64) float64 {
	switch {
	case durability >= 50:
		return 1.0
	case durability >= 25:
		return 0.75
	default:
		return 0.50
	}
}

// Durability status keys for display; the closed set keeps presentation
// lookups out of the simulation code.
const (
	DurabilityGood    = "good"
	DurabilityWarning = "warning"
	DurabilityDanger  = "danger"
)

func (r *UserRig) DurabilityStatus() string {
	switch {
	case r.Durability >= 50:
		return DurabilityGood
	case r.Durability >= 25:
		return DurabilityWarning
	default:
		return DurabilityDanger
	}
}

func (r *UserRig) NeedsRepair() bool {
	return r.Durability < 50
}
