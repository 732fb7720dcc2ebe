package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

// RigType is a catalog entry describing a purchasable mining rig model.
type RigType struct {
	bun.BaseModel `bun:"table:rig_types,alias:rt"`

	ID               int64     `bun:"id,pk,autoincrement"`
	Name             string    `bun:"name,notnull,unique"`
	Description      string    `bun:"description"`
	Tier             int       `bun:"tier,notnull,default:1"`
	HashRate         float64   `bun:"hash_rate,notnull"`         // BTC mined per hour at full condition
	PowerConsumption float64   `bun:"power_consumption,notnull"` // credits per day
	BaseCost         int64     `bun:"base_cost,notnull"`
	IsActive         bool      `bun:"is_active,notnull,default:true"`
	SortOrder        int       `bun:"sort_order,notnull,default:0"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Tier display names are presentation data, kept away from the simulation math.
var tierNames = map[int]string{
	1: "Budget",
	2: "Consumer",
	3: "Professional",
	4: "Elite",
}

func (rt *RigType) TierName() string {
	if name, ok := tierNames[rt.Tier]; ok {
		return name
	}
	return "Unknown"
}

// DailyOutput returns BTC produced per day before upgrades and wear.
func (rt *RigType) DailyOutput() float64 {
	return rt.HashRate * 24
}

// UpgradeCost returns the credit cost of moving a rig of this type to the
// given level. Level 0 is the purchase itself.
func (rt *RigType) UpgradeCost(toLevel int) int64 {
	if toLevel <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(rt.BaseCost) * 0.20 * float64(toLevel)))
}

// RepairCost returns the credit cost of restoring the given amount of
// durability (percentage points) on a rig of this type.
func (rt *RigType) RepairCost(durabilityRestored float64) int64 {
	if durabilityRestored <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(rt.BaseCost) * 0.10 * durabilityRestored / 100))
}
