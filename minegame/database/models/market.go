package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

// MarketState is the current quote for a simulated asset. The price is
// clamped into a configured floor/ceiling band on every update.
type MarketState struct {
	bun.BaseModel `bun:"table:market_state,alias:ms"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	AssetName          string    `bun:"asset_name,notnull,unique"`
	CurrentPrice       float64   `bun:"current_price,notnull"`
	PreviousPrice      float64   `bun:"previous_price,notnull,default:0"`
	PriceChangePercent float64   `bun:"price_change_percent,notnull,default:0"`
	LastUpdated        time.Time `bun:"last_updated,notnull"`
}

func (m *MarketState) Trend() string {
	switch {
	case m.PriceChangePercent > 0:
		return "up"
	case m.PriceChangePercent < 0:
		return "down"
	default:
		return "flat"
	}
}

// MarketEvent is a time-bounded price modifier layered over the base random
// walk. At most one event is active at a time; events cycle between dormant
// and active and are never deleted.
type MarketEvent struct {
	bun.BaseModel `bun:"table:market_events,alias:me"`

	ID                 int64     `bun:"id,pk,autoincrement"`
	EventType          string    `bun:"event_type,notnull"`
	Title              string    `bun:"title,notnull"`
	Description        string    `bun:"description"`
	PriceImpactPercent float64   `bun:"price_impact_percent,notnull"`
	DurationHours      int       `bun:"duration_hours,notnull,default:24"`
	IsActive           bool      `bun:"is_active,notnull,default:false"`
	TriggeredAt        time.Time `bun:"triggered_at,nullzero"`
}

func (e *MarketEvent) IsPositive() bool {
	return e.PriceImpactPercent > 0
}

// HoursRemaining returns how many whole hours the event has left, or 0 when
// the event is not running.
func (e *MarketEvent) HoursRemaining(now time.Time) int {
	if !e.IsActive || e.TriggeredAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(e.TriggeredAt).Hours()
	remaining := float64(e.DurationHours) - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining))
}

func (e *MarketEvent) ExpiredAt(now time.Time) bool {
	if !e.IsActive || e.TriggeredAt.IsZero() {
		return false
	}
	return now.Sub(e.TriggeredAt).Hours() >= float64(e.DurationHours)
}
