package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MarketHistory is one recorded price point. Append-only; rows older than
// the retention window are pruned by the market pass.
type MarketHistory struct {
	bun.BaseModel `bun:"table:market_history,alias:mh"`

	ID         int64     `bun:"id,pk,autoincrement"`
	AssetName  string    `bun:"asset_name,notnull"`
	Price      float64   `bun:"price,notnull"`
	RecordedAt time.Time `bun:"recorded_at,notnull"`
}
