package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Transaction type tags. The log is append-only and used for audit, export
// and stat derivation; nothing in the engine reads it back.
const (
	TxMiningReward = "mining_reward"
	TxBlockReward  = "block_reward"
	TxPurchase     = "rig_purchase"
	TxUpgrade      = "rig_upgrade"
	TxRepair       = "rig_repair"
	TxScrap        = "rig_scrap"
	TxSell         = "crypto_sell"
	TxBuy          = "crypto_buy"
)

type Transaction struct {
	bun.BaseModel `bun:"table:transactions,alias:tx"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      int64     `bun:"user_id,notnull"`
	Type        string    `bun:"type,notnull"`
	Amount      float64   `bun:"amount,notnull,default:0"`  // crypto delta
	Credits     float64   `bun:"credits,notnull,default:0"` // credit delta, negative = cost
	Description string    `bun:"description"`
	Reference   string    `bun:"reference,notnull"` // uuid, stable handle for export rows
	CreatedAt   time.Time `bun:"created_at,notnull"`
}
