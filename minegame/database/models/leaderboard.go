package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Leaderboard keys. Each board is an independently ranked statistic over all
// owners, cached here and fully replaced on every aggregation pass.
const (
	BoardRichest       = "richest"
	BoardMostMined     = "most_mined"
	BoardMostEfficient = "most_efficient"
	BoardMostRigs      = "most_rigs"
	BoardBlockChampion = "block_champion"
)

// LeaderboardEntry is one cached rank row, unique per (board, user).
type LeaderboardEntry struct {
	bun.BaseModel `bun:"table:leaderboard,alias:lb"`

	ID          int64     `bun:"id,pk,autoincrement"`
	BoardType   string    `bun:"board_type,notnull"`
	UserID      int64     `bun:"user_id,notnull"`
	Rank        int       `bun:"rank,notnull"`
	StatValue   float64   `bun:"stat_value,notnull"`
	LastUpdated time.Time `bun:"last_updated,notnull"`
}
