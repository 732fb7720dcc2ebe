package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Block is one round of the periodic weighted lottery. Exactly one block is
// open (IsSolved false) at any time; a new block spawns the instant the
// prior one resolves. Winner columns stay null when a block closes with no
// competitors.
type Block struct {
	bun.BaseModel `bun:"table:blocks,alias:b"`

	ID            int64     `bun:"id,pk,autoincrement"`
	BlockNumber   int64     `bun:"block_number,notnull,unique"`
	BlockReward   float64   `bun:"block_reward,notnull"`
	TotalHashrate float64   `bun:"total_hashrate,notnull,default:0"`
	WinnerUserID  *int64    `bun:"winner_user_id"`
	WinnerRigID   *int64    `bun:"winner_rig_id"`
	SpawnedAt     time.Time `bun:"spawned_at,notnull"`
	SolvedAt      time.Time `bun:"solved_at,nullzero"`
	IsSolved      bool      `bun:"is_solved,notnull,default:false"`
}

// ReadyToSolve reports whether the block has been open for at least the
// competition interval. Block #1 resolves immediately to avoid a cold-start
// stall.
func (b *Block) ReadyToSolve(now time.Time, interval time.Duration) bool {
	if b.BlockNumber == 1 {
		return true
	}
	return now.Sub(b.SpawnedAt) >= interval
}

func (b *Block) TimeUntilSolve(now time.Time, interval time.Duration) time.Duration {
	if b.BlockNumber == 1 {
		return 0
	}
	remaining := interval - now.Sub(b.SpawnedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
