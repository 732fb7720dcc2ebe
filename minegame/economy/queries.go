package economy

import (
	"context"
	"errors"
	"time"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
)

// MarketSnapshot is the read model behind the price dashboard.
type MarketSnapshot struct {
	Asset       string
	Price       float64
	Trend       string
	Volatility  float64
	ActiveEvent *EventView
	UpdatedAt   time.Time
}

// EventView describes a running market event without exposing the row.
type EventView struct {
	Title          string
	Description    string
	ImpactPercent  float64
	HoursRemaining int
}

// BlockView describes the open block and how long until the next draw.
type BlockView struct {
	BlockNumber int64
	Reward      float64
	OpenedAt    time.Time
	TimeToSolve time.Duration
}

// MiningStats summarizes a player's standing in the block competition.
type MiningStats struct {
	HashRate     float64
	NetworkShare float64
	WinChance    float64
	BlocksWon    int
}

// Market assembles the current price, trend, volatility and any running
// event into one snapshot.
func (s *Service) Market(ctx context.Context, volatilityDays int) (*MarketSnapshot, error) {
	state, err := s.market.GetMarket(ctx, s.assetName)
	if err != nil {
		return nil, err
	}

	snap := &MarketSnapshot{
		Asset:     state.AssetName,
		Price:     state.CurrentPrice,
		Trend:     state.Trend(),
		UpdatedAt: state.LastUpdated,
	}

	if vol, err := s.sim.Volatility(ctx, volatilityDays); err == nil {
		snap.Volatility = vol
	}

	event, err := s.market.GetActiveEvent(ctx)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if event != nil {
		snap.ActiveEvent = &EventView{
			Title:          event.Title,
			Description:    event.Description,
			ImpactPercent:  event.PriceImpactPercent,
			HoursRemaining: event.HoursRemaining(s.clock.Now()),
		}
	}
	return snap, nil
}

// PriceHistory returns the recorded price points over the last window.
func (s *Service) PriceHistory(ctx context.Context, window time.Duration) ([]*models.MarketHistory, error) {
	return s.market.GetHistory(ctx, s.assetName, s.clock.Now().Add(-window))
}

// CurrentBlock returns the open block, or nil when none has been spawned
// yet. TimeToSolve is zero once the block is overdue.
func (s *Service) CurrentBlock(ctx context.Context, interval time.Duration) (*BlockView, error) {
	block, err := s.blocks.GetCurrentBlock(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &BlockView{
		BlockNumber: block.BlockNumber,
		Reward:      block.BlockReward,
		OpenedAt:    block.SpawnedAt,
		TimeToSolve: block.TimeUntilSolve(s.clock.Now(), interval),
	}, nil
}

func (s *Service) RecentBlocks(ctx context.Context, limit int) ([]*models.Block, error) {
	return s.blocks.GetRecentBlocks(ctx, limit)
}

// TransactionHistory returns the user's most recent ledger rows, optionally
// filtered to one transaction type.
func (s *Service) TransactionHistory(ctx context.Context, userID int64, txType string, limit int) ([]*models.Transaction, error) {
	if txType == "" {
		return s.txns.GetByUser(ctx, userID, limit)
	}
	return s.txns.GetByUserAndType(ctx, userID, txType, limit)
}

// MiningStats reports the user's effective hashrate, share of the network
// and win odds, all from the same weighting the draw uses.
func (s *Service) MiningStats(ctx context.Context, userID int64) (*MiningStats, error) {
	odds, err := s.lottery.Odds(ctx, userID)
	if err != nil {
		return nil, err
	}

	network, err := s.lottery.NetworkHashrate(ctx)
	if err != nil {
		return nil, err
	}

	wins, err := s.blocks.CountWins(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &MiningStats{
		NetworkShare: odds,
		WinChance:    odds,
		BlocksWon:    wins,
	}
	if network > 0 {
		stats.HashRate = odds / 100 * network
	}
	return stats, nil
}
