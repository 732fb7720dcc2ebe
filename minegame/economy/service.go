package economy

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/engine"
	"github.com/icgames/cryptomine/minegame/engine/lottery"
	"github.com/icgames/cryptomine/minegame/engine/market"
)

const boardCacheSize = 128

// Service exposes the player-facing economy operations. Everything here is
// glue around the engine and the ledger: it reads engine prices and odds
// but never re-derives them.
type Service struct {
	rigs     repositories.RigRepository
	rigTypes repositories.RigTypeRepository
	wallets  repositories.WalletRepository
	market   repositories.MarketRepository
	blocks   repositories.BlockRepository
	boards   repositories.LeaderboardRepository
	txns     repositories.TransactionRepository
	lottery  *lottery.Lottery
	sim      *market.Simulator
	ledger   ExternalLedger
	clock    engine.Clock

	assetName  string
	boardCache *lru.Cache
}

func NewService(
	rigs repositories.RigRepository,
	rigTypes repositories.RigTypeRepository,
	wallets repositories.WalletRepository,
	marketRepo repositories.MarketRepository,
	blocks repositories.BlockRepository,
	boards repositories.LeaderboardRepository,
	txns repositories.TransactionRepository,
	lot *lottery.Lottery,
	sim *market.Simulator,
	ledger ExternalLedger,
	clock engine.Clock,
	assetName string,
) *Service {
	cache, _ := lru.New(boardCacheSize)
	return &Service{
		rigs:       rigs,
		rigTypes:   rigTypes,
		wallets:    wallets,
		market:     marketRepo,
		blocks:     blocks,
		boards:     boards,
		txns:       txns,
		lottery:    lot,
		sim:        sim,
		ledger:     ledger,
		clock:      clock,
		assetName:  assetName,
		boardCache: cache,
	}
}

// Catalog returns the purchasable rig types.
func (s *Service) Catalog(ctx context.Context) ([]*models.RigType, error) {
	return s.rigTypes.GetCatalog(ctx)
}

func (s *Service) Wallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, userID, s.clock.Now())
}

func (s *Service) Rigs(ctx context.Context, userID int64) ([]*models.UserRig, error) {
	return s.rigs.GetByUser(ctx, userID)
}

// PurchaseRig buys a catalog rig for the user. The debit and the new rig
// row commit together.
func (s *Service) PurchaseRig(ctx context.Context, userID, rigTypeID int64) (*models.UserRig, error) {
	rigType, err := s.rigTypes.GetByID(ctx, rigTypeID)
	if err != nil {
		return nil, err
	}

	rig, err := s.rigs.Purchase(ctx, userID, rigType, s.clock.Now())
	if err != nil {
		return nil, err
	}

	slog.Info("Rig purchased",
		slog.String("type", "economy"),
		slog.Int64("user_id", userID),
		slog.String("rig", rigType.Name),
		slog.Int64("cost", rigType.BaseCost))
	return rig, nil
}

func (s *Service) UpgradeRig(ctx context.Context, userID, rigID int64) (int64, error) {
	return s.rigs.Upgrade(ctx, rigID, userID, s.clock.Now())
}

func (s *Service) RepairRig(ctx context.Context, userID, rigID int64) (int64, error) {
	return s.rigs.Repair(ctx, rigID, userID, s.clock.Now())
}

func (s *Service) ScrapRig(ctx context.Context, userID, rigID int64) (float64, error) {
	return s.rigs.Scrap(ctx, rigID, userID, s.clock.Now())
}

func (s *Service) SetRigActive(ctx context.Context, rigID int64, active bool) error {
	return s.rigs.SetActive(ctx, rigID, active)
}

// SellCrypto sells at the engine's current price and pushes the proceeds
// through the external ledger. A short asset balance rejects the sale
// outright.
func (s *Service) SellCrypto(ctx context.Context, userID int64, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("sell amount must be positive")
	}

	now := s.clock.Now()
	state, err := s.market.GetMarket(ctx, s.assetName)
	if err != nil {
		return 0, fmt.Errorf("failed to read market price: %w", err)
	}

	proceeds, err := s.wallets.SellCrypto(ctx, userID, amount, state.CurrentPrice, now)
	if err != nil {
		return 0, err
	}

	if err := s.ledger.Credit(ctx, userID, proceeds, now); err != nil {
		// The asset debit is already committed; surface the failed credit
		// rather than pretending the sale did not happen.
		return proceeds, fmt.Errorf("crypto sold but ledger credit failed: %w", err)
	}
	return proceeds, nil
}

func (s *Service) BuyCrypto(ctx context.Context, userID int64, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("buy amount must be positive")
	}

	state, err := s.market.GetMarket(ctx, s.assetName)
	if err != nil {
		return 0, fmt.Errorf("failed to read market price: %w", err)
	}

	return s.wallets.BuyCrypto(ctx, userID, amount, state.CurrentPrice, s.clock.Now())
}

// LeaderboardPage serves a ranked page through a small LRU that the
// scheduler flushes after every refresh pass.
func (s *Service) LeaderboardPage(ctx context.Context, board string, page, pageSize int) ([]*models.LeaderboardEntry, error) {
	key := fmt.Sprintf("%s:%d:%d", board, page, pageSize)
	if cached, ok := s.boardCache.Get(key); ok {
		return cached.([]*models.LeaderboardEntry), nil
	}

	entries, err := s.boards.GetPage(ctx, board, page, pageSize)
	if err != nil {
		return nil, err
	}
	s.boardCache.Add(key, entries)
	return entries, nil
}

// UserRank returns the owner's cached rank on a board, or nil when the
// owner is not on it.
func (s *Service) UserRank(ctx context.Context, board string, userID int64) (*models.LeaderboardEntry, error) {
	entry, err := s.boards.GetUserRank(ctx, board, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// FlushBoardCache drops all cached leaderboard pages. Called after each
// aggregation pass so readers see fresh ranks promptly.
func (s *Service) FlushBoardCache() {
	s.boardCache.Purge()
}
