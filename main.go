package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame"
	"github.com/icgames/cryptomine/minegame/database"
	"github.com/icgames/cryptomine/minegame/database/repositories"
	"github.com/icgames/cryptomine/minegame/economy"
	"github.com/icgames/cryptomine/minegame/engine"
	"github.com/icgames/cryptomine/minegame/engine/leaderboard"
	"github.com/icgames/cryptomine/minegame/engine/lottery"
	"github.com/icgames/cryptomine/minegame/engine/market"
	"github.com/icgames/cryptomine/minegame/engine/mining"
	"github.com/icgames/cryptomine/minegame/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := minegame.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting mining economy engine",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("type", "db"),
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	startingCash := float64(cfg.Game.StartingCash)

	rigTypeRepo := repositories.NewRigTypeRepository(db.BunDB())
	rigRepo := repositories.NewRigRepository(db.BunDB(), startingCash)
	walletRepo := repositories.NewWalletRepository(db.BunDB(), startingCash)
	marketRepo := repositories.NewMarketRepository(db.BunDB())
	blockRepo := repositories.NewBlockRepository(db.BunDB(), startingCash)
	boardRepo := repositories.NewLeaderboardRepository(db.BunDB())
	txnRepo := repositories.NewTransactionRepository(db.BunDB())

	if err := rigTypeRepo.Seed(ctx, database.DefaultRigCatalog()); err != nil {
		slog.Error("Failed to seed rig catalog", slog.Any("error", err))
		os.Exit(-1)
	}
	if err := marketRepo.SeedEvents(ctx, database.DefaultEventCatalog()); err != nil {
		slog.Error("Failed to seed market events", slog.Any("error", err))
		os.Exit(-1)
	}

	clock := engine.SystemClock()

	// The passes run on separate goroutines and *rand.Rand is not safe for
	// concurrent use, so each engine gets its own source.
	marketRng := rand.New(rand.NewSource(time.Now().UnixNano()))
	lotteryRng := rand.New(rand.NewSource(time.Now().UnixNano() + 1))

	miner := mining.NewEngine(rigRepo, clock, mining.Config{
		DegradationPerDay: cfg.Game.DegradationPerDay,
		PowerPolicy:       mining.PowerPolicy(cfg.Game.PowerPolicy),
	})

	sim := market.NewSimulator(marketRepo, market.LogNotifier{}, clock, marketRng, market.Config{
		AssetName:      cfg.Game.AssetName,
		InitialPrice:   cfg.Game.InitialPrice,
		PriceFloor:     cfg.Game.PriceFloor,
		PriceCeiling:   cfg.Game.PriceCeiling,
		VolatilityBand: cfg.Game.VolatilityBand,
		EventChance:    cfg.Game.EventChance,
		TickInterval:   cfg.Game.MarketTickInterval,
		RetentionDays:  cfg.Game.RetentionDays,
	})

	lot := lottery.New(blockRepo, rigRepo, clock, lotteryRng, lottery.Config{
		Interval: cfg.Game.BlockInterval,
		Reward:   cfg.Game.BlockReward,
	})

	boards := leaderboard.NewAggregator(boardRepo, clock, leaderboard.Config{
		TopN:      cfg.Game.LeaderboardTopN,
		Freshness: cfg.Game.LeaderboardFreshness,
	})

	svc := economy.NewService(
		rigRepo, rigTypeRepo, walletRepo, marketRepo, blockRepo, boardRepo, txnRepo,
		lot, sim, economy.NewWalletLedger(walletRepo), clock, cfg.Game.AssetName,
	)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	sched := engine.NewScheduler(
		&engine.Pass{Name: "accrual", Interval: cfg.Game.AccrualInterval, Run: miner.RunAccrual},
		&engine.Pass{Name: "market_tick", Interval: cfg.Game.MarketTickInterval, Run: sim.RunTick},
		&engine.Pass{Name: "block_check", Interval: cfg.Game.BlockCheckInterval, Run: lot.RunCheck},
		&engine.Pass{Name: "leaderboard", Interval: cfg.Game.LeaderboardInterval, Run: func(ctx context.Context) error {
			if err := boards.Refresh(ctx); err != nil {
				return err
			}
			svc.FlushBoardCache()
			return nil
		}},
	)
	sched.Start(runCtx)

	slog.Info("Engine is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...")
	stop()
	sched.Wait()
}
