package minegame

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/icgames/cryptomine/minegame/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := defaultConfig()
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log  LogConfig         `toml:"log"`
	DB   database.DBConfig `toml:"db"`
	Game GameConfig        `toml:"game"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// GameConfig holds every economy tunable. Defaults reproduce the stock
// balance; operators override per deployment.
type GameConfig struct {
	AssetName    string `toml:"asset_name"`
	StartingCash int64  `toml:"starting_cash"`

	DegradationPerDay float64 `toml:"degradation_per_day"`
	PowerPolicy       string  `toml:"power_policy"` // absorb or shutdown

	BlockInterval time.Duration `toml:"block_interval"`
	BlockReward   float64       `toml:"block_reward"`

	InitialPrice   float64 `toml:"initial_price"`
	PriceFloor     float64 `toml:"price_floor"`
	PriceCeiling   float64 `toml:"price_ceiling"`
	VolatilityBand float64 `toml:"volatility_band"`
	EventChance    int     `toml:"event_chance"`
	RetentionDays  int     `toml:"retention_days"`

	LeaderboardTopN      int           `toml:"leaderboard_top_n"`
	LeaderboardFreshness time.Duration `toml:"leaderboard_freshness"`

	AccrualInterval     time.Duration `toml:"accrual_interval"`
	MarketTickInterval  time.Duration `toml:"market_tick_interval"`
	BlockCheckInterval  time.Duration `toml:"block_check_interval"`
	LeaderboardInterval time.Duration `toml:"leaderboard_interval"`
}

func defaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: "text",
		},
		DB: database.DBConfig{
			Host:     "localhost",
			Port:     5432,
			PoolSize: 10,
		},
		Game: GameConfig{
			AssetName:    "BTC",
			StartingCash: 10000,

			DegradationPerDay: 4.0,
			PowerPolicy:       "absorb",

			BlockInterval: time.Hour,
			BlockReward:   0.05,

			InitialPrice:   45000,
			PriceFloor:     10000,
			PriceCeiling:   100000,
			VolatilityBand: 0.05,
			EventChance:    20,
			RetentionDays:  90,

			LeaderboardTopN:      100,
			LeaderboardFreshness: time.Hour,

			AccrualInterval:     time.Hour,
			MarketTickInterval:  time.Hour,
			BlockCheckInterval:  5 * time.Minute,
			LeaderboardInterval: 15 * time.Minute,
		},
	}
}
