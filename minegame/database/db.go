package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"log/slog"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	defaultConnTimeout = 5 * time.Second
	defaultMaxRetries  = 3
	retryInterval      = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
	SSLMode      string `toml:"ssl_mode"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	var pool *pgxpool.Pool
	for i := 0; i < defaultMaxRetries; i++ {
		connCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
		pool, err = pgxpool.NewWithConfig(connCtx, poolConfig)
		if err == nil {
			err = pool.Ping(connCtx)
		}
		cancel()
		if err == nil {
			break
		}
		time.Sleep(retryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database unreachable after %d attempts: %w", defaultMaxRetries, err)
	}

	return &DB{pool: pool, bunDB: newBunDB(cfg)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func newBunDB(cfg DBConfig) *bun.DB {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Close() {
	if db.bunDB != nil {
		db.bunDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

// InitializeSchema creates all required tables and indexes. Tables are
// created in dependency order.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.RigType)(nil),
		(*models.UserRig)(nil),
		(*models.Wallet)(nil),
		(*models.MarketState)(nil),
		(*models.MarketEvent)(nil),
		(*models.MarketHistory)(nil),
		(*models.Block)(nil),
		(*models.LeaderboardEntry)(nil),
		(*models.Transaction)(nil),
	}

	for _, table := range tables {
		if _, err := db.bunDB.NewCreateTable().
			Model(table).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", table, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_user_rigs_user ON user_rigs (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_rigs_active ON user_rigs (is_active) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_market_history_asset_time ON market_history (asset_name, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_open ON blocks (is_solved) WHERE NOT is_solved`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_winner ON blocks (winner_user_id) WHERE winner_user_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_leaderboard_board_user ON leaderboard (board_type, user_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_market_events_title ON market_events (title)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions (user_id, created_at)`,
	}

	for _, idx := range indexes {
		if _, err := db.bunDB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	slog.Info("Database schema initialized",
		slog.String("type", "db"),
		slog.Int("tables", len(tables)))

	return nil
}
