package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"
)

type MarketRepository interface {
	GetMarket(ctx context.Context, asset string) (*models.MarketState, error)
	InitMarket(ctx context.Context, state *models.MarketState) error
	// UpdatePrice persists the new quote and appends the history point in
	// one transaction.
	UpdatePrice(ctx context.Context, state *models.MarketState) error
	GetActiveEvent(ctx context.Context) (*models.MarketEvent, error)
	GetDormantEvents(ctx context.Context) ([]*models.MarketEvent, error)
	ActivateEvent(ctx context.Context, eventID int64, at time.Time) error
	DeactivateEvent(ctx context.Context, eventID int64) error
	GetHistory(ctx context.Context, asset string, since time.Time) ([]*models.MarketHistory, error)
	PruneHistory(ctx context.Context, asset string, before time.Time) (int64, error)
	SeedEvents(ctx context.Context, events []*models.MarketEvent) error
}

type marketRepository struct {
	db *bun.DB
}

func NewMarketRepository(db *bun.DB) MarketRepository {
	return &marketRepository{db: db}
}

func (r *marketRepository) GetMarket(ctx context.Context, asset string) (*models.MarketState, error) {
	state := new(models.MarketState)
	err := r.db.NewSelect().
		Model(state).
		Where("asset_name = ?", asset).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return state, err
}

func (r *marketRepository) InitMarket(ctx context.Context, state *models.MarketState) error {
	_, err := r.db.NewInsert().
		Model(state).
		On("CONFLICT (asset_name) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *marketRepository) UpdatePrice(ctx context.Context, state *models.MarketState) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.MarketState)(nil)).
			Set("previous_price = ?", state.PreviousPrice).
			Set("current_price = ?", state.CurrentPrice).
			Set("price_change_percent = ?", state.PriceChangePercent).
			Set("last_updated = ?", state.LastUpdated).
			Where("asset_name = ?", state.AssetName).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update market: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		_, err = tx.NewInsert().
			Model(&models.MarketHistory{
				AssetName:  state.AssetName,
				Price:      state.CurrentPrice,
				RecordedAt: state.LastUpdated,
			}).
			Exec(ctx)
		return err
	})
}

func (r *marketRepository) GetActiveEvent(ctx context.Context) (*models.MarketEvent, error) {
	event := new(models.MarketEvent)
	err := r.db.NewSelect().
		Model(event).
		Where("is_active = TRUE").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return event, err
}

func (r *marketRepository) GetDormantEvents(ctx context.Context) ([]*models.MarketEvent, error) {
	var events []*models.MarketEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("is_active = FALSE").
		Scan(ctx)
	return events, err
}

func (r *marketRepository) ActivateEvent(ctx context.Context, eventID int64, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.MarketEvent)(nil)).
		Set("is_active = TRUE").
		Set("triggered_at = ?", at).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *marketRepository) DeactivateEvent(ctx context.Context, eventID int64) error {
	res, err := r.db.NewUpdate().
		Model((*models.MarketEvent)(nil)).
		Set("is_active = FALSE").
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedEvents inserts the event catalog rows that are not present yet,
// keyed by title.
func (r *marketRepository) SeedEvents(ctx context.Context, events []*models.MarketEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.db.NewInsert().
		Model(&events).
		On("CONFLICT (title) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *marketRepository) GetHistory(ctx context.Context, asset string, since time.Time) ([]*models.MarketHistory, error) {
	var points []*models.MarketHistory
	err := r.db.NewSelect().
		Model(&points).
		Where("asset_name = ?", asset).
		Where("recorded_at >= ?", since).
		Order("recorded_at ASC").
		Scan(ctx)
	return points, err
}

func (r *marketRepository) PruneHistory(ctx context.Context, asset string, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.MarketHistory)(nil)).
		Where("asset_name = ?", asset).
		Where("recorded_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
