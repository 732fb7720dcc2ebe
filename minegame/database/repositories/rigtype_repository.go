package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/icgames/cryptomine/minegame/database/models"
	"github.com/uptrace/bun"
)

type RigTypeRepository interface {
	GetByID(ctx context.Context, id int64) (*models.RigType, error)
	GetCatalog(ctx context.Context) ([]*models.RigType, error)
	Seed(ctx context.Context, types []*models.RigType) error
}

type rigTypeRepository struct {
	db *bun.DB
}

func NewRigTypeRepository(db *bun.DB) RigTypeRepository {
	return &rigTypeRepository{db: db}
}

func (r *rigTypeRepository) GetByID(ctx context.Context, id int64) (*models.RigType, error) {
	rt := new(models.RigType)
	err := r.db.NewSelect().
		Model(rt).
		Where("id = ?", id).
		Where("is_active = TRUE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rt, err
}

func (r *rigTypeRepository) GetCatalog(ctx context.Context) ([]*models.RigType, error) {
	var types []*models.RigType
	err := r.db.NewSelect().
		Model(&types).
		Where("is_active = TRUE").
		Order("sort_order ASC", "tier ASC").
		Scan(ctx)
	return types, err
}

// Seed inserts catalog rows that are not present yet, keyed by name.
func (r *rigTypeRepository) Seed(ctx context.Context, types []*models.RigType) error {
	if len(types) == 0 {
		return nil
	}
	_, err := r.db.NewInsert().
		Model(&types).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	return err
}
