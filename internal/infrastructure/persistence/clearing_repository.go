package persistence

import (
	"context"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormClearingRepository implements finance.ClearingRepository using GORM
type GormClearingRepository struct {
	db *gorm.DB
}

// NewGormClearingRepository creates a new GormClearingRepository
func NewGormClearingRepository(db *gorm.DB) *GormClearingRepository {
	return &GormClearingRepository{db: db}
}

// Create inserts the clearing and its lines
func (r *GormClearingRepository) Create(ctx context.Context, c *finance.Clearing) error {
	return translate(conn(ctx, r.db).Create(c).Error)
}

// FindByID loads a clearing with its lines
func (r *GormClearingRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.Clearing, error) {
	var c finance.Clearing
	err := conn(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		Take(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// Update writes the reversal fields. Lines are immutable.
func (r *GormClearingRepository) Update(ctx context.Context, c *finance.Clearing) error {
	result := conn(ctx, r.db).Model(c).
		Select("status", "reversed_at", "reversed_by", "reversal_reason", "version", "updated_at").
		Where("version = ?", c.Version-1).
		Updates(c)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewTransitionError("Clearing %s was changed by another request, reload and try again", c.Number)
	}
	return nil
}
