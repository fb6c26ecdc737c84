package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecurringTemplateRepository implements finance.RecurringTemplateRepository using GORM
type GormRecurringTemplateRepository struct {
	db *gorm.DB
}

// NewGormRecurringTemplateRepository creates a new GormRecurringTemplateRepository
func NewGormRecurringTemplateRepository(db *gorm.DB) *GormRecurringTemplateRepository {
	return &GormRecurringTemplateRepository{db: db}
}

func preloadTemplateLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") })
}

// FindByID loads a template with its lines in any scope
func (r *GormRecurringTemplateRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.RecurringJournalTemplate, error) {
	var t finance.RecurringJournalTemplate
	if err := preloadTemplateLines(conn(ctx, r.db)).Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// List returns one page of the scope's templates
func (r *GormRecurringTemplateRepository) List(ctx context.Context, scope shared.TenantScope, filter finance.TemplateFilter) ([]finance.RecurringJournalTemplate, int64, error) {
	filter.Normalize()
	query := scoped(conn(ctx, r.db).Model(&finance.RecurringJournalTemplate{}), scope)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	} else {
		query = query.Where("status <> ?", finance.TemplateStatusDeleted)
	}
	if filter.Frequency != nil {
		query = query.Where("frequency = ?", *filter.Frequency)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var templates []finance.RecurringJournalTemplate
	err := preloadTemplateLines(query).
		Order(orderClause(filter.Filter, TemplateSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&templates).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return templates, total, nil
}

// ListDue returns ACTIVE templates across all scopes whose next run is due
func (r *GormRecurringTemplateRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]finance.RecurringJournalTemplate, error) {
	query := conn(ctx, r.db).
		Where("status = ? AND next_run_date IS NOT NULL AND next_run_date <= ?", finance.TemplateStatusActive, asOf).
		Order("next_run_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var templates []finance.RecurringJournalTemplate
	if err := preloadTemplateLines(query).Find(&templates).Error; err != nil {
		return nil, translate(err)
	}
	return templates, nil
}

// Create inserts a template with its lines
func (r *GormRecurringTemplateRepository) Create(ctx context.Context, t *finance.RecurringJournalTemplate) error {
	return translate(conn(ctx, r.db).Create(t).Error)
}

// Update saves the template under the version guard and replaces its lines
func (r *GormRecurringTemplateRepository) Update(ctx context.Context, t *finance.RecurringJournalTemplate) error {
	tx := conn(ctx, r.db)
	result := tx.Model(t).
		Select("*").
		Omit("id", "agency_id", "sub_account_id", "created_by", "created_at", clause.Associations).
		Where("version = ?", t.Version-1).
		Updates(t)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewTransitionError("Template %s was changed by another request, reload and try again", t.Name)
	}

	if err := tx.Where("template_id = ?", t.ID).Delete(&finance.RecurringJournalLine{}).Error; err != nil {
		return translate(err)
	}
	for i := range t.Lines {
		t.Lines[i].TemplateID = t.ID
		if t.Lines[i].ID == uuid.Nil {
			t.Lines[i].ID = uuid.New()
		}
	}
	if len(t.Lines) > 0 {
		if err := tx.Create(&t.Lines).Error; err != nil {
			return translate(err)
		}
	}
	return nil
}

// CreateExecution records one run of a template
func (r *GormRecurringTemplateRepository) CreateExecution(ctx context.Context, exec *finance.RecurringExecution) error {
	return translate(conn(ctx, r.db).Create(exec).Error)
}

// ListExecutions returns one page of a template's run history, newest first by default
func (r *GormRecurringTemplateRepository) ListExecutions(ctx context.Context, templateID uuid.UUID, filter shared.Filter) ([]finance.RecurringExecution, int64, error) {
	filter.Normalize()
	query := conn(ctx, r.db).Model(&finance.RecurringExecution{}).
		Where("template_id = ?", templateID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var execs []finance.RecurringExecution
	err := query.
		Order(orderClause(filter, ExecutionSortFields, "executed_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&execs).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return execs, total, nil
}
