package persistence

import (
	"context"
	"strings"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOpenItemRepository implements finance.OpenItemRepository using GORM
type GormOpenItemRepository struct {
	db *gorm.DB
}

// NewGormOpenItemRepository creates a new GormOpenItemRepository
func NewGormOpenItemRepository(db *gorm.DB) *GormOpenItemRepository {
	return &GormOpenItemRepository{db: db}
}

// FindByID finds an open item by id in any scope
func (r *GormOpenItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.OpenItem, error) {
	var item finance.OpenItem
	if err := conn(ctx, r.db).Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// FindByIDs returns the items that exist among ids
func (r *GormOpenItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*finance.OpenItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*finance.OpenItem
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// FindByDocument returns the open item created when the document was posted
func (r *GormOpenItemRepository) FindByDocument(ctx context.Context, kind finance.Kind, documentID uuid.UUID) (*finance.OpenItem, error) {
	var item finance.OpenItem
	err := conn(ctx, r.db).
		Where("document_kind = ? AND document_id = ?", kind, documentID).
		Take(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// List returns one page of the scope's open items
func (r *GormOpenItemRepository) List(ctx context.Context, scope shared.TenantScope, filter finance.OpenItemFilter) ([]finance.OpenItem, int64, error) {
	filter.Normalize()
	query := scoped(conn(ctx, r.db).Model(&finance.OpenItem{}), scope)

	if filter.ControlAccount != nil {
		query = query.Where("control_account = ?", *filter.ControlAccount)
	}
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.CounterpartyID != nil {
		query = query.Where("counterparty_id = ?", *filter.CounterpartyID)
	}
	if filter.DocumentKind != nil {
		query = query.Where("document_kind = ?", *filter.DocumentKind)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(document_number) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var items []finance.OpenItem
	err := query.
		Order(orderClause(filter.Filter, OpenItemSortFields, "document_date")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return items, total, nil
}

// ListClearable returns every clearable item of scope, oldest first
func (r *GormOpenItemRepository) ListClearable(ctx context.Context, scope shared.TenantScope, control *finance.ControlAccount, currency string) ([]*finance.OpenItem, error) {
	query := scoped(conn(ctx, r.db), scope).
		Where("status IN ?", []finance.OpenItemStatus{finance.OpenItemStatusOpen, finance.OpenItemStatusPartiallyCleared})
	if control != nil {
		query = query.Where("control_account = ?", *control)
	}
	if currency != "" {
		query = query.Where("currency = ?", currency)
	}

	var items []*finance.OpenItem
	if err := query.Order("document_date ASC, id ASC").Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// Create inserts a new open item
func (r *GormOpenItemRepository) Create(ctx context.Context, item *finance.OpenItem) error {
	return translate(conn(ctx, r.db).Create(item).Error)
}

// Update writes amounts, status and clearing pointer if the stored row is at
// the previous version
func (r *GormOpenItemRepository) Update(ctx context.Context, item *finance.OpenItem) error {
	result := conn(ctx, r.db).Model(item).
		Select("original_amount", "remaining_amount", "currency", "status", "last_clearing_id",
			"cleared_at", "document_number", "due_date", "version", "updated_at").
		Where("version = ?", item.Version-1).
		Updates(item)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewTransitionError("Open item for %s was changed by another request, reload and try again",
			item.DocumentNumber)
	}
	return nil
}
