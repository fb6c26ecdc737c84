package finance

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// DocumentFilter defines filtering options for document queries
type DocumentFilter struct {
	shared.Filter
	Status         *lifecycle.Status // Filter by lifecycle status
	CounterpartyID *uuid.UUID        // Filter by vendor or customer
	FromDate       *time.Time        // Document date range start
	ToDate         *time.Time        // Document date range end
}

// DocumentRepository persists one document kind. Lookups by id ignore scope
// so the caller can tell NOT_FOUND from SCOPE_MISMATCH; lists are always
// restricted to one exact scope.
type DocumentRepository[D Document] interface {
	// FindByID returns shared.ErrNotFound when no document has id
	FindByID(ctx context.Context, id uuid.UUID) (D, error)

	// List returns one page of documents owned by scope
	List(ctx context.Context, scope shared.TenantScope, filter DocumentFilter) ([]D, int64, error)

	// Create inserts a new document
	Create(ctx context.Context, doc D) error

	// Update saves edited fields. doc.Version must already be incremented;
	// the row is only written if the stored version is one lower.
	Update(ctx context.Context, doc D) error

	// UpdateStatus writes the status and audit columns if the stored row is
	// still in from at the previous version
	UpdateStatus(ctx context.Context, doc D, from lifecycle.Status) error
}

// OpenItemFilter defines filtering options for open item queries
type OpenItemFilter struct {
	shared.Filter
	ControlAccount *ControlAccount
	Currency       string
	Statuses       []OpenItemStatus
	CounterpartyID *uuid.UUID
	DocumentKind   *Kind
}

// OpenItemRepository persists open items
type OpenItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*OpenItem, error)

	// FindByIDs returns the items that exist among ids, in no particular order
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*OpenItem, error)

	// FindByDocument returns the open item of a document, shared.ErrNotFound if none
	FindByDocument(ctx context.Context, kind Kind, documentID uuid.UUID) (*OpenItem, error)

	List(ctx context.Context, scope shared.TenantScope, filter OpenItemFilter) ([]OpenItem, int64, error)

	// ListClearable returns every OPEN or PARTIALLY_CLEARED item of scope
	ListClearable(ctx context.Context, scope shared.TenantScope, control *ControlAccount, currency string) ([]*OpenItem, error)

	Create(ctx context.Context, item *OpenItem) error

	// Update saves amounts and status with the same version guard as documents
	Update(ctx context.Context, item *OpenItem) error
}

// ClearingRepository persists clearing records with their lines
type ClearingRepository interface {
	Create(ctx context.Context, c *Clearing) error
	FindByID(ctx context.Context, id uuid.UUID) (*Clearing, error)
	Update(ctx context.Context, c *Clearing) error
}

// TemplateFilter defines filtering options for recurring templates
type TemplateFilter struct {
	shared.Filter
	Status    *TemplateStatus
	Frequency *Frequency
}

// RecurringTemplateRepository persists recurring templates and their runs
type RecurringTemplateRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RecurringJournalTemplate, error)

	// List excludes DELETED templates unless the filter asks for them
	List(ctx context.Context, scope shared.TenantScope, filter TemplateFilter) ([]RecurringJournalTemplate, int64, error)

	// ListDue returns ACTIVE templates of every scope whose next run is on or
	// before asOf
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]RecurringJournalTemplate, error)

	Create(ctx context.Context, t *RecurringJournalTemplate) error

	// Update saves the template and replaces its lines under a version guard
	Update(ctx context.Context, t *RecurringJournalTemplate) error

	CreateExecution(ctx context.Context, exec *RecurringExecution) error
	ListExecutions(ctx context.Context, templateID uuid.UUID, filter shared.Filter) ([]RecurringExecution, int64, error)
}
