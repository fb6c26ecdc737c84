package persistence

import (
	"context"
	"strings"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// immutableDocumentColumns are never touched by an edit
var immutableDocumentColumns = []string{
	"id", "agency_id", "sub_account_id", "created_by", "created_at", "kind", "number", "status",
}

// GormDocumentRepository implements finance.DocumentRepository for one kind.
// Kinds that share a Go type (AP and AR notes) are told apart by table.
type GormDocumentRepository[D finance.Document] struct {
	db     *gorm.DB
	spec   finance.KindSpec
	newDoc func() D

	// lines is set for kinds that keep lines in a child table
	lines *childLines[D]
}

type childLines[D any] struct {
	association string
	replace     func(tx *gorm.DB, doc D) error
}

// NewGormDocumentRepository creates a repository for kind
func NewGormDocumentRepository[D finance.Document](db *gorm.DB, kind finance.Kind, newDoc func() D) *GormDocumentRepository[D] {
	return &GormDocumentRepository[D]{db: db, spec: finance.MustSpec(kind), newDoc: newDoc}
}

func NewApInvoiceRepository(db *gorm.DB) *GormDocumentRepository[*finance.ApInvoice] {
	return NewGormDocumentRepository(db, finance.KindApInvoice, func() *finance.ApInvoice { return new(finance.ApInvoice) })
}

func NewArInvoiceRepository(db *gorm.DB) *GormDocumentRepository[*finance.ArInvoice] {
	return NewGormDocumentRepository(db, finance.KindArInvoice, func() *finance.ArInvoice { return new(finance.ArInvoice) })
}

func NewApNoteRepository(db *gorm.DB) *GormDocumentRepository[*finance.Note] {
	return NewGormDocumentRepository(db, finance.KindApNote, func() *finance.Note { return new(finance.Note) })
}

func NewArNoteRepository(db *gorm.DB) *GormDocumentRepository[*finance.Note] {
	return NewGormDocumentRepository(db, finance.KindArNote, func() *finance.Note { return new(finance.Note) })
}

func NewPaymentRepository(db *gorm.DB) *GormDocumentRepository[*finance.Payment] {
	return NewGormDocumentRepository(db, finance.KindPayment, func() *finance.Payment { return new(finance.Payment) })
}

func NewReceiptRepository(db *gorm.DB) *GormDocumentRepository[*finance.Receipt] {
	return NewGormDocumentRepository(db, finance.KindReceipt, func() *finance.Receipt { return new(finance.Receipt) })
}

func NewPurchaseOrderRepository(db *gorm.DB) *GormDocumentRepository[*finance.PurchaseOrder] {
	return NewGormDocumentRepository(db, finance.KindPurchaseOrder, func() *finance.PurchaseOrder { return new(finance.PurchaseOrder) })
}

func NewPaymentBatchRepository(db *gorm.DB) *GormDocumentRepository[*finance.PaymentBatch] {
	return NewGormDocumentRepository(db, finance.KindPaymentBatch, func() *finance.PaymentBatch { return new(finance.PaymentBatch) })
}

// NewJournalEntryRepository creates the journal entry repository; lines are
// loaded in line order and replaced wholesale on edit
func NewJournalEntryRepository(db *gorm.DB) *GormDocumentRepository[*finance.JournalEntry] {
	r := NewGormDocumentRepository(db, finance.KindJournalEntry, func() *finance.JournalEntry { return new(finance.JournalEntry) })
	r.lines = &childLines[*finance.JournalEntry]{
		association: "Lines",
		replace: func(tx *gorm.DB, doc *finance.JournalEntry) error {
			if err := tx.Where("journal_entry_id = ?", doc.ID).Delete(&finance.JournalEntryLine{}).Error; err != nil {
				return err
			}
			for i := range doc.Lines {
				doc.Lines[i].JournalEntryID = doc.ID
				if doc.Lines[i].ID == uuid.Nil {
					doc.Lines[i].ID = uuid.New()
				}
			}
			if len(doc.Lines) == 0 {
				return nil
			}
			return tx.Create(&doc.Lines).Error
		},
	}
	return r
}

// Kind returns the document kind stored by the repository
func (r *GormDocumentRepository[D]) Kind() finance.Kind {
	return r.spec.Kind
}

func (r *GormDocumentRepository[D]) table(ctx context.Context) *gorm.DB {
	return conn(ctx, r.db).Table(r.spec.Table)
}

func (r *GormDocumentRepository[D]) withLines(q *gorm.DB) *gorm.DB {
	if r.lines == nil {
		return q
	}
	return q.Preload(r.lines.association, func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no ASC")
	})
}

// FindByID finds a document by id in any scope
func (r *GormDocumentRepository[D]) FindByID(ctx context.Context, id uuid.UUID) (D, error) {
	doc := r.newDoc()
	if err := r.withLines(r.table(ctx)).Where("id = ?", id).Take(doc).Error; err != nil {
		var zero D
		return zero, translate(err)
	}
	return doc, nil
}

// List returns one page of the scope's documents
func (r *GormDocumentRepository[D]) List(ctx context.Context, scope shared.TenantScope, filter finance.DocumentFilter) ([]D, int64, error) {
	filter.Normalize()
	query := scoped(r.table(ctx), scope)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CounterpartyID != nil {
		query = query.Where("counterparty_id = ?", *filter.CounterpartyID)
	}
	if filter.FromDate != nil {
		query = query.Where("document_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("document_date <= ?", *filter.ToDate)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("(LOWER(number) LIKE ? OR LOWER(counterparty_name) LIKE ? OR LOWER(reference) LIKE ?)", like, like, like)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var docs []D
	err := r.withLines(query).
		Order(orderClause(filter.Filter, DocumentSortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return docs, total, nil
}

// Create inserts a new document with its lines
func (r *GormDocumentRepository[D]) Create(ctx context.Context, doc D) error {
	return translate(r.table(ctx).Create(doc).Error)
}

// Update writes edited fields if the stored row is at the previous version
func (r *GormDocumentRepository[D]) Update(ctx context.Context, doc D) error {
	tx := conn(ctx, r.db)
	result := tx.Table(r.spec.Table).Model(doc).
		Select("*").
		Omit(append(immutableDocumentColumns, clause.Associations)...).
		Where("version = ?", doc.GetVersion()-1).
		Updates(doc)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return r.staleError(doc)
	}

	if r.lines != nil {
		if err := r.lines.replace(tx, doc); err != nil {
			return translate(err)
		}
	}
	return nil
}

// UpdateStatus writes the status and audit stamps as a compare-and-set on
// the previous status and version
func (r *GormDocumentRepository[D]) UpdateStatus(ctx context.Context, doc D, from lifecycle.Status) error {
	columns := append([]string{"status", "version", "updated_at"}, lifecycle.AuditStamps{}.Columns()...)
	result := r.table(ctx).Model(doc).
		Select(columns).
		Where("status = ? AND version = ?", from, doc.GetVersion()-1).
		Updates(doc)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return r.staleError(doc)
	}
	return nil
}

func (r *GormDocumentRepository[D]) staleError(doc D) error {
	return shared.NewTransitionError("%s %s was changed by another request, reload and try again",
		r.spec.Label, doc.Base().Number)
}

// scoped restricts q to rows owned by exactly scope
func scoped(q *gorm.DB, scope shared.TenantScope) *gorm.DB {
	q = q.Where("agency_id = ?", scope.AgencyID)
	if scope.SubAccountID == nil {
		return q.Where("sub_account_id IS NULL")
	}
	return q.Where("sub_account_id = ?", *scope.SubAccountID)
}
