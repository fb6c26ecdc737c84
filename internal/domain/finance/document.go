package finance

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentBase holds the fields every financial document shares: scope,
// number, status, amounts and the lifecycle audit trail
type DocumentBase struct {
	shared.ScopedAggregateRoot
	lifecycle.AuditStamps
	Kind             Kind             `gorm:"size:32;not null"`
	Number           string           `gorm:"size:64;not null"`
	Status           lifecycle.Status `gorm:"size:32;not null;index"`
	CounterpartyID   *uuid.UUID       `gorm:"type:uuid;index"`
	CounterpartyName string           `gorm:"size:200"`
	Currency         string           `gorm:"size:3;not null"`
	NetAmount        decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	TaxAmount        decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	GrossAmount      decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	DocumentDate     time.Time        `gorm:"type:date;not null"`
	DueDate          *time.Time       `gorm:"type:date"`
	Reference        string           `gorm:"size:100"`
	Description      string           `gorm:"size:1000"`
}

// NewDocumentBase creates the shared part of a new document of kind, in the
// kind's initial status. The number is stamped later by the allocator.
func NewDocumentBase(kind Kind, scope shared.TenantScope, createdBy uuid.UUID) DocumentBase {
	return DocumentBase{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(scope, createdBy),
		Kind:                kind,
		Status:              MustSpec(kind).Machine().Table().InitialStatus(),
	}
}

func (b *DocumentBase) Base() *DocumentBase                { return b }
func (b *DocumentBase) CurrentStatus() lifecycle.Status    { return b.Status }
func (b *DocumentBase) SetStatus(s lifecycle.Status)       { b.Status = s }
func (b *DocumentBase) AuditTrail() *lifecycle.AuditStamps { return &b.AuditStamps }

// Spec returns the kind spec of the document
func (b *DocumentBase) Spec() KindSpec {
	return MustSpec(b.Kind)
}

// Document is the trait the lifecycle, clearing and persistence code works
// against. Each kind is its own type embedding DocumentBase.
type Document interface {
	shared.AggregateRoot
	lifecycle.Stateful
	Base() *DocumentBase
	// OpenItemSign is +1 or -1 for the sign of the open item created on post,
	// 0 when the kind creates none
	OpenItemSign() int
}

// Payload is a typed create/update request for document type D
type Payload[D Document] interface {
	Build(base DocumentBase) (D, error)
	ApplyTo(doc D) error
}

// DocumentFields are the editable fields shared by counterparty documents
type DocumentFields struct {
	CounterpartyID   *uuid.UUID      `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name" validate:"max=200"`
	Currency         string          `json:"currency" validate:"required,iso4217"`
	NetAmount        decimal.Decimal `json:"net_amount" validate:"dgte0"`
	TaxAmount        decimal.Decimal `json:"tax_amount" validate:"dgte0"`
	DocumentDate     time.Time       `json:"document_date" validate:"required"`
	DueDate          *time.Time      `json:"due_date"`
	Reference        string          `json:"reference" validate:"max=100"`
	Description      string          `json:"description" validate:"max=1000"`
}

func (f DocumentFields) validate(requireCounterparty bool) error {
	if requireCounterparty && (f.CounterpartyID == nil || *f.CounterpartyID == uuid.Nil) {
		return shared.NewValidationError("Counterparty is required")
	}
	if len(f.Currency) != 3 {
		return shared.NewValidationError("Currency must be a 3-letter ISO code")
	}
	if f.NetAmount.IsNegative() || f.TaxAmount.IsNegative() {
		return shared.NewValidationError("Amounts cannot be negative")
	}
	if f.NetAmount.Add(f.TaxAmount).IsZero() {
		return shared.NewValidationError("Gross amount must be greater than zero")
	}
	if f.DocumentDate.IsZero() {
		return shared.NewValidationError("Document date is required")
	}
	if f.DueDate != nil && f.DueDate.Before(f.DocumentDate) {
		return shared.NewValidationError("Due date cannot be before document date")
	}
	return nil
}

func (f DocumentFields) apply(b *DocumentBase, requireCounterparty bool) error {
	if err := f.validate(requireCounterparty); err != nil {
		return err
	}
	b.CounterpartyID = f.CounterpartyID
	b.CounterpartyName = strings.TrimSpace(f.CounterpartyName)
	b.Currency = strings.ToUpper(f.Currency)
	b.NetAmount = f.NetAmount
	b.TaxAmount = f.TaxAmount
	b.GrossAmount = f.NetAmount.Add(f.TaxAmount)
	b.DocumentDate = truncateDay(f.DocumentDate)
	if f.DueDate != nil {
		due := truncateDay(*f.DueDate)
		b.DueDate = &due
	} else {
		b.DueDate = nil
	}
	b.Reference = strings.TrimSpace(f.Reference)
	b.Description = strings.TrimSpace(f.Description)
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PaymentMethod is how money moved
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodACH          PaymentMethod = "ACH"
	PaymentMethodWire         PaymentMethod = "WIRE"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodCash         PaymentMethod = "CASH"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodACH, PaymentMethodWire,
		PaymentMethodCheck, PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}
