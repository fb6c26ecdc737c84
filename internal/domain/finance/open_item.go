package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItemStatus is the clearing state of an open item
type OpenItemStatus string

const (
	OpenItemStatusOpen             OpenItemStatus = "OPEN"
	OpenItemStatusPartiallyCleared OpenItemStatus = "PARTIALLY_CLEARED"
	OpenItemStatusCleared          OpenItemStatus = "CLEARED"
	OpenItemStatusVoided           OpenItemStatus = "VOIDED"
)

// IsClearable returns true if the item may take part in a clearing
func (s OpenItemStatus) IsClearable() bool {
	return s == OpenItemStatusOpen || s == OpenItemStatusPartiallyCleared
}

// OpenItem is the outstanding signed balance of a posted document on its
// control account. The absolute remaining amount only ever shrinks, except
// when a clearing is reversed.
type OpenItem struct {
	shared.ScopedAggregateRoot
	DocumentKind    Kind            `gorm:"size:32;not null"`
	DocumentID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	DocumentNumber  string          `gorm:"size:64;not null"`
	ControlAccount  ControlAccount  `gorm:"size:32;not null;index"`
	CounterpartyID  *uuid.UUID      `gorm:"type:uuid;index"`
	Currency        string          `gorm:"size:3;not null"`
	OriginalAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status          OpenItemStatus  `gorm:"size:32;not null;index"`
	DocumentDate    time.Time       `gorm:"type:date;not null"`
	DueDate         *time.Time      `gorm:"type:date"`
	LastClearingID  *uuid.UUID      `gorm:"type:uuid"`
	ClearedAt       *time.Time
}

func (OpenItem) TableName() string { return "open_items" }

// NewOpenItem projects a posted document onto its control account. It returns
// false for kinds that carry no open item.
func NewOpenItem(doc Document) (*OpenItem, bool) {
	base := doc.Base()
	spec := base.Spec()
	s := doc.OpenItemSign()
	if !spec.HasOpenItem() || s == 0 {
		return nil, false
	}
	if base.Status != lifecycle.StatusPosted {
		return nil, false
	}
	amount := base.GrossAmount.Abs()
	if s < 0 {
		amount = amount.Neg()
	}
	item := &OpenItem{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(base.Scope(), base.CreatedBy),
		DocumentKind:        base.Kind,
		DocumentID:          base.ID,
		DocumentNumber:      base.Number,
		ControlAccount:      spec.Control,
		CounterpartyID:      base.CounterpartyID,
		Currency:            base.Currency,
		OriginalAmount:      amount,
		RemainingAmount:     amount,
		Status:              OpenItemStatusOpen,
		DocumentDate:        base.DocumentDate,
		DueDate:             base.DueDate,
	}
	return item, true
}

// IsUntouched reports whether no clearing has reduced the item
func (o *OpenItem) IsUntouched() bool {
	return o.Status == OpenItemStatusOpen && o.RemainingAmount.Equal(o.OriginalAmount)
}

// CheckClearAmount validates that amount may be cleared from the item: the
// item is clearable, amount is non-zero, has the sign of the remaining
// balance and does not exceed it
func (o *OpenItem) CheckClearAmount(amount, tolerance decimal.Decimal) error {
	if !o.Status.IsClearable() {
		return shared.NewTransitionError("Open item %s is not clearable in status %s", o.ID, o.Status)
	}
	if amount.IsZero() {
		return shared.NewValidationError("Clear amount for open item %s cannot be zero", o.ID)
	}
	if amount.Sign() != o.RemainingAmount.Sign() {
		return shared.NewValidationError("Clear amount for open item %s must have the sign of its remaining balance", o.ID)
	}
	if amount.Abs().Sub(o.RemainingAmount.Abs()).GreaterThan(tolerance) {
		return shared.NewValidationError(
			"Clear amount %s exceeds remaining balance %s of open item %s",
			FormatAmount(amount), FormatAmount(o.RemainingAmount), o.ID)
	}
	return nil
}

// applyClear reduces the remaining balance. A leftover within tolerance is
// written off. Callers validate first.
func (o *OpenItem) applyClear(amount, tolerance decimal.Decimal, clearingID uuid.UUID, at time.Time) {
	remaining := o.RemainingAmount.Sub(amount)
	if withinTolerance(remaining, tolerance) {
		remaining = decimal.Zero
	}
	o.RemainingAmount = remaining
	if remaining.IsZero() {
		o.Status = OpenItemStatusCleared
	} else {
		o.Status = OpenItemStatusPartiallyCleared
	}
	id := clearingID
	when := at
	o.LastClearingID = &id
	o.ClearedAt = &when
	o.UpdatedAt = at
}

// restore resets the remaining balance to what it was before a clearing,
// including any amount the clearing wrote off as rounding
func (o *OpenItem) restore(remaining decimal.Decimal, previousClearingID *uuid.UUID, at time.Time) {
	o.RemainingAmount = remaining
	if o.RemainingAmount.Equal(o.OriginalAmount) {
		o.Status = OpenItemStatusOpen
		o.ClearedAt = nil
	} else {
		o.Status = OpenItemStatusPartiallyCleared
	}
	o.LastClearingID = previousClearingID
	o.UpdatedAt = at
}

// Void retires an untouched item when its document is voided
func (o *OpenItem) Void(at time.Time) error {
	if !o.IsUntouched() {
		return shared.NewTransitionError(
			"Cannot void document %s: its open item has already been cleared", o.DocumentNumber)
	}
	o.Status = OpenItemStatusVoided
	o.RemainingAmount = decimal.Zero
	o.UpdatedAt = at
	return nil
}
