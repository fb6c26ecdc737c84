package finance

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
)

// Payment is money paid to a vendor
type Payment struct {
	DocumentBase
	Method        PaymentMethod `gorm:"size:32;not null"`
	BankReference string        `gorm:"size:100"`
}

// OpenItemSign is positive: a payment offsets a negative bill
func (d *Payment) OpenItemSign() int { return 1 }

// Receipt is money received from a customer
type Receipt struct {
	DocumentBase
	Method        PaymentMethod `gorm:"size:32;not null"`
	BankReference string        `gorm:"size:100"`
}

// OpenItemSign is negative: a receipt offsets a positive invoice
func (d *Receipt) OpenItemSign() int { return -1 }

// MoneyMovementInput creates or edits a payment or receipt
type MoneyMovementInput struct {
	DocumentFields
	Method        PaymentMethod `json:"method" validate:"required"`
	BankReference string        `json:"bank_reference" validate:"max=100"`
}

func (in MoneyMovementInput) validate() error {
	if !in.Method.IsValid() {
		return shared.NewValidationError("Unknown payment method %s", in.Method)
	}
	if !in.TaxAmount.IsZero() {
		return shared.NewValidationError("Payments carry no tax amount")
	}
	return nil
}

// PaymentInput creates or edits a payment
type PaymentInput struct {
	MoneyMovementInput
}

func (in PaymentInput) Build(base DocumentBase) (*Payment, error) {
	doc := &Payment{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in PaymentInput) ApplyTo(doc *Payment) error {
	if err := in.validate(); err != nil {
		return err
	}
	if err := in.DocumentFields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	doc.Method = in.Method
	doc.BankReference = in.BankReference
	return nil
}

// ReceiptInput creates or edits a receipt
type ReceiptInput struct {
	MoneyMovementInput
}

func (in ReceiptInput) Build(base DocumentBase) (*Receipt, error) {
	doc := &Receipt{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in ReceiptInput) ApplyTo(doc *Receipt) error {
	if err := in.validate(); err != nil {
		return err
	}
	if err := in.DocumentFields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	doc.Method = in.Method
	doc.BankReference = in.BankReference
	return nil
}

// PaymentBatch groups vendor payments released together. Batches are numbered
// per month.
type PaymentBatch struct {
	DocumentBase
	Method        PaymentMethod `gorm:"size:32;not null"`
	ScheduledDate *time.Time    `gorm:"type:date"`
	PaymentCount  int           `gorm:"not null;default:0"`
}

// OpenItemSign is positive, like a single payment
func (d *PaymentBatch) OpenItemSign() int { return 1 }

// PaymentBatchInput creates or edits a payment batch. The counterparty is
// optional since a batch may pay several vendors.
type PaymentBatchInput struct {
	DocumentFields
	Method        PaymentMethod `json:"method" validate:"required"`
	ScheduledDate *time.Time    `json:"scheduled_date"`
	PaymentCount  int           `json:"payment_count" validate:"gte=1"`
}

func (in PaymentBatchInput) Build(base DocumentBase) (*PaymentBatch, error) {
	doc := &PaymentBatch{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in PaymentBatchInput) ApplyTo(doc *PaymentBatch) error {
	if !in.Method.IsValid() {
		return shared.NewValidationError("Unknown payment method %s", in.Method)
	}
	if in.PaymentCount < 1 {
		return shared.NewValidationError("A payment batch needs at least one payment")
	}
	if err := in.DocumentFields.apply(&doc.DocumentBase, false); err != nil {
		return err
	}
	doc.Method = in.Method
	doc.PaymentCount = in.PaymentCount
	if in.ScheduledDate != nil {
		d := truncateDay(*in.ScheduledDate)
		doc.ScheduledDate = &d
	} else {
		doc.ScheduledDate = nil
	}
	return nil
}
