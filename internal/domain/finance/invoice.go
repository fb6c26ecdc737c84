package finance

import (
	"strings"

	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/google/uuid"
)

// ApInvoice is a vendor bill. It can be captured as RECEIVED before someone
// confirms it as a draft.
type ApInvoice struct {
	DocumentBase
	VendorInvoiceNumber string     `gorm:"size:100"`
	PurchaseOrderID     *uuid.UUID `gorm:"type:uuid"`
}

// OpenItemSign is negative: a bill is money owed
func (d *ApInvoice) OpenItemSign() int { return -1 }

// ApInvoiceInput creates or edits a vendor bill
type ApInvoiceInput struct {
	DocumentFields
	VendorInvoiceNumber string     `json:"vendor_invoice_number" validate:"max=100"`
	PurchaseOrderID     *uuid.UUID `json:"purchase_order_id"`
	Received            bool       `json:"received"`
}

func (in ApInvoiceInput) Build(base DocumentBase) (*ApInvoice, error) {
	if in.Received {
		base.Status = lifecycle.StatusReceived
	}
	doc := &ApInvoice{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in ApInvoiceInput) ApplyTo(doc *ApInvoice) error {
	if err := in.DocumentFields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	doc.VendorInvoiceNumber = strings.TrimSpace(in.VendorInvoiceNumber)
	doc.PurchaseOrderID = in.PurchaseOrderID
	return nil
}

// ArInvoice is a customer invoice. Approved invoices may be sent before posting.
type ArInvoice struct {
	DocumentBase
	PaymentTermsDays int    `gorm:"not null;default:0"`
	CustomerPONumber string `gorm:"column:customer_po_number;size:100"`
}

// OpenItemSign is positive: an invoice is money receivable
func (d *ArInvoice) OpenItemSign() int { return 1 }

// ArInvoiceInput creates or edits a customer invoice
type ArInvoiceInput struct {
	DocumentFields
	PaymentTermsDays int    `json:"payment_terms_days" validate:"gte=0,lte=365"`
	CustomerPONumber string `json:"customer_po_number" validate:"max=100"`
}

func (in ArInvoiceInput) Build(base DocumentBase) (*ArInvoice, error) {
	doc := &ArInvoice{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in ArInvoiceInput) ApplyTo(doc *ArInvoice) error {
	fields := in.DocumentFields
	if fields.DueDate == nil && in.PaymentTermsDays > 0 && !fields.DocumentDate.IsZero() {
		due := fields.DocumentDate.AddDate(0, 0, in.PaymentTermsDays)
		fields.DueDate = &due
	}
	if err := fields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	doc.PaymentTermsDays = in.PaymentTermsDays
	doc.CustomerPONumber = strings.TrimSpace(in.CustomerPONumber)
	return nil
}
