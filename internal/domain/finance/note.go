package finance

import (
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// NoteType distinguishes credit and debit notes
type NoteType string

const (
	NoteTypeCredit NoteType = "CREDIT"
	NoteTypeDebit  NoteType = "DEBIT"
)

// IsValid checks if the note type is known
func (t NoteType) IsValid() bool {
	return t == NoteTypeCredit || t == NoteTypeDebit
}

// Note is a credit or debit note on either the payable or receivable side.
// The kind (AP_NOTE or AR_NOTE) decides which side.
type Note struct {
	DocumentBase
	NoteType         NoteType   `gorm:"size:16;not null"`
	RelatedInvoiceID *uuid.UUID `gorm:"type:uuid"`
	Reason           string     `gorm:"size:500"`
}

// OpenItemSign follows the control account: a customer credit note reduces
// what the customer owes, a vendor credit note reduces what we owe
func (d *Note) OpenItemSign() int {
	sign := 1
	if d.NoteType == NoteTypeCredit {
		sign = -1
	}
	if d.Kind == KindApNote {
		sign = -sign
	}
	return sign
}

// NoteInput creates or edits a note
type NoteInput struct {
	DocumentFields
	NoteType         NoteType   `json:"note_type" validate:"required,oneof=CREDIT DEBIT"`
	RelatedInvoiceID *uuid.UUID `json:"related_invoice_id"`
	Reason           string     `json:"reason" validate:"max=500"`
}

func (in NoteInput) Build(base DocumentBase) (*Note, error) {
	doc := &Note{DocumentBase: base}
	return doc, in.ApplyTo(doc)
}

func (in NoteInput) ApplyTo(doc *Note) error {
	if !in.NoteType.IsValid() {
		return shared.NewValidationError("Note type must be CREDIT or DEBIT")
	}
	if err := in.DocumentFields.apply(&doc.DocumentBase, true); err != nil {
		return err
	}
	doc.NoteType = in.NoteType
	doc.RelatedInvoiceID = in.RelatedInvoiceID
	doc.Reason = in.Reason
	return nil
}
