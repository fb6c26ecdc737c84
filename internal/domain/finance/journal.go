package finance

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalSource tells where a journal entry came from
type JournalSource string

const (
	JournalSourceManual    JournalSource = "MANUAL"
	JournalSourceRecurring JournalSource = "RECURRING"
)

// JournalEntry is a general ledger posting made of balanced lines
type JournalEntry struct {
	DocumentBase
	Source     JournalSource      `gorm:"size:16;not null;default:MANUAL"`
	TemplateID *uuid.UUID         `gorm:"type:uuid;index"`
	Lines      []JournalEntryLine `gorm:"foreignKey:JournalEntryID;constraint:OnDelete:CASCADE"`
}

// OpenItemSign is zero: journal entries post straight to the ledger
func (d *JournalEntry) OpenItemSign() int { return 0 }

// TotalDebit sums the debit side
func (d *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// JournalEntryLine is one debit or credit of a journal entry
type JournalEntryLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JournalEntryID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo         int             `gorm:"not null"`
	AccountCode    string          `gorm:"size:32;not null"`
	Description    string          `gorm:"size:500"`
	Debit          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Credit         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

func (JournalEntryLine) TableName() string { return "journal_entry_lines" }

// JournalLineInput is one requested line of a journal entry or recurring template
type JournalLineInput struct {
	AccountCode string          `json:"account_code" validate:"required,max=32"`
	Description string          `json:"description" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit" validate:"dgte0"`
	Credit      decimal.Decimal `json:"credit" validate:"dgte0"`
}

// CheckBalanced validates journal lines: at least two, each with exactly one
// positive side, and total debits equal to total credits within the default
// tolerance. It returns the debit total.
func CheckBalanced(lines []JournalLineInput) (decimal.Decimal, error) {
	if len(lines) < 2 {
		return decimal.Zero, shared.NewValidationError("A journal needs at least two lines")
	}
	debit, credit := decimal.Zero, decimal.Zero
	for i, l := range lines {
		if strings.TrimSpace(l.AccountCode) == "" {
			return decimal.Zero, shared.NewValidationError("Line %d: account code is required", i+1)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return decimal.Zero, shared.NewValidationError("Line %d: amounts cannot be negative", i+1)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return decimal.Zero, shared.NewValidationError("Line %d: exactly one of debit or credit must be set", i+1)
		}
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !withinTolerance(debit.Sub(credit), DefaultTolerance()) {
		return decimal.Zero, shared.NewValidationError(
			"Journal is not balanced. Debits: %s, Credits: %s", FormatAmount(debit), FormatAmount(credit))
	}
	return debit, nil
}

// JournalEntryInput creates or edits a journal entry
type JournalEntryInput struct {
	Currency     string             `json:"currency" validate:"required,iso4217"`
	DocumentDate time.Time          `json:"document_date" validate:"required"`
	Reference    string             `json:"reference" validate:"max=100"`
	Description  string             `json:"description" validate:"max=1000"`
	Lines        []JournalLineInput `json:"lines" validate:"min=2,dive"`
	Source       JournalSource      `json:"-"`
	TemplateID   *uuid.UUID         `json:"-"`
}

func (in JournalEntryInput) Build(base DocumentBase) (*JournalEntry, error) {
	doc := &JournalEntry{DocumentBase: base, Source: JournalSourceManual}
	if in.Source != "" {
		doc.Source = in.Source
	}
	doc.TemplateID = in.TemplateID
	return doc, in.ApplyTo(doc)
}

func (in JournalEntryInput) ApplyTo(doc *JournalEntry) error {
	total, err := CheckBalanced(in.Lines)
	if err != nil {
		return err
	}
	if len(in.Currency) != 3 {
		return shared.NewValidationError("Currency must be a 3-letter ISO code")
	}
	if in.DocumentDate.IsZero() {
		return shared.NewValidationError("Document date is required")
	}
	doc.Currency = strings.ToUpper(in.Currency)
	doc.DocumentDate = truncateDay(in.DocumentDate)
	doc.Reference = strings.TrimSpace(in.Reference)
	doc.Description = strings.TrimSpace(in.Description)
	doc.NetAmount = total
	doc.TaxAmount = decimal.Zero
	doc.GrossAmount = total

	doc.Lines = make([]JournalEntryLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		doc.Lines = append(doc.Lines, JournalEntryLine{
			ID:             uuid.New(),
			JournalEntryID: doc.ID,
			LineNo:         i + 1,
			AccountCode:    strings.TrimSpace(l.AccountCode),
			Description:    l.Description,
			Debit:          l.Debit,
			Credit:         l.Credit,
		})
	}
	return nil
}
