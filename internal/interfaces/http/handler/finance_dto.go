package handler

import (
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// AuditResponse is the lifecycle trail of a document
type AuditResponse struct {
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	SubmittedBy     *uuid.UUID `json:"submitted_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID `json:"approved_by,omitempty"`
	ApprovalNotes   string     `json:"approval_notes,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectedBy      *uuid.UUID `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	SentBy          *uuid.UUID `json:"sent_by,omitempty"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	PostedBy        *uuid.UUID `json:"posted_by,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
	VoidedBy        *uuid.UUID `json:"voided_by,omitempty"`
	VoidReason      string     `json:"void_reason,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
}

// DocumentResponse is the wire shape shared by every document kind. Fields
// only some kinds carry live in Details.
type DocumentResponse struct {
	ID               uuid.UUID        `json:"id"`
	Kind             finance.Kind     `json:"kind"`
	Number           string           `json:"number"`
	Status           lifecycle.Status `json:"status"`
	AgencyID         uuid.UUID        `json:"agency_id"`
	SubAccountID     *uuid.UUID       `json:"sub_account_id,omitempty"`
	CounterpartyID   *uuid.UUID       `json:"counterparty_id,omitempty"`
	CounterpartyName string           `json:"counterparty_name,omitempty"`
	Currency         string           `json:"currency"`
	NetAmount        decimal.Decimal  `json:"net_amount"`
	TaxAmount        decimal.Decimal  `json:"tax_amount"`
	GrossAmount      decimal.Decimal  `json:"gross_amount"`
	DocumentDate     string           `json:"document_date"`
	DueDate          *string          `json:"due_date,omitempty"`
	Reference        string           `json:"reference,omitempty"`
	Description      string           `json:"description,omitempty"`
	Version          int              `json:"version"`
	Audit            AuditResponse    `json:"audit"`
	Details          any              `json:"details,omitempty"`
	CreatedBy        uuid.UUID        `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ApInvoiceDetails are the vendor bill fields
type ApInvoiceDetails struct {
	VendorInvoiceNumber string     `json:"vendor_invoice_number,omitempty"`
	PurchaseOrderID     *uuid.UUID `json:"purchase_order_id,omitempty"`
}

// ArInvoiceDetails are the customer invoice fields
type ArInvoiceDetails struct {
	PaymentTermsDays int    `json:"payment_terms_days"`
	CustomerPONumber string `json:"customer_po_number,omitempty"`
}

// NoteDetails are the credit/debit note fields
type NoteDetails struct {
	NoteType         finance.NoteType `json:"note_type"`
	RelatedInvoiceID *uuid.UUID       `json:"related_invoice_id,omitempty"`
	Reason           string           `json:"reason,omitempty"`
}

// MoneyMovementDetails are the payment and receipt fields
type MoneyMovementDetails struct {
	Method        finance.PaymentMethod `json:"method"`
	BankReference string                `json:"bank_reference,omitempty"`
}

// PaymentBatchDetails are the payment batch fields
type PaymentBatchDetails struct {
	Method        finance.PaymentMethod `json:"method"`
	ScheduledDate *string               `json:"scheduled_date,omitempty"`
	PaymentCount  int                   `json:"payment_count"`
}

// PurchaseOrderDetails are the purchase order fields
type PurchaseOrderDetails struct {
	ExpectedDate *string `json:"expected_date,omitempty"`
	ShipTo       string  `json:"ship_to,omitempty"`
}

// JournalLineResponse is one debit or credit line
type JournalLineResponse struct {
	LineNo      int             `json:"line_no"`
	AccountCode string          `json:"account_code"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// JournalDetails are the journal entry fields
type JournalDetails struct {
	Source     finance.JournalSource `json:"source"`
	TemplateID *uuid.UUID            `json:"template_id,omitempty"`
	Lines      []JournalLineResponse `json:"lines"`
}

// toDocumentResponse converts any document kind to its wire shape
func toDocumentResponse(doc finance.Document) DocumentResponse {
	b := doc.Base()
	resp := DocumentResponse{
		ID:               b.ID,
		Kind:             b.Kind,
		Number:           b.Number,
		Status:           b.Status,
		AgencyID:         b.AgencyID,
		SubAccountID:     b.SubAccountID,
		CounterpartyID:   b.CounterpartyID,
		CounterpartyName: b.CounterpartyName,
		Currency:         b.Currency,
		NetAmount:        b.NetAmount,
		TaxAmount:        b.TaxAmount,
		GrossAmount:      b.GrossAmount,
		DocumentDate:     formatDate(b.DocumentDate),
		DueDate:          formatDatePtr(b.DueDate),
		Reference:        b.Reference,
		Description:      b.Description,
		Version:          b.Version,
		Audit:            toAuditResponse(&b.AuditStamps),
		CreatedBy:        b.CreatedBy,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}

	switch d := doc.(type) {
	case *finance.ApInvoice:
		resp.Details = ApInvoiceDetails{VendorInvoiceNumber: d.VendorInvoiceNumber, PurchaseOrderID: d.PurchaseOrderID}
	case *finance.ArInvoice:
		resp.Details = ArInvoiceDetails{PaymentTermsDays: d.PaymentTermsDays, CustomerPONumber: d.CustomerPONumber}
	case *finance.Note:
		resp.Details = NoteDetails{NoteType: d.NoteType, RelatedInvoiceID: d.RelatedInvoiceID, Reason: d.Reason}
	case *finance.Payment:
		resp.Details = MoneyMovementDetails{Method: d.Method, BankReference: d.BankReference}
	case *finance.Receipt:
		resp.Details = MoneyMovementDetails{Method: d.Method, BankReference: d.BankReference}
	case *finance.PaymentBatch:
		resp.Details = PaymentBatchDetails{
			Method:        d.Method,
			ScheduledDate: formatDatePtr(d.ScheduledDate),
			PaymentCount:  d.PaymentCount,
		}
	case *finance.PurchaseOrder:
		resp.Details = PurchaseOrderDetails{ExpectedDate: formatDatePtr(d.ExpectedDate), ShipTo: d.ShipTo}
	case *finance.JournalEntry:
		resp.Details = JournalDetails{
			Source:     d.Source,
			TemplateID: d.TemplateID,
			Lines: lo.Map(d.Lines, func(l finance.JournalEntryLine, _ int) JournalLineResponse {
				return JournalLineResponse{
					LineNo:      l.LineNo,
					AccountCode: l.AccountCode,
					Description: l.Description,
					Debit:       l.Debit,
					Credit:      l.Credit,
				}
			}),
		}
	}
	return resp
}

func toAuditResponse(s *lifecycle.AuditStamps) AuditResponse {
	return AuditResponse{
		SubmittedAt:     s.SubmittedAt,
		SubmittedBy:     s.SubmittedBy,
		ApprovedAt:      s.ApprovedAt,
		ApprovedBy:      s.ApprovedBy,
		ApprovalNotes:   s.ApprovalNotes,
		RejectedAt:      s.RejectedAt,
		RejectedBy:      s.RejectedBy,
		RejectionReason: s.RejectionReason,
		SentAt:          s.SentAt,
		SentBy:          s.SentBy,
		PostedAt:        s.PostedAt,
		PostedBy:        s.PostedBy,
		VoidedAt:        s.VoidedAt,
		VoidedBy:        s.VoidedBy,
		VoidReason:      s.VoidReason,
		SettledAt:       s.SettledAt,
	}
}

// OpenItemResponse is the outstanding balance of one posted document
type OpenItemResponse struct {
	ID              uuid.UUID              `json:"id"`
	DocumentKind    finance.Kind           `json:"document_kind"`
	DocumentID      uuid.UUID              `json:"document_id"`
	DocumentNumber  string                 `json:"document_number"`
	ControlAccount  finance.ControlAccount `json:"control_account"`
	CounterpartyID  *uuid.UUID             `json:"counterparty_id,omitempty"`
	Currency        string                 `json:"currency"`
	OriginalAmount  decimal.Decimal        `json:"original_amount"`
	RemainingAmount decimal.Decimal        `json:"remaining_amount"`
	Status          finance.OpenItemStatus `json:"status"`
	DocumentDate    string                 `json:"document_date"`
	DueDate         *string                `json:"due_date,omitempty"`
	LastClearingID  *uuid.UUID             `json:"last_clearing_id,omitempty"`
	ClearedAt       *time.Time             `json:"cleared_at,omitempty"`
	Version         int                    `json:"version"`
}

func toOpenItemResponse(o *finance.OpenItem) OpenItemResponse {
	return OpenItemResponse{
		ID:              o.ID,
		DocumentKind:    o.DocumentKind,
		DocumentID:      o.DocumentID,
		DocumentNumber:  o.DocumentNumber,
		ControlAccount:  o.ControlAccount,
		CounterpartyID:  o.CounterpartyID,
		Currency:        o.Currency,
		OriginalAmount:  o.OriginalAmount,
		RemainingAmount: o.RemainingAmount,
		Status:          o.Status,
		DocumentDate:    formatDate(o.DocumentDate),
		DueDate:         formatDatePtr(o.DueDate),
		LastClearingID:  o.LastClearingID,
		ClearedAt:       o.ClearedAt,
		Version:         o.Version,
	}
}

// ClearingLineResponse is one open item's share of a clearing
type ClearingLineResponse struct {
	OpenItemID      uuid.UUID       `json:"open_item_id"`
	DocumentKind    finance.Kind    `json:"document_kind"`
	DocumentID      uuid.UUID       `json:"document_id"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingBefore decimal.Decimal `json:"remaining_before"`
	RemainingAfter  decimal.Decimal `json:"remaining_after"`
}

// ClearingResponse is a committed clearing
type ClearingResponse struct {
	ID             uuid.UUID              `json:"id"`
	Number         string                 `json:"number"`
	ControlAccount finance.ControlAccount `json:"control_account"`
	Currency       string                 `json:"currency"`
	ClearingDate   string                 `json:"clearing_date"`
	TotalAmount    decimal.Decimal        `json:"total_amount"`
	Status         finance.ClearingStatus `json:"status"`
	Notes          string                 `json:"notes,omitempty"`
	ReversedAt     *time.Time             `json:"reversed_at,omitempty"`
	ReversedBy     *uuid.UUID             `json:"reversed_by,omitempty"`
	ReversalReason string                 `json:"reversal_reason,omitempty"`
	Lines          []ClearingLineResponse `json:"lines"`
	CreatedBy      uuid.UUID              `json:"created_by"`
	CreatedAt      time.Time              `json:"created_at"`
}

func toClearingResponse(c *finance.Clearing) ClearingResponse {
	return ClearingResponse{
		ID:             c.ID,
		Number:         c.Number,
		ControlAccount: c.ControlAccount,
		Currency:       c.Currency,
		ClearingDate:   formatDate(c.ClearingDate),
		TotalAmount:    c.TotalAmount,
		Status:         c.Status,
		Notes:          c.Notes,
		ReversedAt:     c.ReversedAt,
		ReversedBy:     c.ReversedBy,
		ReversalReason: c.ReversalReason,
		Lines: lo.Map(c.Lines, func(l finance.ClearingLine, _ int) ClearingLineResponse {
			return ClearingLineResponse{
				OpenItemID:      l.OpenItemID,
				DocumentKind:    l.DocumentKind,
				DocumentID:      l.DocumentID,
				Amount:          l.Amount,
				RemainingBefore: l.RemainingBefore,
				RemainingAfter:  l.RemainingAfter,
			}
		}),
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
	}
}

// MatchSuggestionResponse is a proposed pair of offsetting open items
type MatchSuggestionResponse struct {
	ControlAccount finance.ControlAccount `json:"control_account"`
	Currency       string                 `json:"currency"`
	Amount         decimal.Decimal        `json:"amount"`
	Debit          OpenItemResponse       `json:"debit"`
	Credit         OpenItemResponse       `json:"credit"`
}

func toMatchSuggestionResponse(s finance.MatchSuggestion) MatchSuggestionResponse {
	return MatchSuggestionResponse{
		ControlAccount: s.ControlAccount,
		Currency:       s.Currency,
		Amount:         s.Debit.RemainingAmount.Abs(),
		Debit:          toOpenItemResponse(s.Debit),
		Credit:         toOpenItemResponse(s.Credit),
	}
}

// TemplateResponse is a recurring journal template
type TemplateResponse struct {
	ID           uuid.UUID              `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Currency     string                 `json:"currency"`
	Frequency    finance.Frequency      `json:"frequency"`
	StartDate    string                 `json:"start_date"`
	EndDate      *string                `json:"end_date,omitempty"`
	DayOfMonth   *int                   `json:"day_of_month,omitempty"`
	DayOfWeek    *int                   `json:"day_of_week,omitempty"`
	AutoPost     bool                   `json:"auto_post"`
	Status       finance.TemplateStatus `json:"status"`
	NextRunDate  *string                `json:"next_run_date,omitempty"`
	LastRunDate  *string                `json:"last_run_date,omitempty"`
	RunCount     int                    `json:"run_count"`
	Lines        []JournalLineResponse  `json:"lines"`
	AgencyID     uuid.UUID              `json:"agency_id"`
	SubAccountID *uuid.UUID             `json:"sub_account_id,omitempty"`
	Version      int                    `json:"version"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func toTemplateResponse(t *finance.RecurringJournalTemplate) TemplateResponse {
	return TemplateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Currency:    t.Currency,
		Frequency:   t.Frequency,
		StartDate:   formatDate(t.StartDate),
		EndDate:     formatDatePtr(t.EndDate),
		DayOfMonth:  t.DayOfMonth,
		DayOfWeek:   t.DayOfWeek,
		AutoPost:    t.AutoPost,
		Status:      t.Status,
		NextRunDate: formatDatePtr(t.NextRunDate),
		LastRunDate: formatDatePtr(t.LastRunDate),
		RunCount:    t.RunCount,
		Lines: lo.Map(t.Lines, func(l finance.RecurringJournalLine, _ int) JournalLineResponse {
			return JournalLineResponse{
				LineNo:      l.LineNo,
				AccountCode: l.AccountCode,
				Description: l.Description,
				Debit:       l.Debit,
				Credit:      l.Credit,
			}
		}),
		AgencyID:     t.AgencyID,
		SubAccountID: t.SubAccountID,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// ExecutionResponse is one recorded template run
type ExecutionResponse struct {
	ID             uuid.UUID `json:"id"`
	TemplateID     uuid.UUID `json:"template_id"`
	JournalEntryID uuid.UUID `json:"journal_entry_id"`
	JournalNumber  string    `json:"journal_number"`
	PostingDate    string    `json:"posting_date"`
	RunNumber      int       `json:"run_number"`
	AutoPosted     bool      `json:"auto_posted"`
	ExecutedBy     uuid.UUID `json:"executed_by"`
	ExecutedAt     time.Time `json:"executed_at"`
}

func toExecutionResponse(e *finance.RecurringExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:             e.ID,
		TemplateID:     e.TemplateID,
		JournalEntryID: e.JournalEntryID,
		JournalNumber:  e.JournalNumber,
		PostingDate:    formatDate(e.PostingDate),
		RunNumber:      e.RunNumber,
		AutoPosted:     e.AutoPosted,
		ExecutedBy:     e.ExecutedBy,
		ExecutedAt:     e.ExecutedAt,
	}
}

// ExecutionResultResponse describes what one manual run produced
type ExecutionResultResponse struct {
	Template    TemplateResponse  `json:"template"`
	Journal     DocumentResponse  `json:"journal"`
	Execution   ExecutionResponse `json:"execution"`
	NextRunDate *string           `json:"next_run_date,omitempty"`
}

func toExecutionResultResponse(r *appfinance.ExecutionResult) ExecutionResultResponse {
	return ExecutionResultResponse{
		Template:    toTemplateResponse(r.Template),
		Journal:     toDocumentResponse(r.Journal),
		Execution:   toExecutionResponse(r.Execution),
		NextRunDate: formatDatePtr(r.NextRunDate),
	}
}

// AllocationResponse is one issued number
type AllocationResponse struct {
	Number string `json:"number"`
	Value  int64  `json:"value"`
	Bucket string `json:"bucket"`
}

func toAllocationResponse(a sequence.Allocation) AllocationResponse {
	return AllocationResponse{Number: a.Number, Value: a.Value, Bucket: a.Bucket}
}
