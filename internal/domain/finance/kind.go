package finance

import (
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/sequence"
)

// Kind tags a concrete financial document type
type Kind string

const (
	KindApInvoice     Kind = "AP_INVOICE"
	KindArInvoice     Kind = "AR_INVOICE"
	KindApNote        Kind = "AP_NOTE"
	KindArNote        Kind = "AR_NOTE"
	KindPayment       Kind = "PAYMENT"
	KindReceipt       Kind = "RECEIPT"
	KindPurchaseOrder Kind = "PURCHASE_ORDER"
	KindPaymentBatch  Kind = "PAYMENT_BATCH"
	KindJournalEntry  Kind = "JOURNAL_ENTRY"
)

// AllKinds returns every document kind
func AllKinds() []Kind {
	return []Kind{
		KindApInvoice, KindArInvoice, KindApNote, KindArNote, KindPayment,
		KindReceipt, KindPurchaseOrder, KindPaymentBatch, KindJournalEntry,
	}
}

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

// ControlAccount is the ledger account whose balance is backed by open items
type ControlAccount string

const (
	ControlAccountPayable    ControlAccount = "ACCOUNTS_PAYABLE"
	ControlAccountReceivable ControlAccount = "ACCOUNTS_RECEIVABLE"
)

// IsValid checks if the control account is known
func (c ControlAccount) IsValid() bool {
	return c == ControlAccountPayable || c == ControlAccountReceivable
}

// KindSpec describes how one document kind is numbered, stored and guarded
type KindSpec struct {
	Kind             Kind
	Label            string
	Table            string
	RangeKey         string
	Format           string
	FallbackPrefix   string
	ResetRule        sequence.ResetRule
	PermissionPrefix string
	Control          ControlAccount
	SettledStatus    lifecycle.Status
	machine          *lifecycle.Machine
}

// Machine returns the lifecycle machine for the kind
func (s KindSpec) Machine() *lifecycle.Machine {
	return s.machine
}

// HasOpenItem reports whether posting the kind creates an open item
func (s KindSpec) HasOpenItem() bool {
	return s.Control != ""
}

// SequenceRequest builds an allocator request for this kind. An empty format
// uses the kind default.
func (s KindSpec) SequenceRequest(format string) sequence.Request {
	if format == "" {
		format = s.Format
	}
	return sequence.Request{
		RangeKey:       s.RangeKey,
		Format:         format,
		FallbackPrefix: s.FallbackPrefix,
		ResetRule:      s.ResetRule,
	}
}

var kindSpecs = map[Kind]KindSpec{}

func register(spec KindSpec, table *lifecycle.Table) {
	spec.machine = lifecycle.NewMachine(spec.Label, spec.PermissionPrefix, table)
	kindSpecs[spec.Kind] = spec
}

func init() {
	register(KindSpec{
		Kind: KindApInvoice, Label: "vendor invoice", Table: "ap_invoices",
		RangeKey: "ap_invoice", Format: "BILL-{YYYY}-{######}", FallbackPrefix: "BILL", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_payable.invoices", Control: ControlAccountPayable, SettledStatus: lifecycle.StatusPaid,
	}, lifecycle.StandardTable(lifecycle.StatusPaid).WithReceivedIntake())

	register(KindSpec{
		Kind: KindArInvoice, Label: "customer invoice", Table: "ar_invoices",
		RangeKey: "ar_invoice", Format: "INV-{YYYY}-{######}", FallbackPrefix: "INV", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_receivable.invoices", Control: ControlAccountReceivable, SettledStatus: lifecycle.StatusPaid,
	}, lifecycle.StandardTable(lifecycle.StatusPaid).WithSend())

	register(KindSpec{
		Kind: KindApNote, Label: "vendor note", Table: "ap_notes",
		RangeKey: "ap_note", Format: "VCN-{YYYY}-{######}", FallbackPrefix: "VCN", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_payable.notes", Control: ControlAccountPayable, SettledStatus: lifecycle.StatusApplied,
	}, lifecycle.StandardTable(lifecycle.StatusApplied))

	register(KindSpec{
		Kind: KindArNote, Label: "customer note", Table: "ar_notes",
		RangeKey: "ar_note", Format: "CN-{YYYY}-{######}", FallbackPrefix: "CN", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_receivable.notes", Control: ControlAccountReceivable, SettledStatus: lifecycle.StatusApplied,
	}, lifecycle.StandardTable(lifecycle.StatusApplied))

	register(KindSpec{
		Kind: KindPayment, Label: "payment", Table: "payments",
		RangeKey: "payment", Format: "PAY-{YYYY}-{######}", FallbackPrefix: "PAY", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_payable.payments", Control: ControlAccountPayable, SettledStatus: lifecycle.StatusCleared,
	}, lifecycle.StandardTable(lifecycle.StatusCleared))

	register(KindSpec{
		Kind: KindReceipt, Label: "receipt", Table: "receipts",
		RangeKey: "receipt", Format: "RCT-{YYYY}-{######}", FallbackPrefix: "RCT", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_receivable.receipts", Control: ControlAccountReceivable, SettledStatus: lifecycle.StatusCleared,
	}, lifecycle.StandardTable(lifecycle.StatusCleared))

	register(KindSpec{
		Kind: KindPurchaseOrder, Label: "purchase order", Table: "purchase_orders",
		RangeKey: "purchase_order", Format: "PO-{YYYY}-{######}", FallbackPrefix: "PO", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "accounts_payable.purchase_orders",
	}, lifecycle.StandardTable(""))

	register(KindSpec{
		Kind: KindPaymentBatch, Label: "payment batch", Table: "payment_batches",
		RangeKey: "payment_batch", Format: "PB-{YYYY}{MM}-{####}", FallbackPrefix: "PB", ResetRule: sequence.ResetMonthly,
		PermissionPrefix: "accounts_payable.payment_batches", Control: ControlAccountPayable, SettledStatus: lifecycle.StatusCleared,
	}, lifecycle.StandardTable(lifecycle.StatusCleared))

	register(KindSpec{
		Kind: KindJournalEntry, Label: "journal entry", Table: "journal_entries",
		RangeKey: "journal_entry", Format: "JE-{YYYY}-{######}", FallbackPrefix: "JE", ResetRule: sequence.ResetYearly,
		PermissionPrefix: "general_ledger.journal_entries",
	}, lifecycle.StandardTable(""))
}

// SpecFor returns the spec of kind
func SpecFor(kind Kind) (KindSpec, bool) {
	spec, ok := kindSpecs[kind]
	return spec, ok
}

// MustSpec returns the spec of kind and panics on unknown kinds
func MustSpec(kind Kind) KindSpec {
	spec, ok := kindSpecs[kind]
	if !ok {
		panic("finance: unknown document kind " + string(kind))
	}
	return spec
}

// ClearingSequence is the numbering used for clearing records
var ClearingSequence = sequence.Request{
	RangeKey:       "clearing",
	Format:         "CLR-{YYYY}-{######}",
	FallbackPrefix: "CLR",
	ResetRule:      sequence.ResetYearly,
}

// RecurringJournalSequence numbers journal entries spawned by recurring
// templates, kept apart from manual journal numbers
var RecurringJournalSequence = sequence.Request{
	RangeKey:       "recurring_journal",
	Format:         "RJE-{YYYY}-{######}",
	FallbackPrefix: "RJE",
	ResetRule:      sequence.ResetYearly,
}
