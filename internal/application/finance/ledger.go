package finance

import (
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/sequence"
)

// Repositories are the stores the ledger services run on
type Repositories struct {
	ApInvoices     finance.DocumentRepository[*finance.ApInvoice]
	ArInvoices     finance.DocumentRepository[*finance.ArInvoice]
	ApNotes        finance.DocumentRepository[*finance.Note]
	ArNotes        finance.DocumentRepository[*finance.Note]
	Payments       finance.DocumentRepository[*finance.Payment]
	Receipts       finance.DocumentRepository[*finance.Receipt]
	PurchaseOrders finance.DocumentRepository[*finance.PurchaseOrder]
	PaymentBatches finance.DocumentRepository[*finance.PaymentBatch]
	JournalEntries finance.DocumentRepository[*finance.JournalEntry]
	OpenItems      finance.OpenItemRepository
	Clearings      finance.ClearingRepository
	Templates      finance.RecurringTemplateRepository
	Counters       sequence.CounterStore
}

// Ledger holds one service per document kind plus the clearing, recurring
// and sequence services
type Ledger struct {
	ApInvoices     *DocumentService[*finance.ApInvoice]
	ArInvoices     *DocumentService[*finance.ArInvoice]
	ApNotes        *DocumentService[*finance.Note]
	ArNotes        *DocumentService[*finance.Note]
	Payments       *DocumentService[*finance.Payment]
	Receipts       *DocumentService[*finance.Receipt]
	PurchaseOrders *DocumentService[*finance.PurchaseOrder]
	PaymentBatches *DocumentService[*finance.PaymentBatch]
	JournalEntries *DocumentService[*finance.JournalEntry]

	Settlements *SettlementRegistry
	Clearing    *ClearingService
	Recurring   *RecurringService
	Sequences   *SequenceService
}

// NewLedger wires every finance service over repos. The allocator is built
// from the counter store when infra does not carry one.
func NewLedger(repos Repositories, infra Infra, opts ...ServiceOption) *Ledger {
	if infra.Allocator == nil {
		infra.Allocator = sequence.NewAllocator(repos.Counters)
	}
	infra = infra.with(opts)

	l := &Ledger{
		ApInvoices:     NewDocumentService(finance.KindApInvoice, repos.ApInvoices, repos.OpenItems, infra),
		ArInvoices:     NewDocumentService(finance.KindArInvoice, repos.ArInvoices, repos.OpenItems, infra),
		ApNotes:        NewDocumentService(finance.KindApNote, repos.ApNotes, repos.OpenItems, infra),
		ArNotes:        NewDocumentService(finance.KindArNote, repos.ArNotes, repos.OpenItems, infra),
		Payments:       NewDocumentService(finance.KindPayment, repos.Payments, repos.OpenItems, infra),
		Receipts:       NewDocumentService(finance.KindReceipt, repos.Receipts, repos.OpenItems, infra),
		PurchaseOrders: NewDocumentService(finance.KindPurchaseOrder, repos.PurchaseOrders, repos.OpenItems, infra),
		PaymentBatches: NewDocumentService(finance.KindPaymentBatch, repos.PaymentBatches, repos.OpenItems, infra),
		JournalEntries: NewDocumentService(finance.KindJournalEntry, repos.JournalEntries, repos.OpenItems, infra),
		Sequences:      NewSequenceService(repos.Counters, infra),
	}

	l.Settlements = NewSettlementRegistry(
		l.ApInvoices, l.ArInvoices, l.ApNotes, l.ArNotes, l.Payments,
		l.Receipts, l.PurchaseOrders, l.PaymentBatches, l.JournalEntries,
	)
	l.Clearing = NewClearingService(repos.OpenItems, repos.Clearings, l.Settlements, infra)
	l.Recurring = NewRecurringService(repos.Templates, l.JournalEntries, infra)
	return l
}
