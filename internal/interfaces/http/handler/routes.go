package handler

import (
	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/interfaces/http/router"
)

// LedgerRoutes returns the route groups of every ledger endpoint, ready to be
// registered on the versioned API
func LedgerRoutes(l *appfinance.Ledger) []router.RouteRegistrar {
	registrars := []router.RouteRegistrar{
		NewDocumentHandler[*finance.ApInvoice, finance.ApInvoiceInput](l.ApInvoices, "/accounts-payable/invoices").Routes(),
		NewDocumentHandler[*finance.ArInvoice, finance.ArInvoiceInput](l.ArInvoices, "/accounts-receivable/invoices").Routes(),
		NewDocumentHandler[*finance.Note, finance.NoteInput](l.ApNotes, "/accounts-payable/notes").Routes(),
		NewDocumentHandler[*finance.Note, finance.NoteInput](l.ArNotes, "/accounts-receivable/notes").Routes(),
		NewDocumentHandler[*finance.Payment, finance.PaymentInput](l.Payments, "/accounts-payable/payments").Routes(),
		NewDocumentHandler[*finance.Receipt, finance.ReceiptInput](l.Receipts, "/accounts-receivable/receipts").Routes(),
		NewDocumentHandler[*finance.PurchaseOrder, finance.PurchaseOrderInput](l.PurchaseOrders, "/accounts-payable/purchase-orders").Routes(),
		NewDocumentHandler[*finance.PaymentBatch, finance.PaymentBatchInput](l.PaymentBatches, "/accounts-payable/payment-batches").Routes(),
		NewDocumentHandler[*finance.JournalEntry, finance.JournalEntryInput](l.JournalEntries, "/general-ledger/journal-entries").Routes(),
		NewRecurringHandler(l.Recurring).Routes(),
		NewSequenceHandler(l.Sequences).Routes(),
	}
	for _, g := range NewClearingHandler(l.Clearing).Routes() {
		registrars = append(registrars, g)
	}
	return registrars
}
