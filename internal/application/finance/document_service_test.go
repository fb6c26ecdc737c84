package finance

import (
	"testing"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentService_CreateNumbersPerScope(t *testing.T) {
	f := newLedgerFixture(t)
	scope := shared.AgencyScope(uuid.New())
	ctx := asUser(scope)

	first, err := f.arInvoices.Create(ctx, arInvoiceInput("100.00"))
	require.NoError(t, err)
	second, err := f.arInvoices.Create(ctx, arInvoiceInput("50.00"))
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-000001", first.Number)
	assert.Equal(t, "INV-2025-000002", second.Number)
	assert.Equal(t, lifecycle.StatusDraft, first.Status)
	assert.Equal(t, scope.AgencyID, first.AgencyID)
	assert.True(t, first.GrossAmount.Equal(amount("100")))

	other, err := f.arInvoices.Create(asUser(shared.AgencyScope(uuid.New())), arInvoiceInput("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-000001", other.Number)

	assert.Contains(t, f.events.published(), finance.EventDocumentPrefix+"create")
}

func TestDocumentService_CreateValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	in := arInvoiceInput("100.00")
	in.Currency = "US"
	_, err := f.arInvoices.Create(ctx, in)
	requireCode(t, err, shared.CodeValidation)

	in = arInvoiceInput("-1")
	_, err = f.arInvoices.Create(ctx, in)
	requireCode(t, err, shared.CodeValidation)

	in = arInvoiceInput("100.00")
	in.CounterpartyID = nil
	_, err = f.arInvoices.Create(ctx, in)
	requireCode(t, err, shared.CodeValidation)

	// failed creates consume no numbers
	doc, err := f.arInvoices.Create(ctx, arInvoiceInput("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-000001", doc.Number)
}

func TestDocumentService_ReceivedIntake(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	vendor := uuid.New()
	bill, err := f.apInvoices.Create(ctx, finance.ApInvoiceInput{
		DocumentFields: finance.DocumentFields{
			CounterpartyID: &vendor,
			Currency:       "EUR",
			NetAmount:      amount("80"),
			TaxAmount:      amount("20"),
			DocumentDate:   day("2025-02-01"),
		},
		VendorInvoiceNumber: "V-991",
		Received:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusReceived, bill.Status)
	assert.Equal(t, "BILL-2025-000001", bill.Number)

	bill, err = f.apInvoices.Submit(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPendingApproval, bill.Status)
}

func TestDocumentService_Lifecycle(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	doc, err := f.arInvoices.Create(ctx, arInvoiceInput("250.00"))
	require.NoError(t, err)

	_, err = f.arInvoices.Post(ctx, doc.ID)
	requireCode(t, err, shared.CodeInvalidTransition)

	doc, err = f.arInvoices.Submit(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPendingApproval, doc.Status)

	_, err = f.arInvoices.Update(ctx, doc.ID, arInvoiceInput("300.00"))
	requireCode(t, err, shared.CodeInvalidTransition)

	doc, err = f.arInvoices.Approve(ctx, doc.ID, "looks right")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusApproved, doc.Status)
	require.NotNil(t, doc.ApprovedBy)
	assert.Equal(t, "looks right", doc.ApprovalNotes)

	doc, err = f.arInvoices.Send(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusSent, doc.Status)

	doc, err = f.arInvoices.Post(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPosted, doc.Status)
	assert.NotNil(t, doc.PostedAt)

	item := f.openItemOf(t, finance.KindArInvoice, doc.ID)
	assert.Equal(t, finance.ControlAccountReceivable, item.ControlAccount)
	assert.Equal(t, finance.OpenItemStatusOpen, item.Status)
	assert.True(t, item.RemainingAmount.Equal(amount("250")))
	assert.Equal(t, doc.Number, item.DocumentNumber)
}

func TestDocumentService_RejectNeedsReason(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	doc, err := f.arInvoices.Create(ctx, arInvoiceInput("10"))
	require.NoError(t, err)
	_, err = f.arInvoices.Submit(ctx, doc.ID)
	require.NoError(t, err)

	_, err = f.arInvoices.Reject(ctx, doc.ID, "")
	requireCode(t, err, shared.CodeValidation)

	doc, err = f.arInvoices.Reject(ctx, doc.ID, "wrong customer")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusDraft, doc.Status)
	assert.Equal(t, "wrong customer", doc.RejectionReason)

	doc, err = f.arInvoices.Update(ctx, doc.ID, arInvoiceInput("12"))
	require.NoError(t, err)
	assert.True(t, doc.GrossAmount.Equal(amount("12")))
}

func TestDocumentService_SystemActionsAreNotPublic(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))
	doc := f.postedInvoice(t, ctx, "10")

	_, err := f.arInvoices.Transition(ctx, doc.ID, lifecycle.ActionSettle, "")
	requireCode(t, err, shared.CodeInvalidTransition)
}

func TestDocumentService_UnsupportedAction(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))
	doc, err := f.receipts.Create(ctx, receiptInput("10"))
	require.NoError(t, err)
	_, err = f.receipts.Submit(ctx, doc.ID)
	require.NoError(t, err)
	_, err = f.receipts.Approve(ctx, doc.ID, "")
	require.NoError(t, err)

	_, err = f.receipts.Send(ctx, doc.ID)
	requireCode(t, err, shared.CodeInvalidTransition)
}

func TestDocumentService_ScopeIsolation(t *testing.T) {
	f := newLedgerFixture(t)
	agency := uuid.New()
	owner := asUser(shared.SubAccountScope(agency, uuid.New()))
	doc, err := f.arInvoices.Create(owner, arInvoiceInput("10"))
	require.NoError(t, err)

	sibling := asUser(shared.SubAccountScope(agency, uuid.New()))
	_, err = f.arInvoices.Get(sibling, doc.ID)
	requireCode(t, err, shared.CodeScopeMismatch)
	_, err = f.arInvoices.Submit(sibling, doc.ID)
	requireCode(t, err, shared.CodeScopeMismatch)

	_, err = f.arInvoices.Get(owner, uuid.New())
	requireCode(t, err, shared.CodeNotFound)

	page, err := f.arInvoices.List(sibling, finance.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = f.arInvoices.List(owner, finance.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Total)
}

func TestDocumentService_PermissionDenied(t *testing.T) {
	f := newLedgerFixture(t, "accounts_receivable.invoices.approve")
	ctx := asUser(shared.AgencyScope(uuid.New()))

	doc, err := f.arInvoices.Create(ctx, arInvoiceInput("10"))
	require.NoError(t, err)
	_, err = f.arInvoices.Submit(ctx, doc.ID)
	require.NoError(t, err)

	_, err = f.arInvoices.Approve(ctx, doc.ID, "")
	requireCode(t, err, shared.CodePermissionDenied)

	got, err := f.arInvoices.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPendingApproval, got.Status)
}

func TestDocumentService_Unauthenticated(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.arInvoices.Create(t.Context(), arInvoiceInput("10"))
	requireCode(t, err, shared.CodeUnauthorized)
}

func TestDocumentService_VoidPosted(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	t.Run("untouched open item is voided with the document", func(t *testing.T) {
		doc := f.postedInvoice(t, ctx, "40")
		_, err := f.arInvoices.Void(ctx, doc.ID, "")
		requireCode(t, err, shared.CodeValidation)

		doc, err = f.arInvoices.Void(ctx, doc.ID, "duplicate")
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusVoid, doc.Status)

		item := f.openItemOf(t, finance.KindArInvoice, doc.ID)
		assert.Equal(t, finance.OpenItemStatusVoided, item.Status)
		assert.True(t, item.RemainingAmount.IsZero())
	})

	t.Run("partially cleared document cannot be voided", func(t *testing.T) {
		invoice := f.postedInvoice(t, ctx, "100")
		receipt := f.postedReceipt(t, ctx, "40")
		_, err := f.clearing.Clear(ctx, finance.ClearingInput{Group: finance.ClearingGroup{Members: []finance.ClearingMember{
			{OpenItemID: f.openItemOf(t, finance.KindArInvoice, invoice.ID).ID, Amount: amount("40")},
			{OpenItemID: f.openItemOf(t, finance.KindReceipt, receipt.ID).ID, Amount: amount("-40")},
		}}})
		require.NoError(t, err)

		_, err = f.arInvoices.Void(ctx, invoice.ID, "changed my mind")
		requireCode(t, err, shared.CodeInvalidTransition)

		got, err := f.arInvoices.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusPosted, got.Status)
	})
}

func TestDocumentService_JournalEntryHasNoOpenItem(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	unbalanced := journalInput("100")
	unbalanced.Lines[1].Credit = amount("90")
	_, err := f.journals.Create(ctx, unbalanced)
	requireCode(t, err, shared.CodeValidation)

	doc, err := f.journals.Create(ctx, journalInput("100"))
	require.NoError(t, err)
	assert.Equal(t, "JE-2025-000001", doc.Number)
	assert.Equal(t, finance.JournalSourceManual, doc.Source)
	assert.Len(t, doc.Lines, 2)

	_, err = f.journals.Submit(ctx, doc.ID)
	require.NoError(t, err)
	_, err = f.journals.Approve(ctx, doc.ID, "")
	require.NoError(t, err)
	doc, err = f.journals.Post(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPosted, doc.Status)

	_, err = f.openItems.FindByDocument(t.Context(), finance.KindJournalEntry, doc.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
