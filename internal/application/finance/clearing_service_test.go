package finance

import (
	"testing"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func group(members ...finance.ClearingMember) finance.ClearingInput {
	return finance.ClearingInput{Group: finance.ClearingGroup{Members: members}}
}

func member(item *finance.OpenItem, value string) finance.ClearingMember {
	return finance.ClearingMember{OpenItemID: item.ID, Amount: amount(value)}
}

func TestClearingService_FullClearingSettlesDocuments(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, ctx, "100")
	invoiceItem := f.openItemOf(t, finance.KindArInvoice, invoice.ID)
	receiptItem := f.openItemOf(t, finance.KindReceipt, receipt.ID)
	assert.True(t, receiptItem.RemainingAmount.Equal(amount("-100")))

	in := group(member(invoiceItem, "100"), member(receiptItem, "-100"))
	in.Notes = "March settlement"
	c, err := f.clearing.Clear(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "CLR-2025-000001", c.Number)
	assert.Equal(t, finance.ClearingStatusActive, c.Status)
	assert.Equal(t, finance.ControlAccountReceivable, c.ControlAccount)
	assert.Equal(t, "USD", c.Currency)
	assert.True(t, c.TotalAmount.Equal(amount("100")))
	assert.Equal(t, "March settlement", c.Notes)
	assert.Len(t, c.Lines, 2)

	for _, item := range []*finance.OpenItem{
		f.openItemOf(t, finance.KindArInvoice, invoice.ID),
		f.openItemOf(t, finance.KindReceipt, receipt.ID),
	} {
		assert.Equal(t, finance.OpenItemStatusCleared, item.Status)
		assert.True(t, item.RemainingAmount.IsZero())
		assert.NotNil(t, item.ClearedAt)
	}

	gotInvoice, err := f.arInvoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPaid, gotInvoice.Status)
	gotReceipt, err := f.receipts.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCleared, gotReceipt.Status)

	published := f.events.published()
	assert.Contains(t, published, finance.EventOpenItemsCleared)
	assert.Contains(t, published, finance.EventDocumentPrefix+string(lifecycle.ActionSettle))
}

func TestClearingService_PartialClearing(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, ctx, "40")
	invoiceItem := f.openItemOf(t, finance.KindArInvoice, invoice.ID)
	receiptItem := f.openItemOf(t, finance.KindReceipt, receipt.ID)

	_, err := f.clearing.Clear(ctx, group(member(invoiceItem, "40"), member(receiptItem, "-40")))
	require.NoError(t, err)

	invoiceItem = f.openItemOf(t, finance.KindArInvoice, invoice.ID)
	assert.Equal(t, finance.OpenItemStatusPartiallyCleared, invoiceItem.Status)
	assert.True(t, invoiceItem.RemainingAmount.Equal(amount("60")))

	gotInvoice, err := f.arInvoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPosted, gotInvoice.Status)
	gotReceipt, err := f.receipts.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCleared, gotReceipt.Status)

	// the rest of the invoice clears against a second receipt
	second := f.postedReceipt(t, ctx, "60")
	c, err := f.clearing.Clear(ctx, group(member(invoiceItem, "60"), member(f.openItemOf(t, finance.KindReceipt, second.ID), "-60")))
	require.NoError(t, err)
	assert.Equal(t, "CLR-2025-000002", c.Number)

	gotInvoice, err = f.arInvoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPaid, gotInvoice.Status)
}

func TestClearingService_RejectsWithoutSideEffects(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, ctx, "100")
	invoiceItem := f.openItemOf(t, finance.KindArInvoice, invoice.ID)
	receiptItem := f.openItemOf(t, finance.KindReceipt, receipt.ID)

	tests := []struct {
		name string
		in   finance.ClearingInput
		code string
	}{
		{"net balance is not zero", group(member(invoiceItem, "100"), member(receiptItem, "-90")), shared.CodeValidation},
		{"single member", group(member(invoiceItem, "100")), shared.CodeValidation},
		{"duplicate member", group(member(invoiceItem, "50"), member(invoiceItem, "-50")), shared.CodeValidation},
		{"amount exceeds remaining", group(member(invoiceItem, "150"), member(receiptItem, "-150")), shared.CodeValidation},
		{"wrong sign", group(member(invoiceItem, "-100"), member(receiptItem, "100")), shared.CodeValidation},
		{"unknown item", group(member(invoiceItem, "100"), finance.ClearingMember{OpenItemID: uuid.New(), Amount: amount("-100")}), shared.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.clearing.Clear(ctx, tt.in)
			requireCode(t, err, tt.code)
		})
	}

	for _, item := range []*finance.OpenItem{
		f.openItemOf(t, finance.KindArInvoice, invoice.ID),
		f.openItemOf(t, finance.KindReceipt, receipt.ID),
	} {
		assert.Equal(t, finance.OpenItemStatusOpen, item.Status)
		assert.True(t, item.RemainingAmount.Equal(item.OriginalAmount))
	}

	// rejected attempts must not burn clearing numbers
	c, err := f.clearing.Clear(ctx, group(member(invoiceItem, "100"), member(receiptItem, "-100")))
	require.NoError(t, err)
	assert.Equal(t, "CLR-2025-000001", c.Number)
}

func TestClearingService_ToleranceAllowsRounding(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100.01")
	receipt := f.postedReceipt(t, ctx, "100")

	_, err := f.clearing.Clear(ctx, group(
		member(f.openItemOf(t, finance.KindArInvoice, invoice.ID), "100.01"),
		member(f.openItemOf(t, finance.KindReceipt, receipt.ID), "-100"),
	))
	require.NoError(t, err)
}

func TestClearingService_ForeignScopeItem(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))
	other := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, other, "100")

	_, err := f.clearing.Clear(ctx, group(
		member(f.openItemOf(t, finance.KindArInvoice, invoice.ID), "100"),
		member(f.openItemOf(t, finance.KindReceipt, receipt.ID), "-100"),
	))
	requireCode(t, err, shared.CodeScopeMismatch)
}

func TestClearingService_PermissionFollowsControlAccount(t *testing.T) {
	f := newLedgerFixture(t, OpenItemPermissionKey(finance.ControlAccountReceivable, OpenItemActionClear))
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, ctx, "100")

	_, err := f.clearing.Clear(ctx, group(
		member(f.openItemOf(t, finance.KindArInvoice, invoice.ID), "100"),
		member(f.openItemOf(t, finance.KindReceipt, receipt.ID), "-100"),
	))
	requireCode(t, err, shared.CodePermissionDenied)
	assert.Equal(t, "accounts_receivable.open_items.clear", OpenItemPermissionKey(finance.ControlAccountReceivable, OpenItemActionClear))
	assert.Equal(t, "accounts_payable.open_items.view", OpenItemPermissionKey(finance.ControlAccountPayable, OpenItemActionView))
}

func TestClearingService_Reverse(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "100")
	receipt := f.postedReceipt(t, ctx, "100")
	c, err := f.clearing.Clear(ctx, group(
		member(f.openItemOf(t, finance.KindArInvoice, invoice.ID), "100"),
		member(f.openItemOf(t, finance.KindReceipt, receipt.ID), "-100"),
	))
	require.NoError(t, err)

	_, err = f.clearing.Reverse(ctx, c.ID, ReverseClearingInput{})
	requireCode(t, err, shared.CodeValidation)

	reversed, err := f.clearing.Reverse(ctx, c.ID, ReverseClearingInput{Reason: "receipt belonged to another invoice"})
	require.NoError(t, err)
	assert.Equal(t, finance.ClearingStatusReversed, reversed.Status)
	assert.Equal(t, "receipt belonged to another invoice", reversed.ReversalReason)
	assert.NotNil(t, reversed.ReversedAt)

	invoiceItem := f.openItemOf(t, finance.KindArInvoice, invoice.ID)
	assert.Equal(t, finance.OpenItemStatusOpen, invoiceItem.Status)
	assert.True(t, invoiceItem.RemainingAmount.Equal(amount("100")))
	receiptItem := f.openItemOf(t, finance.KindReceipt, receipt.ID)
	assert.True(t, receiptItem.RemainingAmount.Equal(amount("-100")))

	gotInvoice, err := f.arInvoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPosted, gotInvoice.Status)

	_, err = f.clearing.Reverse(ctx, c.ID, ReverseClearingInput{Reason: "again"})
	requireCode(t, err, shared.CodeInvalidTransition)

	_, err = f.clearing.Reverse(ctx, uuid.New(), ReverseClearingInput{Reason: "missing"})
	requireCode(t, err, shared.CodeNotFound)

	got, err := f.clearing.GetClearing(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.ClearingStatusReversed, got.Status)
}

func TestClearingService_ListAndSuggest(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	invoice := f.postedInvoice(t, ctx, "75")
	f.postedReceipt(t, ctx, "75")
	f.postedReceipt(t, ctx, "20")

	receivable := finance.ControlAccountReceivable
	page, err := f.clearing.ListOpenItems(ctx, finance.OpenItemFilter{ControlAccount: &receivable})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)

	suggestions, err := f.clearing.SuggestMatches(ctx, SuggestMatchesInput{ControlAccount: finance.ControlAccountReceivable})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	members := suggestions[0].Group().Members
	require.Len(t, members, 2)
	sum := decimal.Zero
	for _, m := range members {
		sum = sum.Add(m.Amount)
	}
	assert.True(t, sum.IsZero())
	assert.Contains(t, suggestions[0].Group().ItemIDs(), f.openItemOf(t, finance.KindArInvoice, invoice.ID).ID)

	_, err = f.clearing.SuggestMatches(ctx, SuggestMatchesInput{ControlAccount: "SUSPENSE"})
	requireCode(t, err, shared.CodeValidation)
}

func TestClearingService_ListWithoutControlNeedsBothLedgers(t *testing.T) {
	f := newLedgerFixture(t, OpenItemPermissionKey(finance.ControlAccountPayable, OpenItemActionView))
	ctx := asUser(shared.AgencyScope(uuid.New()))

	_, err := f.clearing.ListOpenItems(ctx, finance.OpenItemFilter{})
	requireCode(t, err, shared.CodePermissionDenied)

	receivable := finance.ControlAccountReceivable
	_, err = f.clearing.ListOpenItems(ctx, finance.OpenItemFilter{ControlAccount: &receivable})
	require.NoError(t, err)
}
