package finance

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() DocumentFields {
	vendor := uuid.New()
	return DocumentFields{
		CounterpartyID:   &vendor,
		CounterpartyName: "Acme Supplies",
		Currency:         "usd",
		NetAmount:        decimal.NewFromInt(100),
		TaxAmount:        decimal.NewFromInt(8),
		DocumentDate:     time.Date(2025, 3, 14, 15, 4, 5, 0, time.UTC),
	}
}

func testScope() shared.TenantScope {
	return shared.AgencyScope(uuid.New())
}

func TestKindSpecs(t *testing.T) {
	for _, kind := range AllKinds() {
		spec, ok := SpecFor(kind)
		require.True(t, ok, kind)
		assert.NotEmpty(t, spec.Table, kind)
		assert.NotEmpty(t, spec.RangeKey, kind)
		assert.NotNil(t, spec.Machine(), kind)
		if spec.HasOpenItem() {
			assert.True(t, spec.SettledStatus.IsSettled(), kind)
			assert.True(t, spec.Machine().Table().Supports(lifecycle.ActionSettle), kind)
		} else {
			assert.False(t, spec.Machine().Table().Supports(lifecycle.ActionSettle), kind)
		}
	}

	assert.True(t, MustSpec(KindArInvoice).Machine().Table().Supports(lifecycle.ActionSend))
	assert.False(t, MustSpec(KindApInvoice).Machine().Table().Supports(lifecycle.ActionSend))
	assert.True(t, MustSpec(KindApInvoice).Machine().Table().AllowsInitial(lifecycle.StatusReceived))
	assert.False(t, Kind("QUOTE").IsValid())
	assert.Panics(t, func() { MustSpec(Kind("QUOTE")) })
}

func TestApInvoiceInput(t *testing.T) {
	scope := testScope()

	t.Run("builds a draft with gross computed", func(t *testing.T) {
		base := NewDocumentBase(KindApInvoice, scope, uuid.New())
		doc, err := ApInvoiceInput{DocumentFields: testFields(), VendorInvoiceNumber: " V-77 "}.Build(base)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusDraft, doc.Status)
		assert.Equal(t, "USD", doc.Currency)
		assert.True(t, decimal.NewFromInt(108).Equal(doc.GrossAmount))
		assert.Equal(t, "V-77", doc.VendorInvoiceNumber)
		assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), doc.DocumentDate)
		assert.Equal(t, -1, doc.OpenItemSign())
	})

	t.Run("received intake", func(t *testing.T) {
		base := NewDocumentBase(KindApInvoice, scope, uuid.New())
		doc, err := ApInvoiceInput{DocumentFields: testFields(), Received: true}.Build(base)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusReceived, doc.Status)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		fields := testFields()
		fields.NetAmount = decimal.NewFromInt(-1)
		_, err := ApInvoiceInput{DocumentFields: fields}.Build(NewDocumentBase(KindApInvoice, scope, uuid.New()))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("rejects missing counterparty", func(t *testing.T) {
		fields := testFields()
		fields.CounterpartyID = nil
		_, err := ApInvoiceInput{DocumentFields: fields}.Build(NewDocumentBase(KindApInvoice, scope, uuid.New()))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("rejects due date before document date", func(t *testing.T) {
		fields := testFields()
		due := fields.DocumentDate.AddDate(0, 0, -1)
		fields.DueDate = &due
		_, err := ApInvoiceInput{DocumentFields: fields}.Build(NewDocumentBase(KindApInvoice, scope, uuid.New()))
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestArInvoiceInput_PaymentTerms(t *testing.T) {
	doc, err := ArInvoiceInput{DocumentFields: testFields(), PaymentTermsDays: 30}.
		Build(NewDocumentBase(KindArInvoice, testScope(), uuid.New()))
	require.NoError(t, err)
	require.NotNil(t, doc.DueDate)
	assert.Equal(t, time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC), *doc.DueDate)
}

func TestNote_OpenItemSign(t *testing.T) {
	tests := []struct {
		kind     Kind
		noteType NoteType
		want     int
	}{
		{KindArNote, NoteTypeCredit, -1},
		{KindArNote, NoteTypeDebit, 1},
		{KindApNote, NoteTypeCredit, 1},
		{KindApNote, NoteTypeDebit, -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+string(tt.noteType), func(t *testing.T) {
			doc, err := NoteInput{DocumentFields: testFields(), NoteType: tt.noteType}.
				Build(NewDocumentBase(tt.kind, testScope(), uuid.New()))
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.OpenItemSign())
		})
	}
}

func TestPaymentInput(t *testing.T) {
	scope := testScope()

	fields := testFields()
	fields.TaxAmount = decimal.Zero
	doc, err := PaymentInput{MoneyMovementInput{DocumentFields: fields, Method: PaymentMethodACH}}.
		Build(NewDocumentBase(KindPayment, scope, uuid.New()))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(doc.GrossAmount))

	_, err = PaymentInput{MoneyMovementInput{DocumentFields: testFields(), Method: PaymentMethodACH}}.
		Build(NewDocumentBase(KindPayment, scope, uuid.New()))
	assert.ErrorIs(t, err, shared.ErrValidation, "payments carry no tax")

	_, err = ReceiptInput{MoneyMovementInput{DocumentFields: fields, Method: "BARTER"}}.
		Build(NewDocumentBase(KindReceipt, scope, uuid.New()))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestJournalEntryInput(t *testing.T) {
	scope := testScope()
	date := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("balanced lines", func(t *testing.T) {
		doc, err := JournalEntryInput{
			Currency:     "EUR",
			DocumentDate: date,
			Lines: []JournalLineInput{
				{AccountCode: "6100", Debit: decimal.NewFromInt(500)},
				{AccountCode: "2100", Credit: decimal.NewFromInt(500)},
			},
		}.Build(NewDocumentBase(KindJournalEntry, scope, uuid.New()))
		require.NoError(t, err)
		require.Len(t, doc.Lines, 2)
		assert.Equal(t, doc.ID, doc.Lines[0].JournalEntryID)
		assert.Equal(t, 2, doc.Lines[1].LineNo)
		assert.True(t, decimal.NewFromInt(500).Equal(doc.GrossAmount))
		assert.Equal(t, JournalSourceManual, doc.Source)
		assert.Equal(t, 0, doc.OpenItemSign())
	})

	t.Run("unbalanced lines", func(t *testing.T) {
		_, err := JournalEntryInput{
			Currency:     "EUR",
			DocumentDate: date,
			Lines: []JournalLineInput{
				{AccountCode: "6100", Debit: decimal.NewFromInt(500)},
				{AccountCode: "2100", Credit: decimal.NewFromFloat(499.98)},
			},
		}.Build(NewDocumentBase(KindJournalEntry, scope, uuid.New()))
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Contains(t, err.Error(), "not balanced")
	})
}

func TestCheckBalanced(t *testing.T) {
	d := decimal.NewFromInt
	tests := []struct {
		name    string
		lines   []JournalLineInput
		wantErr bool
	}{
		{"single line", []JournalLineInput{{AccountCode: "1000", Debit: d(1)}}, true},
		{"both sides on one line", []JournalLineInput{
			{AccountCode: "1000", Debit: d(1), Credit: d(1)},
			{AccountCode: "2000", Credit: d(1)},
		}, true},
		{"empty line", []JournalLineInput{
			{AccountCode: "1000"},
			{AccountCode: "2000", Credit: d(1)},
		}, true},
		{"missing account", []JournalLineInput{
			{Debit: d(1)},
			{AccountCode: "2000", Credit: d(1)},
		}, true},
		{"within tolerance", []JournalLineInput{
			{AccountCode: "1000", Debit: decimal.NewFromFloat(100.01)},
			{AccountCode: "2000", Credit: d(100)},
		}, false},
		{"three lines", []JournalLineInput{
			{AccountCode: "1000", Debit: d(150)},
			{AccountCode: "2000", Credit: d(100)},
			{AccountCode: "2100", Credit: d(50)},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckBalanced(tt.lines)
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.02", FormatAmount(decimal.NewFromFloat(0.02)))
	assert.Equal(t, "1,500.50", FormatAmount(decimal.NewFromFloat(1500.5)))
	assert.Equal(t, "-150.00", FormatAmount(decimal.NewFromInt(-150)))
}
