package finance

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockPermissionOracle is a mock implementation of shared.PermissionOracle
type MockPermissionOracle struct {
	mock.Mock
}

func (m *MockPermissionOracle) HasCapability(ctx context.Context, caller shared.Caller, key string) bool {
	args := m.Called(caller, key)
	return args.Bool(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(events)
	return args.Error(0)
}

// published returns the event types handed to the publisher, in order
func (m *MockEventPublisher) published() []string {
	var types []string
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		for _, e := range call.Arguments.Get(0).([]shared.DomainEvent) {
			types = append(types, e.EventType())
		}
	}
	return types
}

// contextSessions resolves the caller stored by shared.WithCaller
type contextSessions struct{}

func (contextSessions) Resolve(ctx context.Context) (shared.Caller, error) {
	caller, ok := shared.CallerFromContext(ctx)
	if !ok {
		return shared.Caller{}, shared.ErrUnauthorized
	}
	return caller, nil
}

// ledgerFixture wires every finance service over a private SQLite database
type ledgerFixture struct {
	db         *gorm.DB
	oracle     *MockPermissionOracle
	events     *MockEventPublisher
	openItems  *persistence.GormOpenItemRepository
	templates  *persistence.GormRecurringTemplateRepository
	arInvoices *DocumentService[*finance.ArInvoice]
	apInvoices *DocumentService[*finance.ApInvoice]
	receipts   *DocumentService[*finance.Receipt]
	journals   *DocumentService[*finance.JournalEntry]
	clearing   *ClearingService
	recurring  *RecurringService
	sequences  *SequenceService
}

var fixedNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

// newLedgerFixture builds the services; every capability is granted except
// the denied keys
func newLedgerFixture(t *testing.T, denied ...string) *ledgerFixture {
	t.Helper()

	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))
	db := database.DB

	oracle := new(MockPermissionOracle)
	for _, key := range denied {
		oracle.On("HasCapability", mock.Anything, key).Return(false)
	}
	oracle.On("HasCapability", mock.Anything, mock.Anything).Return(true)

	events := new(MockEventPublisher)
	events.On("Publish", mock.Anything).Return(nil)

	counters := persistence.NewGormCounterStore(db)
	infra := Infra{
		Tx:        persistence.NewGormTxManager(db),
		Allocator: sequence.NewAllocator(counters),
		Sessions:  contextSessions{},
		Oracle:    oracle,
		Events:    events,
		Retry:     sequence.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		Clock:     func() time.Time { return fixedNow },
	}

	openItems := persistence.NewGormOpenItemRepository(db)
	templates := persistence.NewGormRecurringTemplateRepository(db)
	f := &ledgerFixture{
		db:         db,
		oracle:     oracle,
		events:     events,
		openItems:  openItems,
		templates:  templates,
		arInvoices: NewDocumentService(finance.KindArInvoice, persistence.NewArInvoiceRepository(db), openItems, infra),
		apInvoices: NewDocumentService(finance.KindApInvoice, persistence.NewApInvoiceRepository(db), openItems, infra),
		receipts:   NewDocumentService(finance.KindReceipt, persistence.NewReceiptRepository(db), openItems, infra),
		journals:   NewDocumentService(finance.KindJournalEntry, persistence.NewJournalEntryRepository(db), openItems, infra),
		sequences:  NewSequenceService(counters, infra),
	}
	settlements := NewSettlementRegistry(f.arInvoices, f.apInvoices, f.receipts, f.journals)
	f.clearing = NewClearingService(openItems, persistence.NewGormClearingRepository(db), settlements, infra)
	f.recurring = NewRecurringService(templates, f.journals, infra)
	return f
}

func asUser(scope shared.TenantScope) context.Context {
	return shared.WithCaller(context.Background(), shared.Caller{UserID: uuid.New(), Scope: scope})
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func arInvoiceInput(gross string) finance.ArInvoiceInput {
	customer := uuid.New()
	return finance.ArInvoiceInput{
		PaymentTermsDays: 30,
		DocumentFields: finance.DocumentFields{
			CounterpartyID:   &customer,
			CounterpartyName: "Acme Corp",
			Currency:         "USD",
			NetAmount:        amount(gross),
			TaxAmount:        decimal.Zero,
			DocumentDate:     day("2025-03-10"),
		},
	}
}

func receiptInput(gross string) finance.ReceiptInput {
	customer := uuid.New()
	return finance.ReceiptInput{MoneyMovementInput: finance.MoneyMovementInput{
		Method: finance.PaymentMethodBankTransfer,
		DocumentFields: finance.DocumentFields{
			CounterpartyID:   &customer,
			CounterpartyName: "Acme Corp",
			Currency:         "USD",
			NetAmount:        amount(gross),
			TaxAmount:        decimal.Zero,
			DocumentDate:     day("2025-03-12"),
		},
	}}
}

func journalInput(value string) finance.JournalEntryInput {
	return finance.JournalEntryInput{
		Currency:     "USD",
		DocumentDate: day("2025-03-31"),
		Description:  "Accrued rent",
		Lines: []finance.JournalLineInput{
			{AccountCode: "6100", Debit: amount(value)},
			{AccountCode: "2100", Credit: amount(value)},
		},
	}
}

// postedInvoice creates an AR invoice and walks it to POSTED
func (f *ledgerFixture) postedInvoice(t *testing.T, ctx context.Context, gross string) *finance.ArInvoice {
	t.Helper()
	doc, err := f.arInvoices.Create(ctx, arInvoiceInput(gross))
	require.NoError(t, err)
	for _, step := range []func(context.Context, uuid.UUID) (*finance.ArInvoice, error){
		f.arInvoices.Submit,
		func(ctx context.Context, id uuid.UUID) (*finance.ArInvoice, error) { return f.arInvoices.Approve(ctx, id, "") },
		f.arInvoices.Post,
	} {
		doc, err = step(ctx, doc.ID)
		require.NoError(t, err)
	}
	return doc
}

// postedReceipt creates a receipt and walks it to POSTED
func (f *ledgerFixture) postedReceipt(t *testing.T, ctx context.Context, gross string) *finance.Receipt {
	t.Helper()
	doc, err := f.receipts.Create(ctx, receiptInput(gross))
	require.NoError(t, err)
	_, err = f.receipts.Submit(ctx, doc.ID)
	require.NoError(t, err)
	_, err = f.receipts.Approve(ctx, doc.ID, "")
	require.NoError(t, err)
	doc, err = f.receipts.Post(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func (f *ledgerFixture) openItemOf(t *testing.T, kind finance.Kind, documentID uuid.UUID) *finance.OpenItem {
	t.Helper()
	item, err := f.openItems.FindByDocument(context.Background(), kind, documentID)
	require.NoError(t, err)
	return item
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	require.Equal(t, code, de.Code)
}
