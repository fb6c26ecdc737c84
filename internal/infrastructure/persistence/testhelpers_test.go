package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the ledger schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(sqliteDSN(":memory:")), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, RegisterScopeGuard(db))
	require.NoError(t, AutoMigrate(db))
	return db
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func newArInvoice(t *testing.T, scope shared.TenantScope, number string, gross int64) *finance.ArInvoice {
	t.Helper()
	customer := uuid.New()
	doc, err := finance.ArInvoiceInput{
		DocumentFields: finance.DocumentFields{
			CounterpartyID:   &customer,
			CounterpartyName: "Acme Corp",
			Currency:         "USD",
			NetAmount:        decimal.NewFromInt(gross),
			TaxAmount:        decimal.Zero,
			DocumentDate:     day("2025-03-10"),
			Reference:        "ref-" + number,
		},
	}.Build(finance.NewDocumentBase(finance.KindArInvoice, scope, uuid.New()))
	require.NoError(t, err)
	doc.Number = number
	return doc
}

func newJournalEntry(t *testing.T, scope shared.TenantScope, number string, amount int64) *finance.JournalEntry {
	t.Helper()
	doc, err := finance.JournalEntryInput{
		Currency:     "USD",
		DocumentDate: day("2025-03-31"),
		Lines: []finance.JournalLineInput{
			{AccountCode: "6100", Debit: decimal.NewFromInt(amount)},
			{AccountCode: "2100", Credit: decimal.NewFromInt(amount)},
		},
	}.Build(finance.NewDocumentBase(finance.KindJournalEntry, scope, uuid.New()))
	require.NoError(t, err)
	doc.Number = number
	return doc
}

func newOpenItem(scope shared.TenantScope, control finance.ControlAccount, amount int64, docDate string) *finance.OpenItem {
	return &finance.OpenItem{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(scope, uuid.New()),
		DocumentKind:        finance.KindArInvoice,
		DocumentID:          uuid.New(),
		DocumentNumber:      "INV-" + docDate,
		ControlAccount:      control,
		Currency:            "USD",
		OriginalAmount:      decimal.NewFromInt(amount),
		RemainingAmount:     decimal.NewFromInt(amount),
		Status:              finance.OpenItemStatusOpen,
		DocumentDate:        day(docDate),
	}
}

var ctx = context.Background()
