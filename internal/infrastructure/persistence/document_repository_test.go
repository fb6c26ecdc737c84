package persistence

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormDocumentRepository_CreateAndFind(t *testing.T) {
	repo := NewArInvoiceRepository(newTestDB(t))
	scope := shared.AgencyScope(uuid.New())

	doc := newArInvoice(t, scope, "INV-2025-000001", 150)
	require.NoError(t, repo.Create(ctx, doc))

	found, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-000001", found.Number)
	assert.Equal(t, finance.KindArInvoice, found.Kind)
	assert.Equal(t, lifecycle.StatusDraft, found.Status)
	assert.True(t, found.GrossAmount.Equal(decimal.NewFromInt(150)))
	assert.Nil(t, found.SubAccountID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormDocumentRepository_ListIsScoped(t *testing.T) {
	repo := NewArInvoiceRepository(newTestDB(t))
	agency := uuid.New()
	sub := uuid.New()
	agencyScope := shared.AgencyScope(agency)
	subScope := shared.SubAccountScope(agency, sub)

	require.NoError(t, repo.Create(ctx, newArInvoice(t, agencyScope, "INV-2025-000001", 100)))
	require.NoError(t, repo.Create(ctx, newArInvoice(t, agencyScope, "INV-2025-000002", 200)))
	require.NoError(t, repo.Create(ctx, newArInvoice(t, subScope, "INV-2025-000001", 300)))
	require.NoError(t, repo.Create(ctx, newArInvoice(t, shared.AgencyScope(uuid.New()), "INV-2025-000001", 400)))

	docs, total, err := repo.List(ctx, agencyScope, finance.DocumentFilter{
		Filter: shared.Filter{OrderBy: "number", OrderDir: "asc"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, docs, 2)
	assert.Equal(t, "INV-2025-000001", docs[0].Number)
	assert.Equal(t, "INV-2025-000002", docs[1].Number)

	docs, total, err = repo.List(ctx, subScope, finance.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].GrossAmount.Equal(decimal.NewFromInt(300)))

	t.Run("search and paging", func(t *testing.T) {
		docs, total, err := repo.List(ctx, agencyScope, finance.DocumentFilter{
			Filter: shared.Filter{Search: "000002"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, docs, 1)

		docs, total, err = repo.List(ctx, agencyScope, finance.DocumentFilter{
			Filter: shared.Filter{Page: 2, PageSize: 1, OrderBy: "number", OrderDir: "asc"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, docs, 1)
		assert.Equal(t, "INV-2025-000002", docs[0].Number)
	})

	t.Run("status filter", func(t *testing.T) {
		posted := lifecycle.StatusPosted
		_, total, err := repo.List(ctx, agencyScope, finance.DocumentFilter{Status: &posted})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestGormDocumentRepository_NotesShareTypeNotTable(t *testing.T) {
	db := newTestDB(t)
	ap := NewApNoteRepository(db)
	ar := NewArNoteRepository(db)
	scope := shared.AgencyScope(uuid.New())

	vendor := uuid.New()
	note, err := finance.NoteInput{
		DocumentFields: finance.DocumentFields{
			CounterpartyID: &vendor,
			Currency:       "EUR",
			NetAmount:      decimal.NewFromInt(25),
			DocumentDate:   day("2025-05-01"),
		},
		NoteType: finance.NoteTypeCredit,
		Reason:   "damaged goods",
	}.Build(finance.NewDocumentBase(finance.KindApNote, scope, uuid.New()))
	require.NoError(t, err)
	note.Number = "VCN-2025-000001"
	require.NoError(t, ap.Create(ctx, note))

	_, err = ar.FindByID(ctx, note.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	found, err := ap.FindByID(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.KindApNote, found.Kind)
	assert.Equal(t, finance.NoteTypeCredit, found.NoteType)
}

func TestGormDocumentRepository_UpdateStatus(t *testing.T) {
	repo := NewArInvoiceRepository(newTestDB(t))
	scope := shared.AgencyScope(uuid.New())
	doc := newArInvoice(t, scope, "INV-2025-000010", 80)
	require.NoError(t, repo.Create(ctx, doc))

	actor := uuid.New()
	machine := doc.Spec().Machine()
	from, err := machine.Apply(doc, lifecycle.ActionSubmit, actor, time.Now().UTC(), "")
	require.NoError(t, err)
	doc.IncrementVersion()
	require.NoError(t, repo.UpdateStatus(ctx, doc, from))

	stored, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPendingApproval, stored.Status)
	assert.Equal(t, 2, stored.Version)
	require.NotNil(t, stored.SubmittedBy)
	assert.Equal(t, actor, *stored.SubmittedBy)

	t.Run("stale writer loses", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, doc.ID)
		require.NoError(t, err)

		from, err := machine.Apply(doc, lifecycle.ActionApprove, actor, time.Now().UTC(), "")
		require.NoError(t, err)
		doc.IncrementVersion()
		require.NoError(t, repo.UpdateStatus(ctx, doc, from))

		from, err = machine.Apply(stale, lifecycle.ActionReject, actor, time.Now().UTC(), "wrong customer")
		require.NoError(t, err)
		stale.IncrementVersion()
		err = repo.UpdateStatus(ctx, stale, from)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)

		stored, err := repo.FindByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusApproved, stored.Status)
		assert.Empty(t, stored.RejectionReason)
	})
}

func TestGormDocumentRepository_Update(t *testing.T) {
	repo := NewArInvoiceRepository(newTestDB(t))
	doc := newArInvoice(t, shared.AgencyScope(uuid.New()), "INV-2025-000020", 80)
	require.NoError(t, repo.Create(ctx, doc))

	doc.Reference = "PO-778"
	doc.DueDate = nil
	doc.IncrementVersion()
	require.NoError(t, repo.Update(ctx, doc))

	stored, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "PO-778", stored.Reference)
	assert.Equal(t, "INV-2025-000020", stored.Number)

	// same version again is a lost update
	err = repo.Update(ctx, doc)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestJournalEntryRepository_Lines(t *testing.T) {
	repo := NewJournalEntryRepository(newTestDB(t))
	doc := newJournalEntry(t, shared.AgencyScope(uuid.New()), "JE-2025-000001", 500)
	require.NoError(t, repo.Create(ctx, doc))

	found, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 2)
	assert.Equal(t, "6100", found.Lines[0].AccountCode)
	assert.Equal(t, "2100", found.Lines[1].AccountCode)

	err = finance.JournalEntryInput{
		Currency:     "USD",
		DocumentDate: day("2025-03-31"),
		Lines: []finance.JournalLineInput{
			{AccountCode: "6200", Debit: decimal.NewFromInt(300)},
			{AccountCode: "6300", Debit: decimal.NewFromInt(200)},
			{AccountCode: "2100", Credit: decimal.NewFromInt(500)},
		},
	}.ApplyTo(found)
	require.NoError(t, err)
	found.IncrementVersion()
	require.NoError(t, repo.Update(ctx, found))

	reloaded, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Lines, 3)
	assert.Equal(t, "6200", reloaded.Lines[0].AccountCode)
	assert.Equal(t, 3, reloaded.Lines[2].LineNo)
}
