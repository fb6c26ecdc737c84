package persistence

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormClearingRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	items := NewGormOpenItemRepository(db)
	repo := NewGormClearingRepository(db)
	scope := shared.AgencyScope(uuid.New())

	invoice := newOpenItem(scope, finance.ControlAccountReceivable, 100, "2025-01-10")
	receipt := newOpenItem(scope, finance.ControlAccountReceivable, -100, "2025-01-12")
	require.NoError(t, items.Create(ctx, invoice))
	require.NoError(t, items.Create(ctx, receipt))

	group := finance.ClearingGroup{Members: []finance.ClearingMember{
		{OpenItemID: invoice.ID, Amount: decimal.NewFromInt(100)},
		{OpenItemID: receipt.ID, Amount: decimal.NewFromInt(-100)},
	}}
	c, err := finance.NewClearing(scope, uuid.New(), "CLR-2025-000001", group,
		map[uuid.UUID]*finance.OpenItem{invoice.ID: invoice, receipt.ID: receipt}, finance.DefaultTolerance(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, c))

	found, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CLR-2025-000001", found.Number)
	assert.Equal(t, finance.ClearingStatusActive, found.Status)
	assert.True(t, found.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Len(t, found.Lines, 2)

	require.NoError(t, found.Reverse(map[uuid.UUID]*finance.OpenItem{invoice.ID: invoice, receipt.ID: receipt},
		uuid.New(), "posted to the wrong customer", time.Now().UTC()))
	found.IncrementVersion()
	require.NoError(t, repo.Update(ctx, found))

	reversed, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.ClearingStatusReversed, reversed.Status)
	assert.Equal(t, "posted to the wrong customer", reversed.ReversalReason)
	assert.NotNil(t, reversed.ReversedAt)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
