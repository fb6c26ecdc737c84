package finance

import (
	"testing"

	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceService_Allocate(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))
	asOf := day("2025-03-10")

	in := AllocateInput{
		RangeKey:  "ticket",
		Format:    "TKT-{YYYY}{MM}-{####}",
		ResetRule: sequence.ResetMonthly,
		AsOf:      &asOf,
	}
	first, err := f.sequences.Allocate(ctx, in)
	require.NoError(t, err)
	second, err := f.sequences.Allocate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "TKT-202503-0001", first.Number)
	assert.Equal(t, "TKT-202503-0002", second.Number)
	assert.Equal(t, int64(2), second.Value)

	april := day("2025-04-01")
	in.AsOf = &april
	reset, err := f.sequences.Allocate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "TKT-202504-0001", reset.Number)

	current, err := f.sequences.Current(ctx, "ticket", sequence.ResetMonthly, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Value)
	assert.Equal(t, sequence.ResetMonthly.Bucket(asOf), current.Bucket)
}

func TestSequenceService_FallbackPrefix(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	alloc, err := f.sequences.Allocate(ctx, AllocateInput{RangeKey: "adjustment", FallbackPrefix: "ADJ"})
	require.NoError(t, err)
	assert.Equal(t, "ADJ-1", alloc.Number)
}

func TestSequenceService_Rejects(t *testing.T) {
	f := newLedgerFixture(t, PermissionSequenceView)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	_, err := f.sequences.Allocate(ctx, AllocateInput{})
	requireCode(t, err, shared.CodeValidation)

	_, err = f.sequences.Allocate(ctx, AllocateInput{RangeKey: "ticket", ResetRule: "WEEKLY"})
	requireCode(t, err, shared.CodeValidation)

	// a monthly reset needs a month token in the format
	_, err = f.sequences.Allocate(ctx, AllocateInput{RangeKey: "ticket", Format: "T-{YYYY}-{####}", ResetRule: sequence.ResetMonthly})
	requireCode(t, err, shared.CodeValidation)

	_, err = f.sequences.Current(ctx, "ticket", sequence.ResetNever, fixedNow)
	requireCode(t, err, shared.CodePermissionDenied)
}

func TestSequenceService_CurrentBeforeFirstAllocation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := asUser(shared.AgencyScope(uuid.New()))

	current, err := f.sequences.Current(ctx, "nothing-yet", "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.Value)
}
