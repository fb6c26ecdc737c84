package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
)

// Request describes one number allocation
type Request struct {
	Scope          shared.TenantScope
	RangeKey       string
	Format         string
	FallbackPrefix string
	ResetRule      ResetRule
	AsOf           time.Time
}

// Allocation is an issued document number
type Allocation struct {
	Number string
	Value  int64
	Bucket string
}

// Allocator issues formatted document numbers
type Allocator struct {
	store CounterStore
}

// NewAllocator creates an allocator over store
func NewAllocator(store CounterStore) *Allocator {
	return &Allocator{store: store}
}

// Allocate increments the counter for (scope, range key, bucket) and formats
// the result. Storage contention is returned as shared.ErrStorageContention so
// the caller can retry the surrounding unit of work.
func (a *Allocator) Allocate(ctx context.Context, req Request) (Allocation, error) {
	if err := req.Scope.Validate(); err != nil {
		return Allocation{}, err
	}
	if req.RangeKey == "" {
		return Allocation{}, shared.NewValidationError("range key is required")
	}
	if req.ResetRule == "" {
		req.ResetRule = ResetNever
	}
	if !req.ResetRule.IsValid() {
		return Allocation{}, shared.NewValidationError("unknown reset rule %s", req.ResetRule)
	}
	if err := ValidateTemplate(req.Format, req.ResetRule); err != nil {
		return Allocation{}, shared.NewValidationError("%s", err.Error())
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}

	key := CounterKey{
		Scope:    req.Scope,
		RangeKey: req.RangeKey,
		Bucket:   req.ResetRule.Bucket(req.AsOf),
	}
	value, err := a.store.Increment(ctx, key, req.Format, req.ResetRule)
	if err != nil {
		if errors.Is(err, shared.ErrStorageContention) {
			return Allocation{}, err
		}
		return Allocation{}, fmt.Errorf("increment sequence %s/%s: %w", req.RangeKey, key.Bucket, err)
	}

	prefix := req.FallbackPrefix
	if prefix == "" {
		prefix = req.RangeKey
	}
	return Allocation{
		Number: Format(req.Format, prefix, req.AsOf, value),
		Value:  value,
		Bucket: key.Bucket,
	}, nil
}
