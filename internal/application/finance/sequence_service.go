package finance

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Sequence capability keys
const (
	PermissionSequenceAllocate = "settings.sequences.allocate"
	PermissionSequenceView     = "settings.sequences.view"
)

// AllocateInput requests one number from a named range
type AllocateInput struct {
	RangeKey       string             `json:"range_key" validate:"required,max=64"`
	Format         string             `json:"format" validate:"max=64"`
	FallbackPrefix string             `json:"fallback_prefix" validate:"max=16"`
	ResetRule      sequence.ResetRule `json:"reset_rule" validate:"omitempty,oneof=NEVER YEARLY MONTHLY DAILY"`
	AsOf           *time.Time         `json:"as_of"`
}

// CounterResponse is the current state of one counter
type CounterResponse struct {
	RangeKey string `json:"range_key"`
	Bucket   string `json:"bucket"`
	Value    int64  `json:"value"`
}

// SequenceService exposes the allocator outside document creation, for
// ranges that are not tied to a document kind
type SequenceService struct {
	Infra
	store sequence.CounterStore
}

// NewSequenceService creates a new SequenceService
func NewSequenceService(store sequence.CounterStore, infra Infra, opts ...ServiceOption) *SequenceService {
	return &SequenceService{Infra: infra.with(opts), store: store}
}

// Allocate issues the next number of a range in the caller's scope. The
// increment runs in its own transaction and is retried on contention.
func (s *SequenceService) Allocate(ctx context.Context, in AllocateInput) (sequence.Allocation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sequence", "allocate")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionSequenceAllocate)
	if err != nil {
		return sequence.Allocation{}, err
	}
	if err := s.Validator.Struct(in); err != nil {
		return sequence.Allocation{}, err
	}

	req := sequence.Request{
		Scope:          caller.Scope,
		RangeKey:       in.RangeKey,
		Format:         in.Format,
		FallbackPrefix: in.FallbackPrefix,
		ResetRule:      in.ResetRule,
		AsOf:           s.now(),
	}
	if in.AsOf != nil {
		req.AsOf = *in.AsOf
	}

	var alloc sequence.Allocation
	started := time.Now()
	err = s.retrying(ctx, "sequence.allocate", func(ctx context.Context) error {
		a, err := s.Allocator.Allocate(ctx, req)
		if err != nil {
			return err
		}
		alloc = a
		return nil
	})
	if err != nil {
		return sequence.Allocation{}, s.fail(ctx, span, "sequence.allocate", err, zap.String("range_key", in.RangeKey))
	}
	s.Metrics.RecordAllocation(ctx, caller.Scope.AgencyID, in.RangeKey, time.Since(started))
	return alloc, nil
}

// Current returns the last issued value of a range in the bucket of asOf,
// zero when nothing was issued yet
func (s *SequenceService) Current(ctx context.Context, rangeKey string, rule sequence.ResetRule, asOf time.Time) (CounterResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sequence", "current")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionSequenceView)
	if err != nil {
		return CounterResponse{}, err
	}
	if rangeKey == "" {
		return CounterResponse{}, shared.NewValidationError("range key is required")
	}
	if rule == "" {
		rule = sequence.ResetNever
	}
	if !rule.IsValid() {
		return CounterResponse{}, shared.NewValidationError("unknown reset rule %s", rule)
	}
	key := sequence.CounterKey{Scope: caller.Scope, RangeKey: rangeKey, Bucket: rule.Bucket(asOf)}
	value, err := s.store.Current(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return CounterResponse{}, s.fail(ctx, span, "sequence.current", err, zap.String("range_key", rangeKey))
	}
	return CounterResponse{RangeKey: rangeKey, Bucket: key.Bucket, Value: value}, nil
}
