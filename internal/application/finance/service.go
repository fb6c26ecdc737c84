package finance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Infra bundles the collaborators shared by every finance service
type Infra struct {
	Tx        shared.TxManager
	Allocator *sequence.Allocator
	Sessions  shared.SessionResolver
	Oracle    shared.PermissionOracle
	Events    shared.EventPublisher
	Validator *Validator
	Retry     sequence.RetryPolicy
	Tolerance decimal.Decimal
	Metrics   *telemetry.LedgerMetrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

// ServiceOption is a functional option for configuring the finance services
type ServiceOption func(*Infra)

// WithRetryPolicy sets the contention retry budget
func WithRetryPolicy(p sequence.RetryPolicy) ServiceOption {
	return func(in *Infra) {
		in.Retry = p
	}
}

// WithTolerance sets the clearing rounding tolerance
func WithTolerance(t decimal.Decimal) ServiceOption {
	return func(in *Infra) {
		in.Tolerance = t
	}
}

// WithMetrics records ledger metrics
func WithMetrics(m *telemetry.LedgerMetrics) ServiceOption {
	return func(in *Infra) {
		in.Metrics = m
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(in *Infra) {
		in.Logger = l
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(in *Infra) {
		in.Clock = now
	}
}

func (in Infra) with(opts []ServiceOption) Infra {
	for _, opt := range opts {
		opt(&in)
	}
	if in.Validator == nil {
		in.Validator = NewValidator()
	}
	if in.Retry.MaxAttempts == 0 {
		in.Retry = sequence.DefaultRetryPolicy()
	}
	if in.Tolerance.IsZero() {
		in.Tolerance = finance.DefaultTolerance()
	}
	if in.Logger == nil {
		in.Logger = zap.NewNop()
	}
	if in.Clock == nil {
		in.Clock = time.Now
	}
	return in
}

func (in Infra) now() time.Time {
	return in.Clock().UTC()
}

// authorize resolves the caller and checks one capability
func (in Infra) authorize(ctx context.Context, key string) (shared.Caller, error) {
	caller, err := in.Sessions.Resolve(ctx)
	if err != nil {
		return shared.Caller{}, err
	}
	if key != "" && !in.Oracle.HasCapability(ctx, caller, key) {
		return shared.Caller{}, shared.NewPermissionDenied(key)
	}
	return caller, nil
}

// retrying runs fn in a transaction and repeats the whole unit of work on
// storage contention
func (in Infra) retrying(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := in.Retry.Run(ctx, func(ctx context.Context) error {
		return in.Tx.RunInTx(ctx, fn)
	}, func(attempt int, _ error) {
		in.Metrics.RecordContentionRetry(ctx, operation, attempt)
	})
	if errors.Is(err, shared.ErrSequenceContention) {
		in.Metrics.RecordContentionExhausted(ctx, operation)
	}
	return err
}

// publish hands events to the bus after commit. Delivery problems are logged
// and never fail the action.
func (in Infra) publish(ctx context.Context, events []shared.DomainEvent) {
	if in.Events == nil || len(events) == 0 {
		return
	}
	if err := in.Events.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, in.Logger).Warn("Failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// fail turns err into what the caller sees. Domain errors pass through;
// anything else is a storage fault that is logged and hidden.
func (in Infra) fail(ctx context.Context, span trace.Span, operation string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	if de, ok := shared.AsDomainError(err); ok {
		telemetry.SetAttributes(span, "error.code", de.Code)
		return de
	}
	telemetry.RecordError(span, err)
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	logger.WithLogger(ctx, in.Logger).Error("Finance operation failed", fields...)
	return shared.ErrOperationFailed
}

func notFound(label string) error {
	if label == "" {
		return shared.ErrNotFound
	}
	return shared.NewDomainError(shared.CodeNotFound, strings.ToUpper(label[:1])+label[1:]+" not found")
}

// load fetches an aggregate and tells a missing row from one owned by
// another scope
func load[T interface{ CheckScope(shared.TenantScope) error }](
	ctx context.Context,
	find func(ctx context.Context, id uuid.UUID) (T, error),
	id uuid.UUID,
	scope shared.TenantScope,
	label string,
) (T, error) {
	v, err := find(ctx, id)
	if err != nil {
		var zero T
		if errors.Is(err, shared.ErrNotFound) {
			return zero, notFound(label)
		}
		return zero, err
	}
	if err := v.CheckScope(scope); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
