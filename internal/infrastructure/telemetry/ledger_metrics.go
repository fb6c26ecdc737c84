package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MeterName is the instrumentation scope for ledger metrics.
const MeterName = "ledger"

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LedgerMetrics tracks number allocation, lifecycle transitions, clearings and
// recurring runs. A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	logger *zap.Logger

	allocationsTotal    *Counter
	allocationDuration  *Histogram
	contentionRetries   *Counter
	contentionExhausted *Counter
	transitionsTotal    *Counter
	clearingsTotal      *Counter
	clearedLinesTotal   *Counter
	reversalsTotal      *Counter
	recurringRunsTotal  *Counter
	dueTemplates        *Gauge
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &LedgerMetrics{logger: logger}

	var err error
	if m.allocationsTotal, err = NewCounter(meter, "ledger_sequence_allocations_total",
		"Document numbers issued", "{numbers}"); err != nil {
		return nil, err
	}
	if m.allocationDuration, err = NewHistogram(meter, "ledger_sequence_allocation_duration_seconds",
		"Time spent incrementing a sequence counter", "s", AllocationDurationBuckets...); err != nil {
		return nil, err
	}
	if m.contentionRetries, err = NewCounter(meter, "ledger_contention_retries_total",
		"Units of work retried after storage contention", "{retries}"); err != nil {
		return nil, err
	}
	if m.contentionExhausted, err = NewCounter(meter, "ledger_contention_exhausted_total",
		"Units of work abandoned after the retry budget ran out", "{operations}"); err != nil {
		return nil, err
	}
	if m.transitionsTotal, err = NewCounter(meter, "ledger_document_transitions_total",
		"Lifecycle transitions applied to documents", "{transitions}"); err != nil {
		return nil, err
	}
	if m.clearingsTotal, err = NewCounter(meter, "ledger_clearings_total",
		"Clearing groups recorded", "{clearings}"); err != nil {
		return nil, err
	}
	if m.clearedLinesTotal, err = NewCounter(meter, "ledger_cleared_open_items_total",
		"Open item amounts applied by clearings", "{lines}"); err != nil {
		return nil, err
	}
	if m.reversalsTotal, err = NewCounter(meter, "ledger_clearing_reversals_total",
		"Clearings reversed", "{clearings}"); err != nil {
		return nil, err
	}
	if m.recurringRunsTotal, err = NewCounter(meter, "ledger_recurring_runs_total",
		"Recurring journal template executions", "{runs}"); err != nil {
		return nil, err
	}
	if m.dueTemplates, err = NewGauge(meter, "ledger_recurring_due_templates",
		"Templates found due by the last scheduler sweep", "{templates}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAllocation records one issued number and how long the counter took.
func (m *LedgerMetrics) RecordAllocation(ctx context.Context, agencyID uuid.UUID, rangeKey string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.allocationsTotal.Inc(ctx, AttrAgencyID.String(agencyID.String()), AttrRangeKey.String(rangeKey))
	m.allocationDuration.RecordDuration(ctx, elapsed, AttrRangeKey.String(rangeKey))
}

// RecordContentionRetry records a retried unit of work.
func (m *LedgerMetrics) RecordContentionRetry(ctx context.Context, operation string, attempt int) {
	if m == nil {
		return
	}
	m.contentionRetries.Inc(ctx, AttrOperation.String(operation))
	m.logger.Debug("Retrying after storage contention",
		zap.String("operation", operation),
		zap.Int("attempt", attempt),
	)
}

// RecordContentionExhausted records a unit of work that gave up on contention.
func (m *LedgerMetrics) RecordContentionExhausted(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.contentionExhausted.Inc(ctx, AttrOperation.String(operation))
}

// RecordTransition records a lifecycle action applied to a document.
func (m *LedgerMetrics) RecordTransition(ctx context.Context, agencyID uuid.UUID, kind, action, from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.Inc(ctx,
		AttrAgencyID.String(agencyID.String()),
		AttrDocumentKind.String(kind),
		AttrAction.String(action),
		AttrFromStatus.String(from),
		AttrToStatus.String(to),
	)
}

// RecordClearing records a clearing group and the number of items it touched.
func (m *LedgerMetrics) RecordClearing(ctx context.Context, agencyID uuid.UUID, control, currency string, lines int) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrAgencyID.String(agencyID.String()),
		AttrControl.String(control),
		AttrCurrency.String(currency),
	}
	m.clearingsTotal.Inc(ctx, attrs...)
	m.clearedLinesTotal.Add(ctx, int64(lines), attrs...)
}

// RecordClearingReversal records a reversed clearing.
func (m *LedgerMetrics) RecordClearingReversal(ctx context.Context, agencyID uuid.UUID, control string) {
	if m == nil {
		return
	}
	m.reversalsTotal.Inc(ctx, AttrAgencyID.String(agencyID.String()), AttrControl.String(control))
}

// RecordRecurringRun records a template execution. trigger is "manual" or
// "scheduled"; outcome is "posted", "draft" or "failed".
func (m *LedgerMetrics) RecordRecurringRun(ctx context.Context, agencyID uuid.UUID, trigger, outcome string) {
	if m == nil {
		return
	}
	m.recurringRunsTotal.Inc(ctx,
		AttrAgencyID.String(agencyID.String()),
		AttrTrigger.String(trigger),
		AttrOutcome.String(outcome),
	)
}

// RecordDueTemplates records how many templates a scheduler sweep picked up.
func (m *LedgerMetrics) RecordDueTemplates(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.dueTemplates.Record(ctx, int64(count))
}
