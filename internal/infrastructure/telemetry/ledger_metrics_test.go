package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestLedgerMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewLedgerMetrics(provider.Meter(telemetry.MeterName), nil)
	require.NoError(t, err)

	ctx := context.Background()
	agency := uuid.New()
	m.RecordAllocation(ctx, agency, "invoice", 2*time.Millisecond)
	m.RecordAllocation(ctx, agency, "invoice", 3*time.Millisecond)
	m.RecordContentionRetry(ctx, "ar_invoice.create", 1)
	m.RecordContentionExhausted(ctx, "ar_invoice.create")
	m.RecordTransition(ctx, agency, "AR_INVOICE", "post", "APPROVED", "POSTED")
	m.RecordClearing(ctx, agency, "ACCOUNTS_RECEIVABLE", "USD", 3)
	m.RecordClearingReversal(ctx, agency, "ACCOUNTS_RECEIVABLE")
	m.RecordRecurringRun(ctx, agency, "scheduled", "posted")
	m.RecordDueTemplates(ctx, 4)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["ledger_sequence_allocations_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_contention_retries_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_contention_exhausted_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_document_transitions_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_clearings_total"]))
	assert.Equal(t, int64(3), sumOf(t, metrics["ledger_cleared_open_items_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_clearing_reversals_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ledger_recurring_runs_total"]))

	hist, ok := metrics["ledger_sequence_allocation_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	gauge, ok := metrics["ledger_recurring_due_templates"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestLedgerMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.LedgerMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAllocation(ctx, uuid.New(), "invoice", time.Millisecond)
		m.RecordContentionRetry(ctx, "op", 1)
		m.RecordContentionExhausted(ctx, "op")
		m.RecordTransition(ctx, uuid.New(), "AP_INVOICE", "submit", "DRAFT", "PENDING_APPROVAL")
		m.RecordClearing(ctx, uuid.New(), "ACCOUNTS_PAYABLE", "EUR", 2)
		m.RecordClearingReversal(ctx, uuid.New(), "ACCOUNTS_PAYABLE")
		m.RecordRecurringRun(ctx, uuid.New(), "manual", "draft")
		m.RecordDueTemplates(ctx, 0)
	})
}

func TestNewLedgerMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewLedgerMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}
