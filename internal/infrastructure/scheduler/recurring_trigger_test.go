package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu       sync.Mutex
	due      []finance.RecurringJournalTemplate
	listErr  error
	execErr  error
	executed []uuid.UUID
	users    []uuid.UUID
	ran      chan struct{}
}

func (r *fakeRunner) ListDue(_ context.Context, _ time.Time, limit int) ([]finance.RecurringJournalTemplate, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if len(r.due) > limit {
		return r.due[:limit], nil
	}
	return r.due, nil
}

func (r *fakeRunner) ExecuteDue(_ context.Context, id uuid.UUID, _ time.Time, systemUser uuid.UUID) (*appfinance.ExecutionResult, error) {
	r.mu.Lock()
	r.executed = append(r.executed, id)
	r.users = append(r.users, systemUser)
	r.mu.Unlock()
	defer func() {
		if r.ran != nil {
			r.ran <- struct{}{}
		}
	}()
	if r.execErr != nil {
		return nil, r.execErr
	}
	return &appfinance.ExecutionResult{
		Journal:   &finance.JournalEntry{},
		Execution: &finance.RecurringExecution{RunNumber: 1},
	}, nil
}

func dueTemplate(next string) finance.RecurringJournalTemplate {
	d, _ := time.Parse("2006-01-02", next)
	t := finance.RecurringJournalTemplate{ScopedAggregateRoot: shared.NewScopedAggregateRoot(shared.AgencyScope(uuid.New()), uuid.New())}
	t.Status = finance.TemplateStatusActive
	t.NextRunDate = &d
	return t
}

func newTestTrigger(t *testing.T, runner *fakeRunner, store shared.IdempotencyStore) *RecurringTrigger {
	t.Helper()
	trigger, err := NewRecurringTrigger(RecurringTriggerConfig{
		CheckInterval: time.Hour,
		BatchSize:     10,
		DedupeTTL:     time.Hour,
		SystemUserID:  uuid.New(),
	}, testSchedulerConfig(), runner, store, zap.NewNop())
	require.NoError(t, err)
	return trigger
}

func TestNewRecurringTrigger_Validates(t *testing.T) {
	_, err := NewRecurringTrigger(RecurringTriggerConfig{CheckInterval: time.Minute, BatchSize: 1}, testSchedulerConfig(), &fakeRunner{}, cache.NewInMemoryIdempotencyStore(0), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRecurringTrigger(RecurringTriggerConfig{BatchSize: 1, SystemUserID: uuid.New()}, testSchedulerConfig(), &fakeRunner{}, cache.NewInMemoryIdempotencyStore(0), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRecurringTrigger_TickDedupesRuns(t *testing.T) {
	runner := &fakeRunner{
		due: []finance.RecurringJournalTemplate{dueTemplate("2025-03-01"), dueTemplate("2025-03-14")},
		ran: make(chan struct{}, 4),
	}
	store := cache.NewInMemoryIdempotencyStore(0)
	trigger := newTestTrigger(t, runner, store)
	require.NoError(t, trigger.scheduler.Start(context.Background()))
	defer trigger.scheduler.Stop(context.Background())

	assert.Equal(t, 2, trigger.Tick(context.Background()))
	// the same picks are claimed already
	assert.Equal(t, 0, trigger.Tick(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case <-runner.ran:
		case <-time.After(time.Second):
			t.Fatal("run did not execute")
		}
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t, []uuid.UUID{runner.due[0].ID, runner.due[1].ID}, runner.executed)
	for _, u := range runner.users {
		assert.Equal(t, trigger.config.SystemUserID, u)
	}

	claimed, err := store.IsProcessed(context.Background(), RunKey(runner.due[0].ID, *runner.due[0].NextRunDate))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRecurringTrigger_ReleasesFailedRuns(t *testing.T) {
	runner := &fakeRunner{
		due:     []finance.RecurringJournalTemplate{dueTemplate("2025-03-01")},
		execErr: errors.New("boom"),
	}
	store := cache.NewInMemoryIdempotencyStore(0)
	trigger := newTestTrigger(t, runner, store)
	require.NoError(t, trigger.scheduler.Start(context.Background()))
	defer trigger.scheduler.Stop(context.Background())

	require.Equal(t, 1, trigger.Tick(context.Background()))

	key := RunKey(runner.due[0].ID, *runner.due[0].NextRunDate)
	require.Eventually(t, func() bool {
		claimed, _ := store.IsProcessed(context.Background(), key)
		return !claimed
	}, 2*time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	// first attempt plus RetryAttempts retries
	assert.Len(t, runner.executed, 3)
}

func TestRecurringTrigger_ReleasesWhenNotRunning(t *testing.T) {
	runner := &fakeRunner{due: []finance.RecurringJournalTemplate{dueTemplate("2025-03-01")}}
	store := cache.NewInMemoryIdempotencyStore(0)
	trigger := newTestTrigger(t, runner, store)

	assert.Equal(t, 0, trigger.Tick(context.Background()))
	assert.Zero(t, store.Size())
}

func TestRecurringTrigger_ListFailure(t *testing.T) {
	runner := &fakeRunner{listErr: errors.New("db down")}
	trigger := newTestTrigger(t, runner, cache.NewInMemoryIdempotencyStore(0))
	assert.Equal(t, 0, trigger.Tick(context.Background()))
}

func TestRecurringTrigger_StartStop(t *testing.T) {
	runner := &fakeRunner{
		due: []finance.RecurringJournalTemplate{dueTemplate("2025-03-01")},
		ran: make(chan struct{}, 1),
	}
	trigger := newTestTrigger(t, runner, cache.NewInMemoryIdempotencyStore(0))

	require.NoError(t, trigger.Start(context.Background()))
	// the first tick happens on start
	select {
	case <-runner.ran:
	case <-time.After(time.Second):
		t.Fatal("start did not tick")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))
}

func TestRunKey(t *testing.T) {
	id := uuid.MustParse("8b0f9c1e-3a5d-4f6e-9b7a-2c1d0e9f8a7b")
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "recurring:8b0f9c1e-3a5d-4f6e-9b7a-2c1d0e9f8a7b:2025-03-01", RunKey(id, due))
}
