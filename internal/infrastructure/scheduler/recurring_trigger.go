package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appfinance "github.com/erp/ledger/internal/application/finance"
	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecurringRunner is the part of the recurring service the trigger drives
type RecurringRunner interface {
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]finance.RecurringJournalTemplate, error)
	ExecuteDue(ctx context.Context, id uuid.UUID, expected time.Time, systemUser uuid.UUID) (*appfinance.ExecutionResult, error)
}

// RecurringTriggerConfig holds configuration for the recurring trigger
type RecurringTriggerConfig struct {
	CheckInterval time.Duration
	BatchSize     int
	DedupeTTL     time.Duration
	SystemUserID  uuid.UUID
}

// RecurringTrigger periodically picks due recurring journal templates and
// hands one job per (template, next run date) to the scheduler
type RecurringTrigger struct {
	config    RecurringTriggerConfig
	scheduler *Scheduler
	runner    RecurringRunner
	store     shared.IdempotencyStore
	logger    *zap.Logger
	clock     func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRecurringTrigger wires a trigger and the scheduler that executes its
// jobs. Jobs that fail for the last time release their idempotency key so
// the next tick picks the template again.
func NewRecurringTrigger(
	config RecurringTriggerConfig,
	schedulerConfig SchedulerConfig,
	runner RecurringRunner,
	store shared.IdempotencyStore,
	logger *zap.Logger,
) (*RecurringTrigger, error) {
	if config.CheckInterval <= 0 || config.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: check interval and batch size must be positive", ErrInvalidConfig)
	}
	if config.SystemUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: recurring system user is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &RecurringTrigger{
		config: config,
		runner: runner,
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	s, err := NewScheduler(schedulerConfig, JobExecutorFunc(t.execute), logger, WithGiveUpHandler(t.release))
	if err != nil {
		return nil, err
	}
	t.scheduler = s
	return t, nil
}

// Start starts the scheduler and the check loop
func (t *RecurringTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}

	if err := t.scheduler.Start(ctx); err != nil {
		return err
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Recurring journal trigger started",
		zap.Duration("check_interval", t.config.CheckInterval),
		zap.Int("batch_size", t.config.BatchSize),
	)
	return nil
}

// Stop stops the check loop, then the scheduler
func (t *RecurringTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()

	if err := t.scheduler.Stop(ctx); err != nil {
		return err
	}
	t.logger.Info("Recurring journal trigger stopped")
	return nil
}

// runLoop ticks every CheckInterval
func (t *RecurringTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	t.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick submits a job for every due template not already claimed and returns
// how many were submitted
func (t *RecurringTrigger) Tick(ctx context.Context) int {
	due, err := t.runner.ListDue(ctx, t.clock(), t.config.BatchSize)
	if err != nil {
		t.logger.Error("Failed to list due recurring templates", zap.Error(err))
		return 0
	}

	submitted := 0
	for i := range due {
		tmpl := &due[i]
		if tmpl.NextRunDate == nil {
			continue
		}
		key := RunKey(tmpl.ID, *tmpl.NextRunDate)

		claimed, err := t.store.MarkProcessed(ctx, key, t.config.DedupeTTL)
		if err != nil {
			t.logger.Warn("Failed to claim recurring run", zap.String("key", key), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		job := NewJob(key, tmpl.ID, tmpl.AgencyID, *tmpl.NextRunDate, t.scheduler.config.RetryAttempts)
		if err := t.scheduler.SubmitJob(job); err != nil {
			t.logger.Warn("Failed to submit recurring run",
				zap.String("template_id", tmpl.ID.String()),
				zap.Error(err),
			)
			t.release(job)
			continue
		}
		submitted++
	}

	if submitted > 0 {
		t.logger.Info("Submitted recurring journal runs", zap.Int("count", submitted))
	}
	return submitted
}

// execute runs one scheduled template. A nil result means another worker or
// instance already advanced the template.
func (t *RecurringTrigger) execute(ctx context.Context, job *Job) error {
	result, err := t.runner.ExecuteDue(ctx, job.TemplateID, job.DueDate, t.config.SystemUserID)
	if err != nil {
		return err
	}
	if result == nil {
		t.logger.Debug("Recurring run skipped",
			zap.String("template_id", job.TemplateID.String()),
			zap.Time("due_date", job.DueDate),
		)
		return nil
	}
	t.logger.Info("Recurring journal generated",
		zap.String("template_id", job.TemplateID.String()),
		zap.String("agency_id", job.AgencyID.String()),
		zap.String("journal_number", result.Journal.Number),
		zap.Int("run_number", result.Execution.RunNumber),
	)
	return nil
}

// release drops the idempotency claim of a job that will not run again
func (t *RecurringTrigger) release(job *Job) {
	if err := t.store.Release(context.Background(), job.Key); err != nil {
		t.logger.Warn("Failed to release recurring run", zap.String("key", job.Key), zap.Error(err))
	}
}

// RunKey is the idempotency key of one run of a template
func RunKey(templateID uuid.UUID, dueDate time.Time) string {
	return "recurring:" + templateID.String() + ":" + dueDate.Format("2006-01-02")
}
