package finance

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Recurring template capability keys
const (
	permissionRecurringPrefix  = "general_ledger.recurring_journals."
	PermissionRecurringView    = permissionRecurringPrefix + "view"
	PermissionRecurringCreate  = permissionRecurringPrefix + "create"
	PermissionRecurringUpdate  = permissionRecurringPrefix + "update"
	PermissionRecurringPause   = permissionRecurringPrefix + "pause"
	PermissionRecurringResume  = permissionRecurringPrefix + "resume"
	PermissionRecurringDelete  = permissionRecurringPrefix + "delete"
	PermissionRecurringExecute = permissionRecurringPrefix + "execute"
)

// Run triggers, as recorded in metrics
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// ExecuteOptions overrides the defaults of one run
type ExecuteOptions struct {
	PostingDate *time.Time `json:"posting_date"`
	AutoPost    bool       `json:"auto_post"`
}

// ExecutionResult describes what one run produced
type ExecutionResult struct {
	Template    *finance.RecurringJournalTemplate `json:"template"`
	Journal     *finance.JournalEntry             `json:"journal"`
	Execution   *finance.RecurringExecution       `json:"execution"`
	NextRunDate *time.Time                        `json:"next_run_date"`
}

// RecurringService manages recurring journal templates and turns each run
// into a journal entry through the journal lifecycle
type RecurringService struct {
	Infra
	templates finance.RecurringTemplateRepository
	journals  *DocumentService[*finance.JournalEntry]
}

// NewRecurringService creates a new RecurringService
func NewRecurringService(
	templates finance.RecurringTemplateRepository,
	journals *DocumentService[*finance.JournalEntry],
	infra Infra,
	opts ...ServiceOption,
) *RecurringService {
	return &RecurringService{
		Infra:     infra.with(opts),
		templates: templates,
		journals:  journals,
	}
}

// Create stores a new ACTIVE template
func (s *RecurringService) Create(ctx context.Context, in finance.RecurringTemplateInput) (*finance.RecurringJournalTemplate, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "create")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionRecurringCreate)
	if err != nil {
		return nil, err
	}
	if err := s.Validator.Struct(in); err != nil {
		return nil, err
	}
	t, err := finance.NewRecurringJournalTemplate(caller.Scope, caller.UserID, in)
	if err != nil {
		return nil, err
	}
	err = s.retrying(ctx, "recurring.create", func(ctx context.Context) error {
		return s.templates.Create(ctx, t)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "recurring.create", err)
	}
	s.publish(ctx, drainEvents(t))
	return t, nil
}

// Update replaces the editable fields of a template
func (s *RecurringService) Update(ctx context.Context, id uuid.UUID, in finance.RecurringTemplateInput) (*finance.RecurringJournalTemplate, error) {
	if err := s.Validator.Struct(in); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, PermissionRecurringUpdate, "update", func(t *finance.RecurringJournalTemplate) error {
		return t.Update(in)
	})
}

// Pause stops scheduled runs of a template
func (s *RecurringService) Pause(ctx context.Context, id uuid.UUID) (*finance.RecurringJournalTemplate, error) {
	return s.mutate(ctx, id, PermissionRecurringPause, "pause", (*finance.RecurringJournalTemplate).Pause)
}

// Resume reactivates a paused template
func (s *RecurringService) Resume(ctx context.Context, id uuid.UUID) (*finance.RecurringJournalTemplate, error) {
	return s.mutate(ctx, id, PermissionRecurringResume, "resume", (*finance.RecurringJournalTemplate).Resume)
}

// Delete soft-deletes a template. Journal entries it spawned are kept.
func (s *RecurringService) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutate(ctx, id, PermissionRecurringDelete, "delete", (*finance.RecurringJournalTemplate).Delete)
	return err
}

func (s *RecurringService) mutate(
	ctx context.Context,
	id uuid.UUID,
	key, operation string,
	fn func(t *finance.RecurringJournalTemplate) error,
) (*finance.RecurringJournalTemplate, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", operation)
	defer span.End()

	caller, err := s.authorize(ctx, key)
	if err != nil {
		return nil, err
	}

	var template *finance.RecurringJournalTemplate
	err = s.retrying(ctx, "recurring."+operation, func(ctx context.Context) error {
		t, err := load(ctx, s.templates.FindByID, id, caller.Scope, "recurring template")
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		t.IncrementVersion()
		if err := s.templates.Update(ctx, t); err != nil {
			return err
		}
		template = t
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "recurring."+operation, err, zap.String("template_id", id.String()))
	}
	s.publish(ctx, drainEvents(template))
	return template, nil
}

// Get returns one template of the caller's scope
func (s *RecurringService) Get(ctx context.Context, id uuid.UUID) (*finance.RecurringJournalTemplate, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "get")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionRecurringView)
	if err != nil {
		return nil, err
	}
	t, err := load(ctx, s.templates.FindByID, id, caller.Scope, "recurring template")
	if err != nil {
		return nil, s.fail(ctx, span, "recurring.get", err)
	}
	return t, nil
}

// List returns one page of the caller's templates
func (s *RecurringService) List(ctx context.Context, filter finance.TemplateFilter) (shared.Paginated[finance.RecurringJournalTemplate], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "list")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionRecurringView)
	if err != nil {
		return shared.Paginated[finance.RecurringJournalTemplate]{}, err
	}
	filter.Normalize()
	items, total, err := s.templates.List(ctx, caller.Scope, filter)
	if err != nil {
		return shared.Paginated[finance.RecurringJournalTemplate]{}, s.fail(ctx, span, "recurring.list", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ListExecutions returns the run history of a template, newest first
func (s *RecurringService) ListExecutions(ctx context.Context, id uuid.UUID, filter shared.Filter) (shared.Paginated[finance.RecurringExecution], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "list_executions")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionRecurringView)
	if err != nil {
		return shared.Paginated[finance.RecurringExecution]{}, err
	}
	if _, err := load(ctx, s.templates.FindByID, id, caller.Scope, "recurring template"); err != nil {
		return shared.Paginated[finance.RecurringExecution]{}, s.fail(ctx, span, "recurring.list_executions", err)
	}
	filter.Normalize()
	items, total, err := s.templates.ListExecutions(ctx, id, filter)
	if err != nil {
		return shared.Paginated[finance.RecurringExecution]{}, s.fail(ctx, span, "recurring.list_executions", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Execute runs a template now on behalf of the caller. The journal entry,
// the template schedule and the execution record are written together.
func (s *RecurringService) Execute(ctx context.Context, id uuid.UUID, opts ExecuteOptions) (*ExecutionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "execute")
	defer span.End()

	caller, err := s.authorize(ctx, PermissionRecurringExecute)
	if err != nil {
		return nil, err
	}

	var result *ExecutionResult
	err = s.retrying(ctx, "recurring.execute", func(ctx context.Context) error {
		t, err := load(ctx, s.templates.FindByID, id, caller.Scope, "recurring template")
		if err != nil {
			return err
		}
		result, err = s.run(ctx, caller, t, opts)
		return err
	})
	if err != nil {
		s.Metrics.RecordRecurringRun(ctx, caller.Scope.AgencyID, TriggerManual, "failed")
		return nil, s.fail(ctx, span, "recurring.execute", err, zap.String("template_id", id.String()))
	}
	s.finish(ctx, span, caller, result, TriggerManual)
	return result, nil
}

// ExecuteDue runs a template for the scheduler. expected is the run date the
// scheduler saw when it picked the template; when the template has moved on
// or is no longer ACTIVE the call does nothing and returns nil.
func (s *RecurringService) ExecuteDue(ctx context.Context, id uuid.UUID, expected time.Time, systemUser uuid.UUID) (*ExecutionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "recurring", "execute_due")
	defer span.End()

	var (
		result *ExecutionResult
		caller shared.Caller
	)
	err := s.retrying(ctx, "recurring.execute_due", func(ctx context.Context) error {
		result = nil
		t, err := s.templates.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != finance.TemplateStatusActive || t.NextRunDate == nil || !sameDay(*t.NextRunDate, expected) {
			return nil
		}
		caller = shared.SystemCaller(systemUser, t.Scope())
		result, err = s.run(ctx, caller, t, ExecuteOptions{})
		return err
	})
	if err != nil {
		s.Metrics.RecordRecurringRun(ctx, caller.Scope.AgencyID, TriggerScheduled, "failed")
		return nil, s.fail(ctx, span, "recurring.execute_due", err, zap.String("template_id", id.String()))
	}
	if result == nil {
		s.Metrics.RecordRecurringRun(ctx, uuid.Nil, TriggerScheduled, "skipped")
		return nil, nil
	}
	s.finish(ctx, span, caller, result, TriggerScheduled)
	return result, nil
}

// ListDue returns templates of every scope due on or before asOf
func (s *RecurringService) ListDue(ctx context.Context, asOf time.Time, limit int) ([]finance.RecurringJournalTemplate, error) {
	due, err := s.templates.ListDue(ctx, asOf, limit)
	if err != nil {
		return nil, err
	}
	s.Metrics.RecordDueTemplates(ctx, len(due))
	return due, nil
}

// run spawns the journal entry of one run inside the surrounding transaction
func (s *RecurringService) run(ctx context.Context, caller shared.Caller, t *finance.RecurringJournalTemplate, opts ExecuteOptions) (*ExecutionResult, error) {
	if err := t.CheckExecutable(); err != nil {
		return nil, err
	}
	postingDate := t.DefaultPostingDate(s.now())
	if opts.PostingDate != nil {
		postingDate = *opts.PostingDate
	}

	templateID := t.ID
	journal, err := s.journals.create(ctx, caller, finance.JournalEntryInput{
		Currency:     t.Currency,
		DocumentDate: postingDate,
		Reference:    t.Name,
		Description:  t.Description,
		Lines:        t.LineInputs(),
		Source:       finance.JournalSourceRecurring,
		TemplateID:   &templateID,
	}, finance.RecurringJournalSequence)
	if err != nil {
		return nil, err
	}

	autoPost := opts.AutoPost || t.AutoPost
	if autoPost {
		note := "Auto-posted from recurring template " + t.Name
		for _, action := range []lifecycle.Action{lifecycle.ActionSubmit, lifecycle.ActionApprove, lifecycle.ActionPost} {
			n := ""
			if action == lifecycle.ActionApprove {
				n = note
			}
			if _, err := s.journals.apply(ctx, journal, action, caller.UserID, n); err != nil {
				return nil, err
			}
		}
	}

	t.RecordRun(postingDate)
	t.UpdatedAt = s.now()
	t.IncrementVersion()
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, err
	}

	exec := &finance.RecurringExecution{
		ID:             uuid.New(),
		TemplateID:     t.ID,
		AgencyID:       t.AgencyID,
		SubAccountID:   t.SubAccountID,
		JournalEntryID: journal.ID,
		JournalNumber:  journal.Number,
		PostingDate:    *t.LastRunDate,
		RunNumber:      t.RunCount,
		AutoPosted:     autoPost,
		ExecutedBy:     caller.UserID,
		ExecutedAt:     s.now(),
	}
	if err := s.templates.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	t.AddDomainEvent(finance.NewTemplateExecutedEvent(t, exec))

	return &ExecutionResult{
		Template:    t,
		Journal:     journal,
		Execution:   exec,
		NextRunDate: t.NextRunDate,
	}, nil
}

func (s *RecurringService) finish(ctx context.Context, span trace.Span, caller shared.Caller, result *ExecutionResult, trigger string) {
	telemetry.SetAttributes(span,
		"template.id", result.Template.ID.String(),
		"journal.number", result.Journal.Number,
	)
	s.Metrics.RecordRecurringRun(ctx, caller.Scope.AgencyID, trigger, "succeeded")
	s.publish(ctx, append(drainEvents(result.Journal), drainEvents(result.Template)...))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
