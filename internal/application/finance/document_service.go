package finance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/lifecycle"
	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService runs the lifecycle of one document kind. Every kind uses
// the same engine; the kind spec supplies the transition table, permission
// keys and numbering.
type DocumentService[D finance.Document] struct {
	Infra
	spec      finance.KindSpec
	machine   *lifecycle.Machine
	repo      finance.DocumentRepository[D]
	openItems finance.OpenItemRepository
}

// NewDocumentService creates the lifecycle service for kind
func NewDocumentService[D finance.Document](
	kind finance.Kind,
	repo finance.DocumentRepository[D],
	openItems finance.OpenItemRepository,
	infra Infra,
	opts ...ServiceOption,
) *DocumentService[D] {
	spec := finance.MustSpec(kind)
	return &DocumentService[D]{
		Infra:     infra.with(opts),
		spec:      spec,
		machine:   spec.Machine(),
		repo:      repo,
		openItems: openItems,
	}
}

// Kind returns the document kind handled by the service
func (s *DocumentService[D]) Kind() finance.Kind {
	return s.spec.Kind
}

// Spec returns the kind spec handled by the service
func (s *DocumentService[D]) Spec() finance.KindSpec {
	return s.spec
}

func (s *DocumentService[D]) spanService() string {
	return strings.ToLower(string(s.spec.Kind))
}

func (s *DocumentService[D]) logFields(id uuid.UUID) []zap.Field {
	return []zap.Field{zap.String("kind", string(s.spec.Kind)), zap.String("document_id", id.String())}
}

// Get returns one document of the caller's scope
func (s *DocumentService[D]) Get(ctx context.Context, id uuid.UUID) (D, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.spanService(), "get")
	defer span.End()

	var zero D
	caller, err := s.authorize(ctx, s.machine.PermissionKey(lifecycle.ActionView))
	if err != nil {
		return zero, err
	}
	doc, err := s.load(ctx, id, caller.Scope)
	if err != nil {
		return zero, s.fail(ctx, span, "document.get", err, s.logFields(id)...)
	}
	return doc, nil
}

// List returns one page of the caller's documents
func (s *DocumentService[D]) List(ctx context.Context, filter finance.DocumentFilter) (shared.Paginated[D], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.spanService(), "list")
	defer span.End()

	caller, err := s.authorize(ctx, s.machine.PermissionKey(lifecycle.ActionView))
	if err != nil {
		return shared.Paginated[D]{}, err
	}
	filter.Normalize()
	docs, total, err := s.repo.List(ctx, caller.Scope, filter)
	if err != nil {
		return shared.Paginated[D]{}, s.fail(ctx, span, "document.list", err, zap.String("kind", string(s.spec.Kind)))
	}
	return shared.NewPaginated(docs, total, filter.Page, filter.PageSize), nil
}

// Create validates payload, allocates the next number and stores the new
// document in its initial status. Allocation and insert share a transaction
// that is retried as a whole on storage contention.
func (s *DocumentService[D]) Create(ctx context.Context, payload finance.Payload[D]) (D, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.spanService(), "create")
	defer span.End()

	var zero D
	caller, err := s.authorize(ctx, s.machine.PermissionKey(lifecycle.ActionCreate))
	if err != nil {
		return zero, err
	}
	if err := s.Validator.Struct(payload); err != nil {
		return zero, err
	}

	var doc D
	err = s.retrying(ctx, "document.create", func(ctx context.Context) error {
		created, err := s.create(ctx, caller, payload, s.spec.SequenceRequest(""))
		if err != nil {
			return err
		}
		doc = created
		return nil
	})
	if err != nil {
		return zero, s.fail(ctx, span, "document.create", err, zap.String("kind", string(s.spec.Kind)))
	}

	telemetry.SetAttributes(span, "document.id", doc.GetID().String(), "document.number", doc.Base().Number)
	s.Metrics.RecordTransition(ctx, caller.Scope.AgencyID, string(s.spec.Kind), string(lifecycle.ActionCreate), "", string(doc.Base().Status))
	s.publish(ctx, drainEvents(doc))
	return doc, nil
}

// create builds and inserts a document inside the surrounding transaction,
// numbered from the range of req
func (s *DocumentService[D]) create(ctx context.Context, caller shared.Caller, payload finance.Payload[D], req sequence.Request) (D, error) {
	var zero D
	doc, err := payload.Build(finance.NewDocumentBase(s.spec.Kind, caller.Scope, caller.UserID))
	if err != nil {
		return zero, err
	}
	base := doc.Base()
	if !s.machine.Table().AllowsInitial(base.Status) {
		return zero, shared.NewTransitionError("Cannot create %s in %s status", s.spec.Label, base.Status)
	}

	req.Scope = caller.Scope
	req.AsOf = base.DocumentDate
	started := time.Now()
	alloc, err := s.Allocator.Allocate(ctx, req)
	if err != nil {
		return zero, err
	}
	s.Metrics.RecordAllocation(ctx, caller.Scope.AgencyID, req.RangeKey, time.Since(started))
	base.Number = alloc.Number

	if err := s.repo.Create(ctx, doc); err != nil {
		return zero, err
	}
	doc.AddDomainEvent(finance.NewDocumentEvent(base, lifecycle.ActionCreate, "", caller.UserID))
	return doc, nil
}

// Update replaces the editable fields of a document that is still editable
func (s *DocumentService[D]) Update(ctx context.Context, id uuid.UUID, payload finance.Payload[D]) (D, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.spanService(), "update")
	defer span.End()

	var zero D
	caller, err := s.authorize(ctx, s.machine.PermissionKey(lifecycle.ActionUpdate))
	if err != nil {
		return zero, err
	}
	if err := s.Validator.Struct(payload); err != nil {
		return zero, err
	}

	var doc D
	err = s.retrying(ctx, "document.update", func(ctx context.Context) error {
		d, err := s.load(ctx, id, caller.Scope)
		if err != nil {
			return err
		}
		if err := s.machine.Check(d, lifecycle.ActionUpdate); err != nil {
			return err
		}
		if err := payload.ApplyTo(d); err != nil {
			return err
		}
		d.Base().UpdatedAt = s.now()
		d.IncrementVersion()
		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}
		d.AddDomainEvent(finance.NewDocumentEvent(d.Base(), lifecycle.ActionUpdate, d.Base().Status, caller.UserID))
		doc = d
		return nil
	})
	if err != nil {
		return zero, s.fail(ctx, span, "document.update", err, s.logFields(id)...)
	}
	s.publish(ctx, drainEvents(doc))
	return doc, nil
}

// Submit sends a draft for approval
func (s *DocumentService[D]) Submit(ctx context.Context, id uuid.UUID) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionSubmit, "")
}

// Approve approves a pending document; notes are optional
func (s *DocumentService[D]) Approve(ctx context.Context, id uuid.UUID, notes string) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionApprove, notes)
}

// Reject returns a pending document to draft with a mandatory reason
func (s *DocumentService[D]) Reject(ctx context.Context, id uuid.UUID, reason string) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionReject, reason)
}

// Send marks an approved document as sent to the counterparty
func (s *DocumentService[D]) Send(ctx context.Context, id uuid.UUID) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionSend, "")
}

// Post posts the document and opens its item on the control account
func (s *DocumentService[D]) Post(ctx context.Context, id uuid.UUID) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionPost, "")
}

// Void cancels the document with a mandatory reason
func (s *DocumentService[D]) Void(ctx context.Context, id uuid.UUID, reason string) (D, error) {
	return s.Transition(ctx, id, lifecycle.ActionVoid, reason)
}

// Transition runs one public lifecycle action. The current row is re-read
// inside the transaction and written back as a compare-and-set on status
// and version, so a concurrent change makes this call fail instead of
// overwriting it. Storage contention retries the whole unit of work.
func (s *DocumentService[D]) Transition(ctx context.Context, id uuid.UUID, action lifecycle.Action, note string) (D, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, s.spanService(), string(action))
	defer span.End()

	var zero D
	if !isPublicTransition(action) {
		return zero, shared.NewTransitionError("Action %s is not available for %s", action, s.spec.Label)
	}
	caller, err := s.authorize(ctx, s.machine.PermissionKey(action))
	if err != nil {
		return zero, err
	}

	var (
		doc  D
		from lifecycle.Status
	)
	labels := telemetry.LedgerOperationLabels("document.transition", string(s.spec.Kind), string(action), "")
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		err = s.retrying(ctx, "document."+string(action), func(ctx context.Context) error {
			var err error
			doc, from, err = s.transition(ctx, caller, id, action, note)
			return err
		})
	})
	if err != nil {
		return zero, s.fail(ctx, span, "document."+string(action), err, s.logFields(id)...)
	}

	s.Metrics.RecordTransition(ctx, caller.Scope.AgencyID, string(s.spec.Kind), string(action), string(from), string(doc.Base().Status))
	s.publish(ctx, drainEvents(doc))
	return doc, nil
}

func isPublicTransition(action lifecycle.Action) bool {
	switch action {
	case lifecycle.ActionSubmit, lifecycle.ActionApprove, lifecycle.ActionReject,
		lifecycle.ActionSend, lifecycle.ActionPost, lifecycle.ActionVoid:
		return true
	}
	return false
}

// transition applies action inside the surrounding transaction
func (s *DocumentService[D]) transition(ctx context.Context, caller shared.Caller, id uuid.UUID, action lifecycle.Action, note string) (D, lifecycle.Status, error) {
	var zero D
	doc, err := s.load(ctx, id, caller.Scope)
	if err != nil {
		return zero, "", err
	}
	from, err := s.apply(ctx, doc, action, caller.UserID, note)
	if err != nil {
		return zero, from, err
	}
	return doc, from, nil
}

// apply moves doc along action, persists the status change and runs the
// open item side effects of post and void
func (s *DocumentService[D]) apply(ctx context.Context, doc D, action lifecycle.Action, actor uuid.UUID, note string) (lifecycle.Status, error) {
	now := s.now()
	from, err := s.machine.Apply(doc, action, actor, now, note)
	if err != nil {
		return from, err
	}
	base := doc.Base()
	base.UpdatedAt = now
	doc.IncrementVersion()
	if err := s.repo.UpdateStatus(ctx, doc, from); err != nil {
		return from, err
	}

	switch {
	case action == lifecycle.ActionPost:
		if err := s.openItemOnPost(ctx, doc); err != nil {
			return from, err
		}
	case action == lifecycle.ActionVoid && from == lifecycle.StatusPosted:
		if err := s.voidOpenItem(ctx, doc, now); err != nil {
			return from, err
		}
	}

	doc.AddDomainEvent(finance.NewDocumentEvent(base, action, from, actor))
	return from, nil
}

// openItemOnPost projects the posted document onto its control account.
// Posting is one-way, so the item never exists yet.
func (s *DocumentService[D]) openItemOnPost(ctx context.Context, doc D) error {
	if !s.spec.HasOpenItem() || s.openItems == nil {
		return nil
	}
	item, ok := finance.NewOpenItem(doc)
	if !ok {
		return nil
	}
	return s.openItems.Create(ctx, item)
}

// voidOpenItem retires the open item of a posted document. A document whose
// item has already been cleared cannot be voided.
func (s *DocumentService[D]) voidOpenItem(ctx context.Context, doc D, at time.Time) error {
	if !s.spec.HasOpenItem() || s.openItems == nil {
		return nil
	}
	item, err := s.openItems.FindByDocument(ctx, s.spec.Kind, doc.GetID())
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := item.Void(at); err != nil {
		return err
	}
	item.IncrementVersion()
	return s.openItems.Update(ctx, item)
}

// Settle moves a posted document to its settled status once its open item
// is fully cleared. It runs inside the clearing transaction and returns the
// events to publish after commit.
func (s *DocumentService[D]) Settle(ctx context.Context, id, actor uuid.UUID) ([]shared.DomainEvent, error) {
	return s.system(ctx, id, lifecycle.ActionSettle, actor)
}

// Unsettle moves a settled document back to POSTED when a clearing is
// reversed. Documents that never reached the settled status are left alone.
func (s *DocumentService[D]) Unsettle(ctx context.Context, id, actor uuid.UUID) ([]shared.DomainEvent, error) {
	return s.system(ctx, id, lifecycle.ActionUnsettle, actor)
}

func (s *DocumentService[D]) system(ctx context.Context, id uuid.UUID, action lifecycle.Action, actor uuid.UUID) ([]shared.DomainEvent, error) {
	if s.spec.SettledStatus == "" {
		return nil, nil
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, notFound(s.spec.Label)
		}
		return nil, err
	}
	status := doc.Base().Status
	switch action {
	case lifecycle.ActionSettle:
		if status == s.spec.SettledStatus {
			return nil, nil
		}
	case lifecycle.ActionUnsettle:
		if status != s.spec.SettledStatus {
			return nil, nil
		}
	}
	if _, err := s.apply(ctx, doc, action, actor, ""); err != nil {
		return nil, err
	}
	return drainEvents(doc), nil
}

// load reads a document and checks it belongs to scope
func (s *DocumentService[D]) load(ctx context.Context, id uuid.UUID, scope shared.TenantScope) (D, error) {
	var zero D
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return zero, notFound(s.spec.Label)
		}
		return zero, err
	}
	if err := doc.Base().CheckScope(scope); err != nil {
		return zero, err
	}
	return doc, nil
}

func drainEvents(agg shared.AggregateRoot) []shared.DomainEvent {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	return events
}
