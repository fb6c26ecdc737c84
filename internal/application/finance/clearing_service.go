package finance

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Open item capability actions
const (
	OpenItemActionView    = "view"
	OpenItemActionClear   = "clear"
	OpenItemActionReverse = "reverse"
)

// OpenItemPermissionKey returns the capability for action on the open items
// of control, e.g. "accounts_payable.open_items.clear"
func OpenItemPermissionKey(control finance.ControlAccount, action string) string {
	module := "accounts_receivable"
	if control == finance.ControlAccountPayable {
		module = "accounts_payable"
	}
	return module + ".open_items." + action
}

// ReverseClearingInput is the payload of a clearing reversal
type ReverseClearingInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ClearingService commits and reverses clearing groups over open items
type ClearingService struct {
	Infra
	openItems   finance.OpenItemRepository
	clearings   finance.ClearingRepository
	settlements *SettlementRegistry
}

// NewClearingService creates a new ClearingService
func NewClearingService(
	openItems finance.OpenItemRepository,
	clearings finance.ClearingRepository,
	settlements *SettlementRegistry,
	infra Infra,
	opts ...ServiceOption,
) *ClearingService {
	if settlements == nil {
		settlements = NewSettlementRegistry()
	}
	return &ClearingService{
		Infra:       infra.with(opts),
		openItems:   openItems,
		clearings:   clearings,
		settlements: settlements,
	}
}

// ListOpenItems returns one page of the caller's open items. Without a
// control account filter the caller needs view rights on both ledgers.
func (s *ClearingService) ListOpenItems(ctx context.Context, filter finance.OpenItemFilter) (shared.Paginated[finance.OpenItem], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "open_item", "list")
	defer span.End()

	caller, err := s.authorizeView(ctx, filter.ControlAccount)
	if err != nil {
		return shared.Paginated[finance.OpenItem]{}, err
	}
	filter.Normalize()
	items, total, err := s.openItems.List(ctx, caller.Scope, filter)
	if err != nil {
		return shared.Paginated[finance.OpenItem]{}, s.fail(ctx, span, "open_item.list", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

func (s *ClearingService) authorizeView(ctx context.Context, control *finance.ControlAccount) (shared.Caller, error) {
	if control != nil {
		if !control.IsValid() {
			return shared.Caller{}, shared.NewValidationError("Unknown control account %s", *control)
		}
		return s.authorize(ctx, OpenItemPermissionKey(*control, OpenItemActionView))
	}
	caller, err := s.authorize(ctx, OpenItemPermissionKey(finance.ControlAccountPayable, OpenItemActionView))
	if err != nil {
		return caller, err
	}
	return s.authorize(ctx, OpenItemPermissionKey(finance.ControlAccountReceivable, OpenItemActionView))
}

// Clear commits a clearing group. Every member item is reduced, the
// clearing record is stored and fully cleared items settle their documents,
// all in one transaction: either the whole group applies or nothing does.
func (s *ClearingService) Clear(ctx context.Context, in finance.ClearingInput) (*finance.Clearing, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "clearing", "clear")
	defer span.End()

	caller, err := s.Sessions.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Validator.Struct(in); err != nil {
		return nil, err
	}
	if err := in.Group.Validate(s.Tolerance); err != nil {
		return nil, err
	}

	at := s.now()
	if in.ClearingDate != nil {
		at = *in.ClearingDate
	}

	var (
		clearing *finance.Clearing
		events   []shared.DomainEvent
	)
	labels := telemetry.LedgerOperationLabels("clearing.clear", "", "", "")
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		err = s.retrying(ctx, "clearing.clear", func(ctx context.Context) error {
			events = nil
			c, settled, err := s.clear(ctx, caller, in, at)
			if err != nil {
				return err
			}
			clearing, events = c, settled
			return nil
		})
	})
	if err != nil {
		return nil, s.fail(ctx, span, "clearing.clear", err, zap.Int("members", len(in.Group.Members)))
	}

	s.Metrics.RecordClearing(ctx, caller.Scope.AgencyID, string(clearing.ControlAccount), clearing.Currency, len(clearing.Lines))
	telemetry.SetAttributes(span, "clearing.id", clearing.ID.String(), "clearing.number", clearing.Number)
	s.publish(ctx, append(drainEvents(clearing), events...))
	return clearing, nil
}

func (s *ClearingService) clear(ctx context.Context, caller shared.Caller, in finance.ClearingInput, at time.Time) (*finance.Clearing, []shared.DomainEvent, error) {
	items, err := s.loadItems(ctx, in.Group.ItemIDs())
	if err != nil {
		return nil, nil, err
	}

	first, ok := items[in.Group.Members[0].OpenItemID]
	if ok && first.CheckScope(caller.Scope) == nil {
		key := OpenItemPermissionKey(first.ControlAccount, OpenItemActionClear)
		if !s.Oracle.HasCapability(ctx, caller, key) {
			return nil, nil, shared.NewPermissionDenied(key)
		}
	}

	req := finance.ClearingSequence
	req.Scope = caller.Scope
	req.AsOf = at
	started := time.Now()
	alloc, err := s.Allocator.Allocate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	s.Metrics.RecordAllocation(ctx, caller.Scope.AgencyID, req.RangeKey, time.Since(started))

	c, err := finance.NewClearing(caller.Scope, caller.UserID, alloc.Number, in.Group, items, s.Tolerance, at)
	if err != nil {
		return nil, nil, err
	}
	c.Notes = in.Notes

	for _, id := range in.Group.ItemIDs() {
		item := items[id]
		item.IncrementVersion()
		if err := s.openItems.Update(ctx, item); err != nil {
			return nil, nil, err
		}
	}
	if err := s.clearings.Create(ctx, c); err != nil {
		return nil, nil, err
	}

	var events []shared.DomainEvent
	for _, id := range in.Group.ItemIDs() {
		settled, err := s.settlements.settle(ctx, items[id], caller.UserID)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, settled...)
	}
	return c, events, nil
}

// Reverse undoes a clearing: remaining amounts and statuses are restored,
// settled documents go back to POSTED and the clearing is marked REVERSED
func (s *ClearingService) Reverse(ctx context.Context, clearingID uuid.UUID, in ReverseClearingInput) (*finance.Clearing, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "clearing", "reverse")
	defer span.End()

	caller, err := s.Sessions.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Validator.Struct(in); err != nil {
		return nil, err
	}

	var (
		clearing *finance.Clearing
		events   []shared.DomainEvent
	)
	err = s.retrying(ctx, "clearing.reverse", func(ctx context.Context) error {
		c, err := load(ctx, s.clearings.FindByID, clearingID, caller.Scope, "clearing")
		if err != nil {
			return err
		}
		key := OpenItemPermissionKey(c.ControlAccount, OpenItemActionReverse)
		if !s.Oracle.HasCapability(ctx, caller, key) {
			return shared.NewPermissionDenied(key)
		}

		ids := lo.Map(c.Lines, func(l finance.ClearingLine, _ int) uuid.UUID { return l.OpenItemID })
		items, err := s.loadItems(ctx, ids)
		if err != nil {
			return err
		}
		if err := c.Reverse(items, caller.UserID, in.Reason, s.now()); err != nil {
			return err
		}
		c.IncrementVersion()
		if err := s.clearings.Update(ctx, c); err != nil {
			return err
		}

		events = nil
		for _, id := range lo.Uniq(ids) {
			item := items[id]
			item.IncrementVersion()
			if err := s.openItems.Update(ctx, item); err != nil {
				return err
			}
			reopened, err := s.settlements.unsettle(ctx, item, caller.UserID)
			if err != nil {
				return err
			}
			events = append(events, reopened...)
		}
		clearing = c
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, "clearing.reverse", err, zap.String("clearing_id", clearingID.String()))
	}

	s.Metrics.RecordClearingReversal(ctx, caller.Scope.AgencyID, string(clearing.ControlAccount))
	s.publish(ctx, append(drainEvents(clearing), events...))
	return clearing, nil
}

// GetClearing returns a clearing record with its lines
func (s *ClearingService) GetClearing(ctx context.Context, id uuid.UUID) (*finance.Clearing, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "clearing", "get")
	defer span.End()

	caller, err := s.Sessions.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	c, err := load(ctx, s.clearings.FindByID, id, caller.Scope, "clearing")
	if err != nil {
		return nil, s.fail(ctx, span, "clearing.get", err)
	}
	key := OpenItemPermissionKey(c.ControlAccount, OpenItemActionView)
	if !s.Oracle.HasCapability(ctx, caller, key) {
		return nil, shared.NewPermissionDenied(key)
	}
	return c, nil
}

// SuggestMatchesInput narrows auto-matching to one ledger and currency
type SuggestMatchesInput struct {
	ControlAccount finance.ControlAccount `json:"control_account" validate:"required,oneof=ACCOUNTS_PAYABLE ACCOUNTS_RECEIVABLE"`
	Currency       string                 `json:"currency" validate:"omitempty,iso4217"`
}

// SuggestMatches proposes exact-amount pairs among the caller's clearable
// items. Nothing is committed; each suggestion can be sent to Clear.
func (s *ClearingService) SuggestMatches(ctx context.Context, in SuggestMatchesInput) ([]finance.MatchSuggestion, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "clearing", "suggest_matches")
	defer span.End()

	if err := s.Validator.Struct(in); err != nil {
		return nil, err
	}
	caller, err := s.authorize(ctx, OpenItemPermissionKey(in.ControlAccount, OpenItemActionView))
	if err != nil {
		return nil, err
	}
	control := in.ControlAccount
	items, err := s.openItems.ListClearable(ctx, caller.Scope, &control, in.Currency)
	if err != nil {
		return nil, s.fail(ctx, span, "clearing.suggest_matches", err)
	}
	return finance.SuggestMatches(items, s.Tolerance), nil
}

func (s *ClearingService) loadItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*finance.OpenItem, error) {
	found, err := s.openItems.FindByIDs(ctx, lo.Uniq(ids))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return lo.KeyBy(found, func(o *finance.OpenItem) uuid.UUID { return o.ID }), nil
}
