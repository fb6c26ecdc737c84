package event

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/cache"
)

// FinanceEvents matches every event raised by the finance services
const FinanceEvents = "finance.*"

// RevalidationHandler forwards finance events to a cache.Revalidator so that
// UI caches drop stale documents
type RevalidationHandler struct {
	revalidator cache.Revalidator
}

// NewRevalidationHandler creates a new handler
func NewRevalidationHandler(revalidator cache.Revalidator) *RevalidationHandler {
	return &RevalidationHandler{revalidator: revalidator}
}

// EventTypes subscribes to all finance events
func (h *RevalidationHandler) EventTypes() []string {
	return []string{FinanceEvents}
}

// Handle turns event into a revalidation message
func (h *RevalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	scope := event.Scope()
	return h.revalidator.Revalidate(ctx, cache.RevalidationMessage{
		EventType:     event.EventType(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID().String(),
		AgencyID:      scope.AgencyID.String(),
		SubAccountID:  scope.SubAccountKey(),
		Timestamp:     event.OccurredAt().UnixNano(),
	})
}

var _ shared.EventHandler = (*RevalidationHandler)(nil)
