package finance

import (
	"context"

	"github.com/erp/ledger/internal/domain/finance"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Settler moves documents of one kind between POSTED and their settled
// status. DocumentService implements it.
type Settler interface {
	Kind() finance.Kind
	Settle(ctx context.Context, documentID, actor uuid.UUID) ([]shared.DomainEvent, error)
	Unsettle(ctx context.Context, documentID, actor uuid.UUID) ([]shared.DomainEvent, error)
}

// SettlementRegistry routes open items back to the service of their
// originating document kind
type SettlementRegistry struct {
	settlers map[finance.Kind]Settler
}

// NewSettlementRegistry creates a registry. Settlers of kinds that never
// settle are ignored.
func NewSettlementRegistry(settlers ...Settler) *SettlementRegistry {
	r := &SettlementRegistry{settlers: make(map[finance.Kind]Settler)}
	for _, s := range settlers {
		r.Register(s)
	}
	return r
}

// Register adds s to the registry
func (r *SettlementRegistry) Register(s Settler) {
	spec, ok := finance.SpecFor(s.Kind())
	if !ok || spec.SettledStatus == "" {
		return
	}
	r.settlers[s.Kind()] = s
}

// Kinds returns the registered kinds
func (r *SettlementRegistry) Kinds() []finance.Kind {
	kinds := make([]finance.Kind, 0, len(r.settlers))
	for _, k := range finance.AllKinds() {
		if _, ok := r.settlers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// settle settles the document behind item if item is fully cleared
func (r *SettlementRegistry) settle(ctx context.Context, item *finance.OpenItem, actor uuid.UUID) ([]shared.DomainEvent, error) {
	if item.Status != finance.OpenItemStatusCleared {
		return nil, nil
	}
	s, ok := r.settlers[item.DocumentKind]
	if !ok {
		return nil, nil
	}
	return s.Settle(ctx, item.DocumentID, actor)
}

// unsettle reopens the document behind item if item is no longer cleared
func (r *SettlementRegistry) unsettle(ctx context.Context, item *finance.OpenItem, actor uuid.UUID) ([]shared.DomainEvent, error) {
	if item.Status == finance.OpenItemStatusCleared {
		return nil, nil
	}
	s, ok := r.settlers[item.DocumentKind]
	if !ok {
		return nil, nil
	}
	return s.Unsettle(ctx, item.DocumentID, actor)
}
