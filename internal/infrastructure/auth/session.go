package auth

import (
	"context"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// ContextSessionResolver resolves the caller the JWT middleware stored in the
// request context
type ContextSessionResolver struct{}

// NewContextSessionResolver creates a new resolver
func NewContextSessionResolver() *ContextSessionResolver {
	return &ContextSessionResolver{}
}

// Resolve returns the caller for ctx or shared.ErrUnauthorized
func (ContextSessionResolver) Resolve(ctx context.Context) (shared.Caller, error) {
	caller, ok := shared.CallerFromContext(ctx)
	if !ok || caller.UserID == uuid.Nil {
		return shared.Caller{}, shared.ErrUnauthorized
	}
	if err := caller.Scope.Validate(); err != nil {
		return shared.Caller{}, shared.ErrUnauthorized
	}
	return caller, nil
}

var _ shared.SessionResolver = ContextSessionResolver{}
