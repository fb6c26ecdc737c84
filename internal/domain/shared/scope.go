package shared

import (
	"context"

	"github.com/google/uuid"
)

// TenantScope identifies the accounting entity a record belongs to.
// A scope is either agency-only or agency plus one sub-account; a nil
// SubAccountID means the agency itself.
type TenantScope struct {
	AgencyID     uuid.UUID  `json:"agency_id"`
	SubAccountID *uuid.UUID `json:"sub_account_id,omitempty"`
}

// AgencyScope returns the agency-level scope
func AgencyScope(agencyID uuid.UUID) TenantScope {
	return TenantScope{AgencyID: agencyID}
}

// SubAccountScope returns a sub-account scope nested under agencyID
func SubAccountScope(agencyID, subAccountID uuid.UUID) TenantScope {
	return TenantScope{AgencyID: agencyID, SubAccountID: &subAccountID}
}

// Validate checks the scope is well formed
func (s TenantScope) Validate() error {
	if s.AgencyID == uuid.Nil {
		return ErrUnauthorized
	}
	if s.SubAccountID != nil && *s.SubAccountID == uuid.Nil {
		return NewValidationError("sub_account_id cannot be the nil UUID")
	}
	return nil
}

// IsAgency reports whether this is an agency-level scope
func (s TenantScope) IsAgency() bool {
	return s.SubAccountID == nil
}

// Matches reports whether a record stamped with agencyID/subAccountID belongs
// to exactly this scope. Agency scope only matches records with no sub-account.
func (s TenantScope) Matches(agencyID uuid.UUID, subAccountID *uuid.UUID) bool {
	if s.AgencyID != agencyID {
		return false
	}
	if s.SubAccountID == nil || subAccountID == nil {
		return s.SubAccountID == nil && subAccountID == nil
	}
	return *s.SubAccountID == *subAccountID
}

// SubAccountKey is the non-null form of the sub-account used in unique keys
func (s TenantScope) SubAccountKey() string {
	if s.SubAccountID == nil {
		return ""
	}
	return s.SubAccountID.String()
}

// String renders the scope for logs
func (s TenantScope) String() string {
	if s.SubAccountID == nil {
		return s.AgencyID.String()
	}
	return s.AgencyID.String() + "/" + s.SubAccountID.String()
}

// Caller is the resolved identity an action runs under
type Caller struct {
	UserID       uuid.UUID
	Scope        TenantScope
	Capabilities []string
	System       bool
}

// SystemCaller builds the identity used by background jobs
func SystemCaller(userID uuid.UUID, scope TenantScope) Caller {
	return Caller{UserID: userID, Scope: scope, System: true}
}

// SessionResolver turns an authenticated request context into a Caller.
// It fails with ErrUnauthorized when no tenant context can be resolved.
type SessionResolver interface {
	Resolve(ctx context.Context) (Caller, error)
}

// PermissionOracle answers capability checks, one per action
type PermissionOracle interface {
	HasCapability(ctx context.Context, caller Caller, key string) bool
}

type callerKey struct{}

// WithCaller stores the caller in ctx
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored in ctx
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
