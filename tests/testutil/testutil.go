// Package testutil provides helpers shared by the ledger's cross-package
// tests: tenant scopes and callers, fixed clocks, event recorders and
// polling assertions.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewTestUUID derives a reproducible UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(testNamespace, []byte(seed))
}

// TestAgencyID is the agency most tests run under
func TestAgencyID() uuid.UUID {
	return NewTestUUID("test-agency")
}

// TestUserID is the acting user most tests run as
func TestUserID() uuid.UUID {
	return NewTestUUID("test-user")
}

// NewAgencyScope returns a fresh agency-level scope
func NewAgencyScope() shared.TenantScope {
	return shared.AgencyScope(uuid.New())
}

// NewSubAccountScope returns a fresh sub-account under agency
func NewSubAccountScope(agency shared.TenantScope) shared.TenantScope {
	return shared.SubAccountScope(agency.AgencyID, uuid.New())
}

// UserContext returns a context carrying a caller in scope with the given
// capabilities
func UserContext(scope shared.TenantScope, capabilities ...string) context.Context {
	return shared.WithCaller(context.Background(), shared.Caller{
		UserID:       uuid.New(),
		Scope:        scope,
		Capabilities: capabilities,
	})
}

// ContextSessions resolves the caller stored by shared.WithCaller
type ContextSessions struct{}

func (ContextSessions) Resolve(ctx context.Context) (shared.Caller, error) {
	caller, ok := shared.CallerFromContext(ctx)
	if !ok {
		return shared.Caller{}, shared.ErrUnauthorized
	}
	return caller, nil
}

// FixedClock returns a clock frozen at t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Date parses a YYYY-MM-DD literal
func Date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// RequireDomainCode asserts err is a domain error carrying code
func RequireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	require.Equal(t, code, de.Code)
}

// WaitForCondition polls condition until it holds or timeout elapses
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

// RequireEventually fails the test when condition does not hold in time
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...interface{}) {
	t.Helper()
	if !WaitForCondition(t, condition, timeout, interval) {
		require.Fail(t, "Condition not met within timeout", msgAndArgs...)
	}
}
