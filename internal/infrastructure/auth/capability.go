package auth

import (
	"context"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/samber/lo"
)

// Wildcard grants every capability
const Wildcard = "*"

// CapabilityOracle answers permission checks from the capabilities carried
// by the caller's token. A granted key may be exact, "*", "<module>.*" or
// "<module>.<resource>.*". System callers hold every capability.
type CapabilityOracle struct{}

// NewCapabilityOracle creates a new capability oracle
func NewCapabilityOracle() *CapabilityOracle {
	return &CapabilityOracle{}
}

// HasCapability reports whether caller may perform the action named by key
func (o *CapabilityOracle) HasCapability(_ context.Context, caller shared.Caller, key string) bool {
	if caller.System {
		return true
	}
	if key == "" {
		return false
	}
	return lo.ContainsBy(caller.Capabilities, func(granted string) bool {
		return Grants(granted, key)
	})
}

// Grants reports whether a single granted capability covers key
func Grants(granted, key string) bool {
	switch {
	case granted == Wildcard:
		return true
	case granted == key:
		return true
	case strings.HasSuffix(granted, ".*"):
		prefix := strings.TrimSuffix(granted, "*")
		// only module and module.resource wildcards are honoured
		if strings.Count(prefix, ".") > 2 {
			return false
		}
		return strings.HasPrefix(key, prefix) && len(key) > len(prefix)
	}
	return false
}

var _ shared.PermissionOracle = (*CapabilityOracle)(nil)
