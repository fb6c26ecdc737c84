package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already handled so that a unit of
// work triggered from several places runs once
type IdempotencyStore interface {
	// MarkProcessed marks key as processed for ttl.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release forgets key so a failed unit of work can be attempted again
	Release(ctx context.Context, key string) error

	Close() error
}
