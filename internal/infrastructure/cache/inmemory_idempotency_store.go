package cache

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	gocache "github.com/patrickmn/go-cache"
)

// InMemoryIdempotencyStore implements IdempotencyStore on go-cache.
// Suitable for single-instance deployments and tests.
type InMemoryIdempotencyStore struct {
	entries *gocache.Cache
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store.
// Expired keys are purged every cleanupInterval.
func NewInMemoryIdempotencyStore(cleanupInterval time.Duration) *InMemoryIdempotencyStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &InMemoryIdempotencyStore{
		entries: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// MarkProcessed claims key for ttl. Add fails while an unexpired entry
// exists, which makes the claim atomic.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	if err := s.entries.Add(key, time.Now(), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// IsProcessed checks if key is currently claimed
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	_, found := s.entries.Get(key)
	return found, nil
}

// Release drops the claim on key
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Close empties the store
func (s *InMemoryIdempotencyStore) Close() error {
	s.entries.Flush()
	return nil
}

// Size returns the number of live entries (for testing/monitoring)
func (s *InMemoryIdempotencyStore) Size() int {
	return s.entries.ItemCount()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
