package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/sequence"
	"github.com/erp/ledger/internal/domain/shared"
	"gorm.io/gorm"
)

// incrementCounterSQL creates the counter at 1 or bumps it in one statement.
// The row lock taken by the upsert is held until the surrounding transaction
// ends, so a rolled back create releases its number.
const incrementCounterSQL = `INSERT INTO sequence_counters
	(agency_id, sub_account_key, range_key, bucket, value, format, reset_rule, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
ON CONFLICT (agency_id, sub_account_key, range_key, bucket)
DO UPDATE SET value = sequence_counters.value + 1, format = excluded.format, updated_at = excluded.updated_at
RETURNING value`

// GormCounterStore implements sequence.CounterStore using GORM
type GormCounterStore struct {
	db *gorm.DB
}

// NewGormCounterStore creates a new GormCounterStore
func NewGormCounterStore(db *gorm.DB) *GormCounterStore {
	return &GormCounterStore{db: db}
}

// Increment atomically allocates the next value of key
func (s *GormCounterStore) Increment(ctx context.Context, key sequence.CounterKey, format string, rule sequence.ResetRule) (int64, error) {
	now := time.Now().UTC()
	var value int64
	err := conn(ctx, s.db).Raw(incrementCounterSQL,
		key.Scope.AgencyID, key.Scope.SubAccountKey(), key.RangeKey, key.Bucket,
		format, rule, now, now,
	).Scan(&value).Error
	if err != nil {
		// two first allocations racing on a fresh key
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %w", shared.ErrStorageContention, err)
		}
		return 0, translate(err)
	}
	if value < 1 {
		return 0, fmt.Errorf("counter %s/%s/%s returned no value", key.Scope, key.RangeKey, key.Bucket)
	}
	return value, nil
}

// Current returns the last allocated value of key, 0 if nothing was allocated yet
func (s *GormCounterStore) Current(ctx context.Context, key sequence.CounterKey) (int64, error) {
	var counter sequence.SequenceCounter
	err := conn(ctx, s.db).
		Where("agency_id = ? AND sub_account_key = ? AND range_key = ? AND bucket = ?",
			key.Scope.AgencyID, key.Scope.SubAccountKey(), key.RangeKey, key.Bucket).
		Take(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, translate(err)
	}
	return counter.Value, nil
}
