package sequence

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// CounterKey identifies one independent numbering sequence
type CounterKey struct {
	Scope    shared.TenantScope
	RangeKey string
	Bucket   string
}

// SequenceCounter is the stored state of one numbering sequence. Rows are
// created lazily on first allocation, only ever incremented, never deleted.
type SequenceCounter struct {
	AgencyID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubAccountKey string    `gorm:"size:36;primaryKey"`
	RangeKey      string    `gorm:"size:64;primaryKey"`
	Bucket        string    `gorm:"size:16;primaryKey"`
	Value         int64     `gorm:"not null"`
	Format        string    `gorm:"size:100"`
	ResetRule     ResetRule `gorm:"size:16;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (SequenceCounter) TableName() string {
	return "sequence_counters"
}

// CounterStore is the persistence port for counters
type CounterStore interface {
	// Increment atomically creates the counter at 1 or adds one to it and
	// returns the new value. Concurrent callers never observe the same value.
	Increment(ctx context.Context, key CounterKey, format string, rule ResetRule) (int64, error)

	// Current returns the last allocated value, 0 when the counter does not exist
	Current(ctx context.Context, key CounterKey) (int64, error)
}
