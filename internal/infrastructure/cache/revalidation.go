package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRevalidationChannel is the pub/sub channel read by UI caches
const DefaultRevalidationChannel = "ledger:revalidate"

// RevalidationMessage tells listeners which aggregate changed
type RevalidationMessage struct {
	EventType     string `json:"event_type"`
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	AgencyID      string `json:"agency_id"`
	SubAccountID  string `json:"sub_account_id,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Revalidator delivers revalidation signals. Delivery is best effort.
type Revalidator interface {
	Revalidate(ctx context.Context, msg RevalidationMessage) error
}

// RedisRevalidator publishes revalidation messages with Redis PUBLISH
type RedisRevalidator struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisRevalidator creates a publisher on a shared client
func NewRedisRevalidator(client *redis.Client, channel string, logger *zap.Logger) *RedisRevalidator {
	if channel == "" {
		channel = DefaultRevalidationChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRevalidator{client: client, channel: channel, logger: logger}
}

// Revalidate publishes msg on the configured channel
func (r *RedisRevalidator) Revalidate(ctx context.Context, msg RevalidationMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal revalidation message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish revalidation message: %w", err)
	}
	r.logger.Debug("Published revalidation message",
		zap.String("channel", r.channel),
		zap.String("event_type", msg.EventType),
		zap.String("aggregate_id", msg.AggregateID))
	return nil
}

// LogRevalidator only logs; used when Redis is not configured
type LogRevalidator struct {
	logger *zap.Logger
}

// NewLogRevalidator creates a logging revalidator
func NewLogRevalidator(logger *zap.Logger) *LogRevalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRevalidator{logger: logger}
}

// Revalidate logs msg at debug level
func (r *LogRevalidator) Revalidate(_ context.Context, msg RevalidationMessage) error {
	r.logger.Debug("Revalidation",
		zap.String("event_type", msg.EventType),
		zap.String("aggregate_type", msg.AggregateType),
		zap.String("aggregate_id", msg.AggregateID))
	return nil
}

var (
	_ Revalidator = (*RedisRevalidator)(nil)
	_ Revalidator = (*LogRevalidator)(nil)
)
