package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/chart-engine/internal/models"
)

// BarStorage defines the interface for bar history operations
type BarStorage interface {
	// WriteBars writes finalized bars to storage
	WriteBars(ctx context.Context, bars []*models.Bar) error

	// GetBars retrieves bars for a symbol within a time range, ascending
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]*models.Bar, error)

	// GetLatestBars retrieves the latest N bars for a symbol, ascending
	GetLatestBars(ctx context.Context, symbol string, limit int) ([]*models.Bar, error)

	// Close closes the storage connection
	Close() error
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error
	PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error
	ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error)
	AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error

	// Key-value operations (latest-series cache)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}
