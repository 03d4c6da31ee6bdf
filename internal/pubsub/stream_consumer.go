package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_consume_total",
			Help: "Total number of messages consumed from streams",
		},
		[]string{"stream", "status"},
	)
)

// BarProcessor processes finalized bars consumed from the stream.
// The chart engine implements it; the interface keeps pubsub free of a
// dependency on the engine package.
type BarProcessor interface {
	ProcessBar(bar *models.Bar) error
}

// StreamConsumerConfig holds configuration for the stream consumer
type StreamConsumerConfig struct {
	StreamName     string
	ConsumerGroup  string
	ConsumerName   string
	BatchSize      int // Number of messages to process before acknowledging
	ProcessTimeout time.Duration
	AckTimeout     time.Duration
}

// DefaultStreamConsumerConfig returns default configuration
func DefaultStreamConsumerConfig(streamName, consumerGroup, consumerName string) StreamConsumerConfig {
	return StreamConsumerConfig{
		StreamName:     streamName,
		ConsumerGroup:  consumerGroup,
		ConsumerName:   consumerName,
		BatchSize:      100,
		ProcessTimeout: 5 * time.Second,
		AckTimeout:     10 * time.Second,
	}
}

// StreamConsumer consumes finalized bars from a Redis stream and hands them
// to the processor
type StreamConsumer struct {
	config    StreamConsumerConfig
	redis     storage.RedisClient
	processor BarProcessor
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stats     ConsumerStats
}

// ConsumerStats holds statistics about the consumer
type ConsumerStats struct {
	MessagesProcessed int64
	MessagesAcked     int64
	MessagesFailed    int64
	LastMessageTime   time.Time
	mu                sync.RWMutex
}

// NewStreamConsumer creates a new stream consumer
func NewStreamConsumer(redis storage.RedisClient, config StreamConsumerConfig) *StreamConsumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &StreamConsumer{
		config: config,
		redis:  redis,
		ctx:    ctx,
		cancel: cancel,
		stats:  ConsumerStats{},
	}
}

// SetProcessor sets the processor that handles consumed bars
func (c *StreamConsumer) SetProcessor(processor BarProcessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processor = processor
}

// Start starts consuming from the stream
func (c *StreamConsumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	logger.Info("Starting stream consumer",
		logger.String("stream", c.config.StreamName),
		logger.String("group", c.config.ConsumerGroup),
		logger.String("consumer", c.config.ConsumerName),
	)

	c.wg.Add(1)
	go c.consumeStream()

	return nil
}

// Stop stops the consumer
func (c *StreamConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logger.Info("Stopping stream consumer")
	c.cancel()
	c.wg.Wait()
	logger.Info("Stream consumer stopped")
}

// consumeStream reads messages and processes them in batches
func (c *StreamConsumer) consumeStream() {
	defer c.wg.Done()

	messageChan, err := c.redis.ConsumeFromStream(c.ctx, c.config.StreamName, c.config.ConsumerGroup, c.config.ConsumerName)
	if err != nil {
		logger.Error("Failed to start consuming from stream",
			logger.ErrorField(err),
			logger.String("stream", c.config.StreamName),
		)
		return
	}

	batch := make([]storage.StreamMessage, 0, c.config.BatchSize)
	ticker := time.NewTicker(c.config.AckTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			if len(batch) > 0 {
				c.processBatch(batch)
			}
			return

		case msg, ok := <-messageChan:
			if !ok {
				logger.Warn("Message channel closed",
					logger.String("stream", c.config.StreamName),
				)
				return
			}

			batch = append(batch, msg)

			if len(batch) >= c.config.BatchSize {
				c.processBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				c.processBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// processBatch processes a batch of messages
func (c *StreamConsumer) processBatch(messages []storage.StreamMessage) {
	if len(messages) == 0 {
		return
	}

	processed := make([]string, 0, len(messages))
	failed := 0

	for _, msg := range messages {
		bar, err := c.deserializeBar(msg)
		if err != nil {
			logger.Error("Failed to deserialize bar",
				logger.ErrorField(err),
				logger.String("stream", c.config.StreamName),
				logger.String("message_id", msg.ID),
			)
			failed++
			c.incrementFailed()
			consumeTotal.WithLabelValues(c.config.StreamName, "error").Inc()
			continue
		}

		c.mu.RLock()
		processor := c.processor
		c.mu.RUnlock()

		if processor == nil {
			logger.Warn("No processor set, skipping bar",
				logger.String("symbol", bar.Symbol),
			)
			failed++
			continue
		}

		if err := processor.ProcessBar(bar); err != nil {
			logger.Error("Failed to process bar",
				logger.ErrorField(err),
				logger.String("symbol", bar.Symbol),
				logger.String("message_id", msg.ID),
			)
			failed++
			c.incrementFailed()
			consumeTotal.WithLabelValues(c.config.StreamName, "error").Inc()
			continue
		}

		processed = append(processed, msg.ID)
		c.incrementProcessed()
		consumeTotal.WithLabelValues(c.config.StreamName, "success").Inc()
	}

	if len(processed) > 0 {
		c.acknowledgeMessages(processed)
		c.incrementAcked(int64(len(processed)))
	}

	// Failed messages stay pending and will be redelivered by the group
	if failed > 0 {
		logger.Warn("Some messages failed to process",
			logger.Int("failed_count", failed),
			logger.String("stream", c.config.StreamName),
		)
	}
}

// deserializeBar deserializes a stream message into a Bar
func (c *StreamConsumer) deserializeBar(msg storage.StreamMessage) (*models.Bar, error) {
	barJSON, ok := msg.Values["bar"].(string)
	if !ok {
		// Fall back to any string value
		for _, v := range msg.Values {
			if str, ok := v.(string); ok {
				barJSON = str
				break
			}
		}
		if barJSON == "" {
			return nil, fmt.Errorf("no bar data found in message")
		}
	}

	var bar models.Bar
	if err := json.Unmarshal([]byte(barJSON), &bar); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bar: %w", err)
	}

	return &bar, nil
}

// acknowledgeMessages acknowledges a batch of messages
func (c *StreamConsumer) acknowledgeMessages(messageIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.AckTimeout)
	defer cancel()

	for _, id := range messageIDs {
		err := c.redis.AcknowledgeMessage(ctx, c.config.StreamName, c.config.ConsumerGroup, id)
		if err != nil {
			logger.Error("Failed to acknowledge message",
				logger.ErrorField(err),
				logger.String("stream", c.config.StreamName),
				logger.String("message_id", id),
			)
		}
	}
}

func (c *StreamConsumer) incrementProcessed() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.MessagesProcessed++
	c.stats.LastMessageTime = time.Now()
}

func (c *StreamConsumer) incrementAcked(count int64) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.MessagesAcked += count
}

func (c *StreamConsumer) incrementFailed() {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.MessagesFailed++
}

// GetStats returns a snapshot of consumer statistics
func (c *StreamConsumer) GetStats() ConsumerStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ConsumerStats{
		MessagesProcessed: c.stats.MessagesProcessed,
		MessagesAcked:     c.stats.MessagesAcked,
		MessagesFailed:    c.stats.MessagesFailed,
		LastMessageTime:   c.stats.LastMessageTime,
	}
}

// IsRunning returns whether the consumer is running
func (c *StreamConsumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
