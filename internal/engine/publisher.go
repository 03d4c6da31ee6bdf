package engine

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
	updatesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_updates_published_total",
			Help: "Total number of chart updates published to the stream",
		},
		[]string{"status"},
	)

	publishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chart_updates_publish_latency_seconds",
			Help:    "Latency of publishing chart update batches",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	publishQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chart_updates_publish_queue_depth",
			Help: "Number of chart updates waiting to be published",
		},
	)
)

// PublisherConfig holds configuration for the update publisher
type PublisherConfig struct {
	UpdateStream string
	KeyPrefix    string
	UpdateTTL    time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// DefaultPublisherConfig returns default publisher configuration
func DefaultPublisherConfig(updateStream string, updateTTL time.Duration) PublisherConfig {
	return PublisherConfig{
		UpdateStream: updateStream,
		KeyPrefix:    "chart",
		UpdateTTL:    updateTTL,
		BatchSize:    50,
		BatchTimeout: 100 * time.Millisecond,
		QueueSize:    1000,
	}
}

// UpdatePublisher fans recomputed chart series out to the update stream and
// caches the latest series per symbol and indicator in Redis.
//
// Publishing is asynchronous: Publish enqueues and returns immediately,
// and a background worker flushes batches so a slow Redis never blocks
// bar processing.
type UpdatePublisher struct {
	config  PublisherConfig
	redis   storage.RedisClient
	queue   chan *models.ChartUpdate
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewUpdatePublisher creates a new update publisher
func NewUpdatePublisher(redis storage.RedisClient, config PublisherConfig) *UpdatePublisher {
	ctx, cancel := context.WithCancel(context.Background())

	return &UpdatePublisher{
		config: config,
		redis:  redis,
		queue:  make(chan *models.ChartUpdate, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the background publish worker
func (p *UpdatePublisher) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher is already running")
	}
	p.running = true
	p.mu.Unlock()

	logger.Info("Starting update publisher",
		logger.String("stream", p.config.UpdateStream),
		logger.Int("batch_size", p.config.BatchSize),
	)

	p.wg.Add(1)
	go p.publishLoop()

	return nil
}

// Stop flushes pending updates and stops the worker
func (p *UpdatePublisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	logger.Info("Stopping update publisher")
	p.cancel()
	p.wg.Wait()
	logger.Info("Update publisher stopped")
}

// Publish enqueues chart updates for publishing. Updates are dropped with a
// warning when the queue is full.
func (p *UpdatePublisher) Publish(updates []*models.ChartUpdate) {
	for _, update := range updates {
		select {
		case p.queue <- update:
			publishQueueDepth.Inc()
		default:
			updatesPublished.WithLabelValues("dropped").Inc()
			logger.Warn("Publish queue full, dropping chart update",
				logger.String("symbol", update.Symbol),
				logger.String("indicator", update.Indicator),
			)
		}
	}
}

func (p *UpdatePublisher) publishLoop() {
	defer p.wg.Done()

	batch := make([]*models.ChartUpdate, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			// Drain whatever is queued before shutting down
			for {
				select {
				case update := <-p.queue:
					publishQueueDepth.Dec()
					batch = append(batch, update)
				default:
					if len(batch) > 0 {
						p.flush(batch)
					}
					return
				}
			}

		case update := <-p.queue:
			publishQueueDepth.Dec()
			batch = append(batch, update)
			if len(batch) >= p.config.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush publishes a batch to the stream and refreshes the latest-series cache
func (p *UpdatePublisher) flush(batch []*models.ChartUpdate) {
	start := time.Now()

	messages := make([]map[string]interface{}, 0, len(batch))
	for _, update := range batch {
		data, err := json.Marshal(update)
		if err != nil {
			updatesPublished.WithLabelValues("error").Inc()
			logger.Error("Failed to marshal chart update",
				logger.ErrorField(err),
				logger.String("symbol", update.Symbol),
				logger.String("indicator", update.Indicator),
			)
			continue
		}
		messages = append(messages, map[string]interface{}{"update": string(data)})
	}

	if len(messages) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.redis.PublishBatchToStream(ctx, p.config.UpdateStream, messages); err != nil {
		updatesPublished.WithLabelValues("error").Add(float64(len(messages)))
		logger.Error("Failed to publish chart update batch",
			logger.ErrorField(err),
			logger.String("stream", p.config.UpdateStream),
			logger.Int("batch_size", len(messages)),
		)
		return
	}

	updatesPublished.WithLabelValues("success").Add(float64(len(messages)))

	for _, update := range batch {
		key := p.cacheKey(update.Symbol, update.Indicator)
		if err := p.redis.Set(ctx, key, update, p.config.UpdateTTL); err != nil {
			logger.Warn("Failed to cache latest chart series",
				logger.ErrorField(err),
				logger.String("key", key),
			)
		}
	}

	publishLatency.Observe(time.Since(start).Seconds())
}

// IsRunning returns whether the publish worker is running
func (p *UpdatePublisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *UpdatePublisher) cacheKey(symbol, indicator string) string {
	return fmt.Sprintf("%s:%s:%s", p.config.KeyPrefix, symbol, indicator)
}

// GetLatest reads the most recent cached series for a symbol and indicator.
// Returns nil when nothing is cached.
func (p *UpdatePublisher) GetLatest(ctx context.Context, symbol, indicator string) (*models.ChartUpdate, error) {
	var update models.ChartUpdate
	if err := p.redis.GetJSON(ctx, p.cacheKey(symbol, indicator), &update); err != nil {
		return nil, fmt.Errorf("failed to read cached series: %w", err)
	}
	if update.Symbol == "" {
		return nil, nil
	}
	return &update, nil
}
