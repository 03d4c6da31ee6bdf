package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	barWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bar_write_total",
			Help: "Total number of bar write operations",
		},
		[]string{"status"},
	)

	barWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bar_write_errors_total",
			Help: "Total number of bar write errors",
		},
		[]string{"error_type"},
	)

	barQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bar_storage_latency_seconds",
			Help:    "Bar storage operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)

	barWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bar_write_queue_depth",
			Help: "Current depth of the bar write queue",
		},
	)
)

// TimescaleDBClient implements BarStorage for TimescaleDB
type TimescaleDBClient struct {
	db          *sql.DB
	dbConfig    config.DatabaseConfig
	writeConfig WriteConfig

	writeQueue chan []*models.Bar
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// WriteConfig holds configuration for the async write path
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// WriteConfigFromChartdConfig creates a WriteConfig from ChartdConfig
func WriteConfigFromChartdConfig(cfg config.ChartdConfig) WriteConfig {
	return WriteConfig{
		BatchSize:  cfg.DBWriteBatchSize,
		Interval:   cfg.DBWriteInterval,
		QueueSize:  cfg.DBWriteQueueSize,
		MaxRetries: cfg.DBMaxRetries,
		RetryDelay: cfg.DBRetryDelay,
	}
}

// NewTimescaleDBClient creates a new TimescaleDB client
func NewTimescaleDBClient(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*TimescaleDBClient, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	clientCtx, clientCancel := context.WithCancel(context.Background())

	client := &TimescaleDBClient{
		db:          db,
		dbConfig:    dbConfig,
		writeConfig: writeConfig,
		writeQueue:  make(chan []*models.Bar, writeConfig.QueueSize),
		ctx:         clientCtx,
		cancel:      clientCancel,
	}

	logger.Info("Connected to TimescaleDB",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return client, nil
}

// Start starts the write queue processor
func (t *TimescaleDBClient) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("TimescaleDB client is already running")
	}
	t.running = true
	t.mu.Unlock()

	logger.Info("Starting bar write queue processor",
		logger.Int("batch_size", t.writeConfig.BatchSize),
		logger.Duration("interval", t.writeConfig.Interval),
	)

	t.wg.Add(1)
	go t.processWriteQueue()

	return nil
}

// Stop stops the write queue processor and flushes remaining writes. The
// queue channel is never closed, so a WriteBars racing the shutdown gets an
// error instead of a send on a closed channel.
func (t *TimescaleDBClient) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return t.db.Close()
	}
	t.running = false
	t.mu.Unlock()

	logger.Info("Stopping bar write queue processor")
	t.cancel()
	t.wg.Wait()

	// Flush writes enqueued before callers observed the shutdown
	for {
		select {
		case bars := <-t.writeQueue:
			t.writeBarsSync(context.Background(), bars)
		default:
			if err := t.db.Close(); err != nil {
				return fmt.Errorf("failed to close database connection: %w", err)
			}
			logger.Info("TimescaleDB client stopped")
			return nil
		}
	}
}

// WriteBars enqueues bars for async writing. Start must have been called.
func (t *TimescaleDBClient) WriteBars(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()
	if !running {
		barWriteErrors.WithLabelValues("not_running").Inc()
		return fmt.Errorf("bar write queue is not running")
	}

	validBars := make([]*models.Bar, 0, len(bars))
	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			logger.Warn("Invalid bar, skipping",
				logger.ErrorField(err),
				logger.String("symbol", bar.Symbol),
			)
			continue
		}
		validBars = append(validBars, bar)
	}

	if len(validBars) == 0 {
		return nil
	}

	select {
	case t.writeQueue <- validBars:
		barWriteQueueDepth.Set(float64(len(t.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		barWriteErrors.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("write queue is full")
	}
}

// GetBars retrieves bars for a symbol within a time range
func (t *TimescaleDBClient) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]*models.Bar, error) {
	startTime := time.Now()
	defer func() {
		barQueryLatency.WithLabelValues("get_bars").Observe(time.Since(startTime).Seconds())
	}()

	query := `
		SELECT symbol, timestamp, open, high, low, close, volume, vwap
		FROM bars_1m
		WHERE symbol = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`

	rows, err := t.db.QueryContext(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetLatestBars retrieves the latest N bars for a symbol
func (t *TimescaleDBClient) GetLatestBars(ctx context.Context, symbol string, limit int) ([]*models.Bar, error) {
	startTime := time.Now()
	defer func() {
		barQueryLatency.WithLabelValues("get_latest_bars").Observe(time.Since(startTime).Seconds())
	}()

	query := `
		SELECT symbol, timestamp, open, high, low, close, volume, vwap
		FROM bars_1m
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := t.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bars: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}

// Close closes the database connection
func (t *TimescaleDBClient) Close() error {
	return t.Stop()
}

// IsRunning returns whether the write processor is running
func (t *TimescaleDBClient) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func scanBars(rows *sql.Rows) ([]*models.Bar, error) {
	var bars []*models.Bar
	for rows.Next() {
		var bar models.Bar
		if err := rows.Scan(
			&bar.Symbol,
			&bar.Timestamp,
			&bar.Open,
			&bar.High,
			&bar.Low,
			&bar.Close,
			&bar.Volume,
			&bar.VWAP,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, &bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return bars, nil
}

// processWriteQueue drains the write queue in batches
func (t *TimescaleDBClient) processWriteQueue() {
	defer t.wg.Done()

	batch := make([]*models.Bar, 0, t.writeConfig.BatchSize)
	ticker := time.NewTicker(t.writeConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			if len(batch) > 0 {
				t.writeBarsSync(context.Background(), batch)
			}
			return

		case bars := <-t.writeQueue:
			batch = append(batch, bars...)
			barWriteQueueDepth.Set(float64(len(t.writeQueue)))

			if len(batch) >= t.writeConfig.BatchSize {
				t.writeBarsSync(context.Background(), batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				t.writeBarsSync(context.Background(), batch)
				batch = batch[:0]
			}
		}
	}
}

// writeBarsSync writes bars synchronously with retry
func (t *TimescaleDBClient) writeBarsSync(ctx context.Context, bars []*models.Bar) {
	if len(bars) == 0 {
		return
	}

	startTime := time.Now()

	var err error
	for attempt := 0; attempt < t.writeConfig.MaxRetries; attempt++ {
		err = t.insertBars(ctx, bars)
		if err == nil {
			break
		}

		if attempt < t.writeConfig.MaxRetries-1 {
			delay := t.writeConfig.RetryDelay * time.Duration(1<<uint(attempt))
			logger.Warn("Failed to write bars, retrying",
				logger.ErrorField(err),
				logger.Int("attempt", attempt+1),
				logger.Int("bars_count", len(bars)),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	barQueryLatency.WithLabelValues("write").Observe(time.Since(startTime).Seconds())

	if err != nil {
		barWriteErrors.WithLabelValues("write_failed").Inc()
		barWriteTotal.WithLabelValues("error").Add(float64(len(bars)))
		logger.Error("Failed to write bars after retries",
			logger.ErrorField(err),
			logger.Int("bars_count", len(bars)),
		)
		return
	}

	barWriteTotal.WithLabelValues("success").Add(float64(len(bars)))
	logger.Debug("Wrote bars",
		logger.Int("count", len(bars)),
		logger.Duration("latency", time.Since(startTime)),
	)
}

// insertBars upserts bars in a single transaction
func (t *TimescaleDBClient) insertBars(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars_1m (symbol, timestamp, open, high, low, close, volume, vwap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			vwap = EXCLUDED.vwap
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err := stmt.ExecContext(ctx,
			bar.Symbol,
			bar.Timestamp,
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
			bar.VWAP,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
