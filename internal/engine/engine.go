package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/pkg/chart"
	"github.com/mohamedkhairy/chart-engine/pkg/indicator"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	barsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_engine_bars_processed_total",
			Help: "Total number of bars processed by the chart engine",
		},
		[]string{"symbol"},
	)

	computeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chart_engine_compute_duration_seconds",
			Help:    "Duration of a full indicator recomputation for one symbol",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"symbol"},
	)
)

// OnChartUpdates is called after a symbol's indicator series are recomputed
type OnChartUpdates func(updates []*models.ChartUpdate)

// Engine consumes finalized bars and recomputes chart series.
//
// The engine keeps only a bounded bar history per symbol; the indicator
// math itself is stateless and recomputed over the full history on every
// bar. Full recomputation over chart-sized series is cheap and avoids the
// entire class of incremental-update bugs.
type Engine struct {
	cfg       config.ChartdConfig
	store     storage.BarStorage // optional bar persistence
	histories map[string]*history
	onUpdates OnChartUpdates
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

type history struct {
	bars []*models.Bar
}

// NewEngine creates a new chart engine
func NewEngine(cfg config.ChartdConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		histories: make(map[string]*history),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetBarStorage enables persisting consumed bars
func (e *Engine) SetBarStorage(store storage.BarStorage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
}

// SetOnChartUpdates sets the callback invoked after each recomputation
func (e *Engine) SetOnChartUpdates(callback OnChartUpdates) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdates = callback
}

// ProcessBar appends a finalized bar to the symbol's history and
// recomputes every configured chart series from scratch.
func (e *Engine) ProcessBar(bar *models.Bar) error {
	if bar == nil {
		return fmt.Errorf("bar cannot be nil")
	}
	if err := bar.Validate(); err != nil {
		return fmt.Errorf("invalid bar: %w", err)
	}

	e.mu.Lock()

	h, exists := e.histories[bar.Symbol]
	if !exists {
		h = &history{bars: make([]*models.Bar, 0, e.cfg.MaxBars)}
		e.histories[bar.Symbol] = h
	}

	// A bar re-published for the last timestamp replaces it; anything else
	// appends.
	if n := len(h.bars); n > 0 && h.bars[n-1].Timestamp.Equal(bar.Timestamp) {
		h.bars[n-1] = bar
	} else {
		h.bars = append(h.bars, bar)
	}
	if len(h.bars) > e.cfg.MaxBars {
		h.bars = h.bars[len(h.bars)-e.cfg.MaxBars:]
	}

	bars := make([]*models.Bar, len(h.bars))
	copy(bars, h.bars)
	store := e.store
	callback := e.onUpdates
	e.mu.Unlock()

	barsProcessed.WithLabelValues(bar.Symbol).Inc()

	if store != nil {
		ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
		if err := store.WriteBars(ctx, []*models.Bar{bar}); err != nil {
			logger.Warn("Failed to persist bar",
				logger.ErrorField(err),
				logger.String("symbol", bar.Symbol),
			)
		}
		cancel()
	}

	start := time.Now()
	updates, err := ComputeChartUpdates(bar.Symbol, bars, e.cfg.Indicators)
	computeDuration.WithLabelValues(bar.Symbol).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to recompute chart series: %w", err)
	}

	if callback != nil && len(updates) > 0 {
		callback(updates)
	}

	return nil
}

// ComputeChartUpdates recomputes every configured series over the full bar
// history and formats each as a chart update. It is a pure function of its
// inputs; the API service reuses it for on-demand computation.
func ComputeChartUpdates(symbol string, bars []*models.Bar, params config.IndicatorParams) ([]*models.ChartUpdate, error) {
	closes := make([]float64, len(bars))
	times := make([]time.Time, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		times[i] = b.Timestamp
	}

	now := time.Now().UTC()
	updates := make([]*models.ChartUpdate, 0, 9)

	appendPoints := func(name string, pts []chart.Point) error {
		payload, err := json.Marshal(pts)
		if err != nil {
			return fmt.Errorf("failed to marshal %s points: %w", name, err)
		}
		updates = append(updates, &models.ChartUpdate{
			Symbol:    symbol,
			Indicator: name,
			Timestamp: now,
			Points:    payload,
		})
		return nil
	}

	sma, err := indicator.SMA(closes, params.SMAPeriod)
	if err != nil {
		return nil, err
	}
	if err := appendPoints(fmt.Sprintf("sma_%d", params.SMAPeriod), chart.CollectPoints(times, sma)); err != nil {
		return nil, err
	}

	ema, err := indicator.EMA(closes, params.EMAPeriod)
	if err != nil {
		return nil, err
	}
	if err := appendPoints(fmt.Sprintf("ema_%d", params.EMAPeriod), chart.CollectPoints(times, ema)); err != nil {
		return nil, err
	}

	rsi, err := indicator.RSI(closes, params.RSIPeriod)
	if err != nil {
		return nil, err
	}
	if err := appendPoints(fmt.Sprintf("rsi_%d", params.RSIPeriod), chart.CollectPoints(times, rsi)); err != nil {
		return nil, err
	}

	macd, err := indicator.MACD(closes, params.MACDFast, params.MACDSlow, params.MACDSignal)
	if err != nil {
		return nil, err
	}
	macdSuffix := fmt.Sprintf("%d_%d_%d", params.MACDFast, params.MACDSlow, params.MACDSignal)
	if err := appendPoints("macd_"+macdSuffix, chart.CollectPoints(times, macd.MACD)); err != nil {
		return nil, err
	}
	if err := appendPoints("macd_signal_"+macdSuffix, chart.CollectPoints(times, macd.Signal)); err != nil {
		return nil, err
	}
	histPayload, err := json.Marshal(chart.CollectHistogramPoints(times, macd.Histogram))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal histogram points: %w", err)
	}
	updates = append(updates, &models.ChartUpdate{
		Symbol:    symbol,
		Indicator: "macd_hist_" + macdSuffix,
		Timestamp: now,
		Points:    histPayload,
	})

	boll, err := indicator.BollingerBands(closes, params.BollingerPeriod, params.BollingerMult)
	if err != nil {
		return nil, err
	}
	bbSuffix := fmt.Sprintf("%d_%.1f", params.BollingerPeriod, params.BollingerMult)
	if err := appendPoints("bb_upper_"+bbSuffix, chart.CollectPoints(times, boll.Upper)); err != nil {
		return nil, err
	}
	if err := appendPoints("bb_middle_"+bbSuffix, chart.CollectPoints(times, boll.Middle)); err != nil {
		return nil, err
	}
	if err := appendPoints("bb_lower_"+bbSuffix, chart.CollectPoints(times, boll.Lower)); err != nil {
		return nil, err
	}

	return updates, nil
}

// GetAllSymbols returns a list of all symbols being tracked
func (e *Engine) GetAllSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := make([]string, 0, len(e.histories))
	for symbol := range e.histories {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// GetSymbolCount returns the number of symbols being tracked
func (e *Engine) GetSymbolCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.histories)
}

// BarCount returns the number of bars held for a symbol
func (e *Engine) BarCount(symbol string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.histories[symbol]; ok {
		return len(h.bars)
	}
	return 0
}

// Stop stops the engine
func (e *Engine) Stop() {
	e.cancel()
}
