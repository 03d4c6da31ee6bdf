package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/engine"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/mohamedkhairy/chart-engine/pkg/chart"
	"github.com/mohamedkhairy/chart-engine/pkg/indicator"
	"github.com/mohamedkhairy/chart-engine/pkg/logger"
)

// ChartHandler serves indicator series computed on demand from stored bars
type ChartHandler struct {
	store   storage.BarStorage
	redis   storage.RedisClient // optional, serves cached latest series
	params  config.IndicatorParams
	maxBars int
}

// NewChartHandler creates a new chart handler
func NewChartHandler(store storage.BarStorage, redis storage.RedisClient, params config.IndicatorParams, maxBars int) *ChartHandler {
	return &ChartHandler{
		store:   store,
		redis:   redis,
		params:  params,
		maxBars: maxBars,
	}
}

// RegisterRoutes registers chart routes on the router
func (h *ChartHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/chart/{symbol}", h.GetAllSeries).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/sma", h.GetSMA).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/ema", h.GetEMA).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/rsi", h.GetRSI).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/macd", h.GetMACD).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/bollinger", h.GetBollinger).Methods("GET")
	r.HandleFunc("/api/v1/chart/{symbol}/latest/{indicator}", h.GetLatestCached).Methods("GET")
}

// errInvalidRange marks a client-supplied time range that failed to parse
var errInvalidRange = errors.New("invalid time range")

// respondBarLoadError maps loadCloses failures to status codes. A bad
// start/end query is the client's fault; everything else is storage.
func respondBarLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidRange) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithError(w, http.StatusInternalServerError, "Failed to load bars")
}

// loadCloses fetches the bar history for a symbol and splits it into the
// close and timestamp slices the indicator functions take. An explicit
// start/end range (RFC3339) overrides the default latest-bars window.
func (h *ChartHandler) loadCloses(r *http.Request, symbol string) ([]float64, []time.Time, error) {
	var (
		bars []*models.Bar
		err  error
	)

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr != "" && endStr != "" {
		start, perr := time.Parse(time.RFC3339, startStr)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: start must be RFC3339", errInvalidRange)
		}
		end, perr := time.Parse(time.RFC3339, endStr)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: end must be RFC3339", errInvalidRange)
		}
		bars, err = h.store.GetBars(r.Context(), symbol, start, end)
	} else {
		limit := h.maxBars
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if parsed, perr := strconv.Atoi(limitStr); perr == nil && parsed > 0 && parsed <= h.maxBars {
				limit = parsed
			}
		}
		bars, err = h.store.GetLatestBars(r.Context(), symbol, limit)
	}
	if err != nil {
		return nil, nil, err
	}

	closes := make([]float64, len(bars))
	times := make([]time.Time, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		times[i] = bar.Timestamp
	}
	return closes, times, nil
}

func (h *ChartHandler) periodParam(r *http.Request, name string, fallback int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return fallback
}

// GetSMA handles GET /api/v1/chart/{symbol}/sma
func (h *ChartHandler) GetSMA(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	period := h.periodParam(r, "period", h.params.SMAPeriod)

	closes, times, err := h.loadCloses(r, symbol)
	if err != nil {
		respondBarLoadError(w, err)
		return
	}

	series, err := indicator.SMA(closes, period)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": period,
		"points": chart.CollectPoints(times, series),
	})
}

// GetEMA handles GET /api/v1/chart/{symbol}/ema
func (h *ChartHandler) GetEMA(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	period := h.periodParam(r, "period", h.params.EMAPeriod)

	closes, times, err := h.loadCloses(r, symbol)
	if err != nil {
		respondBarLoadError(w, err)
		return
	}

	series, err := indicator.EMA(closes, period)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": period,
		"points": chart.CollectPoints(times, series),
	})
}

// GetRSI handles GET /api/v1/chart/{symbol}/rsi
func (h *ChartHandler) GetRSI(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	period := h.periodParam(r, "period", h.params.RSIPeriod)

	closes, times, err := h.loadCloses(r, symbol)
	if err != nil {
		respondBarLoadError(w, err)
		return
	}

	series, err := indicator.RSI(closes, period)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": period,
		"points": chart.CollectPoints(times, series),
	})
}

// GetMACD handles GET /api/v1/chart/{symbol}/macd
func (h *ChartHandler) GetMACD(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	fast := h.periodParam(r, "fast", h.params.MACDFast)
	slow := h.periodParam(r, "slow", h.params.MACDSlow)
	signal := h.periodParam(r, "signal", h.params.MACDSignal)

	closes, times, err := h.loadCloses(r, symbol)
	if err != nil {
		respondBarLoadError(w, err)
		return
	}

	result, err := indicator.MACD(closes, fast, slow, signal)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"fast":      fast,
		"slow":      slow,
		"signal":    signal,
		"macd":      chart.CollectPoints(times, result.MACD),
		"signals":   chart.CollectPoints(times, result.Signal),
		"histogram": chart.CollectHistogramPoints(times, result.Histogram),
	})
}

// GetBollinger handles GET /api/v1/chart/{symbol}/bollinger
func (h *ChartHandler) GetBollinger(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	period := h.periodParam(r, "period", h.params.BollingerPeriod)

	mult := h.params.BollingerMult
	if s := r.URL.Query().Get("mult"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			mult = v
		}
	}

	closes, times, err := h.loadCloses(r, symbol)
	if err != nil {
		respondBarLoadError(w, err)
		return
	}

	result, err := indicator.BollingerBands(closes, period, mult)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": period,
		"mult":   mult,
		"upper":  chart.CollectPoints(times, result.Upper),
		"middle": chart.CollectPoints(times, result.Middle),
		"lower":  chart.CollectPoints(times, result.Lower),
	})
}

// GetAllSeries handles GET /api/v1/chart/{symbol}. It recomputes the full
// configured series set over the stored history, the same set the stream
// engine publishes.
func (h *ChartHandler) GetAllSeries(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	bars, err := h.store.GetLatestBars(r.Context(), symbol, h.maxBars)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load bars")
		return
	}

	updates, err := engine.ComputeChartUpdates(symbol, bars, h.params)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute chart series")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"series": updates,
		"count":  len(updates),
	})
}

// GetLatestCached handles GET /api/v1/chart/{symbol}/latest/{indicator}.
// It serves the series most recently published by the stream engine
// without touching the database.
func (h *ChartHandler) GetLatestCached(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Cache not configured")
		return
	}

	vars := mux.Vars(r)
	symbol := strings.ToUpper(vars["symbol"])
	name := vars["indicator"]

	var update models.ChartUpdate
	key := "chart:" + symbol + ":" + name
	if err := h.redis.GetJSON(r.Context(), key, &update); err != nil {
		logger.Error("Failed to read cached series",
			logger.ErrorField(err),
			logger.String("key", key),
		)
		respondWithError(w, http.StatusInternalServerError, "Failed to read cache")
		return
	}

	if update.Symbol == "" {
		respondWithError(w, http.StatusNotFound, "No cached series for symbol")
		return
	}

	respondWithJSON(w, http.StatusOK, update)
}
