package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/chart-engine/internal/config"
	"github.com/mohamedkhairy/chart-engine/internal/models"
	"github.com/mohamedkhairy/chart-engine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() config.IndicatorParams {
	return config.IndicatorParams{
		SMAPeriod:       20,
		EMAPeriod:       12,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerMult:   2.0,
	}
}

func seededStore(symbol string, n int) *storage.MockBarStorage {
	store := &storage.MockBarStorage{}
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		price += float64((i*7919+104729)%200)/100.0 - 0.95
		store.Bars = append(store.Bars, &models.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price - 0.2,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    1000,
		})
	}
	return store
}

func newTestRouter(store storage.BarStorage, redis storage.RedisClient) *mux.Router {
	handler := NewChartHandler(store, redis, testParams(), 500)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *mux.Router, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestChartHandler_GetSMA(t *testing.T) {
	router := newTestRouter(seededStore("AAPL", 60), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/aapl/sma")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, float64(20), body["period"])

	points := body["points"].([]interface{})
	// 60 bars minus 19 warm-up slots
	assert.Len(t, points, 41)

	first := points[0].(map[string]interface{})
	assert.Contains(t, first, "time")
	assert.Contains(t, first, "value")
}

func TestChartHandler_GetSMA_CustomPeriod(t *testing.T) {
	router := newTestRouter(seededStore("AAPL", 30), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL/sma?period=5")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(5), body["period"])
	assert.Len(t, body["points"].([]interface{}), 26)
}

func TestChartHandler_InvalidPeriod(t *testing.T) {
	router := newTestRouter(seededStore("AAPL", 30), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL/sma?period=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "period")
}

func TestChartHandler_MalformedRangeIsBadRequest(t *testing.T) {
	router := newTestRouter(seededStore("AAPL", 30), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL/sma?start=notatime&end=2024-03-04T10:00:00Z")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "start")

	rec, body = doRequest(t, router, "/api/v1/chart/AAPL/sma?start=2024-03-04T09:30:00Z&end=notatime")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "end")
}

func TestChartHandler_GetRSI_WarmupOnly(t *testing.T) {
	// Fewer bars than the RSI period yields an empty, not missing, series
	router := newTestRouter(seededStore("AAPL", 5), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL/rsi")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["points"])
}

func TestChartHandler_GetMACD(t *testing.T) {
	router := newTestRouter(seededStore("TSLA", 80), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/TSLA/macd")
	require.Equal(t, http.StatusOK, rec.Code)

	macd := body["macd"].([]interface{})
	signals := body["signals"].([]interface{})
	histogram := body["histogram"].([]interface{})

	// First MACD value lands on bar 26, first signal 8 present values later
	assert.Len(t, macd, 80-25)
	assert.Len(t, signals, 80-25-8)
	assert.Len(t, histogram, 80-25-8)

	bar := histogram[0].(map[string]interface{})
	assert.Contains(t, bar, "color")
}

func TestChartHandler_GetBollinger(t *testing.T) {
	router := newTestRouter(seededStore("MSFT", 40), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/MSFT/bollinger?period=10&mult=1.5")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(10), body["period"])
	assert.Equal(t, 1.5, body["mult"])

	upper := body["upper"].([]interface{})
	middle := body["middle"].([]interface{})
	lower := body["lower"].([]interface{})
	assert.Len(t, upper, 31)
	assert.Len(t, middle, 31)
	assert.Len(t, lower, 31)

	u := upper[0].(map[string]interface{})["value"].(float64)
	m := middle[0].(map[string]interface{})["value"].(float64)
	l := lower[0].(map[string]interface{})["value"].(float64)
	assert.GreaterOrEqual(t, u, m)
	assert.GreaterOrEqual(t, m, l)
}

func TestChartHandler_GetAllSeries(t *testing.T) {
	router := newTestRouter(seededStore("AAPL", 60), nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, float64(9), body["count"])
	assert.Len(t, body["series"].([]interface{}), 9)
}

func TestChartHandler_StorageError(t *testing.T) {
	store := &storage.MockBarStorage{LatestErr: fmt.Errorf("db down")}
	router := newTestRouter(store, nil)

	rec, body := doRequest(t, router, "/api/v1/chart/AAPL/sma")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load bars", body["error"])
}

func TestChartHandler_GetLatestCached(t *testing.T) {
	redis := storage.NewMockRedisClient()
	update := &models.ChartUpdate{
		Symbol:    "AAPL",
		Indicator: "sma_20",
		Timestamp: time.Now().UTC(),
		Points:    json.RawMessage(`[{"time":1709544600,"value":101.5}]`),
	}
	require.NoError(t, redis.Set(context.Background(), "chart:AAPL:sma_20", update, time.Minute))

	router := newTestRouter(&storage.MockBarStorage{}, redis)

	rec, body := doRequest(t, router, "/api/v1/chart/aapl/latest/sma_20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "sma_20", body["indicator"])
}

func TestChartHandler_GetLatestCached_Missing(t *testing.T) {
	router := newTestRouter(&storage.MockBarStorage{}, storage.NewMockRedisClient())

	rec, _ := doRequest(t, router, "/api/v1/chart/AAPL/latest/sma_20")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartHandler_GetLatestCached_NoRedis(t *testing.T) {
	router := newTestRouter(&storage.MockBarStorage{}, nil)

	rec, _ := doRequest(t, router, "/api/v1/chart/AAPL/latest/sma_20")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
