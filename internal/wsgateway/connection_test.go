package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mohamedkhairy/chart-engine/internal/models"
)

func testUpdateSeries(symbol, indicator string) *models.ChartUpdate {
	return &models.ChartUpdate{
		Symbol:    symbol,
		Indicator: indicator,
		Timestamp: time.Now(),
		Points:    json.RawMessage(`[]`),
	}
}

func testUpdate(symbol string) *models.ChartUpdate {
	return testUpdateSeries(symbol, "sma_20")
}

func TestConnection_SubscribeUnsubscribe(t *testing.T) {
	conn := &Connection{
		ID:            "conn-1",
		UserID:        "user-1",
		Subscriptions: make(map[string]bool),
	}

	conn.Subscribe("AAPL", "")
	if !conn.IsSubscribed("AAPL", "") {
		t.Error("Expected connection to be subscribed to AAPL")
	}

	conn.Unsubscribe("AAPL", "")
	if conn.IsSubscribed("AAPL", "") {
		t.Error("Expected connection to be unsubscribed from AAPL")
	}
}

func TestConnection_ShouldReceiveUpdate(t *testing.T) {
	conn := &Connection{
		ID:            "conn-1",
		UserID:        "user-1",
		Subscriptions: make(map[string]bool),
	}

	// No subscriptions means receive everything
	if !conn.ShouldReceiveUpdate(testUpdate("AAPL")) {
		t.Error("Expected connection with no subscriptions to receive all updates")
	}

	conn.Subscribe("AAPL", "")
	if !conn.ShouldReceiveUpdate(testUpdate("AAPL")) {
		t.Error("Expected connection to receive update for subscribed symbol")
	}
	if conn.ShouldReceiveUpdate(testUpdate("MSFT")) {
		t.Error("Expected connection not to receive update for unsubscribed symbol")
	}
}

func TestConnection_IndicatorScopedSubscription(t *testing.T) {
	conn := &Connection{
		ID:            "conn-1",
		UserID:        "user-1",
		Subscriptions: make(map[string]bool),
	}

	conn.Subscribe("AAPL", "rsi_14")

	if !conn.ShouldReceiveUpdate(testUpdateSeries("AAPL", "rsi_14")) {
		t.Error("Expected connection to receive the subscribed series")
	}
	if conn.ShouldReceiveUpdate(testUpdateSeries("AAPL", "sma_20")) {
		t.Error("Expected other series for the symbol to be filtered")
	}
	if conn.ShouldReceiveUpdate(testUpdateSeries("MSFT", "rsi_14")) {
		t.Error("Expected the same series for another symbol to be filtered")
	}

	// A bare symbol subscription widens to every series
	conn.Subscribe("AAPL", "")
	if !conn.ShouldReceiveUpdate(testUpdateSeries("AAPL", "sma_20")) {
		t.Error("Expected bare symbol subscription to match every series")
	}

	conn.Unsubscribe("AAPL", "rsi_14")
	if conn.IsSubscribed("AAPL", "rsi_14") {
		t.Error("Expected indicator subscription to be removed")
	}
	if !conn.IsSubscribed("AAPL", "") {
		t.Error("Expected bare symbol subscription to survive")
	}
}

func TestConnection_UpdateLastPong(t *testing.T) {
	conn := &Connection{
		ID:            "conn-1",
		UserID:        "user-1",
		Subscriptions: make(map[string]bool),
		lastPong:      time.Now().Add(-1 * time.Hour),
	}

	initialPong := conn.GetLastPong()
	conn.UpdateLastPong()

	if !conn.GetLastPong().After(initialPong) {
		t.Error("Expected last pong time to advance")
	}
}
