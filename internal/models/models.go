package models

import (
	"encoding/json"
	"time"
)

// Bar represents a finalized OHLCV bar. The chart engine consumes only the
// close and timestamp; the remaining fields ride along for storage.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      float64   `json:"vwap"`
}

// Validate validates a Bar
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if b.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if b.Close <= 0 {
		return ErrInvalidPrice
	}
	if b.High < b.Low {
		return ErrInvalidBar
	}
	if b.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// ChartUpdate is published after a symbol's indicator series are
// recomputed. Points carries the already-formatted point list so
// downstream consumers (the WebSocket gateway, caches) forward it without
// re-encoding.
type ChartUpdate struct {
	Symbol    string          `json:"symbol"`
	Indicator string          `json:"indicator"`
	Timestamp time.Time       `json:"timestamp"`
	Points    json.RawMessage `json:"points"`
}

// Validate validates a ChartUpdate
func (u *ChartUpdate) Validate() error {
	if u.Symbol == "" {
		return ErrInvalidSymbol
	}
	if u.Indicator == "" {
		return ErrInvalidIndicator
	}
	if u.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
