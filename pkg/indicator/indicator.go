// Package indicator implements the technical-indicator transforms consumed
// by the chart services. Every function is a pure, stateless recomputation
// over the full input series: it takes the ordered closes, returns a derived
// series of the same length, and holds nothing between calls. Warm-up
// indices (where the indicator is mathematically undefined) come back
// absent, never zero.
package indicator

import "errors"

// Default parameters, matching the common charting conventions.
const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerMult   = 2.0
)

// ErrInvalidPeriod is returned for any period below 1. A non-positive
// period is rejected rather than clamped: a silently adjusted window would
// change indicator semantics without any visible failure.
var ErrInvalidPeriod = errors.New("period must be at least 1")
