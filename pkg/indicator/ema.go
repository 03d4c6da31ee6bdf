package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// EMA computes the Exponential Moving Average
// with multiplier 2/(period+1):
//
//	ema[i] = (close[i] - ema[i-1]) * multiplier + ema[i-1]
//
// The series is seeded at index period-1 with the SMA of the first `period`
// closes — not with the first close. The fixed SMA seed keeps results
// reproducible regardless of how much leading history a caller supplies.
// Output is absent for i < period-1.
//
// The recursion is a single forward fold carrying the previous value; EMA
// cannot be expressed as an independent per-index window.
func EMA(closes []float64, period int) (series.Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("ema: %w (got %d)", ErrInvalidPeriod, period)
	}

	out := series.Make(len(closes))
	if len(closes) < period {
		return out, nil
	}

	multiplier := 2.0 / float64(period+1)

	var sum float64
	for _, c := range closes[:period] {
		sum += c
	}
	prev := sum / float64(period)
	out[period-1] = series.Present(prev)

	for i := period; i < len(closes); i++ {
		prev = (closes[i]-prev)*multiplier + prev
		out[i] = series.Present(prev)
	}

	return out, nil
}
