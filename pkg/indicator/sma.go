package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// SMA computes the Simple Moving Average: the arithmetic mean of the
// `period` most recent closes ending at each index, inclusive.
// Output is absent for i < period-1. With period 1 every entry is a direct
// copy of the input.
func SMA(closes []float64, period int) (series.Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("sma: %w (got %d)", ErrInvalidPeriod, period)
	}

	out := series.Make(len(closes))

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = series.Present(sum / float64(period))
		}
	}

	return out, nil
}
