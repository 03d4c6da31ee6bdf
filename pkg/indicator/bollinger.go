package indicator

import (
	"fmt"
	"math"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// BollingerResult holds the three Bollinger Band series, each
// length-aligned with the input closes.
type BollingerResult struct {
	Upper  series.Series
	Middle series.Series
	Lower  series.Series
}

// BollingerBands computes an SMA-centered volatility envelope. The middle
// band is the SMA over `period` closes; the upper and lower bands sit
// mult standard deviations above and below it, using the *population*
// variance (divide by period, not period-1) over the same trailing window
// the SMA uses. All three bands are absent wherever the middle is absent.
func BollingerBands(closes []float64, period int, mult float64) (BollingerResult, error) {
	middle, err := SMA(closes, period)
	if err != nil {
		return BollingerResult{}, fmt.Errorf("bollinger: %w", err)
	}

	upper := series.Make(len(closes))
	lower := series.Make(len(closes))

	for i := range closes {
		mean, ok := middle.At(i)
		if !ok {
			continue
		}

		var variance float64
		for _, c := range closes[i-period+1 : i+1] {
			d := c - mean
			variance += d * d
		}
		variance /= float64(period)

		stdDev := math.Sqrt(variance)
		upper[i] = series.Present(mean + mult*stdDev)
		lower[i] = series.Present(mean - mult*stdDev)
	}

	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}, nil
}
