package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// RSI computes the Relative Strength Index over per-step gains and losses:
//
//	gain[i] = max(0, close[i] - close[i-1])
//	loss[i] = max(0, close[i-1] - close[i])
//	RS      = avgGain / avgLoss
//	RSI     = 100 - 100/(1+RS)
//
// avgGain and avgLoss are *simple* rolling means over the trailing `period`
// steps — deliberately not Wilder's recursive smoothing, to match the
// reference charting behavior this engine reproduces. When avgLoss is zero
// the output is exactly 100 (maximal strength, and no division by zero).
// Output is absent for i < period and bounded to [0, 100] wherever present.
func RSI(closes []float64, period int) (series.Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("rsi: %w (got %d)", ErrInvalidPeriod, period)
	}

	out := series.Make(len(closes))
	if len(closes) == 0 {
		return out, nil
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains[i] = diff
		} else {
			losses[i] = -diff
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}

		avgGain := gainSum / float64(period)
		avgLoss := lossSum / float64(period)

		if avgLoss == 0 {
			out[i] = series.Present(100)
			continue
		}

		rs := avgGain / avgLoss
		out[i] = series.Present(100 - 100/(1+rs))
	}

	return out, nil
}
