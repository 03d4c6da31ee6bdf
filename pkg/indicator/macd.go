package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// MACDResult holds the three Moving Average Convergence Divergence series,
// each length-aligned with the input closes.
type MACDResult struct {
	MACD      series.Series
	Signal    series.Series
	Histogram series.Series
}

// MACD computes the macd line (fast EMA minus slow EMA), its signal line
// (an EMA of the macd line), and the histogram (macd minus signal).
//
// The signal line is computed over the contiguous run of *present* macd
// values only: the sparse macd series is compacted, the signal EMA runs on
// the dense values, and the results are scattered back to their original
// index positions. Running the EMA directly against the absent-padded macd
// series would shift its seeding window, so absent entries are skipped, not
// treated as zero.
func MACD(closes []float64, fast, slow, signalPeriod int) (MACDResult, error) {
	for _, p := range []int{fast, slow, signalPeriod} {
		if p < 1 {
			return MACDResult{}, fmt.Errorf("macd: %w (got %d)", ErrInvalidPeriod, p)
		}
	}

	fastEMA, err := EMA(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMA(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}

	macd := series.Make(len(closes))
	for i := range closes {
		f, fok := fastEMA.At(i)
		s, sok := slowEMA.At(i)
		if fok && sok {
			macd[i] = series.Present(f - s)
		}
	}

	dense, indices := macd.Compact()
	signalDense, err := EMA(dense, signalPeriod)
	if err != nil {
		return MACDResult{}, err
	}

	signal := series.Make(len(closes))
	for j, i := range indices {
		signal[i] = signalDense[j]
	}

	histogram := series.Make(len(closes))
	for i := range closes {
		m, mok := macd.At(i)
		s, sok := signal.At(i)
		if mok && sok {
			histogram[i] = series.Present(m - s)
		}
	}

	return MACDResult{MACD: macd, Signal: signal, Histogram: histogram}, nil
}
