package indicator

import (
	"errors"
	"math"
	"testing"
)

func walkCloses(n int) []float64 {
	closes := make([]float64, n)
	x := 500.0
	seed := uint64(7)
	for i := range closes {
		seed = seed*6364136223846793005 + 1442695040888963407
		x += float64(int64(seed>>33)%100-50) / 20
		closes[i] = x
	}
	return closes
}

func TestMACD_Alignment(t *testing.T) {
	closes := walkCloses(120)
	fast, slow, signalPeriod := DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal

	res, err := MACD(closes, fast, slow, signalPeriod)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}

	for _, s := range []struct {
		name string
		len  int
	}{
		{"macd", len(res.MACD)},
		{"signal", len(res.Signal)},
		{"histogram", len(res.Histogram)},
	} {
		if s.len != len(closes) {
			t.Errorf("%s length %d != input length %d", s.name, s.len, len(closes))
		}
	}

	// The macd line becomes present exactly where the slow EMA does.
	if got := res.MACD.FirstPresent(); got != slow-1 {
		t.Errorf("first macd index = %d, want %d", got, slow-1)
	}

	// The signal line warms up over the first signalPeriod *present* macd
	// values: its first present index is slow-1 + signalPeriod-1.
	wantSignalStart := slow - 1 + signalPeriod - 1
	if got := res.Signal.FirstPresent(); got != wantSignalStart {
		t.Errorf("first signal index = %d, want %d", got, wantSignalStart)
	}

	// From there on, macd, signal and histogram advance one-for-one.
	for i := wantSignalStart; i < len(closes); i++ {
		if _, ok := res.Signal.At(i); !ok {
			t.Errorf("signal[%d] should be present", i)
		}
		if _, ok := res.Histogram.At(i); !ok {
			t.Errorf("histogram[%d] should be present", i)
		}
	}
}

func TestMACD_HistogramIdentity(t *testing.T) {
	closes := walkCloses(150)
	res, err := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}

	for i := range closes {
		m, mok := res.MACD.At(i)
		s, sok := res.Signal.At(i)
		h, hok := res.Histogram.At(i)

		if hok != (mok && sok) {
			t.Errorf("histogram[%d] presence %v, want %v", i, hok, mok && sok)
			continue
		}
		if hok && math.Abs(h-(m-s)) > 1e-9 {
			t.Errorf("histogram[%d] = %v, want macd-signal = %v", i, h, m-s)
		}
	}
}

func TestMACD_LineIsEMADifference(t *testing.T) {
	closes := walkCloses(80)
	fast, slow := 5, 10

	res, err := MACD(closes, fast, slow, 4)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}
	fastEMA, _ := EMA(closes, fast)
	slowEMA, _ := EMA(closes, slow)

	for i := range closes {
		m, mok := res.MACD.At(i)
		f, fok := fastEMA.At(i)
		s, sok := slowEMA.At(i)
		if mok != (fok && sok) {
			t.Errorf("macd[%d] presence %v, want %v", i, mok, fok && sok)
			continue
		}
		if mok && math.Abs(m-(f-s)) > 1e-9 {
			t.Errorf("macd[%d] = %v, want %v", i, m, f-s)
		}
	}
}

func TestMACD_SignalSeededOnCompactedValues(t *testing.T) {
	closes := walkCloses(100)
	fast, slow, signalPeriod := 3, 6, 4

	res, err := MACD(closes, fast, slow, signalPeriod)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}

	// Recompute the signal by hand over the dense macd values; treating the
	// absent prefix as zeros would produce a different seed.
	dense, indices := res.MACD.Compact()
	wantSignal, err := EMA(dense, signalPeriod)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}

	for j, i := range indices {
		got, gok := res.Signal.At(i)
		want, wok := wantSignal.At(j)
		if gok != wok {
			t.Errorf("signal[%d] presence %v, want %v", i, gok, wok)
			continue
		}
		if gok && math.Abs(got-want) > 1e-9 {
			t.Errorf("signal[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestMACD_ShortAndEmptyInput(t *testing.T) {
	res, err := MACD(nil, 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}
	if len(res.MACD) != 0 || len(res.Signal) != 0 || len(res.Histogram) != 0 {
		t.Error("empty input should produce empty series")
	}

	res, err = MACD(walkCloses(10), 12, 26, 9)
	if err != nil {
		t.Fatalf("MACD failed: %v", err)
	}
	if res.MACD.PresentCount() != 0 || res.Signal.PresentCount() != 0 || res.Histogram.PresentCount() != 0 {
		t.Error("input shorter than the slow period should be entirely absent")
	}
}

func TestMACD_InvalidPeriods(t *testing.T) {
	closes := walkCloses(50)
	for _, periods := range [][3]int{{0, 26, 9}, {12, 0, 9}, {12, 26, 0}} {
		_, err := MACD(closes, periods[0], periods[1], periods[2])
		if !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("periods %v: expected ErrInvalidPeriod, got %v", periods, err)
		}
	}
}
