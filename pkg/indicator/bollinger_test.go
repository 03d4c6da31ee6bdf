package indicator

import (
	"errors"
	"math"
	"testing"
)

func TestBollingerBands_ConstantInputCollapses(t *testing.T) {
	res, err := BollingerBands([]float64{10, 10, 10, 10}, 2, 2)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}

	for i := 1; i < 4; i++ {
		u, uok := res.Upper.At(i)
		m, mok := res.Middle.At(i)
		l, lok := res.Lower.At(i)
		if !uok || !mok || !lok {
			t.Fatalf("index %d: all bands should be present", i)
		}
		if u != m || m != l || m != 10 {
			t.Errorf("index %d: bands (%v, %v, %v) should all equal 10 on constant input", i, u, m, l)
		}
	}

	if _, ok := res.Upper.At(0); ok {
		t.Error("index 0 should be absent during warm-up")
	}
}

func TestBollingerBands_Ordering(t *testing.T) {
	closes := walkCloses(120)
	res, err := BollingerBands(closes, DefaultBollingerPeriod, DefaultBollingerMult)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}

	for i := range closes {
		u, uok := res.Upper.At(i)
		m, mok := res.Middle.At(i)
		l, lok := res.Lower.At(i)
		if uok != mok || mok != lok {
			t.Fatalf("index %d: bands disagree on presence", i)
		}
		if mok && (u < m || m < l) {
			t.Errorf("index %d: ordering violated: upper=%v middle=%v lower=%v", i, u, m, l)
		}
	}
}

func TestBollingerBands_PopulationVariance(t *testing.T) {
	closes := []float64{2, 4, 6, 8}
	period := 4

	res, err := BollingerBands(closes, period, 1)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}

	// mean = 5, population variance = (9+1+1+9)/4 = 5. The sample variance
	// (divide by period-1) would be 20/3 instead.
	wantStd := math.Sqrt(5)
	u, _ := res.Upper.At(3)
	m, _ := res.Middle.At(3)
	l, _ := res.Lower.At(3)
	if math.Abs(m-5) > 1e-9 {
		t.Errorf("middle = %v, want 5", m)
	}
	if math.Abs(u-(5+wantStd)) > 1e-9 {
		t.Errorf("upper = %v, want %v", u, 5+wantStd)
	}
	if math.Abs(l-(5-wantStd)) > 1e-9 {
		t.Errorf("lower = %v, want %v", l, 5-wantStd)
	}
}

func TestBollingerBands_MiddleIsSMA(t *testing.T) {
	closes := walkCloses(60)
	res, err := BollingerBands(closes, 10, 2)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}
	sma, _ := SMA(closes, 10)
	if !res.Middle.Equal(sma, 1e-12) {
		t.Error("middle band should equal the SMA over the same window")
	}
}

func TestBollingerBands_EmptyInput(t *testing.T) {
	res, err := BollingerBands(nil, 20, 2)
	if err != nil {
		t.Fatalf("BollingerBands failed: %v", err)
	}
	if len(res.Upper) != 0 || len(res.Middle) != 0 || len(res.Lower) != 0 {
		t.Error("empty input should produce empty series")
	}
}

func TestBollingerBands_InvalidPeriod(t *testing.T) {
	_, err := BollingerBands([]float64{1, 2, 3}, 0, 2)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
