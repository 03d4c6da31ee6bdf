package indicator

import (
	"errors"
	"math"
	"testing"
)

func TestEMA_ReferenceVector(t *testing.T) {
	// Seed at index 2 = SMA of [1,2,3] = 2; multiplier = 2/(3+1) = 0.5.
	// Index 3 = (4-2)*0.5 + 2 = 3; index 4 = (5-3)*0.5 + 3 = 4.
	out, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, ok := out.At(i); ok {
			t.Errorf("index %d should be absent during warm-up", i)
		}
	}

	want := []float64{2, 3, 4}
	for i, w := range want {
		got, ok := out.At(i + 2)
		if !ok {
			t.Fatalf("index %d should be present", i+2)
		}
		if math.Abs(got-w) > 1e-9 {
			t.Errorf("ema[%d] = %v, want %v", i+2, got, w)
		}
	}
}

func TestEMA_SMASeed(t *testing.T) {
	closes := []float64{10, 20, 30, 40, 25, 35}
	period := 4

	out, err := EMA(closes, period)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}

	seed, ok := out.At(period - 1)
	if !ok {
		t.Fatal("seed index should be present")
	}
	if math.Abs(seed-25) > 1e-9 {
		t.Errorf("seed = %v, want SMA of first %d closes = 25", seed, period)
	}

	// Fold forward by hand from the seed.
	multiplier := 2.0 / float64(period+1)
	prev := 25.0
	for i := period; i < len(closes); i++ {
		prev = (closes[i]-prev)*multiplier + prev
		got, ok := out.At(i)
		if !ok {
			t.Fatalf("index %d should be present", i)
		}
		if math.Abs(got-prev) > 1e-9 {
			t.Errorf("ema[%d] = %v, want %v", i, got, prev)
		}
	}
}

func TestEMA_ConstantInput(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	out, err := EMA(closes, 20)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}
	for i := 19; i < len(out); i++ {
		got, _ := out.At(i)
		if math.Abs(got-100) > 1e-9 {
			t.Errorf("ema[%d] = %v, want 100 on constant input", i, got)
		}
	}
}

func TestEMA_LengthInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 5, 37} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		out, err := EMA(closes, 10)
		if err != nil {
			t.Fatalf("EMA failed: %v", err)
		}
		if len(out) != n {
			t.Errorf("n=%d: output length %d != input length", n, len(out))
		}
	}
}

func TestEMA_InvalidPeriod(t *testing.T) {
	_, err := EMA([]float64{1, 2, 3}, 0)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
