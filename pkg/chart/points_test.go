package chart

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

func chartTimes(n int) []time.Time {
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Minute)
	}
	return times
}

func TestPoints_DropsAbsentEntries(t *testing.T) {
	times := chartTimes(5)
	s := series.Series{
		series.Absent(),
		series.Present(1.5),
		series.Absent(),
		series.Present(-2.5),
		series.Present(3),
	}

	got := CollectPoints(times, s)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}

	wantTimes := []time.Time{times[1], times[3], times[4]}
	wantValues := []float64{1.5, -2.5, 3}
	for i, p := range got {
		if !p.Time.Equal(wantTimes[i]) {
			t.Errorf("point %d time = %v, want %v", i, p.Time, wantTimes[i])
		}
		if p.Value != wantValues[i] {
			t.Errorf("point %d value = %v, want %v", i, p.Value, wantValues[i])
		}
	}
}

func TestPoints_Restartable(t *testing.T) {
	times := chartTimes(4)
	s := series.Series{series.Present(1), series.Absent(), series.Present(2), series.Present(3)}

	seq := Points(times, s)
	for pass := 0; pass < 2; pass++ {
		count := 0
		for range seq {
			count++
		}
		if count != 3 {
			t.Errorf("pass %d: expected 3 points, got %d", pass, count)
		}
	}
}

func TestPoints_EarlyStop(t *testing.T) {
	times := chartTimes(4)
	s := series.Series{series.Present(1), series.Present(2), series.Present(3), series.Present(4)}

	count := 0
	for range Points(times, s) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("expected iteration to stop at 2, got %d", count)
	}
}

func TestPoints_Empty(t *testing.T) {
	if got := CollectPoints(nil, nil); len(got) != 0 {
		t.Errorf("expected no points, got %d", len(got))
	}
}

func TestHistogramPoints_SignColoring(t *testing.T) {
	times := chartTimes(4)
	s := series.Series{
		series.Present(2),
		series.Present(-0.1),
		series.Present(0), // zero counts as non-negative
		series.Absent(),
	}

	got := CollectHistogramPoints(times, s)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	wantColors := []string{ColorPositive, ColorNegative, ColorPositive}
	for i, p := range got {
		if p.Color != wantColors[i] {
			t.Errorf("point %d color = %q, want %q", i, p.Color, wantColors[i])
		}
	}
}

func TestPoint_JSONShape(t *testing.T) {
	p := Point{Time: time.Unix(1704207000, 0), Value: 12.5}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"time":1704207000,"value":12.5}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	hp := HistogramPoint{Time: time.Unix(1704207000, 0), Value: -1, Color: ColorNegative}
	data, err = json.Marshal(hp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want = `{"time":1704207000,"value":-1,"color":"#ef5350"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestPoints_LengthMismatchUsesShorterPrefix(t *testing.T) {
	times := chartTimes(2)
	s := series.Series{series.Present(1), series.Present(2), series.Present(3)}
	if got := CollectPoints(times, s); len(got) != 2 {
		t.Errorf("expected 2 points, got %d", len(got))
	}
}
