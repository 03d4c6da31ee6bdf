// Package chart converts derived indicator series into chart-ready point
// lists. Absent entries are dropped entirely, so a formatted sequence is at
// most as long as its input and carries only plottable values.
package chart

import (
	"encoding/json"
	"iter"
	"time"

	"github.com/mohamedkhairy/chart-engine/pkg/series"
)

// Histogram bar colors, keyed purely on the sign of the value.
const (
	ColorPositive = "#26a69a"
	ColorNegative = "#ef5350"
)

// Point is a single chart point. It marshals with a unix-second timestamp,
// the wire shape charting frontends consume.
type Point struct {
	Time  time.Time
	Value float64
}

// MarshalJSON encodes the point as {"time": <unix seconds>, "value": v}.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time  int64   `json:"time"`
		Value float64 `json:"value"`
	}{Time: p.Time.Unix(), Value: p.Value})
}

// HistogramPoint is a chart point with a sign-derived color.
type HistogramPoint struct {
	Time  time.Time
	Value float64
	Color string
}

// MarshalJSON encodes the point as {"time": ..., "value": ..., "color": ...}.
func (p HistogramPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time  int64   `json:"time"`
		Value float64 `json:"value"`
		Color string  `json:"color"`
	}{Time: p.Time.Unix(), Value: p.Value, Color: p.Color})
}

// Points returns a lazy, restartable sequence of one point per present
// entry of s, in original order, paired with the timestamp at the same
// index. If the two slices differ in length the shorter prefix is used.
func Points(times []time.Time, s series.Series) iter.Seq[Point] {
	n := min(len(times), len(s))
	return func(yield func(Point) bool) {
		for i := 0; i < n; i++ {
			if !s[i].Valid {
				continue
			}
			if !yield(Point{Time: times[i], Value: s[i].Float64}) {
				return
			}
		}
	}
}

// HistogramPoints is Points with a color per point: ColorPositive for
// values >= 0, ColorNegative below. The classification is the sign alone —
// no hysteresis, no smoothing.
func HistogramPoints(times []time.Time, s series.Series) iter.Seq[HistogramPoint] {
	return func(yield func(HistogramPoint) bool) {
		for p := range Points(times, s) {
			color := ColorPositive
			if p.Value < 0 {
				color = ColorNegative
			}
			if !yield(HistogramPoint{Time: p.Time, Value: p.Value, Color: color}) {
				return
			}
		}
	}
}

// CollectPoints materializes Points into a slice. The result is never nil,
// so it marshals as [] rather than null.
func CollectPoints(times []time.Time, s series.Series) []Point {
	out := make([]Point, 0, s.PresentCount())
	for p := range Points(times, s) {
		out = append(out, p)
	}
	return out
}

// CollectHistogramPoints materializes HistogramPoints into a slice.
func CollectHistogramPoints(times []time.Time, s series.Series) []HistogramPoint {
	out := make([]HistogramPoint, 0, s.PresentCount())
	for p := range HistogramPoints(times, s) {
		out = append(out, p)
	}
	return out
}
