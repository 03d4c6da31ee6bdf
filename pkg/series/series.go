package series

import "math"

// Value is a single entry in a derived series.
// Valid reports whether the value is computable at its index; the zero
// Value is absent. Absence always means "not enough history yet", never an
// error, and is never encoded as NaN or a sentinel number.
type Value struct {
	Float64 float64
	Valid   bool
}

// Present returns a present value.
func Present(f float64) Value {
	return Value{Float64: f, Valid: true}
}

// Absent returns an absent value.
func Absent() Value {
	return Value{}
}

// Series is an ordered sequence of optional values, aligned index-for-index
// with the input it was derived from: len(Series) always equals the length
// of the input, regardless of period or data sufficiency.
type Series []Value

// Make returns an all-absent series of length n.
func Make(n int) Series {
	return make(Series, n)
}

// At returns the value at index i and whether it is present.
func (s Series) At(i int) (float64, bool) {
	v := s[i]
	return v.Float64, v.Valid
}

// PresentCount returns the number of present entries.
func (s Series) PresentCount() int {
	n := 0
	for _, v := range s {
		if v.Valid {
			n++
		}
	}
	return n
}

// FirstPresent returns the index of the first present entry, or -1 if the
// series is entirely absent.
func (s Series) FirstPresent() int {
	for i, v := range s {
		if v.Valid {
			return i
		}
	}
	return -1
}

// Compact projects the present values, in order, into a dense slice and
// returns their original indices alongside. The indices allow results
// computed over the dense slice to be scattered back to their sparse
// positions.
func (s Series) Compact() (values []float64, indices []int) {
	values = make([]float64, 0, len(s))
	indices = make([]int, 0, len(s))
	for i, v := range s {
		if v.Valid {
			values = append(values, v.Float64)
			indices = append(indices, i)
		}
	}
	return values, indices
}

// Equal reports whether two series have the same length, agree in presence
// at every index, and agree in value within tol wherever present.
func (s Series) Equal(other Series, tol float64) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Valid != other[i].Valid {
			return false
		}
		if s[i].Valid && math.Abs(s[i].Float64-other[i].Float64) > tol {
			return false
		}
	}
	return true
}
