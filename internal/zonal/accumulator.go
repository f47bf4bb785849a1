package zonal

import (
	"math"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

// accumulator tracks every supported reducer for one band in a single pass.
// Mean and variance use Welford's update.
type accumulator struct {
	n    int
	mean float64
	m2   float64
	max  float64
	sum  float64
}

func (a *accumulator) add(v float64) {
	a.n++
	if a.n == 1 || v > a.max {
		a.max = v
	}
	a.sum += v
	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)
}

// value returns the reducer's result, NaN when no valid sample was seen.
func (a *accumulator) value(r domain.Reducer) float64 {
	if a.n == 0 {
		return math.NaN()
	}
	switch r {
	case domain.ReducerMean:
		return a.mean
	case domain.ReducerMax:
		return a.max
	case domain.ReducerStdDev:
		return math.Sqrt(a.m2 / float64(a.n))
	case domain.ReducerSum:
		return a.sum
	default:
		return math.NaN()
	}
}
