package domain

import "fmt"

// Reducer names a spatial aggregation function.
type Reducer string

const (
	ReducerMean   Reducer = "mean"
	ReducerMax    Reducer = "max"
	ReducerStdDev Reducer = "stdDev"
	ReducerSum    Reducer = "sum"
)

// Valid reports whether r is a supported reducer.
func (r Reducer) Valid() bool {
	switch r {
	case ReducerMean, ReducerMax, ReducerStdDev, ReducerSum:
		return true
	default:
		return false
	}
}

// BandReducer pairs a band with the reducer applied to it.
type BandReducer struct {
	Band    string
	Reducer Reducer
}

// Key is the result key for the pair, e.g. "precipitation_mean".
func (p BandReducer) Key() string {
	return p.Band + "_" + string(p.Reducer)
}

// Pairs applies every reducer to every band, bands varying slowest.
func Pairs(bands []string, reducers ...Reducer) []BandReducer {
	out := make([]BandReducer, 0, len(bands)*len(reducers))
	for _, b := range bands {
		for _, r := range reducers {
			out = append(out, BandReducer{Band: b, Reducer: r})
		}
	}
	return out
}

// Reduction describes one spatial aggregation call.
type Reduction struct {
	Pairs    []BandReducer
	Scale    float64 // sampling spacing in grid units
	PixelCap int64   // maximum samples considered per call
}

// AggregationResult maps "band_reducer" keys to scalars.
type AggregationResult map[string]float64

// Get returns the value for a band and reducer.
func (r AggregationResult) Get(band string, reducer Reducer) (float64, error) {
	key := BandReducer{Band: band, Reducer: reducer}.Key()
	v, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("aggregation result has no %q", key)
	}
	return v, nil
}
