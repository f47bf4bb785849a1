package zonal

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegion(t *testing.T, ring orb.Ring) domain.Region {
	t.Helper()
	r, err := domain.NewRegion("Test", orb.Polygon{ring})
	require.NoError(t, err)
	return r
}

func square(minX, minY, size float64) orb.Ring {
	return orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}
}

func frame(t *testing.T, cols, rows int, bands map[string][]float64) domain.RasterFrame {
	t.Helper()
	f := domain.RasterFrame{Time: time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC), Bands: map[string]domain.Grid{}}
	for name, values := range bands {
		g, err := domain.NewGrid(0, 0, 10, cols, rows, values)
		require.NoError(t, err)
		f.Bands[name] = g
	}
	return f
}

func reduction(scale float64, pairs ...domain.BandReducer) domain.Reduction {
	return domain.Reduction{Pairs: pairs, Scale: scale, PixelCap: 1e13}
}

func TestReduce_AllReducersOnePass(t *testing.T) {
	f := frame(t, 2, 2, map[string][]float64{"p": {1, 2, 3, 6}})
	red := reduction(10, domain.Pairs([]string{"p"},
		domain.ReducerMean, domain.ReducerMax, domain.ReducerStdDev, domain.ReducerSum)...)

	res, err := New().Reduce(context.Background(), f, mustRegion(t, square(0, 0, 20)), red)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, res["p_mean"], 1e-12)
	assert.InDelta(t, 6.0, res["p_max"], 0)
	assert.InDelta(t, math.Sqrt(3.5), res["p_stdDev"], 1e-12)
	assert.InDelta(t, 12.0, res["p_sum"], 1e-12)
}

func TestReduce_PolygonExcludesOutsideCells(t *testing.T) {
	f := frame(t, 2, 2, map[string][]float64{"p": {1, 2, 3, 100}})
	// Triangle covering the centres of the lower-left, lower-right and upper-left cells.
	region := mustRegion(t, orb.Ring{{0, 0}, {21, 0}, {0, 21}, {0, 0}})

	res, err := New().Reduce(context.Background(), f, region, reduction(10, domain.BandReducer{Band: "p", Reducer: domain.ReducerMax}))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, res["p_max"], 0)
}

func TestReduce_MaskedCellsSkippedPerBand(t *testing.T) {
	f := frame(t, 2, 1, map[string][]float64{
		"a": {math.NaN(), 4},
		"b": {1, 3},
	})
	red := reduction(10,
		domain.BandReducer{Band: "a", Reducer: domain.ReducerMean},
		domain.BandReducer{Band: "b", Reducer: domain.ReducerMean},
	)

	res, err := New().Reduce(context.Background(), f, mustRegion(t, orb.Ring{{0, 0}, {20, 0}, {20, 10}, {0, 10}, {0, 0}}), red)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res["a_mean"], 0)
	assert.InDelta(t, 2.0, res["b_mean"], 0)
}

func TestReduce_AllMaskedIsNaN(t *testing.T) {
	f := frame(t, 1, 1, map[string][]float64{"p": {math.NaN()}})

	res, err := New().Reduce(context.Background(), f, mustRegion(t, square(0, 0, 10)),
		reduction(10, domain.Pairs([]string{"p"}, domain.ReducerMean, domain.ReducerStdDev)...))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res["p_mean"]))
	assert.True(t, math.IsNaN(res["p_stdDev"]))
}

func TestReduce_CentroidFallback(t *testing.T) {
	f := frame(t, 3, 3, map[string][]float64{"p": {0, 0, 0, 0, 7, 0, 0, 0, 0}})
	// A 2x2 region inside the middle cell, far smaller than the 30-unit scale.
	region := mustRegion(t, square(14, 14, 2))

	res, err := New().Reduce(context.Background(), f, region, reduction(30, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean}))
	require.NoError(t, err)
	assert.InDelta(t, 7.0, res["p_mean"], 0)
}

func TestReduce_ConcaveRegionFallbackStaysInside(t *testing.T) {
	// A U-shaped region whose centroid (15, 13.2) falls in the notch over
	// the middle cell. Smaller than the 100-unit scale, so no lattice point
	// lands inside.
	f := frame(t, 3, 3, map[string][]float64{"p": {0, 0, 0, 4, 99, 0, 0, 0, 0}})
	region := mustRegion(t, orb.Ring{
		{1, 1}, {29, 1}, {29, 29}, {21, 29}, {21, 9}, {9, 9}, {9, 29}, {1, 29}, {1, 1},
	})
	require.False(t, region.Contains(region.Centroid()))

	res, err := New().Reduce(context.Background(), f, region, reduction(100, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean}))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res["p_mean"], 0, "sampled the left arm, not the notch")
}

func TestReduce_MultipartRegionFallbackStaysInside(t *testing.T) {
	f := frame(t, 3, 3, map[string][]float64{"p": {5, 0, 0, 0, 99, 0, 0, 0, 8}})
	region, err := domain.NewRegion("Islands", orb.MultiPolygon{
		{square(2, 2, 2)},
		{square(26, 26, 2)},
	})
	require.NoError(t, err)

	res, err := New().Reduce(context.Background(), f, region, reduction(100, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean}))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res["p_mean"], 0)
}

func TestInteriorPoint(t *testing.T) {
	p, ok := interiorPoint(mustRegion(t, square(0, 0, 10)))
	require.True(t, ok)
	assert.Equal(t, orb.Point{5, 5}, p)

	// Centroid outside: midline y=15 crosses at x = 1, 9, 21, 29.
	p, ok = interiorPoint(mustRegion(t, orb.Ring{
		{1, 1}, {29, 1}, {29, 29}, {21, 29}, {21, 9}, {9, 9}, {9, 29}, {1, 29}, {1, 1},
	}))
	require.True(t, ok)
	assert.Equal(t, orb.Point{5, 15}, p)
}

func TestReduce_PixelCap(t *testing.T) {
	f := frame(t, 2, 2, map[string][]float64{"p": {1, 1, 1, 1}})
	red := reduction(10, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean})
	red.PixelCap = 3

	_, err := New().Reduce(context.Background(), f, mustRegion(t, square(0, 0, 20)), red)
	assert.ErrorIs(t, err, domain.ErrPixelCapExceeded)

	red.PixelCap = 4
	_, err = New().Reduce(context.Background(), f, mustRegion(t, square(0, 0, 20)), red)
	assert.NoError(t, err)
}

func TestReduce_InvalidInput(t *testing.T) {
	f := frame(t, 1, 1, map[string][]float64{"p": {1}})
	region := mustRegion(t, square(0, 0, 10))
	agg := New()

	tests := []struct {
		name string
		red  domain.Reduction
	}{
		{"no pairs", reduction(10)},
		{"zero scale", reduction(0, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean})},
		{"bad reducer", reduction(10, domain.BandReducer{Band: "p", Reducer: "median"})},
		{"missing band", reduction(10, domain.BandReducer{Band: "q", Reducer: domain.ReducerMean})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.Reduce(context.Background(), f, region, tt.red)
			assert.Error(t, err)
		})
	}
}

func TestReduce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := frame(t, 1, 1, map[string][]float64{"p": {1}})

	_, err := New().Reduce(ctx, f, mustRegion(t, square(0, 0, 10)),
		reduction(10, domain.BandReducer{Band: "p", Reducer: domain.ReducerMean}))
	assert.ErrorIs(t, err, context.Canceled)
}
