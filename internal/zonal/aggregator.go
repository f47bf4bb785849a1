// Package zonal reduces raster bands to scalars over a region polygon.
//
// Bands are sampled on a regular lattice of the requested scale laid over the
// region's bounding box. Each lattice point inside the region reads the cell
// beneath it in every band; masked cells are skipped per band. A region too
// small to contain any lattice point is sampled once at an interior point, so
// a single-pixel region still yields a value.
package zonal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb"
)

// Aggregator implements pipeline.SpatialAggregator.
type Aggregator struct{}

// New creates an Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Reduce applies every (band, reducer) pair of red over region in one pass.
func (a *Aggregator) Reduce(ctx context.Context, frame domain.RasterFrame, region domain.Region, red domain.Reduction) (domain.AggregationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(red.Pairs) == 0 {
		return nil, errors.New("reduction has no band/reducer pairs")
	}
	if red.Scale <= 0 {
		return nil, fmt.Errorf("reduction scale must be positive, got %g", red.Scale)
	}

	bands, index, err := bandOrder(red.Pairs)
	if err != nil {
		return nil, err
	}
	grids := make([]domain.Grid, len(bands))
	for i, b := range bands {
		if grids[i], err = frame.Band(b); err != nil {
			return nil, err
		}
	}

	l, err := newLattice(region.Bound(), red.Scale, red.PixelCap)
	if err != nil {
		return nil, err
	}

	accs := make([]accumulator, len(bands))
	sample := func(p orb.Point) {
		for i := range grids {
			if v, ok := grids[i].ValueAt(p); ok {
				accs[i].add(v)
			}
		}
	}

	inside := 0
	for iy := 0; iy < l.ny; iy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for ix := 0; ix < l.nx; ix++ {
			p := l.point(ix, iy)
			if !region.Contains(p) {
				continue
			}
			inside++
			sample(p)
		}
	}
	if inside == 0 {
		if p, ok := interiorPoint(region); ok {
			sample(p)
		}
	}

	result := make(domain.AggregationResult, len(red.Pairs))
	for _, pair := range red.Pairs {
		result[pair.Key()] = accs[index[pair.Band]].value(pair.Reducer)
	}
	return result, nil
}

// bandOrder lists distinct bands in first-seen order and validates reducers.
func bandOrder(pairs []domain.BandReducer) ([]string, map[string]int, error) {
	var bands []string
	index := make(map[string]int)
	for _, p := range pairs {
		if !p.Reducer.Valid() {
			return nil, nil, fmt.Errorf("unsupported reducer %q for band %q", p.Reducer, p.Band)
		}
		if _, ok := index[p.Band]; ok {
			continue
		}
		index[p.Band] = len(bands)
		bands = append(bands, p.Band)
	}
	return bands, index, nil
}

// lattice is the grid of sample points covering a bounding box.
type lattice struct {
	origin orb.Point
	scale  float64
	nx, ny int
}

func newLattice(b orb.Bound, scale float64, pixelCap int64) (lattice, error) {
	if pixelCap <= 0 {
		return lattice{}, fmt.Errorf("pixel cap must be positive, got %d", pixelCap)
	}
	fx := math.Max(1, math.Ceil((b.Max[0]-b.Min[0])/scale))
	fy := math.Max(1, math.Ceil((b.Max[1]-b.Min[1])/scale))
	if fx*fy > float64(pixelCap) {
		return lattice{}, fmt.Errorf("%w: %.0f samples at scale %g, cap %d", domain.ErrPixelCapExceeded, fx*fy, scale, pixelCap)
	}
	return lattice{origin: b.Min, scale: scale, nx: int(fx), ny: int(fy)}, nil
}

// point returns the centre of lattice cell (ix, iy).
func (l lattice) point(ix, iy int) orb.Point {
	return orb.Point{
		l.origin[0] + (float64(ix)+0.5)*l.scale,
		l.origin[1] + (float64(iy)+0.5)*l.scale,
	}
}

// interiorPoint returns a point inside region: the centroid when the region
// contains it, otherwise the midpoint of the first inside span where an outer
// ring crosses its own horizontal midline. Concave and multipart regions can
// have their centroid outside. ok is false when no such point is found.
func interiorPoint(region domain.Region) (p orb.Point, ok bool) {
	if c := region.Centroid(); region.Contains(c) {
		return c, true
	}
	var outers []orb.Ring
	switch g := region.Geometry.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			outers = append(outers, g[0])
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			if len(poly) > 0 {
				outers = append(outers, poly[0])
			}
		}
	}
	for _, ring := range outers {
		b := ring.Bound()
		y := (b.Min[1] + b.Max[1]) / 2
		xs := crossings(ring, y)
		for i := 0; i+1 < len(xs); i += 2 {
			p := orb.Point{(xs[i] + xs[i+1]) / 2, y}
			if region.Contains(p) {
				return p, true
			}
		}
	}
	return orb.Point{}, false
}

// crossings returns the sorted x coordinates where ring's edges cross the
// line at y. Vertices on the line count for the edge above them only.
func crossings(ring orb.Ring, y float64) []float64 {
	var xs []float64
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if (a[1] > y) == (b[1] > y) {
			continue
		}
		xs = append(xs, a[0]+(y-a[1])*(b[0]-a[0])/(b[1]-a[1]))
	}
	sort.Float64s(xs)
	return xs
}
