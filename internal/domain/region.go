package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Region is a named boundary polygon. It is resolved once per run and only
// read afterwards.
type Region struct {
	Name     string
	Geometry orb.Geometry // orb.Polygon or orb.MultiPolygon
}

// NewRegion validates that g is an areal geometry and wraps it as a Region.
func NewRegion(name string, g orb.Geometry) (Region, error) {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 4 {
			return Region{}, fmt.Errorf("region %q: polygon has no closed outer ring", name)
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return Region{}, fmt.Errorf("region %q: empty multipolygon", name)
		}
	case nil:
		return Region{}, fmt.Errorf("region %q: missing geometry", name)
	default:
		return Region{}, fmt.Errorf("region %q: unsupported geometry type %s", name, g.GeoJSONType())
	}
	return Region{Name: name, Geometry: g}, nil
}

// Contains reports whether p lies inside the region (holes excluded).
func (r Region) Contains(p orb.Point) bool {
	switch g := r.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

// Bound returns the region's bounding box.
func (r Region) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// Centroid returns the area-weighted centroid of the region.
func (r Region) Centroid() orb.Point {
	c, _ := planar.CentroidArea(r.Geometry)
	return c
}
