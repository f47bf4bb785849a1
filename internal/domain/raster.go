package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Band names produced by the series sources.
const (
	BandPrecipitation       = "precipitation"
	BandSurfaceRunoff       = "surface_runoff"
	BandSubsurfaceRunoff    = "subsurface_runoff"
	BandSoilMoistureTop10cm = "soil_moisture_top10cm"
)

// Grid is a regular lattice of values anchored at its lower-left corner.
// Values are row-major starting at the bottom row; NaN marks a masked cell.
type Grid struct {
	MinX     float64
	MinY     float64
	CellSize float64
	Cols     int
	Rows     int
	Values   []float64
}

// NewGrid validates the lattice dimensions against the value count.
func NewGrid(minX, minY, cellSize float64, cols, rows int, values []float64) (Grid, error) {
	if cellSize <= 0 {
		return Grid{}, fmt.Errorf("grid cell size must be positive, got %g", cellSize)
	}
	if cols <= 0 || rows <= 0 {
		return Grid{}, fmt.Errorf("grid dimensions must be positive, got %dx%d", cols, rows)
	}
	if len(values) != cols*rows {
		return Grid{}, fmt.Errorf("grid %dx%d expects %d values, got %d", cols, rows, cols*rows, len(values))
	}
	return Grid{MinX: minX, MinY: minY, CellSize: cellSize, Cols: cols, Rows: rows, Values: values}, nil
}

// ValueAt returns the value of the cell containing p. The boolean is false
// when p is outside the grid or the cell is masked.
func (g Grid) ValueAt(p orb.Point) (float64, bool) {
	col := int(math.Floor((p[0] - g.MinX) / g.CellSize))
	row := int(math.Floor((p[1] - g.MinY) / g.CellSize))
	if col < 0 || row < 0 || col >= g.Cols || row >= g.Rows {
		return math.NaN(), false
	}
	v := g.Values[row*g.Cols+col]
	if math.IsNaN(v) {
		return v, false
	}
	return v, true
}

// SameLattice reports whether two grids share origin, cell size and shape.
func (g Grid) SameLattice(o Grid) bool {
	return g.MinX == o.MinX && g.MinY == o.MinY && g.CellSize == o.CellSize &&
		g.Cols == o.Cols && g.Rows == o.Rows
}

// RasterFrame is one raster sample of a series.
type RasterFrame struct {
	Time  time.Time
	Bands map[string]Grid
}

// Band returns the named band or ErrBandMissing.
func (f RasterFrame) Band(name string) (Grid, error) {
	g, ok := f.Bands[name]
	if !ok {
		return Grid{}, fmt.Errorf("%w: %q in frame %s", ErrBandMissing, name, f.Time.UTC().Format(time.RFC3339))
	}
	return g, nil
}

// Select returns a frame holding only the named bands.
func (f RasterFrame) Select(names ...string) (RasterFrame, error) {
	out := RasterFrame{Time: f.Time, Bands: make(map[string]Grid, len(names))}
	for _, name := range names {
		g, err := f.Band(name)
		if err != nil {
			return RasterFrame{}, err
		}
		out.Bands[name] = g
	}
	return out, nil
}
