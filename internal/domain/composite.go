package domain

import (
	"fmt"
	"math"
)

// Composite is a per-pixel temporal reduction across frames.
type Composite string

const (
	// CompositeSum accumulates values, used for runoff and precipitation totals.
	CompositeSum Composite = "sum"
	// CompositeMean averages values, used for instantaneous state variables.
	CompositeMean Composite = "mean"
)

// CompositeBand reduces one band across frames pixel by pixel. Masked pixels
// are skipped; a pixel masked in every frame stays masked. All frames must
// share the lattice of the first.
func CompositeBand(frames []RasterFrame, band string, op Composite) (Grid, error) {
	if len(frames) == 0 {
		return Grid{}, fmt.Errorf("composite %s of %q: %w", op, band, ErrNoFrames)
	}
	if op != CompositeSum && op != CompositeMean {
		return Grid{}, fmt.Errorf("composite %q: unsupported operation", op)
	}

	first, err := frames[0].Band(band)
	if err != nil {
		return Grid{}, err
	}

	sums := make([]float64, len(first.Values))
	counts := make([]int, len(first.Values))
	for _, f := range frames {
		g, err := f.Band(band)
		if err != nil {
			return Grid{}, err
		}
		if !g.SameLattice(first) {
			return Grid{}, fmt.Errorf("composite %s of %q at %s: %w", op, band, f.Time.UTC().Format(DateLayout), ErrGridMismatch)
		}
		for i, v := range g.Values {
			if math.IsNaN(v) {
				continue
			}
			sums[i] += v
			counts[i]++
		}
	}

	out := make([]float64, len(sums))
	for i := range sums {
		switch {
		case counts[i] == 0:
			out[i] = math.NaN()
		case op == CompositeMean:
			out[i] = sums[i] / float64(counts[i])
		default:
			out[i] = sums[i]
		}
	}
	return NewGrid(first.MinX, first.MinY, first.CellSize, first.Cols, first.Rows, out)
}
