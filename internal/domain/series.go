package domain

import (
	"context"
	"sort"
	"time"
)

// Series is a time-ordered raster collection queried by half-open window.
type Series interface {
	// Query returns the frames whose timestamps fall inside w, oldest first.
	// An empty result is not an error.
	Query(ctx context.Context, w Window) ([]RasterFrame, error)

	// Timestamps lists frame times inside w without loading band data.
	Timestamps(ctx context.Context, w Window) ([]time.Time, error)
}

// MemorySeries is an in-memory Series.
type MemorySeries struct {
	frames []RasterFrame
}

// NewMemorySeries sorts frames by time and wraps them as a Series.
func NewMemorySeries(frames ...RasterFrame) *MemorySeries {
	sorted := append([]RasterFrame(nil), frames...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &MemorySeries{frames: sorted}
}

func (s *MemorySeries) Query(ctx context.Context, w Window) ([]RasterFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := s.span(w)
	return append([]RasterFrame(nil), s.frames[lo:hi]...), nil
}

func (s *MemorySeries) Timestamps(ctx context.Context, w Window) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := s.span(w)
	out := make([]time.Time, 0, hi-lo)
	for _, f := range s.frames[lo:hi] {
		out = append(out, f.Time)
	}
	return out, nil
}

func (s *MemorySeries) span(w Window) (int, int) {
	lo := sort.Search(len(s.frames), func(i int) bool { return !s.frames[i].Time.Before(w.Start) })
	hi := sort.Search(len(s.frames), func(i int) bool { return !s.frames[i].Time.Before(w.End) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// RenameBands wraps a series so band names are translated on read, e.g.
// {"Qs_acc": "surface_runoff"}. Bands without an alias keep their name.
func RenameBands(s Series, aliases map[string]string) Series {
	if len(aliases) == 0 {
		return s
	}
	return &renamedSeries{inner: s, aliases: aliases}
}

type renamedSeries struct {
	inner   Series
	aliases map[string]string
}

func (r *renamedSeries) Query(ctx context.Context, w Window) ([]RasterFrame, error) {
	frames, err := r.inner.Query(ctx, w)
	if err != nil {
		return nil, err
	}
	out := make([]RasterFrame, len(frames))
	for i, f := range frames {
		bands := make(map[string]Grid, len(f.Bands))
		for name, g := range f.Bands {
			if alias, ok := r.aliases[name]; ok {
				name = alias
			}
			bands[name] = g
		}
		out[i] = RasterFrame{Time: f.Time, Bands: bands}
	}
	return out, nil
}

func (r *renamedSeries) Timestamps(ctx context.Context, w Window) ([]time.Time, error) {
	return r.inner.Timestamps(ctx, w)
}
