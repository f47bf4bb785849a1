// Package rasterfile stores a raster series as a directory of JSON frames,
// one file per acquisition time named YYYYMMDDTHHMM.json.
package rasterfile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

const (
	fileLayout = "20060102T1504"
	fileExt    = ".json"
)

// Series implements domain.Series over a frame directory. The directory is
// indexed once at Open; band data is read per Query.
type Series struct {
	dir   string
	times []time.Time
	files map[time.Time]string
}

// Open indexes the frames in dir.
func Open(dir string) (*Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open raster series: %w", err)
	}
	s := &Series{dir: dir, files: make(map[time.Time]string, len(entries))}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		t, err := time.ParseInLocation(fileLayout, strings.TrimSuffix(name, fileExt), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("raster frame %s: bad timestamp: %w", name, err)
		}
		if _, dup := s.files[t]; dup {
			return nil, fmt.Errorf("raster frame %s: duplicate timestamp", name)
		}
		s.files[t] = filepath.Join(dir, name)
		s.times = append(s.times, t)
	}
	sort.Slice(s.times, func(i, j int) bool { return s.times[i].Before(s.times[j]) })
	return s, nil
}

func (s *Series) Timestamps(ctx context.Context, w domain.Window) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo, hi := s.span(w)
	return append([]time.Time(nil), s.times[lo:hi]...), nil
}

func (s *Series) Query(ctx context.Context, w domain.Window) ([]domain.RasterFrame, error) {
	lo, hi := s.span(w)
	frames := make([]domain.RasterFrame, 0, hi-lo)
	for _, t := range s.times[lo:hi] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := readFrame(s.files[t])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (s *Series) span(w domain.Window) (int, int) {
	lo := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(w.Start) })
	hi := sort.Search(len(s.times), func(i int) bool { return !s.times[i].Before(w.End) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// WriteFrame stores f in dir under its timestamp, creating dir if needed.
func WriteFrame(dir string, f domain.RasterFrame) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raster dir: %w", err)
	}
	dto := frameJSON{Time: f.Time.UTC(), Bands: make(map[string]gridJSON, len(f.Bands))}
	for name, g := range f.Bands {
		dto.Bands[name] = toGridJSON(g)
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("encode raster frame: %w", err)
	}
	name := f.Time.UTC().Format(fileLayout) + fileExt
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func readFrame(path string) (domain.RasterFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RasterFrame{}, fmt.Errorf("read raster frame: %w", err)
	}
	var dto frameJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return domain.RasterFrame{}, fmt.Errorf("decode raster frame %s: %w", filepath.Base(path), err)
	}
	f := domain.RasterFrame{Time: dto.Time.UTC(), Bands: make(map[string]domain.Grid, len(dto.Bands))}
	for name, gj := range dto.Bands {
		g, err := gj.grid()
		if err != nil {
			return domain.RasterFrame{}, fmt.Errorf("raster frame %s band %q: %w", filepath.Base(path), name, err)
		}
		f.Bands[name] = g
	}
	return f, nil
}

// On-disk types. Masked cells are stored as null.

type frameJSON struct {
	Time  time.Time           `json:"time"`
	Bands map[string]gridJSON `json:"bands"`
}

type gridJSON struct {
	MinX     float64    `json:"min_x"`
	MinY     float64    `json:"min_y"`
	CellSize float64    `json:"cell_size"`
	Cols     int        `json:"cols"`
	Rows     int        `json:"rows"`
	Values   []*float64 `json:"values"`
}

func toGridJSON(g domain.Grid) gridJSON {
	vals := make([]*float64, len(g.Values))
	for i, v := range g.Values {
		if !math.IsNaN(v) {
			vals[i] = &v
		}
	}
	return gridJSON{MinX: g.MinX, MinY: g.MinY, CellSize: g.CellSize, Cols: g.Cols, Rows: g.Rows, Values: vals}
}

func (gj gridJSON) grid() (domain.Grid, error) {
	vals := make([]float64, len(gj.Values))
	for i, v := range gj.Values {
		if v == nil {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = *v
	}
	return domain.NewGrid(gj.MinX, gj.MinY, gj.CellSize, gj.Cols, gj.Rows, vals)
}
