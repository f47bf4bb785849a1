package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/couchcryptid/flood-features-etl/internal/observability"
	"github.com/couchcryptid/flood-features-etl/internal/pipeline"
	"github.com/couchcryptid/flood-features-etl/internal/zonal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type staticRegions struct {
	region domain.Region
	err    error
	calls  int
}

func (s *staticRegions) Resolve(_ context.Context, _ string) (domain.Region, error) {
	s.calls++
	if s.err != nil {
		return domain.Region{}, s.err
	}
	return s.region, nil
}

type memorySink struct {
	mu      sync.Mutex
	err     error
	records []domain.DailyFeatureRecord
	writes  int
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(_ context.Context, records []domain.DailyFeatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.records = append([]domain.DailyFeatureRecord(nil), records...)
	return nil
}

type memoryCheckpoint struct {
	mu     sync.Mutex
	scopes map[string]domain.Checkpoint
}

func newMemoryCheckpoint() *memoryCheckpoint {
	return &memoryCheckpoint{scopes: make(map[string]domain.Checkpoint)}
}

func (m *memoryCheckpoint) scope(scope string) domain.Checkpoint {
	cp, ok := m.scopes[scope]
	if !ok {
		cp = domain.NewCheckpoint()
		m.scopes[scope] = cp
	}
	return cp
}

func (m *memoryCheckpoint) Load(_ context.Context, scope string) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.scope(scope)
	out := domain.NewCheckpoint()
	for k, v := range cp.Records {
		out.Records[k] = v
	}
	for k, v := range cp.Failures {
		out.Failures[k] = v
	}
	return out, nil
}

func (m *memoryCheckpoint) SaveRecord(_ context.Context, scope string, rec domain.DailyFeatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.scope(scope)
	cp.Apply(rec)
	return nil
}

func (m *memoryCheckpoint) SaveFailure(_ context.Context, scope string, f domain.DateFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.scope(scope)
	cp.ApplyFailure(f)
	return nil
}

// failingAggregator delegates to zonal but fails reductions whose frame
// falls on one of the given days.
type failingAggregator struct {
	inner pipeline.SpatialAggregator
	days  map[time.Time]error
}

func (f *failingAggregator) Reduce(ctx context.Context, frame domain.RasterFrame, region domain.Region, red domain.Reduction) (domain.AggregationResult, error) {
	if err, ok := f.days[domain.Day(frame.Time)]; ok {
		return nil, err
	}
	return f.inner.Reduce(ctx, frame, region, red)
}

// --- fixtures ---

const (
	fineScale   = 5000.0
	coarseScale = 25000.0
)

var day0 = time.Date(2020, time.September, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time {
	return day0.AddDate(0, 0, n-1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// singlePixelRegion covers exactly one fine precipitation cell.
func singlePixelRegion(t *testing.T) domain.Region {
	t.Helper()
	r, err := domain.NewRegion("Test Province", orb.Polygon{{
		{0, 0}, {5000, 0}, {5000, 5000}, {0, 5000}, {0, 0},
	}})
	require.NoError(t, err)
	return r
}

func grid(t *testing.T, cell float64, cols, rows int, values ...float64) domain.Grid {
	t.Helper()
	g, err := domain.NewGrid(0, 0, cell, cols, rows, values)
	require.NoError(t, err)
	return g
}

func precipFrame(t *testing.T, at time.Time, mm float64) domain.RasterFrame {
	t.Helper()
	return domain.RasterFrame{Time: at, Bands: map[string]domain.Grid{
		domain.BandPrecipitation: grid(t, fineScale, 1, 1, mm),
	}}
}

// landDay returns eight 3-hourly frames. Surface runoff totals 4, subsurface
// runoff totals 2 and soil moisture alternates 20/30 (mean 25).
func landDay(t *testing.T, day time.Time) []domain.RasterFrame {
	t.Helper()
	frames := make([]domain.RasterFrame, 0, 8)
	for i := range 8 {
		soil := 20.0
		if i%2 == 1 {
			soil = 30.0
		}
		frames = append(frames, domain.RasterFrame{
			Time: day.Add(time.Duration(i*3) * time.Hour),
			Bands: map[string]domain.Grid{
				domain.BandSurfaceRunoff:       grid(t, coarseScale, 1, 1, 0.5),
				domain.BandSubsurfaceRunoff:    grid(t, coarseScale, 1, 1, 0.25),
				domain.BandSoilMoistureTop10cm: grid(t, coarseScale, 1, 1, soil),
			},
		})
	}
	return frames
}

// fiveDaySeries is precipitation [5,3,7,2,6] with land surface on days 1, 3 and 5.
func fiveDaySeries(t *testing.T) (*domain.MemorySeries, *domain.MemorySeries) {
	t.Helper()
	var precip, land []domain.RasterFrame
	for i, mm := range []float64{5, 3, 7, 2, 6} {
		precip = append(precip, precipFrame(t, dayN(i+1), mm))
	}
	for _, n := range []int{1, 3, 5} {
		land = append(land, landDay(t, dayN(n))...)
	}
	return domain.NewMemorySeries(precip...), domain.NewMemorySeries(land...)
}

func testBuilderConfig() pipeline.BuilderConfig {
	return pipeline.BuilderConfig{
		PrecipitationScale: fineScale,
		LandSurfaceScale:   coarseScale,
		PixelCap:           1e13,
	}
}

func testRunConfig() pipeline.RunConfig {
	return pipeline.RunConfig{
		RegionName:  "Test Province",
		Start:       dayN(1),
		End:         dayN(6),
		Concurrency: 4,
		MaxAttempts: 3,
	}
}

type harness struct {
	regions    *staticRegions
	checkpoint *memoryCheckpoint
	sink       *memorySink
	metrics    *observability.Metrics
	builder    *pipeline.Builder
	pipeline   *pipeline.Pipeline
}

func newHarness(t *testing.T, precip, land domain.Series, agg pipeline.SpatialAggregator, cfg pipeline.RunConfig) *harness {
	t.Helper()
	if agg == nil {
		agg = zonal.New()
	}
	h := &harness{
		regions:    &staticRegions{region: singlePixelRegion(t)},
		checkpoint: newMemoryCheckpoint(),
		sink:       &memorySink{},
		metrics:    observability.NewMetricsForTesting(),
	}
	h.builder = pipeline.NewBuilder(precip, land, agg, testBuilderConfig(), h.metrics)
	h.pipeline = pipeline.New(h.regions, h.builder, h.checkpoint, h.sink, discardLogger(), h.metrics, cfg)
	return h
}

// scope returns the checkpoint fingerprint the harness pipeline runs under.
func (h *harness) scope(t *testing.T) string {
	t.Helper()
	fp, err := h.builder.Scope(h.regions.region).Fingerprint()
	require.NoError(t, err)
	return fp
}

var errTransient = errors.New("raster engine unavailable")
