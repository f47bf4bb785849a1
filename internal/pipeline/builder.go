package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/couchcryptid/flood-features-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// cumulativeDays is the length of the trailing precipitation window.
const cumulativeDays = 3

// Series labels for query metrics.
const (
	seriesPrecipitation = "precipitation"
	seriesLandSurface   = "land_surface"
)

var landSurfaceBands = []string{
	domain.BandSurfaceRunoff,
	domain.BandSubsurfaceRunoff,
	domain.BandSoilMoistureTop10cm,
}

// BuilderConfig holds the reduction parameters shared by every date.
type BuilderConfig struct {
	PrecipitationScale float64
	LandSurfaceScale   float64
	PixelCap           int64
	// QueryRateLimit caps series queries and reductions per second across
	// all workers. Zero or less disables throttling.
	QueryRateLimit float64
	// Sources identifies the backing series and band map for checkpoint scoping.
	Sources string
}

// Builder computes the feature record for a single date. It holds no
// per-date state and is safe for concurrent use.
type Builder struct {
	precipSeries domain.Series
	landSeries   domain.Series
	aggregator   SpatialAggregator
	cfg          BuilderConfig
	limiter      *rate.Limiter
	metrics      *observability.Metrics
	clock        clockwork.Clock
}

// NewBuilder creates a Builder over the two series.
func NewBuilder(precipitation, landSurface domain.Series, agg SpatialAggregator, cfg BuilderConfig, metrics *observability.Metrics) *Builder {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.QueryRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QueryRateLimit), 1)
	}
	return &Builder{
		precipSeries: precipitation,
		landSeries:   landSurface,
		aggregator:   agg,
		cfg:          cfg,
		limiter:      limiter,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for query and reduction timings. For testing.
func (b *Builder) SetClock(c clockwork.Clock) {
	b.clock = c
}

// Scope describes the inputs every record built for region depends on.
func (b *Builder) Scope(region domain.Region) domain.Scope {
	return domain.Scope{
		Region:             region.Name,
		Geometry:           region.Geometry,
		PrecipitationScale: b.cfg.PrecipitationScale,
		LandSurfaceScale:   b.cfg.LandSurfaceScale,
		PixelCap:           b.cfg.PixelCap,
		Sources:            b.cfg.Sources,
	}
}

// Days returns the distinct UTC calendar days that have a precipitation
// frame inside w, in ascending order.
func (b *Builder) Days(ctx context.Context, w domain.Window) ([]time.Time, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	stamps, err := b.precipSeries.Timestamps(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list precipitation timestamps in %s: %w", w, err)
	}
	seen := make(map[time.Time]struct{}, len(stamps))
	days := make([]time.Time, 0, len(stamps))
	for _, ts := range stamps {
		d := domain.Day(ts)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	slices.SortFunc(days, time.Time.Compare)
	return days, nil
}

// Build computes the record for day over region. Errors are *domain.AggregationError.
func (b *Builder) Build(ctx context.Context, day time.Time, region domain.Region) (domain.DailyFeatureRecord, error) {
	day = domain.Day(day)
	rec := domain.DailyFeatureRecord{Date: day}

	if err := b.dailyPrecipitation(ctx, day, region, &rec); err != nil {
		return domain.DailyFeatureRecord{}, err
	}
	if err := b.cumulativePrecipitation(ctx, day, region, &rec); err != nil {
		return domain.DailyFeatureRecord{}, err
	}
	ls, err := b.landSurfaceFeatures(ctx, day, region)
	if err != nil {
		return domain.DailyFeatureRecord{}, err
	}
	rec.LandSurface = ls
	return rec, nil
}

func (b *Builder) dailyPrecipitation(ctx context.Context, day time.Time, region domain.Region, rec *domain.DailyFeatureRecord) error {
	w := domain.DayWindow(day)
	fail := stageError(day, domain.StagePrecipitationDaily, w)

	frames, err := b.query(ctx, b.precipSeries, seriesPrecipitation, w)
	if err != nil {
		return fail(err)
	}
	if len(frames) == 0 {
		return fail(domain.ErrNoFrames)
	}
	// Frames arrive oldest first; a day with duplicates uses the earliest.
	frame, err := frames[0].Select(domain.BandPrecipitation)
	if err != nil {
		return fail(err)
	}

	res, err := b.reduce(ctx, domain.StagePrecipitationDaily, frame, region, domain.Reduction{
		Pairs: domain.Pairs([]string{domain.BandPrecipitation},
			domain.ReducerMean, domain.ReducerMax, domain.ReducerStdDev),
		Scale:    b.cfg.PrecipitationScale,
		PixelCap: b.cfg.PixelCap,
	})
	if err != nil {
		return fail(err)
	}

	if rec.RainfallMean, err = res.Get(domain.BandPrecipitation, domain.ReducerMean); err != nil {
		return fail(err)
	}
	if rec.RainfallMax, err = res.Get(domain.BandPrecipitation, domain.ReducerMax); err != nil {
		return fail(err)
	}
	if rec.RainfallStd, err = res.Get(domain.BandPrecipitation, domain.ReducerStdDev); err != nil {
		return fail(err)
	}
	return nil
}

// cumulativePrecipitation sums the trailing window per pixel, then takes the
// regional mean. Near the start of the series it covers only the days present.
func (b *Builder) cumulativePrecipitation(ctx context.Context, day time.Time, region domain.Region, rec *domain.DailyFeatureRecord) error {
	w := domain.TrailingWindow(day, cumulativeDays)
	fail := stageError(day, domain.StagePrecipitationCumulative, w)

	frames, err := b.query(ctx, b.precipSeries, seriesPrecipitation, w)
	if err != nil {
		return fail(err)
	}
	total, err := domain.CompositeBand(frames, domain.BandPrecipitation, domain.CompositeSum)
	if err != nil {
		return fail(err)
	}

	composite := domain.RasterFrame{Time: day, Bands: map[string]domain.Grid{domain.BandPrecipitation: total}}
	res, err := b.reduce(ctx, domain.StagePrecipitationCumulative, composite, region, domain.Reduction{
		Pairs:    domain.Pairs([]string{domain.BandPrecipitation}, domain.ReducerMean),
		Scale:    b.cfg.PrecipitationScale,
		PixelCap: b.cfg.PixelCap,
	})
	if err != nil {
		return fail(err)
	}
	if rec.Rainfall3DayCumulative, err = res.Get(domain.BandPrecipitation, domain.ReducerMean); err != nil {
		return fail(err)
	}
	return nil
}

func (b *Builder) landSurfaceFeatures(ctx context.Context, day time.Time, region domain.Region) (domain.LandSurface, error) {
	w := domain.DayWindow(day)
	frames, err := b.query(ctx, b.landSeries, seriesLandSurface, w)
	if err != nil {
		return domain.LandSurface{}, stageError(day, domain.StageLandSurface, w)(err)
	}
	if len(frames) == 0 {
		b.metrics.LandSurfaceGaps.Inc()
		return domain.SentinelLandSurface(), nil
	}
	return b.computeRealLandSurface(ctx, day, w, frames, region)
}

// computeRealLandSurface accumulates the runoff bands, averages soil moisture,
// and reduces all three with one mean at the coarse scale.
func (b *Builder) computeRealLandSurface(ctx context.Context, day time.Time, w domain.Window, frames []domain.RasterFrame, region domain.Region) (domain.LandSurface, error) {
	fail := stageError(day, domain.StageLandSurface, w)

	ops := map[string]domain.Composite{
		domain.BandSurfaceRunoff:       domain.CompositeSum,
		domain.BandSubsurfaceRunoff:    domain.CompositeSum,
		domain.BandSoilMoistureTop10cm: domain.CompositeMean,
	}
	composite := domain.RasterFrame{Time: day, Bands: make(map[string]domain.Grid, len(ops))}
	for _, band := range landSurfaceBands {
		g, err := domain.CompositeBand(frames, band, ops[band])
		if err != nil {
			return domain.LandSurface{}, fail(err)
		}
		composite.Bands[band] = g
	}

	res, err := b.reduce(ctx, domain.StageLandSurface, composite, region, domain.Reduction{
		Pairs:    domain.Pairs(landSurfaceBands, domain.ReducerMean),
		Scale:    b.cfg.LandSurfaceScale,
		PixelCap: b.cfg.PixelCap,
	})
	if err != nil {
		return domain.LandSurface{}, fail(err)
	}

	var ls domain.LandSurface
	if ls.SurfaceRunoff, err = res.Get(domain.BandSurfaceRunoff, domain.ReducerMean); err != nil {
		return domain.LandSurface{}, fail(err)
	}
	if ls.SubsurfaceRunoff, err = res.Get(domain.BandSubsurfaceRunoff, domain.ReducerMean); err != nil {
		return domain.LandSurface{}, fail(err)
	}
	if ls.SoilMoisture, err = res.Get(domain.BandSoilMoistureTop10cm, domain.ReducerMean); err != nil {
		return domain.LandSurface{}, fail(err)
	}
	return ls, nil
}

func (b *Builder) query(ctx context.Context, s domain.Series, label string, w domain.Window) ([]domain.RasterFrame, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := b.clock.Now()
	frames, err := s.Query(ctx, w)
	b.metrics.SeriesQueryDuration.WithLabelValues(label).Observe(b.clock.Since(start).Seconds())
	return frames, err
}

func (b *Builder) reduce(ctx context.Context, stage string, frame domain.RasterFrame, region domain.Region, red domain.Reduction) (domain.AggregationResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := b.clock.Now()
	res, err := b.aggregator.Reduce(ctx, frame, region, red)
	b.metrics.ReductionDuration.WithLabelValues(stage).Observe(b.clock.Since(start).Seconds())
	return res, err
}

// stageError returns a constructor for AggregationErrors scoped to one stage.
func stageError(day time.Time, stage string, w domain.Window) func(error) error {
	return func(err error) error {
		return &domain.AggregationError{Date: day, Stage: stage, Window: w, Err: err}
	}
}
