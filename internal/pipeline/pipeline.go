package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/couchcryptid/flood-features-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc/pool"
)

// RegionProvider resolves a region name to its boundary geometry.
type RegionProvider interface {
	Resolve(ctx context.Context, name string) (domain.Region, error)
}

// SpatialAggregator reduces raster bands over a region to scalars.
type SpatialAggregator interface {
	Reduce(ctx context.Context, frame domain.RasterFrame, region domain.Region, red domain.Reduction) (domain.AggregationResult, error)
}

// FeatureBuilder lists the dates of a run and builds one record per date.
// Scope names the inputs a built record depends on besides its date.
type FeatureBuilder interface {
	Days(ctx context.Context, w domain.Window) ([]time.Time, error)
	Build(ctx context.Context, day time.Time, region domain.Region) (domain.DailyFeatureRecord, error)
	Scope(region domain.Region) domain.Scope
}

// Sink writes the finished feature table.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []domain.DailyFeatureRecord) error
}

// CheckpointStore persists per-date progress so a rerun can resume. Entries
// are keyed by scope fingerprint and date; Load returns only the entries
// saved under scope.
type CheckpointStore interface {
	Load(ctx context.Context, scope string) (domain.Checkpoint, error)
	SaveRecord(ctx context.Context, scope string, rec domain.DailyFeatureRecord) error
	SaveFailure(ctx context.Context, scope string, f domain.DateFailure) error
}

// NopCheckpoint is a CheckpointStore that remembers nothing.
type NopCheckpoint struct{}

func (NopCheckpoint) Load(context.Context, string) (domain.Checkpoint, error) {
	return domain.NewCheckpoint(), nil
}
func (NopCheckpoint) SaveRecord(context.Context, string, domain.DailyFeatureRecord) error { return nil }
func (NopCheckpoint) SaveFailure(context.Context, string, domain.DateFailure) error       { return nil }

// RunConfig holds the run-level settings.
type RunConfig struct {
	RegionName   string
	Start        time.Time
	End          time.Time
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Report summarizes a completed run.
type Report struct {
	RunID    string
	Region   string
	Days     int
	Built    int
	Resumed  int
	Failures []domain.DateFailure
	Exported int
	Duration time.Duration
}

// Pipeline resolves the region, builds every date on a bounded worker pool,
// and exports the table once all dates have been attempted.
type Pipeline struct {
	regions    RegionProvider
	builder    FeatureBuilder
	checkpoint CheckpointStore
	sink       Sink
	logger     *slog.Logger
	metrics    *observability.Metrics
	cfg        RunConfig
	clock      clockwork.Clock
	runID      string
	ready      atomic.Bool

	progress struct {
		days, resumed, built, failed atomic.Int64
		finished                     atomic.Bool
	}
}

// Progress is a point-in-time view of a run.
type Progress struct {
	RunID    string `json:"run_id"`
	Region   string `json:"region"`
	Days     int64  `json:"days"`
	Resumed  int64  `json:"resumed"`
	Built    int64  `json:"built"`
	Failed   int64  `json:"failed"`
	Finished bool   `json:"finished"`
}

// New creates a Pipeline. A nil checkpoint disables resumption.
func New(regions RegionProvider, builder FeatureBuilder, checkpoint CheckpointStore, sink Sink, logger *slog.Logger, metrics *observability.Metrics, cfg RunConfig) *Pipeline {
	if checkpoint == nil {
		checkpoint = NopCheckpoint{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	runID := uuid.NewString()
	return &Pipeline{
		regions:    regions,
		builder:    builder,
		checkpoint: checkpoint,
		sink:       sink,
		logger:     logger.With("run_id", runID),
		metrics:    metrics,
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		runID:      runID,
	}
}

// SetClock replaces the clock used for backoff and timestamps. For testing.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	p.clock = c
}

// RunID identifies this run in logs and checkpoint entries.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Progress reports how far the current run has got. Safe to call concurrently with Run.
func (p *Pipeline) Progress() Progress {
	return Progress{
		RunID:    p.runID,
		Region:   p.cfg.RegionName,
		Days:     p.progress.days.Load(),
		Resumed:  p.progress.resumed.Load(),
		Built:    p.progress.built.Load(),
		Failed:   p.progress.failed.Load(),
		Finished: p.progress.finished.Load(),
	}
}

// CheckReadiness returns nil once the region is resolved and date work has
// started, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not started processing dates yet")
	}
	return nil
}

// Run executes one extraction over the configured date range. Region
// resolution and export failures are fatal and returned as errors; per-date
// failures are reported in Report.Failures and do not stop other dates.
func (p *Pipeline) Run(ctx context.Context) (report Report, err error) {
	started := p.clock.Now()
	report = Report{RunID: p.runID, Region: p.cfg.RegionName}
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer p.progress.finished.Store(true)
	defer func() {
		report.Duration = p.clock.Since(started)
		p.metrics.RunDuration.Observe(report.Duration.Seconds())
	}()

	domainWindow := domain.Window{Start: domain.Day(p.cfg.Start), End: domain.Day(p.cfg.End)}
	if !domainWindow.Valid() {
		return report, fmt.Errorf("date range %s is empty", domainWindow)
	}
	p.logger.Info("pipeline started",
		"region", p.cfg.RegionName,
		"start", domainWindow.Start.Format(domain.DateLayout),
		"end", domainWindow.End.Format(domain.DateLayout),
		"concurrency", p.cfg.Concurrency,
	)

	region, err := p.regions.Resolve(ctx, p.cfg.RegionName)
	if err != nil {
		return report, err
	}

	days, err := p.builder.Days(ctx, domainWindow)
	if err != nil {
		return report, err
	}
	report.Days = len(days)
	p.progress.days.Store(int64(len(days)))

	scope, err := p.builder.Scope(region).Fingerprint()
	if err != nil {
		return report, fmt.Errorf("fingerprint run scope: %w", err)
	}
	cp, err := p.checkpoint.Load(ctx, scope)
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	pending := make([]time.Time, 0, len(days))
	for _, d := range days {
		if _, done := cp.Records[d.Format(domain.DateLayout)]; !done {
			pending = append(pending, d)
		}
	}
	report.Resumed = len(days) - len(pending)
	p.metrics.DatesResumed.Add(float64(report.Resumed))
	p.progress.resumed.Store(int64(report.Resumed))
	p.logger.Info("dates scheduled", "days", len(days), "pending", len(pending), "resumed", report.Resumed, "scope", scope)
	p.ready.Store(true)

	built, failures := p.process(ctx, scope, region, pending)
	report.Built = len(built)
	report.Failures = failures

	if err := ctx.Err(); err != nil {
		p.logger.Info("pipeline stopping", "reason", err, "built", len(built))
		return report, fmt.Errorf("run interrupted: %w", err)
	}

	records := make([]domain.DailyFeatureRecord, 0, len(days))
	for _, d := range days {
		key := d.Format(domain.DateLayout)
		if rec, ok := built[key]; ok {
			records = append(records, rec)
		} else if rec, ok := cp.Records[key]; ok {
			records = append(records, rec)
		}
	}

	if err := p.export(ctx, records); err != nil {
		return report, err
	}
	report.Exported = len(records)

	p.logger.Info("pipeline finished",
		"days", report.Days,
		"built", report.Built,
		"resumed", report.Resumed,
		"failed", len(report.Failures),
		"exported", report.Exported,
	)
	return report, nil
}

// process builds pending dates on the worker pool. It stops scheduling once
// ctx is cancelled and waits for in-flight dates.
func (p *Pipeline) process(ctx context.Context, scope string, region domain.Region, pending []time.Time) (map[string]domain.DailyFeatureRecord, []domain.DateFailure) {
	var (
		mu       sync.Mutex
		built    = make(map[string]domain.DailyFeatureRecord, len(pending))
		failures []domain.DateFailure
	)

	wp := pool.New().WithMaxGoroutines(p.cfg.Concurrency)
	for _, day := range pending {
		if ctx.Err() != nil {
			break
		}
		wp.Go(func() {
			rec, attempts, err := p.buildWithRetry(ctx, day, region)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f := p.failure(day, attempts, err)
				p.saveFailure(ctx, scope, f)
				p.progress.failed.Add(1)
				mu.Lock()
				failures = append(failures, f)
				mu.Unlock()
				return
			}
			p.saveRecord(ctx, scope, rec)
			p.progress.built.Add(1)
			mu.Lock()
			built[rec.DateKey()] = rec
			mu.Unlock()
		})
	}
	wp.Wait()

	slices.SortFunc(failures, func(a, b domain.DateFailure) int { return a.Date.Compare(b.Date) })
	return built, failures
}

func (p *Pipeline) buildWithRetry(ctx context.Context, day time.Time, region domain.Region) (domain.DailyFeatureRecord, int, error) {
	backoff := p.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		p.metrics.BuildAttempts.Inc()
		rec, err := p.builder.Build(ctx, day, region)
		if err == nil {
			p.metrics.DatesProcessed.Inc()
			if rec.LandSurfaceMissing() {
				p.logger.Debug("land surface missing, sentinel written", "date", rec.DateKey())
			}
			return rec, attempt, nil
		}
		if ctx.Err() != nil || attempt >= p.cfg.MaxAttempts || !retryable(err) {
			return domain.DailyFeatureRecord{}, attempt, err
		}
		p.logger.Debug("date build failed, retrying",
			"date", day.Format(domain.DateLayout),
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !p.sleep(ctx, backoff) {
			return domain.DailyFeatureRecord{}, attempt, err
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (p *Pipeline) failure(day time.Time, attempts int, err error) domain.DateFailure {
	f := domain.DateFailure{
		Date:       day,
		Window:     domain.DayWindow(day),
		Error:      err.Error(),
		Attempts:   attempts,
		RunID:      p.runID,
		RecordedAt: p.clock.Now().UTC(),
	}
	var aggErr *domain.AggregationError
	if errors.As(err, &aggErr) {
		f.Stage = aggErr.Stage
		f.Window = aggErr.Window
	}
	p.metrics.DateFailures.WithLabelValues(f.Stage).Inc()
	p.logger.Warn("date failed",
		"date", day.Format(domain.DateLayout),
		"stage", f.Stage,
		"window", f.Window.String(),
		"attempts", attempts,
		"error", err,
	)
	return f
}

// Checkpoint writes outlive cancellation so finished dates are not rebuilt.
func (p *Pipeline) saveRecord(ctx context.Context, scope string, rec domain.DailyFeatureRecord) {
	if err := p.checkpoint.SaveRecord(context.WithoutCancel(ctx), scope, rec); err != nil {
		p.logger.Warn("checkpoint record failed", "date", rec.DateKey(), "error", err)
	}
}

func (p *Pipeline) saveFailure(ctx context.Context, scope string, f domain.DateFailure) {
	if err := p.checkpoint.SaveFailure(context.WithoutCancel(ctx), scope, f); err != nil {
		p.logger.Warn("checkpoint failure failed", "date", f.Date.Format(domain.DateLayout), "error", err)
	}
}

func (p *Pipeline) export(ctx context.Context, records []domain.DailyFeatureRecord) error {
	if err := p.sink.Write(ctx, records); err != nil {
		var exportErr *domain.ExportError
		if errors.As(err, &exportErr) {
			return err
		}
		return &domain.ExportError{Sink: p.sink.Name(), Err: err}
	}
	p.metrics.RecordsExported.WithLabelValues(p.sink.Name()).Add(float64(len(records)))
	return nil
}

// retryable reports whether another attempt at the same date could succeed.
func retryable(err error) bool {
	var aggErr *domain.AggregationError
	if errors.As(err, &aggErr) {
		return !aggErr.Permanent()
	}
	return true
}

// sleep waits for d on the pipeline clock. Returns false if ctx ends first.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// Retry backoff doubles per attempt up to maxBackoff.
const maxBackoff = 5 * time.Second

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
