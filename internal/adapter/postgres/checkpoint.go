package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/jmoiron/sqlx"
)

// CheckpointStore implements pipeline.CheckpointStore. Rows are keyed by scope
// fingerprint and day; region is stored alongside for inspection.
type CheckpointStore struct {
	db     *sqlx.DB
	region string
}

// NewCheckpointStore creates a store that labels its rows with region.
func NewCheckpointStore(db *sqlx.DB, region string) *CheckpointStore {
	return &CheckpointStore{db: db, region: region}
}

type recordRow struct {
	Scope                  string    `db:"scope"`
	Region                 string    `db:"region"`
	Day                    time.Time `db:"day"`
	RainfallMean           float64   `db:"rainfall_mean_mm"`
	RainfallMax            float64   `db:"rainfall_max_mm"`
	RainfallStd            float64   `db:"rainfall_std_mm"`
	Rainfall3DayCumulative float64   `db:"rainfall_3day_cumulative_mm"`
	SurfaceRunoff          float64   `db:"surface_runoff_mm"`
	SubsurfaceRunoff       float64   `db:"subsurface_runoff_mm"`
	SoilMoisture           float64   `db:"soil_moisture_top10cm_mm"`
}

func toRecordRow(scope, region string, rec domain.DailyFeatureRecord) recordRow {
	return recordRow{
		Scope:                  scope,
		Region:                 region,
		Day:                    domain.Day(rec.Date),
		RainfallMean:           rec.RainfallMean,
		RainfallMax:            rec.RainfallMax,
		RainfallStd:            rec.RainfallStd,
		Rainfall3DayCumulative: rec.Rainfall3DayCumulative,
		SurfaceRunoff:          rec.SurfaceRunoff,
		SubsurfaceRunoff:       rec.SubsurfaceRunoff,
		SoilMoisture:           rec.SoilMoisture,
	}
}

func (r recordRow) record() domain.DailyFeatureRecord {
	return domain.DailyFeatureRecord{
		Date:                   domain.Day(r.Day),
		RainfallMean:           r.RainfallMean,
		RainfallMax:            r.RainfallMax,
		RainfallStd:            r.RainfallStd,
		Rainfall3DayCumulative: r.Rainfall3DayCumulative,
		LandSurface: domain.LandSurface{
			SurfaceRunoff:    r.SurfaceRunoff,
			SubsurfaceRunoff: r.SubsurfaceRunoff,
			SoilMoisture:     r.SoilMoisture,
		},
	}
}

type failureRow struct {
	Scope       string    `db:"scope"`
	Region      string    `db:"region"`
	Day         time.Time `db:"day"`
	Stage       string    `db:"stage"`
	WindowStart time.Time `db:"window_start"`
	WindowEnd   time.Time `db:"window_end"`
	Error       string    `db:"error"`
	Attempts    int       `db:"attempts"`
	RunID       string    `db:"run_id"`
	RecordedAt  time.Time `db:"recorded_at"`
}

func (r failureRow) failure() domain.DateFailure {
	return domain.DateFailure{
		Date:       domain.Day(r.Day),
		Stage:      r.Stage,
		Window:     domain.Window{Start: r.WindowStart.UTC(), End: r.WindowEnd.UTC()},
		Error:      r.Error,
		Attempts:   r.Attempts,
		RunID:      r.RunID,
		RecordedAt: r.RecordedAt.UTC(),
	}
}

const (
	selectRecords = `
SELECT scope, region, day, rainfall_mean_mm, rainfall_max_mm, rainfall_std_mm, rainfall_3day_cumulative_mm,
       surface_runoff_mm, subsurface_runoff_mm, soil_moisture_top10cm_mm
FROM feature_records WHERE scope = $1`

	selectFailures = `
SELECT scope, region, day, stage, window_start, window_end, error, attempts, run_id, recorded_at
FROM feature_failures WHERE scope = $1`

	upsertRecord = `
INSERT INTO feature_records (scope, region, day, rainfall_mean_mm, rainfall_max_mm, rainfall_std_mm,
	rainfall_3day_cumulative_mm, surface_runoff_mm, subsurface_runoff_mm, soil_moisture_top10cm_mm)
VALUES (:scope, :region, :day, :rainfall_mean_mm, :rainfall_max_mm, :rainfall_std_mm,
	:rainfall_3day_cumulative_mm, :surface_runoff_mm, :subsurface_runoff_mm, :soil_moisture_top10cm_mm)
ON CONFLICT (scope, day) DO UPDATE SET
	rainfall_mean_mm = EXCLUDED.rainfall_mean_mm,
	rainfall_max_mm = EXCLUDED.rainfall_max_mm,
	rainfall_std_mm = EXCLUDED.rainfall_std_mm,
	rainfall_3day_cumulative_mm = EXCLUDED.rainfall_3day_cumulative_mm,
	surface_runoff_mm = EXCLUDED.surface_runoff_mm,
	subsurface_runoff_mm = EXCLUDED.subsurface_runoff_mm,
	soil_moisture_top10cm_mm = EXCLUDED.soil_moisture_top10cm_mm,
	updated_at = now()`

	deleteFailure = `DELETE FROM feature_failures WHERE scope = $1 AND day = $2`

	recordExists = `SELECT EXISTS (SELECT 1 FROM feature_records WHERE scope = $1 AND day = $2)`

	upsertFailure = `
INSERT INTO feature_failures (scope, region, day, stage, window_start, window_end, error, attempts, run_id, recorded_at)
VALUES (:scope, :region, :day, :stage, :window_start, :window_end, :error, :attempts, :run_id, :recorded_at)
ON CONFLICT (scope, day) DO UPDATE SET
	stage = EXCLUDED.stage,
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	error = EXCLUDED.error,
	attempts = EXCLUDED.attempts,
	run_id = EXCLUDED.run_id,
	recorded_at = EXCLUDED.recorded_at`
)

func (s *CheckpointStore) Load(ctx context.Context, scope string) (domain.Checkpoint, error) {
	cp := domain.NewCheckpoint()

	var records []recordRow
	if err := s.db.SelectContext(ctx, &records, selectRecords, scope); err != nil {
		return cp, fmt.Errorf("load feature records: %w", err)
	}
	for _, r := range records {
		rec := r.record()
		cp.Records[rec.DateKey()] = rec
	}

	var failures []failureRow
	if err := s.db.SelectContext(ctx, &failures, selectFailures, scope); err != nil {
		return cp, fmt.Errorf("load feature failures: %w", err)
	}
	for _, r := range failures {
		cp.ApplyFailure(r.failure())
	}
	return cp, nil
}

func (s *CheckpointStore) SaveRecord(ctx context.Context, scope string, rec domain.DailyFeatureRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := toRecordRow(scope, s.region, rec)
	if _, err := tx.NamedExecContext(ctx, upsertRecord, row); err != nil {
		return fmt.Errorf("save record %s: %w", rec.DateKey(), err)
	}
	if _, err := tx.ExecContext(ctx, deleteFailure, scope, row.Day); err != nil {
		return fmt.Errorf("clear failure %s: %w", rec.DateKey(), err)
	}
	return tx.Commit()
}

func (s *CheckpointStore) SaveFailure(ctx context.Context, scope string, f domain.DateFailure) error {
	row := failureRow{
		Scope:       scope,
		Region:      s.region,
		Day:         domain.Day(f.Date),
		Stage:       f.Stage,
		WindowStart: f.Window.Start,
		WindowEnd:   f.Window.End,
		Error:       f.Error,
		Attempts:    f.Attempts,
		RunID:       f.RunID,
		RecordedAt:  f.RecordedAt,
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// A failure never shadows a completed date.
	var done bool
	if err := tx.GetContext(ctx, &done, recordExists, scope, row.Day); err != nil {
		return fmt.Errorf("check record %s: %w", row.Day.Format(domain.DateLayout), err)
	}
	if done {
		return nil
	}
	if _, err := tx.NamedExecContext(ctx, upsertFailure, row); err != nil {
		return fmt.Errorf("save failure %s: %w", row.Day.Format(domain.DateLayout), err)
	}
	return tx.Commit()
}
