package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Series implements domain.Series over the raster_bands table for one collection.
type Series struct {
	db         *sqlx.DB
	collection string
}

// NewSeries creates a Series reading the named collection, e.g. "UCSB-CHG/CHIRPS/DAILY".
func NewSeries(db *sqlx.DB, collection string) *Series {
	return &Series{db: db, collection: collection}
}

type bandRow struct {
	AcquiredAt time.Time       `db:"acquired_at"`
	Band       string          `db:"band"`
	MinX       float64         `db:"min_x"`
	MinY       float64         `db:"min_y"`
	CellSize   float64         `db:"cell_size"`
	Cols       int             `db:"cols"`
	Rows       int             `db:"rows"`
	Vals       pq.Float64Array `db:"vals"`
}

const queryBands = `
SELECT acquired_at, band, min_x, min_y, cell_size, cols, rows, vals
FROM raster_bands
WHERE collection = $1 AND acquired_at >= $2 AND acquired_at < $3
ORDER BY acquired_at, band`

const queryTimestamps = `
SELECT DISTINCT acquired_at
FROM raster_bands
WHERE collection = $1 AND acquired_at >= $2 AND acquired_at < $3
ORDER BY acquired_at`

func (s *Series) Query(ctx context.Context, w domain.Window) ([]domain.RasterFrame, error) {
	var rows []bandRow
	if err := s.db.SelectContext(ctx, &rows, queryBands, s.collection, w.Start, w.End); err != nil {
		return nil, fmt.Errorf("query %s bands in %s: %w", s.collection, w, err)
	}
	return framesFromRows(rows)
}

func (s *Series) Timestamps(ctx context.Context, w domain.Window) ([]time.Time, error) {
	var stamps []time.Time
	if err := s.db.SelectContext(ctx, &stamps, queryTimestamps, s.collection, w.Start, w.End); err != nil {
		return nil, fmt.Errorf("query %s timestamps in %s: %w", s.collection, w, err)
	}
	for i := range stamps {
		stamps[i] = stamps[i].UTC()
	}
	return stamps, nil
}

const upsertBand = `
INSERT INTO raster_bands (collection, acquired_at, band, min_x, min_y, cell_size, cols, rows, vals)
VALUES (:collection, :acquired_at, :band, :min_x, :min_y, :cell_size, :cols, :rows, :vals)
ON CONFLICT (collection, acquired_at, band) DO UPDATE SET
	min_x = EXCLUDED.min_x, min_y = EXCLUDED.min_y, cell_size = EXCLUDED.cell_size,
	cols = EXCLUDED.cols, rows = EXCLUDED.rows, vals = EXCLUDED.vals`

type bandInsert struct {
	Collection string `db:"collection"`
	bandRow
}

// WriteFrame stores every band of f in one transaction.
func (s *Series) WriteFrame(ctx context.Context, f domain.RasterFrame) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for name, g := range f.Bands {
		row := bandInsert{Collection: s.collection, bandRow: bandRow{
			AcquiredAt: f.Time.UTC(),
			Band:       name,
			MinX:       g.MinX,
			MinY:       g.MinY,
			CellSize:   g.CellSize,
			Cols:       g.Cols,
			Rows:       g.Rows,
			Vals:       pq.Float64Array(g.Values),
		}}
		if _, err := tx.NamedExecContext(ctx, upsertBand, row); err != nil {
			return fmt.Errorf("write band %q at %s: %w", name, f.Time.UTC().Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// framesFromRows groups band rows ordered by time into frames.
func framesFromRows(rows []bandRow) ([]domain.RasterFrame, error) {
	var frames []domain.RasterFrame
	for _, r := range rows {
		t := r.AcquiredAt.UTC()
		if len(frames) == 0 || !frames[len(frames)-1].Time.Equal(t) {
			frames = append(frames, domain.RasterFrame{Time: t, Bands: make(map[string]domain.Grid)})
		}
		g, err := domain.NewGrid(r.MinX, r.MinY, r.CellSize, r.Cols, r.Rows, []float64(r.Vals))
		if err != nil {
			return nil, fmt.Errorf("band %q at %s: %w", r.Band, t.Format(time.RFC3339), err)
		}
		frames[len(frames)-1].Bands[r.Band] = g
	}
	return frames, nil
}
