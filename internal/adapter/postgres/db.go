// Package postgres stores raster series and run checkpoints in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS raster_bands (
		collection  TEXT        NOT NULL,
		acquired_at TIMESTAMPTZ NOT NULL,
		band        TEXT        NOT NULL,
		min_x       DOUBLE PRECISION NOT NULL,
		min_y       DOUBLE PRECISION NOT NULL,
		cell_size   DOUBLE PRECISION NOT NULL,
		cols        INTEGER     NOT NULL,
		rows        INTEGER     NOT NULL,
		vals        DOUBLE PRECISION[] NOT NULL,
		PRIMARY KEY (collection, acquired_at, band)
	)`,
	`CREATE TABLE IF NOT EXISTS feature_records (
		scope                       TEXT NOT NULL,
		region                      TEXT NOT NULL,
		day                         DATE NOT NULL,
		rainfall_mean_mm            DOUBLE PRECISION NOT NULL,
		rainfall_max_mm             DOUBLE PRECISION NOT NULL,
		rainfall_std_mm             DOUBLE PRECISION NOT NULL,
		rainfall_3day_cumulative_mm DOUBLE PRECISION NOT NULL,
		surface_runoff_mm           DOUBLE PRECISION NOT NULL,
		subsurface_runoff_mm        DOUBLE PRECISION NOT NULL,
		soil_moisture_top10cm_mm    DOUBLE PRECISION NOT NULL,
		updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (scope, day)
	)`,
	`CREATE TABLE IF NOT EXISTS feature_failures (
		scope        TEXT        NOT NULL,
		region       TEXT        NOT NULL,
		day          DATE        NOT NULL,
		stage        TEXT        NOT NULL DEFAULT '',
		window_start TIMESTAMPTZ NOT NULL,
		window_end   TIMESTAMPTZ NOT NULL,
		error        TEXT        NOT NULL,
		attempts     INTEGER     NOT NULL,
		run_id       TEXT        NOT NULL DEFAULT '',
		recorded_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (scope, day)
	)`,
}

// Migrate creates the tables used by Series and CheckpointStore.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
