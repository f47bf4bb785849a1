package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/flood-features-etl/internal/adapter/boundary"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/checkpointfile"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/csvsink"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/flood-features-etl/internal/adapter/kafka"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/postgres"
	"github.com/couchcryptid/flood-features-etl/internal/adapter/rasterfile"
	"github.com/couchcryptid/flood-features-etl/internal/config"
	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/couchcryptid/flood-features-etl/internal/observability"
	"github.com/couchcryptid/flood-features-etl/internal/pipeline"
	"github.com/couchcryptid/flood-features-etl/internal/zonal"
	"github.com/jmoiron/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sqlx.DB
	if cfg.SeriesBackend == config.BackendPostgres || cfg.CheckpointBackend == config.BackendPostgres {
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
	}

	precip, land, err := openSeries(cfg, db)
	if err != nil {
		logger.Error("failed to open raster series", "error", err)
		return 1
	}

	builder := pipeline.NewBuilder(precip, land, zonal.New(), pipeline.BuilderConfig{
		PrecipitationScale: cfg.PrecipitationResolution,
		LandSurfaceScale:   cfg.LandSurfaceResolution,
		PixelCap:           cfg.PixelCap,
		QueryRateLimit:     cfg.QueryRateLimit,
		Sources:            cfg.SeriesIdentity(),
	}, metrics)

	sink, closers := newSink(cfg, logger)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error("sink close error", "error", err)
			}
		}
	}()

	p := pipeline.New(newRegionProvider(cfg, logger), builder, newCheckpoint(cfg, db), sink, logger, metrics, pipeline.RunConfig{
		RegionName:   cfg.RegionName,
		Start:        cfg.Start,
		End:          cfg.End,
		Concurrency:  cfg.Concurrency,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
	})

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	report, runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
		return 1
	}
	if len(report.Failures) > 0 {
		for _, f := range report.Failures {
			logger.Error("date failed",
				"date", f.Date.Format(domain.DateLayout),
				"stage", f.Stage,
				"window", f.Window.String(),
				"attempts", f.Attempts,
				"error", f.Error,
			)
		}
		logger.Error("run completed with failures", "failed", len(report.Failures), "exported", report.Exported)
		return 2
	}
	logger.Info("run complete", "exported", report.Exported, "duration", report.Duration)
	return 0
}

func openSeries(cfg *config.Config, db *sqlx.DB) (precip, land domain.Series, err error) {
	switch cfg.SeriesBackend {
	case config.BackendPostgres:
		precip = postgres.NewSeries(db, cfg.PrecipitationCollection)
		land = postgres.NewSeries(db, cfg.LandSurfaceCollection)
	default:
		ps, err := rasterfile.Open(cfg.PrecipitationPath)
		if err != nil {
			return nil, nil, fmt.Errorf("precipitation series: %w", err)
		}
		ls, err := rasterfile.Open(cfg.LandSurfacePath)
		if err != nil {
			return nil, nil, fmt.Errorf("land surface series: %w", err)
		}
		precip, land = ps, ls
	}
	if cfg.LandSurfaceBandMap != nil {
		land = domain.RenameBands(land, cfg.LandSurfaceBandMap)
	}
	return precip, land, nil
}

func newRegionProvider(cfg *config.Config, logger *slog.Logger) pipeline.RegionProvider {
	if strings.HasPrefix(cfg.RegionSource, "http://") || strings.HasPrefix(cfg.RegionSource, "https://") {
		logger.Info("resolving region from boundary service", "url", cfg.RegionSource)
		return boundary.NewClient(cfg.RegionSource, cfg.RegionNameProperty, cfg.RegionTimeout, logger)
	}
	logger.Info("resolving region from file", "path", cfg.RegionSource)
	return boundary.NewFileProvider(cfg.RegionSource, cfg.RegionNameProperty)
}

func newCheckpoint(cfg *config.Config, db *sqlx.DB) pipeline.CheckpointStore {
	switch cfg.CheckpointBackend {
	case config.BackendPostgres:
		return postgres.NewCheckpointStore(db, cfg.RegionName)
	case config.BackendNone:
		return pipeline.NopCheckpoint{}
	default:
		return checkpointfile.New(cfg.CheckpointPath)
	}
}

func newSink(cfg *config.Config, logger *slog.Logger) (pipeline.Sink, []io.Closer) {
	csv := csvsink.New(cfg.OutputPath)
	if !cfg.KafkaEnabled() {
		return csv, nil
	}
	writer := kafkaadapter.NewWriter(cfg, logger)
	logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	return pipeline.MultiSink{csv, writer}, []io.Closer{writer}
}
