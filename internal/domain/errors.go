package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRegionNotFound is returned when no boundary feature matches the region name.
	ErrRegionNotFound = errors.New("region not found")
	// ErrRegionAmbiguous is returned when more than one boundary feature matches.
	ErrRegionAmbiguous = errors.New("region name matches multiple features")

	// ErrPixelCapExceeded is returned when a reduction would consider more
	// samples than the configured pixel cap.
	ErrPixelCapExceeded = errors.New("pixel cap exceeded")
	// ErrGridMismatch is returned when frames combined pixel by pixel do not
	// share one lattice.
	ErrGridMismatch = errors.New("grid lattices differ")
	// ErrBandMissing is returned when a frame lacks a requested band.
	ErrBandMissing = errors.New("band missing")
	// ErrNoFrames is returned when a window that must contain data is empty.
	ErrNoFrames = errors.New("no frames in window")
)

// Pipeline stages, used to scope aggregation failures.
const (
	StagePrecipitationDaily      = "precipitation_daily"
	StagePrecipitationCumulative = "precipitation_3day"
	StageLandSurface             = "land_surface"
)

// RegionResolutionError reports that a region name did not resolve to exactly
// one boundary geometry. It is fatal to a run.
type RegionResolutionError struct {
	Name    string
	Matches int
	Err     error
}

func (e *RegionResolutionError) Error() string {
	return fmt.Sprintf("resolve region %q (%d matches): %v", e.Name, e.Matches, e.Err)
}

func (e *RegionResolutionError) Unwrap() error { return e.Err }

// AggregationError reports a query or reduction failure for one date. It is
// scoped to that date: other dates keep processing and the failed date can be
// retried on its own.
type AggregationError struct {
	Date   time.Time
	Stage  string
	Window Window
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s stage %s window %s: %v", e.Date.Format(DateLayout), e.Stage, e.Window, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same inputs cannot succeed.
func (e *AggregationError) Permanent() bool {
	return errors.Is(e.Err, ErrPixelCapExceeded) ||
		errors.Is(e.Err, ErrGridMismatch) ||
		errors.Is(e.Err, ErrBandMissing)
}

// ExportError reports that the feature table could not be written. It is
// fatal to a run.
type ExportError struct {
	Sink string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s: %v", e.Sink, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
