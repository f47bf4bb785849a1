// Package csvsink writes the daily feature table as a UTF-8 CSV file.
package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

// Sink implements pipeline.Sink. The table is written to a temporary file in
// the target directory and renamed into place, so a failed export leaves any
// previous file untouched.
type Sink struct {
	path string
}

// New creates a sink writing to path.
func New(path string) *Sink {
	return &Sink{path: path}
}

func (s *Sink) Name() string { return "csv" }

func (s *Sink) Write(ctx context.Context, records []domain.DailyFeatureRecord) error {
	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.fail(fmt.Errorf("create output dir: %w", err))
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.fail(fmt.Errorf("create temp file: %w", err))
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return s.fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return s.fail(fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return s.fail(fmt.Errorf("close: %w", err))
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return s.fail(fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

func (s *Sink) fail(err error) error {
	return &domain.ExportError{Sink: s.Name() + ":" + s.path, Err: err}
}

// Encode writes the header and one row per record, sorted by date.
func Encode(w io.Writer, records []domain.DailyFeatureRecord) error {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.DailyFeatureRecord) int { return a.Date.Compare(b.Date) })

	cw := csv.NewWriter(w)
	if err := cw.Write(domain.FeatureColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range sorted {
		if err := cw.Write(rec.Row()); err != nil {
			return fmt.Errorf("write row %s: %w", rec.DateKey(), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Read parses a table written by Encode.
func Read(r io.Reader) ([]domain.DailyFeatureRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.FeatureColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, domain.FeatureColumns) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []domain.DailyFeatureRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		rec, err := domain.ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}
