package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
)

// MultiSink writes the table to every sink in order and stops at the first failure.
type MultiSink []Sink

func (m MultiSink) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m MultiSink) Write(ctx context.Context, records []domain.DailyFeatureRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, records); err != nil {
			var exportErr *domain.ExportError
			if errors.As(err, &exportErr) {
				return err
			}
			return &domain.ExportError{Sink: s.Name(), Err: err}
		}
	}
	return nil
}
