package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-features-etl/internal/config"
	"github.com/couchcryptid/flood-features-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// schemaVersion tags the record payload layout.
const schemaVersion = "daily-feature-record/v1"

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes feature records to a Kafka topic, one message per date.
// It implements pipeline.Sink.
type Writer struct {
	writer    messageWriter
	region    string
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, region: cfg.RegionName, batchSize: 500, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Write serializes records and publishes them in batches. Messages are keyed
// by date so reruns land on the same partition and compacted topics keep the
// latest record per date.
func (w *Writer) Write(ctx context.Context, records []domain.DailyFeatureRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(w.region, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	for start := 0; start < len(msgs); start += w.batchSize {
		end := min(start+w.batchSize, len(msgs))
		if err := w.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return fmt.Errorf("publish records %s..%s: %w", records[start].DateKey(), records[end-1].DateKey(), err)
		}
	}
	w.logger.Info("records published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a DailyFeatureRecord into a Kafka message.
func serializeToMessage(region string, rec domain.DailyFeatureRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.DateKey()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(region)},
			{Key: "date", Value: []byte(rec.DateKey())},
			{Key: "schema", Value: []byte(schemaVersion)},
		},
	}, nil
}
