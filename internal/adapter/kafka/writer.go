package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/bloom-forecast/internal/config"
	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

// Writer publishes bloom reports to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured report topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes reports in a single WriteMessages call.
// Reports for the same location share a key and therefore a partition.
func (w *Writer) Publish(ctx context.Context, reports ...domain.BloomReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeToMessage(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish bloom reports: %w", err)
	}
	w.logger.Debug("bloom reports published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a BloomReport into a Kafka message.
func serializeToMessage(report domain.BloomReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize bloom report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(domain.CacheKey(domain.DataNDVI, report.Lat, report.Lon, strconv.Itoa(report.Year))),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "report_id", Value: []byte(report.ID)},
			{Key: "bloom_level", Value: []byte(report.Classification.Level)},
			{Key: "source_tag", Value: []byte(report.Observation.SourceTag)},
			{Key: "generated_at", Value: []byte(report.LastUpdated.Format(time.RFC3339))},
		},
	}, nil
}
