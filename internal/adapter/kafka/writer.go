package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/forecast-etl-service/internal/config"
	"github.com/couchcryptid/forecast-etl-service/internal/domain"
)

// Writer mirrors points to a Kafka topic.
// It implements pipeline.PointWriter.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured mirror topic.
func NewWriter(cfg config.KafkaConfig, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// WritePoints publishes one message per point in a single WriteMessages call.
func (w *Writer) WritePoints(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(points))
	for i := range points {
		msg, err := serializeToMessage(points[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write %s: %w", w.writer.Topic, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Point into a Kafka message keyed by location,
// so every point of one location lands on the same partition.
func serializeToMessage(p domain.Point) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize point: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.Tags[domain.TagLocation]),
		Value: data,
		Time:  p.Time(),
		Headers: []kafkago.Header{
			{Key: "measurement", Value: []byte(p.Measurement)},
			{Key: "timestamp_ns", Value: []byte(strconv.FormatInt(p.Timestamp, 10))},
		},
	}, nil
}
