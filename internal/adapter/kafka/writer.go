package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/config"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes fired alerts to the alert topic for downstream SMS and
// push delivery. It implements alerting.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the configured alert topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAlertTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify publishes one alert. Alerts for the same kind, area and name share a
// key and therefore a partition, so consumers see them in order.
func (w *Writer) Notify(ctx context.Context, alert domain.Alert) error {
	msg, err := serializeAlert(alert)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	w.logger.Debug("alert published", "topic", w.writer.Topic, "key", string(msg.Key))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeAlert(alert domain.Alert) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(alert.Kind)},
			{Key: "triggered_at", Value: []byte(alert.TriggeredAt.Format(time.RFC3339))},
		},
	}, nil
}
