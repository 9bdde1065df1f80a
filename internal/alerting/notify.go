package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
)

// LogNotifier writes alerts to the log. It is the fallback channel when no
// delivery channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert domain.Alert) error {
	n.logger.Warn("area threat alert",
		"kind", alert.Kind,
		"area", alert.Area,
		"name", alert.Name,
		"count", alert.Count,
		"threshold", alert.Threshold,
		"recipients", alert.Recipients,
	)
	return nil
}

// Channel is a named delivery channel.
type Channel struct {
	Name     string
	Notifier Notifier
}

// Fanout delivers each alert to every channel. A failing channel does not
// stop the others; their errors are joined.
type Fanout struct {
	channels []Channel
	metrics  *observability.Metrics
}

// NewFanout creates a Fanout over the given channels.
func NewFanout(metrics *observability.Metrics, channels ...Channel) *Fanout {
	return &Fanout{channels: channels, metrics: metrics}
}

func (f *Fanout) Notify(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, ch := range f.channels {
		if err := ch.Notifier.Notify(ctx, alert); err != nil {
			f.metrics.NotificationsSent.WithLabelValues(ch.Name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
			continue
		}
		f.metrics.NotificationsSent.WithLabelValues(ch.Name, "success").Inc()
	}
	return errors.Join(errs...)
}
