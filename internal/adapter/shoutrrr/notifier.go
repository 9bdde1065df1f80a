// Package shoutrrr delivers alerts to chat, SMS gateway and e-mail services
// configured as shoutrrr service URLs.
package shoutrrr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	shoutrrrlib "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// sender is the subset of the shoutrrr router the notifier uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier implements alerting.Notifier over one or more shoutrrr URLs.
type Notifier struct {
	sender sender
	logger *slog.Logger
}

// NewNotifier validates urls and builds a single router for all of them.
// Errors never include the URLs, which usually carry credentials.
func NewNotifier(urls []string, timeout time.Duration, logger *slog.Logger) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one notification URL is required")
	}
	router, err := shoutrrrlib.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create notification sender for %d url(s): invalid service url", len(urls))
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return &Notifier{sender: router, logger: logger}, nil
}

// Notify sends one message per alert. The router enforces its own timeout.
func (n *Notifier) Notify(_ context.Context, alert domain.Alert) error {
	params := stypes.Params{}
	params.SetTitle(title(alert))

	var errs []error
	for _, err := range n.sender.Send(message(alert), &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("deliver alert: %w", errors.Join(errs...))
	}
	n.logger.Debug("alert delivered", "area", alert.Area, "name", alert.Name)
	return nil
}

func title(a domain.Alert) string {
	return fmt.Sprintf("%s alert: %s", capitalize(string(a.Kind)), a.Area)
}

func message(a domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s reported %d times in %s since %s (threshold %d).",
		capitalize(a.Name), a.Count, a.Area, a.WindowStart.Format("2006-01-02"), a.Threshold)
	switch len(a.Recipients) {
	case 0:
		b.WriteString(" No registered farmers in this area.")
	case 1:
		b.WriteString(" 1 farmer notified.")
	default:
		fmt.Fprintf(&b, " %d farmers notified.", len(a.Recipients))
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
