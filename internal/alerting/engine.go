package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/jonboulle/clockwork"
)

const defaultEvaluationTimeout = 10 * time.Second

// Engine aggregates observations into area summaries and fires notification
// triggers after each write. It holds no mutable state; every call recomputes
// from the record store.
type Engine struct {
	store      RecordStore
	notifier   Notifier
	geocoder   domain.Geocoder
	vocabulary domain.Vocabulary
	policy     domain.AlertPolicy
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	evaluationTimeout time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithPolicy replaces the default alert policy.
func WithPolicy(p domain.AlertPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithVocabulary replaces the default vocabulary.
func WithVocabulary(v domain.Vocabulary) Option {
	return func(e *Engine) { e.vocabulary = v }
}

// WithClock sets the time source. Tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithGeocoder enables location lookup for observations that only carry coordinates.
func WithGeocoder(g domain.Geocoder) Option {
	return func(e *Engine) { e.geocoder = g }
}

// WithEvaluationTimeout bounds the trigger evaluation that follows a write.
func WithEvaluationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.evaluationTimeout = d }
}

// New creates an Engine. A nil notifier is replaced by a LogNotifier.
func New(store RecordStore, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:             store,
		notifier:          notifier,
		vocabulary:        domain.DefaultVocabulary(nil, nil),
		policy:            domain.DefaultAlertPolicy(),
		clock:             clockwork.NewRealClock(),
		logger:            logger,
		metrics:           metrics,
		evaluationTimeout: defaultEvaluationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(logger)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, fmt.Errorf("alert policy: %w", err)
	}
	return e, nil
}

// Policy returns the thresholds the engine applies.
func (e *Engine) Policy() domain.AlertPolicy {
	return e.policy
}

// CheckReadiness reports whether the record store is reachable.
func (e *Engine) CheckReadiness(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	return nil
}

func normalizeArea(area string) (string, error) {
	area = strings.TrimSpace(area)
	if area == "" {
		return "", fmt.Errorf("%w: area is required", domain.ErrInvalidInput)
	}
	return area, nil
}
