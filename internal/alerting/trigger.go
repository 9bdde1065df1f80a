package alerting

import (
	"context"
	"fmt"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// Evaluate counts observations of name in area within rule.Window and, when
// the count reaches rule.Count, notifies the farmers in the area. It returns
// whether a notification fired. An area with no registered farmers still
// fires, with no recipients. A zero Window or Count in rule falls back to the
// policy's trigger settings.
func (e *Engine) Evaluate(ctx context.Context, kind domain.Kind, area, name string, rule domain.TriggerRule) (bool, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return false, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if rule.Window <= 0 {
		rule.Window = e.policy.Trigger.Window
	}
	if rule.Count <= 0 {
		rule.Count = e.policy.Trigger.Count
	}

	records, since, err := e.fetchWindow(ctx, WindowQuery{Area: area, Kind: kind, Name: name, Window: rule.Window})
	if err != nil {
		return false, err
	}
	if len(records) < rule.Count {
		return false, nil
	}

	recipients, err := e.ResolveArea(ctx, area)
	if err != nil {
		return false, fmt.Errorf("resolve recipients: %w", err)
	}

	alert := domain.Alert{
		Kind:        kind,
		Area:        area,
		Name:        name,
		Count:       len(records),
		Threshold:   rule.Count,
		WindowStart: since,
		Recipients:  recipients,
		TriggeredAt: e.clock.Now().UTC(),
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		return false, fmt.Errorf("notify %s alert for %q in %q: %w", kind, name, area, err)
	}

	e.logger.Info("threat alert fired",
		"area", area,
		"kind", kind,
		"name", name,
		"count", alert.Count,
		"recipients", len(recipients),
	)
	return true, nil
}

// OnRecordCreated runs the trigger for a freshly stored observation. It never
// fails: evaluation errors are logged and counted so the write that preceded
// it stays successful. Evaluation outlives the caller's cancellation, bounded
// by the engine's evaluation timeout.
func (e *Engine) OnRecordCreated(ctx context.Context, obs domain.Observation) (fired bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.evaluationTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("trigger evaluation panicked",
				"observation_id", obs.ID,
				"area", obs.Location,
				"name", obs.Name,
				"panic", r,
			)
			e.metrics.TriggerEvaluations.WithLabelValues(string(obs.Kind), "error").Inc()
			fired = false
		}
	}()

	fired, err := e.Evaluate(ctx, obs.Kind, obs.Location, obs.Name, e.policy.Trigger)
	if err != nil {
		e.logger.Error("trigger evaluation failed",
			"observation_id", obs.ID,
			"area", obs.Location,
			"kind", obs.Kind,
			"name", obs.Name,
			"error", err,
		)
		e.metrics.TriggerEvaluations.WithLabelValues(string(obs.Kind), "error").Inc()
		return false
	}

	outcome := "quiet"
	if fired {
		outcome = "fired"
	}
	e.metrics.TriggerEvaluations.WithLabelValues(string(obs.Kind), outcome).Inc()
	return fired
}
