package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// RecordObservation validates, stores and evaluates a new observation.
// Unknown kinds or names and missing fields return domain.ErrInvalidInput; an
// unknown reporter returns domain.ErrNotFound. Store failures propagate.
// Trigger evaluation runs after the save and never affects the result.
// Saving an ID that is already stored returns the stored observation; the
// trigger still runs so an alert cut short by a crash is raised on redelivery.
func (e *Engine) RecordObservation(ctx context.Context, in domain.NewObservation) (domain.Observation, error) {
	kind, name, err := e.validateName(in)
	if err != nil {
		e.metrics.ObservationsRejected.WithLabelValues("invalid").Inc()
		return domain.Observation{}, err
	}
	in.Kind, in.Name = kind, name
	in = domain.ResolveLocation(ctx, in, e.geocoder, e.logger)

	obs, err := e.validate(in)
	if err != nil {
		e.metrics.ObservationsRejected.WithLabelValues("invalid").Inc()
		return domain.Observation{}, err
	}

	if _, err := e.store.GetFarmer(ctx, obs.ReporterID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.metrics.ObservationsRejected.WithLabelValues("unknown_reporter").Inc()
			return domain.Observation{}, fmt.Errorf("reporter %q: %w", obs.ReporterID, err)
		}
		e.metrics.ObservationsRejected.WithLabelValues("store").Inc()
		return domain.Observation{}, fmt.Errorf("load reporter %q: %w", obs.ReporterID, err)
	}

	obs.RecordedAt = e.clock.Now().UTC()
	saved, err := e.store.SaveObservation(ctx, obs)
	if err != nil {
		e.metrics.ObservationsRejected.WithLabelValues("store").Inc()
		return domain.Observation{}, fmt.Errorf("save observation: %w", err)
	}
	e.metrics.ObservationsRecorded.WithLabelValues(string(saved.Kind)).Inc()

	e.logger.Info("observation recorded",
		"observation_id", saved.ID,
		"kind", saved.Kind,
		"name", saved.Name,
		"area", saved.Location,
		"reporter_id", saved.ReporterID,
	)

	e.OnRecordCreated(ctx, saved)
	return saved, nil
}

// validateName checks kind and name against the vocabulary. It runs before
// geocoding so rejected reports cost no lookup.
func (e *Engine) validateName(in domain.NewObservation) (domain.Kind, string, error) {
	kind, err := domain.ParseKind(string(in.Kind))
	if err != nil {
		return "", "", err
	}
	name, err := e.vocabulary.Validate(kind, in.Name)
	if err != nil {
		return "", "", err
	}
	return kind, name, nil
}

// validate checks the remaining fields of an input whose kind and name have
// already passed validateName.
func (e *Engine) validate(in domain.NewObservation) (domain.Observation, error) {

	reporter := strings.TrimSpace(in.ReporterID)
	if reporter == "" {
		return domain.Observation{}, fmt.Errorf("%w: reporter id is required", domain.ErrInvalidInput)
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return domain.Observation{}, fmt.Errorf("%w: location is required", domain.ErrInvalidInput)
	}
	if in.ObservedAt.IsZero() {
		return domain.Observation{}, fmt.Errorf("%w: detection time is required", domain.ErrInvalidInput)
	}
	if c := in.Coordinates; c != nil && (c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180) {
		return domain.Observation{}, fmt.Errorf("%w: coordinates out of range (%f, %f)", domain.ErrInvalidInput, c.Lat, c.Lon)
	}

	return domain.Observation{
		ID:          strings.TrimSpace(in.ID),
		Kind:        in.Kind,
		ReporterID:  reporter,
		Name:        in.Name,
		Location:    location,
		Coordinates: in.Coordinates,
		ObservedAt:  in.ObservedAt.UTC(),
	}, nil
}
