package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// GetObservation returns one stored observation of kind. An ID that is
// unknown or belongs to the other kind is domain.ErrNotFound.
func (e *Engine) GetObservation(ctx context.Context, kind domain.Kind, id string) (domain.Observation, error) {
	kind, err := domain.ParseKind(string(kind))
	if err != nil {
		return domain.Observation{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Observation{}, fmt.Errorf("%w: observation id is required", domain.ErrInvalidInput)
	}
	obs, err := e.store.GetObservation(ctx, id)
	if err != nil {
		return domain.Observation{}, err
	}
	if obs.Kind != kind {
		return domain.Observation{}, fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
	}
	return obs, nil
}

// FindObservationsByReporter lists every observation of kind reported by
// one farmer, most recent first.
func (e *Engine) FindObservationsByReporter(ctx context.Context, kind domain.Kind, reporterID string) ([]domain.Observation, error) {
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return nil, fmt.Errorf("%w: reporter id is required", domain.ErrInvalidInput)
	}
	return e.findAll(ctx, domain.RecordFilter{Kind: kind, ReporterID: reporterID})
}

// SearchObservations lists observations of kind whose name contains query,
// ignoring case, most recent first.
func (e *Engine) SearchObservations(ctx context.Context, kind domain.Kind, query string) ([]domain.Observation, error) {
	query = domain.NormalizeName(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrInvalidInput)
	}
	return e.findAll(ctx, domain.RecordFilter{Kind: kind, NameContains: query})
}

// findAll queries without a time bound.
func (e *Engine) findAll(ctx context.Context, filter domain.RecordFilter) ([]domain.Observation, error) {
	kind, err := domain.ParseKind(string(filter.Kind))
	if err != nil {
		return nil, err
	}
	filter.Kind = kind
	records, err := e.store.FindRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s records: %w", filter.Kind, err)
	}
	if records == nil {
		records = []domain.Observation{}
	}
	sortRecent(records)
	return records, nil
}
