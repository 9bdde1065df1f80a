package alerting

import (
	"context"
	"slices"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// GetAreaAlertSummary aggregates the area's observations of kind over the
// policy window and classifies the result. An area without data yields a
// zero summary with severity LOW.
func (e *Engine) GetAreaAlertSummary(ctx context.Context, area string, kind domain.Kind) (domain.ThreatSummary, error) {
	summary, _, err := e.summarize(ctx, area, kind)
	return summary, err
}

// GetAreaReport returns the summary together with the most recent
// observations and the number of farmers registered in the area. The
// summary lists the distinct locations reported in the window.
func (e *Engine) GetAreaReport(ctx context.Context, area string, kind domain.Kind) (domain.AreaReport, error) {
	summary, records, err := e.summarize(ctx, area, kind)
	if err != nil {
		return domain.AreaReport{}, err
	}

	farmers, err := e.GetFarmersInArea(ctx, area)
	if err != nil {
		return domain.AreaReport{}, err
	}

	recent := slices.Clone(records)
	if limit := e.policy.RecentLimit; limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	return domain.AreaReport{
		Summary:       summary,
		Recent:        recent,
		FarmersInArea: len(farmers),
		GeneratedAt:   e.clock.Now().UTC(),
	}, nil
}

func (e *Engine) summarize(ctx context.Context, area string, kind domain.Kind) (domain.ThreatSummary, []domain.Observation, error) {
	start := time.Now()

	records, since, err := e.fetchWindow(ctx, WindowQuery{Area: area, Kind: kind, Window: e.policy.Window})
	if err != nil {
		return domain.ThreatSummary{}, nil, err
	}
	// Ranking ties go to the name seen most recently.
	sortRecent(records)

	summary := domain.Aggregate(records)
	summary.Area = area
	summary.Kind = kind
	summary.WindowStart = since
	summary.Severity = domain.Classify(summary.TotalCount, e.policy.Severity)

	e.metrics.AlertQueries.WithLabelValues(string(kind), string(summary.Severity)).Inc()
	e.metrics.AlertQueryDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	e.logger.Debug("area summary computed",
		"area", area,
		"kind", kind,
		"total", summary.TotalCount,
		"affected_farmers", summary.AffectedFarmerCount,
		"severity", summary.Severity,
	)
	return summary, records, nil
}
