package alerting

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// Order controls the ordering of QueryRecords results.
type Order int

const (
	// OrderAny leaves records in store order.
	OrderAny Order = iota
	// OrderRecent sorts by ObservedAt descending, ties by ID.
	OrderRecent
)

// WindowQuery selects observations in an area over a trailing window.
type WindowQuery struct {
	Area   string
	Kind   domain.Kind
	Name   string // optional exact name, normalized before matching
	Window time.Duration
	Order  Order
	Limit  int // 0 means no limit
}

// QueryRecords returns observations with ObservedAt >= now-Window whose
// location contains Area. Zero matches is an empty slice.
func (e *Engine) QueryRecords(ctx context.Context, q WindowQuery) ([]domain.Observation, error) {
	records, _, err := e.fetchWindow(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.Order == OrderRecent {
		sortRecent(records)
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

// fetchWindow reads the clock once and queries the store. It returns the
// window start it used so callers can report it.
func (e *Engine) fetchWindow(ctx context.Context, q WindowQuery) ([]domain.Observation, time.Time, error) {
	area, err := normalizeArea(q.Area)
	if err != nil {
		return nil, time.Time{}, err
	}
	if q.Kind != domain.KindPest && q.Kind != domain.KindDisease {
		return nil, time.Time{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, q.Kind)
	}
	window := q.Window
	if window <= 0 {
		window = e.policy.Window
	}

	since := e.clock.Now().UTC().Add(-window)
	records, err := e.store.FindRecords(ctx, domain.RecordFilter{
		Kind:  q.Kind,
		Area:  area,
		Name:  domain.NormalizeName(q.Name),
		Since: since,
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("find %s records in %q: %w", q.Kind, area, err)
	}
	// A cancelled caller gets the cancellation, never a partial aggregate.
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if records == nil {
		records = []domain.Observation{}
	}
	return records, since, nil
}

func sortRecent(records []domain.Observation) {
	slices.SortStableFunc(records, func(a, b domain.Observation) int {
		if c := b.ObservedAt.Compare(a.ObservedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
