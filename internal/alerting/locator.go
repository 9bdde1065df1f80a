package alerting

import (
	"context"
	"fmt"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// GetFarmersInArea returns farmers whose land location contains area,
// ignoring case. No match is an empty slice, not an error.
func (e *Engine) GetFarmersInArea(ctx context.Context, area string) ([]domain.Farmer, error) {
	area, err := normalizeArea(area)
	if err != nil {
		return nil, err
	}
	farmers, err := e.store.FindFarmersByArea(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("find farmers in %q: %w", area, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if farmers == nil {
		farmers = []domain.Farmer{}
	}
	return farmers, nil
}

// ResolveArea returns the distinct IDs of farmers in area, in store order.
func (e *Engine) ResolveArea(ctx context.Context, area string) ([]string, error) {
	farmers, err := e.GetFarmersInArea(ctx, area)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(farmers))
	seen := make(map[string]struct{}, len(farmers))
	for _, f := range farmers {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		ids = append(ids, f.ID)
	}
	return ids, nil
}
