package alerting

import (
	"context"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
)

// RecordStore is the durable storage the engine reads from and appends to.
// Implementations must return domain.ErrNotFound from GetFarmer and
// GetObservation for unknown IDs and an empty slice, not an error, when
// nothing matches. SaveObservation assigns an ID when obs.ID is empty; when
// obs.ID is already stored it returns the stored observation unchanged.
type RecordStore interface {
	FindFarmersByArea(ctx context.Context, area string) ([]domain.Farmer, error)
	GetFarmer(ctx context.Context, id string) (domain.Farmer, error)
	FindRecords(ctx context.Context, filter domain.RecordFilter) ([]domain.Observation, error)
	GetObservation(ctx context.Context, id string) (domain.Observation, error)
	SaveObservation(ctx context.Context, obs domain.Observation) (domain.Observation, error)
	Ping(ctx context.Context) error
}

// Notifier delivers an alert to farmers. Delivery may be duplicated when two
// observations cross the threshold concurrently; implementations must tolerate that.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
