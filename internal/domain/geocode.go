package domain

import (
	"context"
	"log/slog"
)

// ResolveLocation fills an empty Location from the observation's coordinates.
// If geocoder is nil, the observation already has a location, or geocoding
// fails, the observation is returned unchanged (graceful degradation).
func ResolveLocation(ctx context.Context, obs NewObservation, geocoder Geocoder, logger *slog.Logger) NewObservation {
	if geocoder == nil || obs.Location != "" || obs.Coordinates == nil {
		return obs
	}

	result, err := geocoder.ReverseGeocode(ctx, obs.Coordinates.Lat, obs.Coordinates.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"reporter_id", obs.ReporterID,
			"lat", obs.Coordinates.Lat,
			"lon", obs.Coordinates.Lon,
			"error", err,
		)
		return obs
	}

	switch {
	case result.FormattedAddress != "":
		obs.Location = result.FormattedAddress
	case result.PlaceName != "":
		obs.Location = result.PlaceName
	}
	return obs
}
