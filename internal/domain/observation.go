package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes pest infestations from disease detections.
type Kind string

const (
	KindPest    Kind = "pest"
	KindDisease Kind = "disease"
)

// ParseKind normalizes a kind string. Returns ErrInvalidInput for anything
// other than "pest" or "disease".
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPest:
		return KindPest, nil
	case KindDisease:
		return KindDisease, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, s)
	}
}

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Observation is a stored pest or disease sighting.
type Observation struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	ReporterID  string       `json:"reporter_id"`
	Name        string       `json:"name"`
	Location    string       `json:"location"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	ObservedAt  time.Time    `json:"observed_at"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// NewObservation is the caller-supplied input for recording an observation.
type NewObservation struct {
	// ID is optional. Saving an observation whose ID is already stored is a
	// no-op, which makes redelivered ingest messages idempotent.
	ID          string
	Kind        Kind
	ReporterID  string
	Name        string
	Location    string
	Coordinates *Coordinates
	ObservedAt  time.Time
}

// Farmer is a registered reporter. LandLocation is the area label the
// area locator matches against.
type Farmer struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	ContactNumber string    `json:"contact_number,omitempty"`
	Email         string    `json:"email,omitempty"`
	LandLocation  string    `json:"land_location"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// RawMessage is an unprocessed observation message from the ingest topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// MatchesArea reports whether label contains area, ignoring case.
func MatchesArea(label, area string) bool {
	return strings.Contains(strings.ToLower(label), strings.ToLower(area))
}
