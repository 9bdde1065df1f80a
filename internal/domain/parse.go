package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObservationPayload is the JSON shape posted by the mobile app and published
// by the detection services. Pest and disease reports share the shape and
// differ only in which name field is set.
type ObservationPayload struct {
	FarmerID          string   `json:"farmerId"`
	Kind              string   `json:"kind,omitempty"`
	PestName          string   `json:"pestName,omitempty"`
	DiseaseName       string   `json:"diseaseName,omitempty"`
	DetectedLocation  string   `json:"detectedLocation"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	DetectionDateTime string   `json:"detectionDateTime"`
}

// localDateTimeLayout is the zone-less timestamp the mobile app sends.
// It is interpreted as UTC.
const localDateTimeLayout = "2006-01-02T15:04:05"

// ParseObservationMessage decodes a raw ingest message. The kind comes from
// the payload, then the "kind" header, then whichever name field is set.
// A missing detection time falls back to the message timestamp.
func ParseObservationMessage(raw RawMessage) (NewObservation, error) {
	var p ObservationPayload
	if err := json.Unmarshal(raw.Value, &p); err != nil {
		return NewObservation{}, fmt.Errorf("%w: parse observation: %v", ErrInvalidInput, err)
	}
	if p.Kind == "" {
		p.Kind = raw.Headers["kind"]
	}
	obs, err := p.ToNewObservation("")
	if err != nil {
		return NewObservation{}, err
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = raw.Timestamp.UTC()
	}
	return obs, nil
}

// ToNewObservation converts the payload. fallbackKind is used when the payload
// carries no kind and both name fields are empty or both are set.
func (p ObservationPayload) ToNewObservation(fallbackKind Kind) (NewObservation, error) {
	kind, name, err := p.kindAndName(fallbackKind)
	if err != nil {
		return NewObservation{}, err
	}

	observedAt, err := parseDetectionTime(p.DetectionDateTime)
	if err != nil {
		return NewObservation{}, err
	}

	obs := NewObservation{
		Kind:       kind,
		ReporterID: strings.TrimSpace(p.FarmerID),
		Name:       name,
		Location:   strings.TrimSpace(p.DetectedLocation),
		ObservedAt: observedAt,
	}
	if p.Latitude != nil && p.Longitude != nil {
		obs.Coordinates = &Coordinates{Lat: *p.Latitude, Lon: *p.Longitude}
	}
	return obs, nil
}

func (p ObservationPayload) kindAndName(fallback Kind) (Kind, string, error) {
	if p.Kind != "" {
		kind, err := ParseKind(p.Kind)
		if err != nil {
			return "", "", err
		}
		if kind == KindPest {
			return kind, p.PestName, nil
		}
		return kind, p.DiseaseName, nil
	}
	switch {
	case p.PestName != "" && p.DiseaseName == "":
		return KindPest, p.PestName, nil
	case p.DiseaseName != "" && p.PestName == "":
		return KindDisease, p.DiseaseName, nil
	case fallback == KindPest:
		return fallback, p.PestName, nil
	case fallback == KindDisease:
		return fallback, p.DiseaseName, nil
	default:
		return "", "", fmt.Errorf("%w: cannot infer observation kind", ErrInvalidInput)
	}
}

func parseDetectionTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(localDateTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid detectionDateTime %q", ErrInvalidInput, s)
}
