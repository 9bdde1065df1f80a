package domain

import "time"

// Alert is the signal sent to the notification collaborator when a trigger
// rule is met. Recipients are the farmers whose land lies in the area.
type Alert struct {
	Kind        Kind      `json:"kind"`
	Area        string    `json:"area"`
	Name        string    `json:"name"`
	Count       int       `json:"count"`
	Threshold   int       `json:"threshold"`
	WindowStart time.Time `json:"window_start"`
	Recipients  []string  `json:"recipients"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Key identifies the (kind, area, name) triple an alert is about.
func (a Alert) Key() string {
	return string(a.Kind) + "|" + NormalizeName(a.Area) + "|" + a.Name
}
