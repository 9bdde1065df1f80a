package domain

import "time"

// RecordFilter selects observations from a record store. Area matches the
// observation's Location as a case-insensitive substring; Name, when set, must
// equal the normalized name exactly; NameContains, when set, matches the name
// as a case-insensitive substring; ReporterID, when set, must equal the
// reporter; Since is an inclusive lower bound on ObservedAt (zero means no
// bound).
type RecordFilter struct {
	Kind         Kind
	Area         string
	Name         string
	NameContains string
	ReporterID   string
	Since        time.Time
}

// Matches applies the filter to one observation. Stores that filter in memory
// use it directly; SQL stores must agree with it.
func (f RecordFilter) Matches(o Observation) bool {
	if o.Kind != f.Kind {
		return false
	}
	if f.Name != "" && o.Name != f.Name {
		return false
	}
	if f.NameContains != "" && !MatchesArea(o.Name, f.NameContains) {
		return false
	}
	if f.ReporterID != "" && o.ReporterID != f.ReporterID {
		return false
	}
	if o.ObservedAt.Before(f.Since) {
		return false
	}
	return MatchesArea(o.Location, f.Area)
}
