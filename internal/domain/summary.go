package domain

import (
	"sort"
	"time"
)

// MaxRankedThreats is the number of names reported in a summary.
const MaxRankedThreats = 3

// RankedThreat is one entry of a summary's top threats.
type RankedThreat struct {
	Name        string `json:"name"`
	Occurrences int    `json:"occurrences"`
	Percentage  int    `json:"percentage"`
}

// ThreatSummary is the aggregate view of an area. It is derived on every
// query and never stored.
type ThreatSummary struct {
	Area                string         `json:"area"`
	Kind                Kind           `json:"kind"`
	WindowStart         time.Time      `json:"window_start"`
	TotalCount          int            `json:"total_count"`
	AffectedFarmerCount int            `json:"affected_farmer_count"`
	AffectedLocations   []string       `json:"affected_locations"`
	RankedThreats       []RankedThreat `json:"ranked_threats"`
	Severity            Severity       `json:"severity"`
}

// AreaReport is the summary plus the context an expert sees next to it.
type AreaReport struct {
	Summary       ThreatSummary `json:"summary"`
	Recent        []Observation `json:"recent"`
	FarmersInArea int           `json:"farmers_in_area"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Aggregate counts, histograms and ranks observations. Names tied on
// occurrences keep the order they first appear in records, so callers pass
// records recent-first. Area, Kind, WindowStart and Severity are left for the
// caller.
func Aggregate(records []Observation) ThreatSummary {
	summary := ThreatSummary{
		TotalCount:        len(records),
		AffectedLocations: []string{},
		RankedThreats:     []RankedThreat{},
	}
	if len(records) == 0 {
		return summary
	}

	reporters := make(map[string]struct{}, len(records))
	locations := make(map[string]struct{})
	counts := make(map[string]int)
	var order []string
	for i := range records {
		reporters[records[i].ReporterID] = struct{}{}
		if _, seen := locations[records[i].Location]; !seen {
			locations[records[i].Location] = struct{}{}
			summary.AffectedLocations = append(summary.AffectedLocations, records[i].Location)
		}
		name := records[i].Name
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}
	summary.AffectedFarmerCount = len(reporters)
	sort.Strings(summary.AffectedLocations)

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > MaxRankedThreats {
		order = order[:MaxRankedThreats]
	}

	for _, name := range order {
		summary.RankedThreats = append(summary.RankedThreats, RankedThreat{
			Name:        name,
			Occurrences: counts[name],
			Percentage:  percentage(counts[name], summary.TotalCount),
		})
	}
	return summary
}

// percentage rounds occ*100/total half-up without floating point.
func percentage(occ, total int) int {
	if total == 0 {
		return 0
	}
	return (200*occ + total) / (2 * total)
}
