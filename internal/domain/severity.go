package domain

// Severity is the alert level for an area.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityThresholds are the minimum total counts for MEDIUM and HIGH.
type SeverityThresholds struct {
	MediumAt int
	HighAt   int
}

// DefaultSeverityThresholds returns MEDIUM at 2 and HIGH at 3.
func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{MediumAt: 2, HighAt: 3}
}

// Classify maps a total observation count to a severity.
func Classify(total int, t SeverityThresholds) Severity {
	switch {
	case total >= t.HighAt:
		return SeverityHigh
	case total >= t.MediumAt:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
