package domain

import (
	"fmt"
	"time"
)

// DefaultWindow is the trailing window for summaries and triggers.
const DefaultWindow = 7 * 24 * time.Hour

// TriggerRule fires a notification once Count observations of one name are
// seen in one area within Window.
type TriggerRule struct {
	Window time.Duration
	Count  int
}

// AlertPolicy groups the thresholds shared by the classifier and the
// notification trigger. Each value is overridable on its own.
type AlertPolicy struct {
	Window      time.Duration
	Severity    SeverityThresholds
	Trigger     TriggerRule
	RecentLimit int
}

// DefaultAlertPolicy returns a 7 day window, MEDIUM at 2, HIGH at 3, a trigger
// at 3 occurrences and 10 recent records per report.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		Window:      DefaultWindow,
		Severity:    DefaultSeverityThresholds(),
		Trigger:     TriggerRule{Window: DefaultWindow, Count: 3},
		RecentLimit: 10,
	}
}

// Validate rejects non-positive windows and thresholds that invert.
func (p AlertPolicy) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("alert window must be positive, got %s", p.Window)
	}
	if p.Trigger.Window <= 0 {
		return fmt.Errorf("trigger window must be positive, got %s", p.Trigger.Window)
	}
	if p.Trigger.Count < 1 {
		return fmt.Errorf("trigger count must be at least 1, got %d", p.Trigger.Count)
	}
	if p.Severity.MediumAt < 1 || p.Severity.HighAt < p.Severity.MediumAt {
		return fmt.Errorf("severity thresholds must satisfy 1 <= medium (%d) <= high (%d)",
			p.Severity.MediumAt, p.Severity.HighAt)
	}
	if p.RecentLimit < 0 {
		return fmt.Errorf("recent limit must not be negative, got %d", p.RecentLimit)
	}
	return nil
}
