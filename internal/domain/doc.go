// Package domain models crop pest and disease observations and the pure
// aggregation rules applied to them.
//
// # Observations
//
// An observation is one sighting of a pest or disease reported by a farmer:
// who reported it (ReporterID), what was detected (Name), where (Location and
// optional Coordinates) and when (ObservedAt). Observations are append-only.
// Once the store assigns an ID the record is never updated or deleted.
//
// Names arrive pre-classified by the image models upstream and are checked
// against a closed vocabulary per kind. Names are trimmed and lower-cased
// before validation, so "  Stem Borer" and "stem borer" are the same threat.
//
// # Areas
//
// An area is a free-text label such as "Malabe North". Matching is a
// case-insensitive substring test: the query "malabe" matches "Malabe North"
// and "Malabe South". There is no geospatial index.
//
// # Aggregation
//
// [Aggregate] turns a set of observations into a [ThreatSummary]:
//
//	TotalCount           number of observations
//	AffectedFarmerCount  distinct reporters
//	RankedThreats        top 3 names by occurrences, ties in first-seen order
//
// Percentages use round-half-up integer arithmetic, (200*occ + total) / (2*total),
// so 1 of 8 observations (12.5%) reports as 13.
//
// # Severity
//
// [Classify] maps the total count for a query to LOW, MEDIUM or HIGH using
// [SeverityThresholds] (defaults: MEDIUM at 2, HIGH at 3). The notification
// trigger has its own [TriggerRule] with the same default count; the two are
// configured independently because the classifier counts every observation in
// the area while the trigger counts one name.
package domain
