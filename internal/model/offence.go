package model

import "time"

// Offence severities and statuses.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	OffenceStatusNew                 = "new"
	OffenceStatusInProgress          = "in_progress"
	OffenceStatusClosedFalsePositive = "closed_false_positive"
	OffenceStatusClosedTruePositive  = "closed_true_positive"
	OffenceStatusClosedOther         = "closed_other"
)

// Offence is a detection result produced by the correlation engine.
type Offence struct {
	ID                    int64                  `json:"id" db:"id"`
	Title                 string                 `json:"title" db:"title"`
	Description           string                 `json:"description" db:"description"`
	Severity              string                 `json:"severity" db:"severity"`
	Status                string                 `json:"status" db:"status"`
	CorrelationRuleID     *int64                 `json:"correlation_rule_id" db:"correlation_rule_id"`
	TriggeringEventSummary map[string]interface{} `json:"triggering_event_summary" db:"triggering_event_summary"`
	MatchedIoCDetails     map[string]interface{} `json:"matched_ioc_details" db:"matched_ioc_details"`
	AttributedAPTGroupIDs []int64                `json:"attributed_apt_group_ids" db:"attributed_apt_group_ids"`
	DetectedAt            time.Time              `json:"detected_at" db:"detected_at"`
	Notes                 string                 `json:"notes,omitempty" db:"notes"`
	AssignedToUserID      *int64                 `json:"assigned_to_user_id,omitempty" db:"assigned_to_user_id"`
}

// TruncateSummaryField caps a triggering-event-summary value at 250 chars,
// per the offence summary truncation rule (spec §4.7.1/§3).
func TruncateSummaryField(v string) string {
	const max = 250
	if len(v) <= max {
		return v
	}
	return v[:max]
}

// TruncateIoCValue caps an IoC value to 120 chars before it is used as a
// dashboard group-by key, bounding cardinality on garbage input.
func TruncateIoCValue(v string) string {
	const max = 120
	if len(v) <= max {
		return v
	}
	return v[:max]
}
