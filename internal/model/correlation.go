package model

// Correlation rule types. Closed set per spec; new kinds add a handler in
// the correlation engine's registry without changing this list's meaning.
const (
	RuleTypeIOCMatchIP              = "IOC_MATCH_IP"
	RuleTypeThresholdLoginFailures  = "THRESHOLD_LOGIN_FAILURES"
	RuleTypeThresholdDataExfiltration = "THRESHOLD_DATA_EXFILTRATION"
)

// CorrelationRule is a typed detection spec evaluated once per cycle.
type CorrelationRule struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	RuleType string `json:"rule_type" db:"rule_type"`
	IsEnabled bool  `json:"is_enabled" db:"is_enabled"`

	EventSourceType  []string `json:"event_source_type" db:"event_source_type"`
	EventFieldToMatch string  `json:"event_field_to_match,omitempty" db:"event_field_to_match"`
	IoCTypeToMatch   string   `json:"ioc_type_to_match,omitempty" db:"ioc_type_to_match"`
	IoCTagsMatch     []string `json:"ioc_tags_match,omitempty" db:"ioc_tags_match"`
	IoCMinConfidence *int     `json:"ioc_min_confidence,omitempty" db:"ioc_min_confidence"`

	ThresholdCount             *int64   `json:"threshold_count,omitempty" db:"threshold_count"`
	ThresholdTimeWindowMinutes *int     `json:"threshold_time_window_minutes,omitempty" db:"threshold_time_window_minutes"`
	AggregationFields          []string `json:"aggregation_fields,omitempty" db:"aggregation_fields"`

	GeneratedOffenceTitleTemplate string `json:"generated_offence_title_template" db:"generated_offence_title_template"`
	GeneratedOffenceSeverity      string `json:"generated_offence_severity" db:"generated_offence_severity"`
}

// Validate checks the rule-type specific required fields (spec §4.7.4).
func (r *CorrelationRule) Validate() error {
	switch r.RuleType {
	case RuleTypeIOCMatchIP:
		if r.EventFieldToMatch == "" || r.IoCTypeToMatch == "" {
			return errValidation("IOC_MATCH_IP rule requires event_field_to_match and ioc_type_to_match")
		}
	case RuleTypeThresholdLoginFailures, RuleTypeThresholdDataExfiltration:
		if r.ThresholdCount == nil || r.ThresholdTimeWindowMinutes == nil || len(r.AggregationFields) == 0 {
			return errValidation("threshold rule requires threshold_count, threshold_time_window_minutes and aggregation_fields")
		}
	default:
		return errValidation("unknown rule_type: " + r.RuleType)
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errValidation(msg string) error { return validationError(msg) }
