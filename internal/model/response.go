package model

// Response action types.
const (
	ActionTypeBlockIP    = "block_ip"
	ActionTypeUnblockIP  = "unblock_ip"
	ActionTypeSendEmail  = "send_email"
	ActionTypeCreateTicket = "create_ticket"
	ActionTypeIsolateHost  = "isolate_host"
)

// ResponseAction is a single executable effect.
type ResponseAction struct {
	ID            int64                  `json:"id" db:"id"`
	Name          string                 `json:"name" db:"name"`
	Type          string                 `json:"type" db:"type"`
	IsEnabled     bool                   `json:"is_enabled" db:"is_enabled"`
	DefaultParams map[string]interface{} `json:"default_params" db:"default_params"`
}

// PipelineActionConfig is one ordered step in a ResponsePipeline.
type PipelineActionConfig struct {
	ActionID            int64                  `json:"action_id"`
	Order               int                    `json:"order"`
	ActionParamsTemplate map[string]interface{} `json:"action_params_template,omitempty"`
}

// ResponsePipeline is an ordered action plan triggered by a correlation rule.
type ResponsePipeline struct {
	ID                      int64                  `json:"id" db:"id"`
	Name                    string                 `json:"name" db:"name"`
	Description             string                 `json:"description,omitempty" db:"description"`
	IsEnabled               bool                   `json:"is_enabled" db:"is_enabled"`
	TriggerCorrelationRuleID *int64                `json:"trigger_correlation_rule_id" db:"trigger_correlation_rule_id"`
	ActionsConfig           []PipelineActionConfig `json:"actions_config" db:"actions_config"`
}

// Validate checks that every referenced action id resolves via lookup.
func (p *ResponsePipeline) Validate(actionExists func(id int64) bool) error {
	for _, ac := range p.ActionsConfig {
		if !actionExists(ac.ActionID) {
			return errValidation("response action not found")
		}
	}
	return nil
}
