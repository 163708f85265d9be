// Package response executes the action pipeline triggered by a created
// offence: find the enabled pipeline for the offence's correlation rule,
// run its actions in order, and resolve each action's parameters against
// the offence. Grounded on response/services.py's execute_response_for_offence.
package response

import (
	"context"
	"fmt"
	"sort"

	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

// PipelineStore looks up the single enabled pipeline triggered by a
// correlation rule. Implemented by internal/relstore.
type PipelineStore interface {
	EnabledPipelineForRule(ctx context.Context, ruleID int64) (*model.ResponsePipeline, error)
}

// ActionStore resolves an action's static configuration by id.
type ActionStore interface {
	GetAction(ctx context.Context, actionID int64) (*model.ResponseAction, error)
}

// DeviceExecutor performs the device-facing side of an action. Implemented
// over internal/device's connector registry, keyed by the target device id.
type DeviceExecutor interface {
	BlockIP(ctx context.Context, deviceID int64, listName, ip, comment string) error
	UnblockIP(ctx context.Context, deviceID int64, listName, ip string) error
}

// Orchestrator implements correlation.ResponseInvoker.
type Orchestrator struct {
	pipelines PipelineStore
	actions   ActionStore
	devices   DeviceExecutor
	log       logger.Logger
}

func New(pipelines PipelineStore, actions ActionStore, devices DeviceExecutor, log logger.Logger) *Orchestrator {
	return &Orchestrator{pipelines: pipelines, actions: actions, devices: devices, log: log}
}

// ExecuteForOffence runs the offence's triggering rule's pipeline, if one is
// enabled. A missing pipeline, a disabled action, or a single action's
// failure are all logged and do not abort the remaining steps.
func (o *Orchestrator) ExecuteForOffence(ctx context.Context, offence model.Offence) error {
	if offence.CorrelationRuleID == nil {
		o.log.Info("offence has no correlation rule, no pipeline to run", "offence_id", offence.ID)
		return nil
	}

	pipeline, err := o.pipelines.EnabledPipelineForRule(ctx, *offence.CorrelationRuleID)
	if err != nil {
		return fmt.Errorf("look up response pipeline: %w", err)
	}
	if pipeline == nil {
		o.log.Info("no enabled response pipeline for rule", "rule_id", *offence.CorrelationRuleID)
		return nil
	}
	o.log.Info("running response pipeline", "pipeline", pipeline.Name, "offence_id", offence.ID)

	steps := append([]model.PipelineActionConfig(nil), pipeline.ActionsConfig...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	offenceCtx := offenceTemplateContext(offence)

	for _, step := range steps {
		action, err := o.actions.GetAction(ctx, step.ActionID)
		if err != nil {
			o.log.Error("failed to load response action", "action_id", step.ActionID, "error", err)
			continue
		}
		if action == nil || !action.IsEnabled {
			o.log.Info("skipping response action (missing or disabled)", "action_id", step.ActionID)
			continue
		}

		params := mergeParams(action.DefaultParams, step.ActionParamsTemplate)
		if err := o.executeAction(ctx, offence, offenceCtx, *action, params); err != nil {
			o.log.Error("response action failed", "action", action.Name, "type", action.Type, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) executeAction(ctx context.Context, offence model.Offence, offenceCtx map[string]interface{}, action model.ResponseAction, params map[string]interface{}) error {
	switch action.Type {
	case model.ActionTypeBlockIP:
		return o.executeBlockIP(ctx, offence, params)
	case model.ActionTypeUnblockIP:
		return o.executeUnblockIP(ctx, params)
	case model.ActionTypeSendEmail:
		return o.executeSendEmail(offenceCtx, params)
	default:
		o.log.Warn("response action type not implemented", "type", action.Type)
		return nil
	}
}

const defaultBlockListName = "siem_blocked_ips"

func (o *Orchestrator) executeBlockIP(ctx context.Context, offence model.Offence, params map[string]interface{}) error {
	targetIP := resolveTargetIP(offence)
	deviceID, ok := intParam(params, "device_id")
	listName := stringParamOr(params, "list_name", defaultBlockListName)

	if targetIP == "" || !ok {
		o.log.Info("skipping block_ip action: target_ip or device_id missing", "target_ip", targetIP, "has_device_id", ok)
		return nil
	}

	comment := fmt.Sprintf("Blocked by SIEM Offence ID %d: %s", offence.ID, truncate(offence.Title, 50))
	return o.devices.BlockIP(ctx, deviceID, listName, targetIP, comment)
}

func (o *Orchestrator) executeUnblockIP(ctx context.Context, params map[string]interface{}) error {
	ip := stringParamOr(params, "ip_address", "")
	deviceID, ok := intParam(params, "device_id")
	listName := stringParamOr(params, "list_name", defaultBlockListName)
	if ip == "" || !ok {
		o.log.Info("skipping unblock_ip action: ip_address or device_id missing")
		return nil
	}
	return o.devices.UnblockIP(ctx, deviceID, listName, ip)
}

// executeSendEmail simulates delivery by logging the rendered subject/body;
// the corpus carries no mail-transport library so this mirrors the
// reference implementation's own SIMULATING-only behaviour.
func (o *Orchestrator) executeSendEmail(offenceCtx map[string]interface{}, params map[string]interface{}) error {
	recipient := stringParamOr(params, "recipient", "admin@example.com")
	subjectTmpl := stringParamOr(params, "subject_template", "SIEM Alert: {offence.title}")
	bodyTmpl := stringParamOr(params, "body_template", "Offence {offence.id}: {offence.description}")

	subject := renderDotted(subjectTmpl, offenceCtx)
	body := renderDotted(bodyTmpl, offenceCtx)
	o.log.Info("simulating send_email action", "recipient", recipient, "subject", subject, "body_preview", truncate(body, 100))
	return nil
}

// resolveTargetIP mirrors execute_response_for_offence's precedence:
// matched_ioc_details.value (if it is an ipv4/ipv6 indicator), else
// triggering_event_summary.source_ip, else triggering_event_summary.destination_ip.
func resolveTargetIP(offence model.Offence) string {
	if offence.MatchedIoCDetails != nil {
		if t, _ := offence.MatchedIoCDetails["type"].(string); t == model.IoCTypeIPv4 || t == model.IoCTypeIPv6 {
			if v, _ := offence.MatchedIoCDetails["value"].(string); v != "" {
				return v
			}
		}
	}
	if offence.TriggeringEventSummary != nil {
		if v, _ := offence.TriggeringEventSummary["source_ip"].(string); v != "" {
			return v
		}
		if v, _ := offence.TriggeringEventSummary["destination_ip"].(string); v != "" {
			return v
		}
	}
	return ""
}

func mergeParams(defaults map[string]interface{}, override map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func stringParamOr(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// intParam reads an int64-ish parameter; JSON-decoded numbers surface as
// float64, so both representations are accepted.
func intParam(params map[string]interface{}, key string) (int64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
