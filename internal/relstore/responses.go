package relstore

import (
	"context"
	"encoding/json"
	"fmt"

	"netedge-siem/internal/model"
)

// GetAction implements response.ActionStore.
func (s *Store) GetAction(ctx context.Context, id int64) (*model.ResponseAction, error) {
	var a model.ResponseAction
	var params []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, is_enabled, default_params FROM response_actions WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Type, &a.IsEnabled, &params)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load response action: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &a.DefaultParams); err != nil {
			return nil, fmt.Errorf("decode response action default_params: %w", err)
		}
	}
	return &a, nil
}

func (s *Store) ListActions(ctx context.Context) ([]model.ResponseAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, is_enabled, default_params FROM response_actions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list response actions: %w", err)
	}
	defer rows.Close()

	var out []model.ResponseAction
	for rows.Next() {
		var a model.ResponseAction
		var params []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.IsEnabled, &params); err != nil {
			return nil, fmt.Errorf("scan response action: %w", err)
		}
		if len(params) > 0 {
			_ = json.Unmarshal(params, &a.DefaultParams)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAction(ctx context.Context, a model.ResponseAction) (model.ResponseAction, error) {
	params, err := marshalOrNil(a.DefaultParams)
	if err != nil {
		return model.ResponseAction{}, fmt.Errorf("marshal default_params: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO response_actions (name, type, is_enabled, default_params) VALUES ($1,$2,$3,$4) RETURNING id`,
		a.Name, a.Type, a.IsEnabled, params,
	).Scan(&a.ID)
	if err != nil {
		return model.ResponseAction{}, fmt.Errorf("insert response action: %w", err)
	}
	return a, nil
}

// EnabledPipelineForRule implements response.PipelineStore: the single
// enabled pipeline whose trigger_correlation_rule_id matches ruleID.
// Grounded on execute_response_for_offence's pipeline lookup.
func (s *Store) EnabledPipelineForRule(ctx context.Context, ruleID int64) (*model.ResponsePipeline, error) {
	var p model.ResponsePipeline
	var actionsConfig []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_enabled, trigger_correlation_rule_id, actions_config
		 FROM response_pipelines WHERE trigger_correlation_rule_id = $1 AND is_enabled = true LIMIT 1`, ruleID,
	).Scan(&p.ID, &p.Name, &p.Description, &p.IsEnabled, &p.TriggerCorrelationRuleID, &actionsConfig)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load response pipeline for rule: %w", err)
	}
	if len(actionsConfig) > 0 {
		if err := json.Unmarshal(actionsConfig, &p.ActionsConfig); err != nil {
			return nil, fmt.Errorf("decode pipeline actions_config: %w", err)
		}
	}
	return &p, nil
}

func (s *Store) CreatePipeline(ctx context.Context, p model.ResponsePipeline, actionExists func(id int64) bool) (model.ResponsePipeline, error) {
	if err := p.Validate(actionExists); err != nil {
		return model.ResponsePipeline{}, err
	}
	actionsConfig, err := json.Marshal(p.ActionsConfig)
	if err != nil {
		return model.ResponsePipeline{}, fmt.Errorf("marshal actions_config: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO response_pipelines (name, description, is_enabled, trigger_correlation_rule_id, actions_config)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		p.Name, p.Description, p.IsEnabled, p.TriggerCorrelationRuleID, actionsConfig,
	).Scan(&p.ID)
	if err != nil {
		return model.ResponsePipeline{}, fmt.Errorf("insert response pipeline: %w", err)
	}
	return p, nil
}

func (s *Store) ListPipelines(ctx context.Context) ([]model.ResponsePipeline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_enabled, trigger_correlation_rule_id, actions_config FROM response_pipelines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list response pipelines: %w", err)
	}
	defer rows.Close()

	var out []model.ResponsePipeline
	for rows.Next() {
		var p model.ResponsePipeline
		var actionsConfig []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsEnabled, &p.TriggerCorrelationRuleID, &actionsConfig); err != nil {
			return nil, fmt.Errorf("scan response pipeline: %w", err)
		}
		if len(actionsConfig) > 0 {
			_ = json.Unmarshal(actionsConfig, &p.ActionsConfig)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
