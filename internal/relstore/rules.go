package relstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"netedge-siem/internal/model"
)

const ruleColumns = `id, name, rule_type, is_enabled, event_source_type, event_field_to_match, ioc_type_to_match,
	ioc_tags_match, ioc_min_confidence, threshold_count, threshold_time_window_minutes, aggregation_fields,
	generated_offence_title_template, generated_offence_severity`

// scanRule reads one correlation_rules row. Nullable numeric columns are
// scanned into sql.Null* first and copied into the model's *int64/*int
// fields; a direct **T scan destination would also work in database/sql.
func scanRule(row interface {
	Scan(dest ...interface{}) error
}) (model.CorrelationRule, error) {
	var r model.CorrelationRule
	var iocMinConfidence, thresholdWindow sql.NullInt64
	var thresholdCount sql.NullInt64

	err := row.Scan(&r.ID, &r.Name, &r.RuleType, &r.IsEnabled, pq.Array(&r.EventSourceType), &r.EventFieldToMatch,
		&r.IoCTypeToMatch, pq.Array(&r.IoCTagsMatch), &iocMinConfidence, &thresholdCount,
		&thresholdWindow, pq.Array(&r.AggregationFields), &r.GeneratedOffenceTitleTemplate,
		&r.GeneratedOffenceSeverity)
	if err != nil {
		return model.CorrelationRule{}, err
	}

	if iocMinConfidence.Valid {
		v := int(iocMinConfidence.Int64)
		r.IoCMinConfidence = &v
	}
	if thresholdCount.Valid {
		v := thresholdCount.Int64
		r.ThresholdCount = &v
	}
	if thresholdWindow.Valid {
		v := int(thresholdWindow.Int64)
		r.ThresholdTimeWindowMinutes = &v
	}
	return r, nil
}

// EnabledCorrelationRules implements correlation.RuleStore.
func (s *Store) EnabledCorrelationRules(ctx context.Context, limit int) ([]model.CorrelationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM correlation_rules WHERE is_enabled = true ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query enabled correlation rules: %w", err)
	}
	defer rows.Close()

	var out []model.CorrelationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correlation rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetCorrelationRule(ctx context.Context, id int64) (*model.CorrelationRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM correlation_rules WHERE id = $1`, id)
	r, err := scanRule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load correlation rule: %w", err)
	}
	return &r, nil
}

func (s *Store) ListCorrelationRules(ctx context.Context) ([]model.CorrelationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM correlation_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list correlation rules: %w", err)
	}
	defer rows.Close()

	var out []model.CorrelationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correlation rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateCorrelationRule(ctx context.Context, r model.CorrelationRule) (model.CorrelationRule, error) {
	if err := r.Validate(); err != nil {
		return model.CorrelationRule{}, err
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO correlation_rules (name, rule_type, is_enabled, event_source_type, event_field_to_match,
			ioc_type_to_match, ioc_tags_match, ioc_min_confidence, threshold_count, threshold_time_window_minutes,
			aggregation_fields, generated_offence_title_template, generated_offence_severity)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 RETURNING id`,
		r.Name, r.RuleType, r.IsEnabled, pq.Array(r.EventSourceType), r.EventFieldToMatch, r.IoCTypeToMatch,
		pq.Array(r.IoCTagsMatch), r.IoCMinConfidence, r.ThresholdCount, r.ThresholdTimeWindowMinutes,
		pq.Array(r.AggregationFields), r.GeneratedOffenceTitleTemplate, r.GeneratedOffenceSeverity,
	).Scan(&r.ID)
	if err != nil {
		return model.CorrelationRule{}, fmt.Errorf("insert correlation rule: %w", err)
	}
	return r, nil
}

func (s *Store) SetCorrelationRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE correlation_rules SET is_enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("update correlation rule enabled flag: %w", err)
	}
	return nil
}
