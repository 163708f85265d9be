package relstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"netedge-siem/internal/model"
)

// CreateOffence implements correlation.OffenceStore.
func (s *Store) CreateOffence(ctx context.Context, o model.Offence) (model.Offence, error) {
	summary, err := marshalOrNil(o.TriggeringEventSummary)
	if err != nil {
		return model.Offence{}, fmt.Errorf("marshal triggering_event_summary: %w", err)
	}
	iocDetails, err := marshalOrNil(o.MatchedIoCDetails)
	if err != nil {
		return model.Offence{}, fmt.Errorf("marshal matched_ioc_details: %w", err)
	}
	if o.Status == "" {
		o.Status = model.OffenceStatusNew
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO offences (title, description, severity, status, correlation_rule_id, triggering_event_summary,
			matched_ioc_details, attributed_apt_group_ids, notes, assigned_to_user_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING id, detected_at`,
		o.Title, o.Description, o.Severity, o.Status, o.CorrelationRuleID, summary, iocDetails,
		pq.Array(o.AttributedAPTGroupIDs), o.Notes, o.AssignedToUserID,
	).Scan(&o.ID, &o.DetectedAt)
	if err != nil {
		return model.Offence{}, fmt.Errorf("insert offence: %w", err)
	}
	return o, nil
}

func marshalOrNil(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func scanOffence(row interface {
	Scan(dest ...interface{}) error
}) (model.Offence, error) {
	var o model.Offence
	var summary, iocDetails []byte
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.Severity, &o.Status, &o.CorrelationRuleID,
		&summary, &iocDetails, pq.Array(&o.AttributedAPTGroupIDs), &o.DetectedAt, &o.Notes, &o.AssignedToUserID)
	if err != nil {
		return model.Offence{}, err
	}
	if len(summary) > 0 {
		_ = json.Unmarshal(summary, &o.TriggeringEventSummary)
	}
	if len(iocDetails) > 0 {
		_ = json.Unmarshal(iocDetails, &o.MatchedIoCDetails)
	}
	return o, nil
}

const offenceColumns = `id, title, description, severity, status, correlation_rule_id, triggering_event_summary,
	matched_ioc_details, attributed_apt_group_ids, detected_at, notes, assigned_to_user_id`

func (s *Store) GetOffence(ctx context.Context, id int64) (*model.Offence, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offenceColumns+` FROM offences WHERE id = $1`, id)
	o, err := scanOffence(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load offence: %w", err)
	}
	return &o, nil
}

// RecentOffences returns the most recently detected offences, grounded on
// get_recent_offences.
func (s *Store) RecentOffences(ctx context.Context, limit int) ([]model.Offence, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+offenceColumns+` FROM offences ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent offences: %w", err)
	}
	defer rows.Close()

	var out []model.Offence
	for rows.Next() {
		o, err := scanOffence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offence: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SummaryBySeverity counts offences detected in the last daysBack days per
// severity, zero-filling severities with no hits. Grounded on
// get_offences_summary_by_severity.
func (s *Store) SummaryBySeverity(ctx context.Context, daysBack int) (map[string]int, error) {
	summary := map[string]int{
		model.SeverityLow: 0, model.SeverityMedium: 0, model.SeverityHigh: 0, model.SeverityCritical: 0,
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, count(*) FROM offences WHERE detected_at >= $1 GROUP BY severity`,
		time.Now().UTC().AddDate(0, 0, -daysBack))
	if err != nil {
		return nil, fmt.Errorf("query offence summary by severity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan offence severity count: %w", err)
		}
		summary[severity] = count
	}
	return summary, rows.Err()
}

// TriggeredIoC is one row of the top-triggered-IoCs dashboard aggregation.
type TriggeredIoC struct {
	Value        string
	Type         string
	TriggerCount int
}

// TopTriggeredIoCs aggregates matched_ioc_details across recent offences by
// (value, type), the same Python-side aggregation get_top_triggered_iocs_from_offences
// does over a JSONB column, done here with a jsonb_extract_path_text query
// instead of pulling every row into application memory. Values are
// truncated per model.TruncateIoCValue before grouping.
func (s *Store) TopTriggeredIoCs(ctx context.Context, limit, daysBack int) ([]TriggeredIoC, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT left(matched_ioc_details->>'value', 120) AS ioc_value,
		       matched_ioc_details->>'type' AS ioc_type,
		       count(*) AS trigger_count
		FROM offences
		WHERE detected_at >= $1
		  AND matched_ioc_details IS NOT NULL
		  AND matched_ioc_details->>'value' IS NOT NULL
		GROUP BY ioc_value, ioc_type
		ORDER BY trigger_count DESC
		LIMIT $2`,
		time.Now().UTC().AddDate(0, 0, -daysBack), limit)
	if err != nil {
		return nil, fmt.Errorf("query top triggered iocs: %w", err)
	}
	defer rows.Close()

	var out []TriggeredIoC
	for rows.Next() {
		var t TriggeredIoC
		if err := rows.Scan(&t.Value, &t.Type, &t.TriggerCount); err != nil {
			return nil, fmt.Errorf("scan triggered ioc row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// APTOffenceCount is one row of the offences-by-APT dashboard aggregation.
type APTOffenceCount struct {
	APTGroupID int64
	Name       string
	Count      int
}

// OffencesByAPT counts recent offences per attributed APT group, grounded
// on get_offences_by_apt_from_iocs's use of Offence.attributed_apt_group_ids.
func (s *Store) OffencesByAPT(ctx context.Context, daysBack int) ([]APTOffenceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, count(*) AS offence_count
		FROM offences o
		CROSS JOIN LATERAL unnest(o.attributed_apt_group_ids) AS apt_id
		JOIN apt_groups g ON g.id = apt_id
		WHERE o.detected_at >= $1
		GROUP BY g.id, g.name
		ORDER BY offence_count DESC`,
		time.Now().UTC().AddDate(0, 0, -daysBack))
	if err != nil {
		return nil, fmt.Errorf("query offences by apt: %w", err)
	}
	defer rows.Close()

	var out []APTOffenceCount
	for rows.Next() {
		var c APTOffenceCount
		if err := rows.Scan(&c.APTGroupID, &c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan apt offence count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
