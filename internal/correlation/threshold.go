package correlation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"netedge-siem/internal/model"
)

const compositePageSize = 1000

// handleThresholdLoginFailures evaluates a THRESHOLD_LOGIN_FAILURES rule:
// composite-aggregate authentication failures over the rule's time window
// by aggregation_fields, emitting an offence per bucket at or above
// threshold_count. Grounded on run_correlation_cycle's THRESHOLD_LOGIN_FAILURES
// branch, including its bool-should union across @timestamp/timestamp; both
// ranges start at now minus the rule's threshold_time_window_minutes.
func handleThresholdLoginFailures(ctx context.Context, e *Engine, rule model.CorrelationRule) ([]model.Offence, error) {
	if err := requireThresholdFields(rule); err != nil {
		return nil, err
	}

	sources := compositeSources(rule.AggregationFields)
	body := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"bool": map[string]interface{}{
						"should": []map[string]interface{}{
							{"range": map[string]interface{}{"@timestamp": map[string]interface{}{"gte": timeWindowExpr(*rule.ThresholdTimeWindowMinutes)}}},
							{"range": map[string]interface{}{"timestamp": map[string]interface{}{"gte": timeWindowExpr(*rule.ThresholdTimeWindowMinutes)}}},
						},
						"minimum_should_match": 1,
					}},
					{"term": map[string]interface{}{"event_category": model.CategoryAuthentication}},
					{"term": map[string]interface{}{"event_outcome.keyword": model.OutcomeFailure}},
				},
			},
		},
		"aggs": map[string]interface{}{
			"failed_logins_by_combination": map[string]interface{}{
				"composite": map[string]interface{}{
					"size":    compositePageSize,
					"sources": sources,
				},
			},
		},
	}

	var offences []model.Offence
	err := paginateComposite(ctx, e, syslogEventsIndexPattern+","+netflowEventsIndexPattern, body, "failed_logins_by_combination", func(bucket map[string]interface{}) {
		docCount, _ := bucket["doc_count"].(float64)
		count := int64(docCount)
		if count < *rule.ThresholdCount {
			return
		}
		key, _ := bucket["key"].(map[string]interface{})
		keyInfo := formatAggregationKey(key)

		title := renderTitle(rule.GeneratedOffenceTitleTemplate, map[string]string{
			"aggregation_key_info": keyInfo,
			"actual_count":         strconv.FormatInt(count, 10),
			"time_window_minutes":  strconv.Itoa(*rule.ThresholdTimeWindowMinutes),
		})

		offences = append(offences, model.Offence{
			Title:             title,
			Description:       fmt.Sprintf("Rule '%s' triggered. Details: %s. Count: %d in %d min.", rule.Name, keyInfo, count, *rule.ThresholdTimeWindowMinutes),
			Severity:          rule.GeneratedOffenceSeverity,
			CorrelationRuleID: &rule.ID,
			TriggeringEventSummary: map[string]interface{}{
				"aggregation_key": key,
				"count":           count,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return offences, nil
}

// handleThresholdDataExfiltration evaluates a THRESHOLD_DATA_EXFILTRATION
// rule: composite-aggregate network_bytes_total sums over the rule's time
// window by aggregation_fields, emitting an offence per bucket whose sum
// is at or above threshold_count (interpreted as a byte threshold). Uses
// the same @timestamp/timestamp bool-should union as
// handleThresholdLoginFailures, since netflow event documents carry only
// "timestamp" and a bare "@timestamp" range would match nothing.
func handleThresholdDataExfiltration(ctx context.Context, e *Engine, rule model.CorrelationRule) ([]model.Offence, error) {
	if err := requireThresholdFields(rule); err != nil {
		return nil, err
	}

	sources := compositeSources(rule.AggregationFields)
	body := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"bool": map[string]interface{}{
						"should": []map[string]interface{}{
							{"range": map[string]interface{}{"@timestamp": map[string]interface{}{"gte": timeWindowExpr(*rule.ThresholdTimeWindowMinutes)}}},
							{"range": map[string]interface{}{"timestamp": map[string]interface{}{"gte": timeWindowExpr(*rule.ThresholdTimeWindowMinutes)}}},
						},
						"minimum_should_match": 1,
					}},
				},
			},
		},
		"aggs": map[string]interface{}{
			"exfiltration_agg": map[string]interface{}{
				"composite": map[string]interface{}{
					"size":    compositePageSize,
					"sources": sources,
				},
				"aggs": map[string]interface{}{
					"total_bytes_sum": map[string]interface{}{"sum": map[string]interface{}{"field": "network_bytes_total"}},
				},
			},
		},
	}

	var offences []model.Offence
	err := paginateComposite(ctx, e, netflowEventsIndexPattern, body, "exfiltration_agg", func(bucket map[string]interface{}) {
		sumAgg, _ := bucket["total_bytes_sum"].(map[string]interface{})
		totalBytes, _ := sumAgg["value"].(float64)
		if int64(totalBytes) < *rule.ThresholdCount {
			return
		}
		key, _ := bucket["key"].(map[string]interface{})
		keyInfo := formatAggregationKey(key)

		title := renderTitle(rule.GeneratedOffenceTitleTemplate, map[string]string{
			"aggregation_key_info": keyInfo,
			"actual_sum_bytes":     strconv.FormatInt(int64(totalBytes), 10),
			"time_window_minutes":  strconv.Itoa(*rule.ThresholdTimeWindowMinutes),
		})

		offences = append(offences, model.Offence{
			Title:             title,
			Description:       fmt.Sprintf("Rule '%s' triggered: %s with %d bytes in %dm.", rule.Name, keyInfo, int64(totalBytes), *rule.ThresholdTimeWindowMinutes),
			Severity:          rule.GeneratedOffenceSeverity,
			CorrelationRuleID: &rule.ID,
			TriggeringEventSummary: map[string]interface{}{
				"aggregation_key": key,
				"sum_bytes":       totalBytes,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return offences, nil
}

func requireThresholdFields(rule model.CorrelationRule) error {
	if rule.ThresholdCount == nil || rule.ThresholdTimeWindowMinutes == nil || len(rule.AggregationFields) == 0 {
		return fmt.Errorf("rule missing threshold_count/threshold_time_window_minutes/aggregation_fields")
	}
	return nil
}

func compositeSources(fields []string) []map[string]interface{} {
	sources := make([]map[string]interface{}, 0, len(fields))
	for _, f := range fields {
		sources = append(sources, map[string]interface{}{
			f: map[string]interface{}{
				"terms": map[string]interface{}{"field": f + ".keyword"},
			},
		})
	}
	return sources
}

func timeWindowExpr(minutes int) string {
	return fmt.Sprintf("now-%dm", minutes)
}

// formatAggregationKey renders a composite bucket key as "k1='v1', k2='v2'"
// in deterministic (sorted) field-name order.
func formatAggregationKey(key map[string]interface{}) string {
	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s='%v'", name, key[name]))
	}
	return strings.Join(parts, ", ")
}

// paginateComposite drives a composite aggregation to exhaustion, invoking
// onBucket for every bucket across every page (spec: "loop on after_key
// until the store returns no buckets").
func paginateComposite(ctx context.Context, e *Engine, indexPattern string, body map[string]interface{}, aggName string, onBucket func(bucket map[string]interface{})) error {
	for {
		resp, err := e.store.Search(ctx, indexPattern, body)
		if err != nil {
			return fmt.Errorf("composite aggregation query: %w", err)
		}

		aggs, _ := resp["aggregations"].(map[string]interface{})
		agg, _ := aggs[aggName].(map[string]interface{})
		buckets, _ := agg["buckets"].([]interface{})
		if len(buckets) == 0 {
			return nil
		}

		for _, b := range buckets {
			bucket, ok := b.(map[string]interface{})
			if !ok {
				continue
			}
			onBucket(bucket)
		}

		afterKey, ok := agg["after_key"]
		if !ok || afterKey == nil {
			return nil
		}

		aggsBody, _ := body["aggs"].(map[string]interface{})
		target, _ := aggsBody[aggName].(map[string]interface{})
		composite, _ := target["composite"].(map[string]interface{})
		composite["after"] = afterKey
	}
}
