package correlation

import (
	"context"
	"encoding/json"
	"fmt"

	"netedge-siem/internal/model"
)

var triggeringSummaryFields = []string{
	"timestamp", "reporter_ip", "hostname", "message", "source_ip", "destination_ip", "event_category", "event_type",
}

// handleIOCMatchIP evaluates an IOC_MATCH_IP rule: build a value→IoC map
// from active, tag/confidence-filtered IoCs of the rule's type, then find
// events in the last hour whose event_field_to_match equals one of those
// values. Grounded on run_correlation_cycle's IOC_MATCH_IP branch.
func handleIOCMatchIP(ctx context.Context, e *Engine, rule model.CorrelationRule) ([]model.Offence, error) {
	if rule.EventFieldToMatch == "" || rule.IoCTypeToMatch == "" {
		return nil, fmt.Errorf("rule missing event_field_to_match/ioc_type_to_match")
	}

	iocsByValue, err := e.activeIoCsForRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("query iocs for rule: %w", err)
	}
	if len(iocsByValue) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(iocsByValue))
	for v := range iocsByValue {
		values = append(values, v)
	}

	eventBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"range": map[string]interface{}{"timestamp": map[string]interface{}{"gte": "now-1h", "lte": "now"}}},
					{"exists": map[string]interface{}{"field": rule.EventFieldToMatch}},
					{"terms": map[string]interface{}{rule.EventFieldToMatch: values}},
				},
			},
		},
		"size": 10,
		"sort": []map[string]interface{}{{"timestamp": "desc"}},
	}

	resp, err := e.store.Search(ctx, syslogEventsIndexPattern+","+netflowEventsIndexPattern, eventBody)
	if err != nil {
		return nil, fmt.Errorf("query events for rule: %w", err)
	}

	var offences []model.Offence
	for _, doc := range searchHitSources(resp) {
		fieldValue, _ := doc[rule.EventFieldToMatch].(string)
		ioc, ok := iocsByValue[fieldValue]
		if !ok {
			continue
		}

		title := renderTitle(rule.GeneratedOffenceTitleTemplate, map[string]string{
			"ioc_value":            ioc.Value,
			"ioc_type":             ioc.Type,
			"event_source_ip":      stringField(doc, "source_ip"),
			"event_destination_ip": stringField(doc, "destination_ip"),
			"event_hostname":       stringField(doc, "hostname"),
		})

		summary := map[string]interface{}{}
		for _, f := range triggeringSummaryFields {
			if v, ok := doc[f]; ok {
				summary[f] = model.TruncateSummaryField(fmt.Sprint(v))
			}
		}

		iocDetails, err := iocAsMap(ioc)
		if err != nil {
			e.log.Warn("failed to serialize matched ioc details", "ioc_value", ioc.Value, "error", err)
			iocDetails = map[string]interface{}{"value": ioc.Value, "type": ioc.Type}
		}

		offences = append(offences, model.Offence{
			Title:                  title,
			Description:            fmt.Sprintf("Rule '%s' matched IoC '%s'. Event reporter: %s.", rule.Name, ioc.Value, stringField(doc, "reporter_ip")),
			Severity:               rule.GeneratedOffenceSeverity,
			CorrelationRuleID:      &rule.ID,
			TriggeringEventSummary: summary,
			MatchedIoCDetails:      iocDetails,
			AttributedAPTGroupIDs:  ioc.AttributedAPTGroupIDs,
		})
	}
	return offences, nil
}

// activeIoCsForRule loads active IoCs matching the rule's type/tags/confidence
// filters and indexes them by value.
func (e *Engine) activeIoCsForRule(ctx context.Context, rule model.CorrelationRule) (map[string]model.IoC, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"is_active": true}},
		{"term": map[string]interface{}{"type": rule.IoCTypeToMatch}},
	}
	if len(rule.IoCTagsMatch) > 0 {
		filters = append(filters, map[string]interface{}{"terms": map[string]interface{}{"tags": rule.IoCTagsMatch}})
	}
	if rule.IoCMinConfidence != nil {
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"confidence": map[string]interface{}{"gte": *rule.IoCMinConfidence}}})
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filters}},
		"size":  10000,
	}
	resp, err := e.store.Search(ctx, iocsIndexPattern, body)
	if err != nil {
		return nil, err
	}

	out := map[string]model.IoC{}
	for _, source := range searchHitSources(resp) {
		b, err := json.Marshal(source)
		if err != nil {
			continue
		}
		var ioc model.IoC
		if err := json.Unmarshal(b, &ioc); err != nil {
			continue
		}
		out[ioc.Value] = ioc
	}
	return out, nil
}

func searchHitSources(resp map[string]interface{}) []map[string]interface{} {
	hitsRaw, _ := resp["hits"].(map[string]interface{})
	hitsList, _ := hitsRaw["hits"].([]interface{})
	out := make([]map[string]interface{}, 0, len(hitsList))
	for _, h := range hitsList {
		hit, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		source, _ := hit["_source"].(map[string]interface{})
		if source != nil {
			out = append(out, source)
		}
	}
	return out
}

func stringField(doc map[string]interface{}, key string) string {
	v, ok := doc[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func iocAsMap(ioc model.IoC) (map[string]interface{}, error) {
	b, err := json.Marshal(ioc)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
