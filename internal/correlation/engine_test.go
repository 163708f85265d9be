package correlation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

type fakeOffenceStore struct {
	created []model.Offence
}

func (f *fakeOffenceStore) CreateOffence(ctx context.Context, o model.Offence) (model.Offence, error) {
	o.ID = int64(len(f.created) + 1)
	f.created = append(f.created, o)
	return o, nil
}

type fakeResponder struct {
	invoked []model.Offence
}

func (f *fakeResponder) ExecuteForOffence(ctx context.Context, offence model.Offence) error {
	f.invoked = append(f.invoked, offence)
	return nil
}

// TestHandleIOCMatchIP_ScenarioThree reproduces the IOC_MATCH_IP end-to-end
// scenario: an active 8.8.8.8 IoC tagged apt:apt28, and one matching
// destination_ip=8.8.8.8 event, should yield exactly one offence titled
// "Out->8.8.8.8" with severity high and attributed_apt_group_ids=[7].
func TestHandleIOCMatchIP_ScenarioThree(t *testing.T) {
	confidence := 80
	ioc := map[string]interface{}{
		"value": "8.8.8.8", "type": model.IoCTypeIPv4, "is_active": true,
		"tags": []string{"apt:apt28"}, "confidence": confidence, "attributed_apt_group_ids": []int64{7},
	}
	event := map[string]interface{}{
		"timestamp": "2026-07-31T10:00:00Z", "reporter_ip": "192.168.1.1", "hostname": "gw1",
		"source_ip": "192.168.1.1", "destination_ip": "8.8.8.8", "event_category": "network", "event_type": "flow",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body map[string]interface{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		if r.URL.Path == "/siem-iocs-*/_search" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"hits": map[string]interface{}{"hits": []map[string]interface{}{{"_id": "ioc-1", "_source": ioc}}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"hits": []map[string]interface{}{{"_id": "evt-1", "_source": event}}},
		})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	e := &Engine{store: store, log: logger.NewNoop()}

	rule := model.CorrelationRule{
		ID:                            1,
		Name:                          "IoC match test",
		RuleType:                      model.RuleTypeIOCMatchIP,
		EventFieldToMatch:             "destination_ip",
		IoCTypeToMatch:                model.IoCTypeIPv4,
		IoCTagsMatch:                  []string{"apt:apt28"},
		GeneratedOffenceTitleTemplate: "Out->{ioc_value}",
		GeneratedOffenceSeverity:      model.SeverityHigh,
	}

	offences, err := handleIOCMatchIP(context.Background(), e, rule)
	require.NoError(t, err)
	require.Len(t, offences, 1)
	assert.Equal(t, "Out->8.8.8.8", offences[0].Title)
	assert.Equal(t, model.SeverityHigh, offences[0].Severity)
	assert.Equal(t, []int64{7}, offences[0].AttributedAPTGroupIDs)
}

// TestHandleThresholdLoginFailures_ScenarioFour reproduces the threshold
// login-failures scenario: a single composite bucket with doc_count=6 at
// or above threshold_count=5 should yield one offence embedding both
// aggregation key values and the actual count.
func TestHandleThresholdLoginFailures_ScenarioFour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"aggregations": map[string]interface{}{
				"failed_logins_by_combination": map[string]interface{}{
					"buckets": []map[string]interface{}{
						{"key": map[string]interface{}{"username": "alice", "hostname": "srv1"}, "doc_count": 6},
					},
				},
			},
		})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	e := &Engine{store: store, log: logger.NewNoop()}

	count := int64(5)
	window := 10
	rule := model.CorrelationRule{
		ID:                            2,
		Name:                          "Login failures",
		RuleType:                      model.RuleTypeThresholdLoginFailures,
		ThresholdCount:                &count,
		ThresholdTimeWindowMinutes:    &window,
		AggregationFields:             []string{"username", "hostname"},
		GeneratedOffenceTitleTemplate: "Failed logins: {aggregation_key_info} ({actual_count})",
		GeneratedOffenceSeverity:      model.SeverityMedium,
	}

	offences, err := handleThresholdLoginFailures(context.Background(), e, rule)
	require.NoError(t, err)
	require.Len(t, offences, 1)
	assert.Contains(t, offences[0].Title, "username='alice'")
	assert.Contains(t, offences[0].Title, "hostname='srv1'")
	assert.Contains(t, offences[0].Title, "6")
}

func TestRunCycle_InvokesResponderPerOffence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"aggregations": map[string]interface{}{
				"failed_logins_by_combination": map[string]interface{}{
					"buckets": []map[string]interface{}{
						{"key": map[string]interface{}{"username": "bob", "hostname": "srv2"}, "doc_count": 9},
					},
				},
			},
		})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	count := int64(5)
	window := 10
	rule := model.CorrelationRule{
		ID: 3, Name: "r", RuleType: model.RuleTypeThresholdLoginFailures,
		ThresholdCount: &count, ThresholdTimeWindowMinutes: &window, AggregationFields: []string{"username", "hostname"},
		GeneratedOffenceTitleTemplate: "x", GeneratedOffenceSeverity: model.SeverityLow,
	}

	offenceStore := &fakeOffenceStore{}
	responder := &fakeResponder{}
	e := New(store, fakeRuleStore{rules: []model.CorrelationRule{rule}}, offenceStore, responder, nil, logger.NewNoop())

	err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, offenceStore.created, 1)
	assert.Len(t, responder.invoked, 1)
}

type fakeRuleStore struct{ rules []model.CorrelationRule }

func (f fakeRuleStore) EnabledCorrelationRules(ctx context.Context, limit int) ([]model.CorrelationRule, error) {
	return f.rules, nil
}
