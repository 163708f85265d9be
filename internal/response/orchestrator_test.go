package response

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

type fakePipelineStore struct {
	pipeline *model.ResponsePipeline
}

func (f fakePipelineStore) EnabledPipelineForRule(ctx context.Context, ruleID int64) (*model.ResponsePipeline, error) {
	return f.pipeline, nil
}

type fakeActionStore struct {
	actions map[int64]model.ResponseAction
}

func (f fakeActionStore) GetAction(ctx context.Context, id int64) (*model.ResponseAction, error) {
	a, ok := f.actions[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

type fakeDeviceExecutor struct {
	blocked   []string
	unblocked []string
}

func (f *fakeDeviceExecutor) BlockIP(ctx context.Context, deviceID int64, listName, ip, comment string) error {
	f.blocked = append(f.blocked, ip)
	return nil
}

func (f *fakeDeviceExecutor) UnblockIP(ctx context.Context, deviceID int64, listName, ip string) error {
	f.unblocked = append(f.unblocked, ip)
	return nil
}

func TestExecuteForOffence_BlockIPFromMatchedIoC(t *testing.T) {
	ruleID := int64(5)
	pipeline := &model.ResponsePipeline{
		ID: 1, Name: "block-and-notify", IsEnabled: true, TriggerCorrelationRuleID: &ruleID,
		ActionsConfig: []model.PipelineActionConfig{
			{ActionID: 10, Order: 2, ActionParamsTemplate: map[string]interface{}{"device_id": float64(42)}},
			{ActionID: 11, Order: 1},
		},
	}
	actions := map[int64]model.ResponseAction{
		10: {ID: 10, Name: "block", Type: model.ActionTypeBlockIP, IsEnabled: true, DefaultParams: map[string]interface{}{"list_name": "siem_blocked_ips"}},
		11: {ID: 11, Name: "disabled-notify", Type: model.ActionTypeSendEmail, IsEnabled: false},
	}

	devices := &fakeDeviceExecutor{}
	o := New(fakePipelineStore{pipeline: pipeline}, fakeActionStore{actions: actions}, devices, logger.NewNoop())

	offence := model.Offence{
		ID: 99, Title: "Out->8.8.8.8", CorrelationRuleID: &ruleID,
		MatchedIoCDetails: map[string]interface{}{"type": model.IoCTypeIPv4, "value": "8.8.8.8"},
	}

	err := o.ExecuteForOffence(context.Background(), offence)
	require.NoError(t, err)
	require.Len(t, devices.blocked, 1)
	assert.Equal(t, "8.8.8.8", devices.blocked[0])
}

func TestExecuteForOffence_NoPipelineIsNotAnError(t *testing.T) {
	ruleID := int64(5)
	devices := &fakeDeviceExecutor{}
	o := New(fakePipelineStore{pipeline: nil}, fakeActionStore{actions: map[int64]model.ResponseAction{}}, devices, logger.NewNoop())

	err := o.ExecuteForOffence(context.Background(), model.Offence{ID: 1, CorrelationRuleID: &ruleID})
	require.NoError(t, err)
	assert.Empty(t, devices.blocked)
}

func TestResolveTargetIP_FallsBackToEventSourceIP(t *testing.T) {
	offence := model.Offence{
		TriggeringEventSummary: map[string]interface{}{"source_ip": "10.0.0.1", "destination_ip": "10.0.0.2"},
	}
	assert.Equal(t, "10.0.0.1", resolveTargetIP(offence))
}

func TestRenderDotted_WalksOffenceFields(t *testing.T) {
	ctx := offenceTemplateContext(model.Offence{ID: 7, Title: "hello"})
	out := renderDotted("Offence {offence.id}: {offence.title}", ctx)
	assert.Equal(t, "Offence 7: hello", out)
}
