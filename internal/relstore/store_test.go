package relstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/model"
	"netedge-siem/pkg/database"
	"netedge-siem/pkg/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return New(&database.DB{DB: mockDB}, logger.NewNoop()), mock
}

func TestEnabledCorrelationRules_ScansRows(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "rule_type", "is_enabled", "event_source_type", "event_field_to_match", "ioc_type_to_match",
		"ioc_tags_match", "ioc_min_confidence", "threshold_count", "threshold_time_window_minutes",
		"aggregation_fields", "generated_offence_title_template", "generated_offence_severity",
	}).AddRow(1, "IoC match", model.RuleTypeIOCMatchIP, true, "{}", "destination_ip", model.IoCTypeIPv4,
		"{}", nil, nil, nil, "{}", "Out->{ioc_value}", model.SeverityHigh)

	mock.ExpectQuery("SELECT .* FROM correlation_rules WHERE is_enabled = true").WillReturnRows(rows)

	got, err := store.EnabledCorrelationRules(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "IoC match", got[0].Name)
	assert.Equal(t, model.RuleTypeIOCMatchIP, got[0].RuleType)
}

func TestCreateOffence_InsertsAndReturnsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO offences").WillReturnRows(
		sqlmock.NewRows([]string{"id", "detected_at"}).AddRow(42, time.Now().UTC()))

	offence := model.Offence{Title: "x", Severity: model.SeverityMedium}
	created, err := store.CreateOffence(context.Background(), offence)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, model.OffenceStatusNew, created.Status)
}
