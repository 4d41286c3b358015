package processing_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/consent"
	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	domain "github.com/agentmesh/compliance-engine/internal/domain/processing"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
	"github.com/agentmesh/compliance-engine/internal/service/processing"
)

const (
	testTopic    = "0.0.9102"
	testOperator = "0.0.9001"
)

func newTestRegistry(t *testing.T) (*processing.Registry, *topic.MemorySink) {
	t.Helper()
	reg, err := metrics.NewRegistry(otel.Meter("test"))
	require.NoError(t, err)

	sink := topic.NewMemorySink(zap.NewNop())
	registry := processing.NewRegistry(zap.NewNop(), sink, reg, testOperator)
	require.NoError(t, registry.Init(testTopic))
	return registry, sink
}

func validRegister() processing.RegisterRequest {
	return processing.RegisterRequest{
		UserID:           "user-1",
		ControllerID:     "agent-1",
		Purpose:          "agent_matchmaking",
		DataCategories:   []string{"profile", "usage_history"},
		ProcessingMethod: "automated_matching",
		Duration:         "30d",
		SecurityMeasures: []string{"encryption_at_rest"},
		ConsentID:        "consent-1",
	}
}

func TestRegisterProcessingActivity(t *testing.T) {
	registry, _ := newTestRegistry(t)

	record, err := registry.RegisterProcessingActivity(context.Background(), validRegister())
	require.NoError(t, err)
	assert.NotEmpty(t, record.ProcessingID)
	assert.Equal(t, "agent-1", record.AgentID)
	assert.Equal(t, domain.StatusActive, record.ComplianceStatus)
	assert.NotZero(t, record.StartTimestamp)
	assert.Nil(t, record.EndTimestamp)
	assert.Empty(t, record.ThirdParties)
}

func TestRegisterProcessingActivityValidation(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *processing.RegisterRequest)
		errMsg string
	}{
		{
			name:   "empty purpose",
			mutate: func(r *processing.RegisterRequest) { r.Purpose = "" },
			errMsg: "Processing purpose is required",
		},
		{
			name:   "empty data categories",
			mutate: func(r *processing.RegisterRequest) { r.DataCategories = nil },
			errMsg: "data_categories must be a non-empty array",
		},
		{
			name:   "empty controller id",
			mutate: func(r *processing.RegisterRequest) { r.ControllerID = "" },
			errMsg: "controller_id is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegister()
			tt.mutate(&req)
			_, err := registry.RegisterProcessingActivity(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProcessingIDsNeverRepeat(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.RegisterProcessingActivity(ctx, validRegister())
	require.NoError(t, err)
	second, err := registry.RegisterProcessingActivity(ctx, validRegister())
	require.NoError(t, err)
	assert.NotEqual(t, first.ProcessingID, second.ProcessingID)
}

func TestRecordDataSharing(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	parent, err := registry.RegisterProcessingActivity(ctx, validRegister())
	require.NoError(t, err)

	t.Run("unknown processing id", func(t *testing.T) {
		_, err := registry.RecordDataSharing(ctx, "proc_missing", "partner-a", "analytics", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Processing record not found")
	})

	t.Run("missing recipient", func(t *testing.T) {
		_, err := registry.RecordDataSharing(ctx, parent.ProcessingID, "", "analytics", nil)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing purpose", func(t *testing.T) {
		_, err := registry.RecordDataSharing(ctx, parent.ProcessingID, "partner-a", "", nil)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("two shares accumulate third parties", func(t *testing.T) {
		share1, err := registry.RecordDataSharing(ctx, parent.ProcessingID, "partner-a", "analytics", []string{"dpa_signed"})
		require.NoError(t, err)
		assert.Equal(t, parent.DataTypes, share1.DataCategories, "categories copied from parent")

		_, err = registry.RecordDataSharing(ctx, parent.ProcessingID, "partner-b", "analytics", nil)
		require.NoError(t, err)

		got := registry.GetProcessingRecord(parent.ProcessingID)
		assert.Equal(t, []string{"partner-a", "partner-b"}, got.ThirdParties)
		assert.Len(t, registry.GetSharingRecords(parent.ProcessingID), 2)
	})
}

func TestRecordDeletion(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	parent, err := registry.RegisterProcessingActivity(ctx, validRegister())
	require.NoError(t, err)

	t.Run("missing reason", func(t *testing.T) {
		_, err := registry.RecordDeletion(ctx, parent.ProcessingID, "", "dpo-1")
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing verifier", func(t *testing.T) {
		_, err := registry.RecordDeletion(ctx, parent.ProcessingID, "user request", "")
		assert.True(t, errors.IsValidation(err))
	})

	deletion, err := registry.RecordDeletion(ctx, parent.ProcessingID, "user request", "dpo-1")
	require.NoError(t, err)
	assert.Equal(t, parent.ProcessingID, deletion.ProcessingID)

	got := registry.GetProcessingRecord(parent.ProcessingID)
	assert.Equal(t, domain.StatusDataDeleted, got.ComplianceStatus)
	require.NotNil(t, got.EndTimestamp)

	t.Run("double deletion conflicts", func(t *testing.T) {
		_, err := registry.RecordDeletion(ctx, parent.ProcessingID, "again", "dpo-1")
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("sharing after deletion is still recorded", func(t *testing.T) {
		_, err := registry.RecordDataSharing(ctx, parent.ProcessingID, "late-partner", "analytics", nil)
		require.NoError(t, err)
	})
}

func TestQueryProcessingActivities(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	reqA := validRegister()
	recordA, err := registry.RegisterProcessingActivity(ctx, reqA)
	require.NoError(t, err)

	reqB := validRegister()
	reqB.ControllerID = "agent-2"
	reqB.UserID = "user-2"
	reqB.DataCategories = []string{"location"}
	reqB.LegalBasis = consent.BasisLegitimateInterest
	recordB, err := registry.RegisterProcessingActivity(ctx, reqB)
	require.NoError(t, err)

	_, err = registry.RecordDeletion(ctx, recordB.ProcessingID, "expired", "dpo-1")
	require.NoError(t, err)

	t.Run("zero filters return all", func(t *testing.T) {
		assert.Len(t, registry.QueryProcessingActivities(domain.Filters{}), 2)
	})

	t.Run("controller filter", func(t *testing.T) {
		got := registry.QueryProcessingActivities(domain.Filters{ControllerID: "agent-1"})
		require.Len(t, got, 1)
		assert.Equal(t, recordA.ProcessingID, got[0].ProcessingID)
	})

	t.Run("status filter excludes deleted from active", func(t *testing.T) {
		active := registry.QueryProcessingActivities(domain.Filters{Status: domain.StatusActive})
		require.Len(t, active, 1)
		assert.Equal(t, recordA.ProcessingID, active[0].ProcessingID)

		deleted := registry.QueryProcessingActivities(domain.Filters{Status: domain.StatusDataDeleted})
		require.Len(t, deleted, 1)
		assert.Equal(t, recordB.ProcessingID, deleted[0].ProcessingID)
	})

	t.Run("data category filter", func(t *testing.T) {
		got := registry.QueryProcessingActivities(domain.Filters{DataCategory: "location"})
		require.Len(t, got, 1)
		assert.Equal(t, recordB.ProcessingID, got[0].ProcessingID)
	})

	t.Run("filters are ANDed", func(t *testing.T) {
		got := registry.QueryProcessingActivities(domain.Filters{
			ControllerID: "agent-1",
			DataCategory: "location",
		})
		assert.Empty(t, got)
	})

	t.Run("no match returns empty slice not error", func(t *testing.T) {
		got := registry.QueryProcessingActivities(domain.Filters{UserID: "user-404"})
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestGetProcessingRecordUnknown(t *testing.T) {
	registry, _ := newTestRegistry(t)
	assert.Nil(t, registry.GetProcessingRecord("proc_missing"))
	assert.Empty(t, registry.GetSharingRecords("proc_missing"))
	assert.Empty(t, registry.GetDeletionRecords("proc_missing"))
}

func TestMessageLog(t *testing.T) {
	registry, sink := newTestRegistry(t)
	ctx := context.Background()

	record, err := registry.RegisterProcessingActivity(ctx, validRegister())
	require.NoError(t, err)
	_, err = registry.RecordDataSharing(ctx, record.ProcessingID, "partner-a", "analytics", nil)
	require.NoError(t, err)
	_, err = registry.RecordDeletion(ctx, record.ProcessingID, "user request", "dpo-1")
	require.NoError(t, err)

	msgs := registry.GetMessageLog()
	require.Len(t, msgs, 3)
	assert.Equal(t, msgs, sink.Messages(testTopic))

	ops := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(msg), &parsed))
		assert.Equal(t, "hcs-19", parsed["p"])
		assert.Equal(t, testOperator, parsed["operator_id"])
		assert.NotEmpty(t, parsed["timestamp"])
		ops = append(ops, parsed["op"].(string))
	}
	assert.Equal(t, []string{"processing_started", "data_shared", "data_deleted"}, ops)

	var shared map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &shared))
	assert.Equal(t, []interface{}{"partner-a"}, shared["third_parties"])
}
