package consent_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	domain "github.com/agentmesh/compliance-engine/internal/domain/consent"
	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
	"github.com/agentmesh/compliance-engine/internal/service/consent"
)

const (
	testTopic    = "0.0.9101"
	testOperator = "0.0.9001"
)

func newTestManager(t *testing.T) (*consent.Manager, *topic.MemorySink) {
	t.Helper()
	reg, err := metrics.NewRegistry(otel.Meter("test"))
	require.NoError(t, err)

	sink := topic.NewMemorySink(zap.NewNop())
	manager := consent.NewManager(zap.NewNop(), sink, reg, testOperator, 365*24*time.Hour)
	require.NoError(t, manager.Init(testTopic, "EU"))
	return manager, sink
}

func validGrant() consent.GrantRequest {
	return consent.GrantRequest{
		UserID:    "user-1",
		Purposes:  []string{"marketing", "analytics"},
		DataTypes: []string{"contact"},
	}
}

func TestGrantConsent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	record, err := manager.GrantConsent(ctx, validGrant())
	require.NoError(t, err)
	assert.NotEmpty(t, record.ConsentID)
	assert.Equal(t, domain.StatusActive, record.Status)
	assert.Equal(t, "EU", record.Jurisdiction, "falls back to default jurisdiction")
	assert.Equal(t, domain.BasisConsent, record.LegalBasis)
	assert.NotZero(t, record.GrantedAt)
	assert.True(t, record.ExpiresAt.After(record.GrantedAt))
}

func TestGrantConsentValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *consent.GrantRequest)
		errMsg string
	}{
		{
			name:   "missing user id",
			mutate: func(r *consent.GrantRequest) { r.UserID = "" },
			errMsg: "user_id is required",
		},
		{
			name:   "empty purposes",
			mutate: func(r *consent.GrantRequest) { r.Purposes = nil },
			errMsg: "purposes must be a non-empty array",
		},
		{
			name:   "empty data types",
			mutate: func(r *consent.GrantRequest) { r.DataTypes = nil },
			errMsg: "data_types must be a non-empty array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validGrant()
			tt.mutate(&req)
			_, err := manager.GrantConsent(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGrantConsentExplicitFields(t *testing.T) {
	manager, _ := newTestManager(t)

	record, err := manager.GrantConsent(context.Background(), consent.GrantRequest{
		UserID:        "user-1",
		Purposes:      []string{"matchmaking"},
		DataTypes:     []string{"profile"},
		Jurisdiction:  "US-CA",
		LegalBasis:    domain.BasisContract,
		RetentionDays: 30,
		GDPR: &domain.GDPRMetadata{
			ControllerID: "agent-1",
			DPOContact:   "dpo@example.com",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "US-CA", record.Jurisdiction)
	assert.Equal(t, domain.BasisContract, record.LegalBasis)
	assert.WithinDuration(t, record.GrantedAt.AddDate(0, 0, 30), record.ExpiresAt, time.Second)
	require.NotNil(t, record.GDPR)
	assert.Equal(t, "agent-1", record.GDPR.ControllerID)
}

func TestVerifyConsent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	record, err := manager.GrantConsent(ctx, validGrant())
	require.NoError(t, err)

	v := manager.VerifyConsent(ctx, "user-1", "marketing")
	assert.True(t, v.Consented)
	require.NotNil(t, v.Consent)
	assert.Equal(t, record.ConsentID, v.Consent.ConsentID)

	assert.False(t, manager.VerifyConsent(ctx, "user-1", "profiling").Consented, "unlisted purpose")
	assert.False(t, manager.VerifyConsent(ctx, "user-2", "marketing").Consented, "other user")
}

func TestVerifyConsentAfterWithdrawal(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	record, err := manager.GrantConsent(ctx, validGrant())
	require.NoError(t, err)
	require.True(t, manager.VerifyConsent(ctx, "user-1", "marketing").Consented)

	_, err = manager.WithdrawConsent(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.False(t, manager.VerifyConsent(ctx, "user-1", "marketing").Consented)
}

func TestWithdrawConsent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	record, err := manager.GrantConsent(ctx, validGrant())
	require.NoError(t, err)

	withdrawn, err := manager.WithdrawConsent(ctx, record.ConsentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWithdrawn, withdrawn.Status)
	assert.NotNil(t, withdrawn.WithdrawnAt)

	t.Run("unknown consent id", func(t *testing.T) {
		_, err := manager.WithdrawConsent(ctx, "missing")
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("double withdrawal conflicts", func(t *testing.T) {
		_, err := manager.WithdrawConsent(ctx, record.ConsentID)
		assert.True(t, errors.IsConflict(err))
	})
}

func TestManagerRequiresInit(t *testing.T) {
	reg, err := metrics.NewRegistry(otel.Meter("test"))
	require.NoError(t, err)
	manager := consent.NewManager(zap.NewNop(), topic.NewMemorySink(zap.NewNop()), reg, testOperator, time.Hour)

	_, err = manager.GrantConsent(context.Background(), validGrant())
	assert.Error(t, err)
}

func TestMessageLog(t *testing.T) {
	manager, sink := newTestManager(t)
	ctx := context.Background()

	record, err := manager.GrantConsent(ctx, validGrant())
	require.NoError(t, err)
	_, err = manager.WithdrawConsent(ctx, record.ConsentID)
	require.NoError(t, err)

	msgs := manager.GetMessageLog()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs, sink.Messages(testTopic))

	var granted map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &granted))
	assert.Equal(t, "consent_granted", granted["op"])
	assert.Equal(t, record.ConsentID, granted["consent_id"])

	var withdrawnMsg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &withdrawnMsg))
	assert.Equal(t, "consent_withdrawn", withdrawnMsg["op"])

	for _, msg := range msgs {
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(msg), &parsed))
		assert.Equal(t, "hcs-19", parsed["p"])
		assert.NotEmpty(t, parsed["op"])
		assert.Equal(t, testOperator, parsed["operator_id"])
		assert.NotEmpty(t, parsed["timestamp"])
	}
}
