package consent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/consent"
	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
)

// Manager owns the lifecycle of consent records: grant, verify, withdraw.
// Records are kept in grant order and never removed; withdrawal is a status
// transition so the audit trail survives.
type Manager struct {
	logger           *zap.Logger
	sink             topic.Sink
	metrics          *metrics.Registry
	operatorID       string
	defaultRetention time.Duration

	mu                  sync.Mutex
	recorder            *topic.Recorder
	defaultJurisdiction string
	records             map[string]*consent.Record
	order               []string
}

// NewManager creates a consent manager publishing on behalf of operatorID.
// Init must be called before any other operation.
func NewManager(logger *zap.Logger, sink topic.Sink, reg *metrics.Registry, operatorID string, defaultRetention time.Duration) *Manager {
	return &Manager{
		logger:           logger,
		sink:             sink,
		metrics:          reg,
		operatorID:       operatorID,
		defaultRetention: defaultRetention,
		records:          make(map[string]*consent.Record),
	}
}

// Init scopes the manager to a topic and default jurisdiction. Re-init is
// idempotent and may rebind the topic; existing records are kept.
func (m *Manager) Init(topicID, defaultJurisdiction string) error {
	if topicID == "" {
		return errors.NewValidationError("MISSING_TOPIC", "topic id is required")
	}
	if defaultJurisdiction == "" {
		return errors.NewValidationError("MISSING_JURISDICTION", "default jurisdiction is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = topic.NewRecorder(m.logger, m.sink, topicID, m.operatorID)
	m.defaultJurisdiction = defaultJurisdiction
	return nil
}

// GrantRequest carries the fields of a consent grant.
type GrantRequest struct {
	UserID        string
	Purposes      []string
	DataTypes     []string
	Jurisdiction  string
	LegalBasis    consent.LegalBasis
	RetentionDays int
	GDPR          *consent.GDPRMetadata
}

// GrantConsent validates the request, creates an active consent record with
// an expiry derived from the retention period, and emits the grant message.
func (m *Manager) GrantConsent(ctx context.Context, req GrantRequest) (*consent.Record, error) {
	if req.UserID == "" {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user_id is required")
	}
	if len(req.Purposes) == 0 {
		return nil, errors.NewValidationError("MISSING_PURPOSES", "purposes must be a non-empty array")
	}
	if len(req.DataTypes) == 0 {
		return nil, errors.NewValidationError("MISSING_DATA_TYPES", "data_types must be a non-empty array")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recorder == nil {
		return nil, errors.NewInternalError("consent manager not initialized")
	}

	jurisdiction := req.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = m.defaultJurisdiction
	}
	basis := req.LegalBasis
	if basis == "" {
		basis = consent.BasisConsent
	}
	retention := m.defaultRetention
	if req.RetentionDays > 0 {
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	record := consent.NewRecord(req.UserID, req.Purposes, req.DataTypes, jurisdiction, basis, retention)
	record.GDPR = req.GDPR

	if _, err := m.recorder.Publish(ctx, "consent_granted", map[string]interface{}{
		"consent_id":   record.ConsentID,
		"user_id":      record.UserID,
		"purposes":     record.Purposes,
		"data_types":   record.DataTypes,
		"jurisdiction": record.Jurisdiction,
		"legal_basis":  record.LegalBasis,
		"granted_at":   record.GrantedAt.Format(time.RFC3339Nano),
		"expires_at":   record.ExpiresAt.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	m.records[record.ConsentID] = record
	m.order = append(m.order, record.ConsentID)
	m.metrics.ConsentGrantedCounter.Add(ctx, 1)

	m.logger.Info("consent granted",
		zap.String("consent_id", record.ConsentID),
		zap.String("user_id", record.UserID),
		zap.String("jurisdiction", record.Jurisdiction),
		zap.Strings("purposes", record.Purposes),
	)
	return record, nil
}

// WithdrawConsent marks a consent record withdrawn and emits the withdrawal
// message. Withdrawing an already-withdrawn record is a conflict.
func (m *Manager) WithdrawConsent(ctx context.Context, consentID string) (*consent.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recorder == nil {
		return nil, errors.NewInternalError("consent manager not initialized")
	}

	record, ok := m.records[consentID]
	if !ok {
		return nil, errors.NewNotFoundError("consent record")
	}

	now := time.Now().UTC()
	if !record.Withdraw(now) {
		return nil, errors.NewConflictError("consent already withdrawn")
	}

	if _, err := m.recorder.Publish(ctx, "consent_withdrawn", map[string]interface{}{
		"consent_id":   record.ConsentID,
		"user_id":      record.UserID,
		"withdrawn_at": now.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	m.metrics.ConsentWithdrawnCounter.Add(ctx, 1)
	m.logger.Info("consent withdrawn",
		zap.String("consent_id", record.ConsentID),
		zap.String("user_id", record.UserID),
	)
	return record, nil
}

// Verification is the outcome of a consent check.
type Verification struct {
	Consented bool            `json:"consented"`
	Consent   *consent.Record `json:"consent,omitempty"`
}

// VerifyConsent returns the first record in grant order that currently
// authorizes processing the purpose for the user. No side effects.
func (m *Manager) VerifyConsent(ctx context.Context, userID, purpose string) Verification {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range m.order {
		record := m.records[id]
		if record.UserID == userID && record.IsConsented(purpose, now) {
			m.metrics.RecordVerification(ctx, true)
			return Verification{Consented: true, Consent: record}
		}
	}
	m.metrics.RecordVerification(ctx, false)
	return Verification{Consented: false}
}

// Records returns every consent record in grant order. The auditor reads
// this; it never mutates.
func (m *Manager) Records() []*consent.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*consent.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

// GetMessageLog returns every emitted message in emission order.
func (m *Manager) GetMessageLog() []string {
	m.mu.Lock()
	recorder := m.recorder
	m.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Messages()
}
