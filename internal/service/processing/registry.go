package processing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/consent"
	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/domain/processing"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
)

// Registry owns processing-activity records and their attached sharing and
// deletion records. Processing records reference consent records by id only;
// ownership never crosses manager boundaries.
type Registry struct {
	logger     *zap.Logger
	sink       topic.Sink
	metrics    *metrics.Registry
	operatorID string

	mu        sync.Mutex
	recorder  *topic.Recorder
	records   map[string]*processing.Record
	order     []string
	sharing   map[string][]*processing.SharingRecord
	deletions map[string][]*processing.DeletionRecord
}

// NewRegistry creates a processing registry publishing on behalf of
// operatorID. Init must be called before any other operation.
func NewRegistry(logger *zap.Logger, sink topic.Sink, reg *metrics.Registry, operatorID string) *Registry {
	return &Registry{
		logger:     logger,
		sink:       sink,
		metrics:    reg,
		operatorID: operatorID,
		records:    make(map[string]*processing.Record),
		sharing:    make(map[string][]*processing.SharingRecord),
		deletions:  make(map[string][]*processing.DeletionRecord),
	}
}

// Init scopes the registry to a topic. Re-init is idempotent.
func (r *Registry) Init(topicID string) error {
	if topicID == "" {
		return errors.NewValidationError("MISSING_TOPIC", "topic id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = topic.NewRecorder(r.logger, r.sink, topicID, r.operatorID)
	return nil
}

// RegisterRequest carries the fields of a processing-activity registration.
// ControllerID is the agent processing on the user's behalf.
type RegisterRequest struct {
	UserID           string
	ControllerID     string
	Purpose          string
	LegalBasis       consent.LegalBasis
	DataCategories   []string
	ProcessingMethod string
	Duration         string
	SecurityMeasures []string
	ConsentID        string
}

// RegisterProcessingActivity validates the request, creates an active
// processing record, and emits the processing_started message.
func (r *Registry) RegisterProcessingActivity(ctx context.Context, req RegisterRequest) (*processing.Record, error) {
	if req.Purpose == "" {
		return nil, errors.NewValidationError("MISSING_PURPOSE", "Processing purpose is required")
	}
	if len(req.DataCategories) == 0 {
		return nil, errors.NewValidationError("MISSING_DATA_CATEGORIES", "data_categories must be a non-empty array")
	}
	if req.ControllerID == "" {
		return nil, errors.NewValidationError("MISSING_CONTROLLER_ID", "controller_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorder == nil {
		return nil, errors.NewInternalError("processing registry not initialized")
	}

	basis := req.LegalBasis
	if basis == "" {
		basis = consent.BasisConsent
	}

	record := &processing.Record{
		ProcessingID:     processing.NewID("proc"),
		UserID:           req.UserID,
		AgentID:          req.ControllerID,
		Purpose:          req.Purpose,
		LegalBasis:       basis,
		DataTypes:        req.DataCategories,
		ProcessingMethod: req.ProcessingMethod,
		Duration:         req.Duration,
		SecurityMeasures: req.SecurityMeasures,
		ConsentID:        req.ConsentID,
		StartTimestamp:   time.Now().UTC(),
		ComplianceStatus: processing.StatusActive,
	}

	if _, err := r.recorder.Publish(ctx, "processing_started", map[string]interface{}{
		"processing_id":   record.ProcessingID,
		"user_id":         record.UserID,
		"controller_id":   record.AgentID,
		"purpose":         record.Purpose,
		"legal_basis":     record.LegalBasis,
		"data_categories": record.DataTypes,
		"consent_id":      record.ConsentID,
	}); err != nil {
		return nil, err
	}

	r.records[record.ProcessingID] = record
	r.order = append(r.order, record.ProcessingID)
	r.metrics.ProcessingRegisteredCounter.Add(ctx, 1)

	r.logger.Info("processing activity registered",
		zap.String("processing_id", record.ProcessingID),
		zap.String("controller_id", record.AgentID),
		zap.String("purpose", record.Purpose),
	)
	return record, nil
}

// RecordDataSharing documents a disclosure to a third-party recipient. The
// recipient is appended to the parent's third-party list without dedup, and
// the sharing record copies the parent's data categories. Sharing against a
// deleted record is still recorded; the trail of improper sharing is itself
// audit evidence.
func (r *Registry) RecordDataSharing(ctx context.Context, processingID, recipient, purpose string, safeguards []string) (*processing.SharingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorder == nil {
		return nil, errors.NewInternalError("processing registry not initialized")
	}

	parent, ok := r.records[processingID]
	if !ok {
		return nil, errors.NewNotFoundError("Processing record")
	}
	if recipient == "" {
		return nil, errors.NewValidationError("MISSING_RECIPIENT", "recipient is required")
	}
	if purpose == "" {
		return nil, errors.NewValidationError("MISSING_PURPOSE", "sharing purpose is required")
	}

	categories := make([]string, len(parent.DataTypes))
	copy(categories, parent.DataTypes)

	record := &processing.SharingRecord{
		SharingID:      processing.NewID("share"),
		ProcessingID:   processingID,
		Recipient:      recipient,
		Purpose:        purpose,
		Safeguards:     safeguards,
		DataCategories: categories,
		Timestamp:      time.Now().UTC(),
	}
	parent.AddThirdParty(recipient)

	if _, err := r.recorder.Publish(ctx, "data_shared", map[string]interface{}{
		"sharing_id":      record.SharingID,
		"processing_id":   record.ProcessingID,
		"recipient":       record.Recipient,
		"purpose":         record.Purpose,
		"safeguards":      record.Safeguards,
		"data_categories": record.DataCategories,
		"third_parties":   parent.ThirdParties,
	}); err != nil {
		return nil, err
	}

	r.sharing[processingID] = append(r.sharing[processingID], record)
	r.metrics.DataSharedCounter.Add(ctx, 1)

	r.logger.Info("data sharing recorded",
		zap.String("sharing_id", record.SharingID),
		zap.String("processing_id", processingID),
		zap.String("recipient", recipient),
	)
	return record, nil
}

// RecordDeletion documents a verified deletion, transitioning the parent to
// data_deleted and stamping its end timestamp. Deleting an already-deleted
// record is a conflict.
func (r *Registry) RecordDeletion(ctx context.Context, processingID, reason, verifiedBy string) (*processing.DeletionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorder == nil {
		return nil, errors.NewInternalError("processing registry not initialized")
	}

	parent, ok := r.records[processingID]
	if !ok {
		return nil, errors.NewNotFoundError("Processing record")
	}
	if reason == "" {
		return nil, errors.NewValidationError("MISSING_REASON", "deletion reason is required")
	}
	if verifiedBy == "" {
		return nil, errors.NewValidationError("MISSING_VERIFIER", "verified_by is required")
	}

	now := time.Now().UTC()
	if !parent.MarkDeleted(now) {
		return nil, errors.NewConflictError("processing record data already deleted")
	}

	categories := make([]string, len(parent.DataTypes))
	copy(categories, parent.DataTypes)

	record := &processing.DeletionRecord{
		DeletionID:     processing.NewID("del"),
		ProcessingID:   processingID,
		Reason:         reason,
		VerifiedBy:     verifiedBy,
		DataCategories: categories,
		Timestamp:      now,
	}

	if _, err := r.recorder.Publish(ctx, "data_deleted", map[string]interface{}{
		"deletion_id":     record.DeletionID,
		"processing_id":   record.ProcessingID,
		"reason":          record.Reason,
		"verified_by":     record.VerifiedBy,
		"data_categories": record.DataCategories,
		"end_timestamp":   now.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	r.deletions[processingID] = append(r.deletions[processingID], record)
	r.metrics.DataDeletedCounter.Add(ctx, 1)

	r.logger.Info("data deletion recorded",
		zap.String("deletion_id", record.DeletionID),
		zap.String("processing_id", processingID),
		zap.String("verified_by", verifiedBy),
	)
	return record, nil
}

// QueryProcessingActivities returns every record matching all populated
// filters, in registration order. A zero filter returns everything; no match
// returns an empty slice, never an error.
func (r *Registry) QueryProcessingActivities(filters processing.Filters) []*processing.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*processing.Record, 0)
	for _, id := range r.order {
		if record := r.records[id]; filters.Matches(record) {
			out = append(out, record)
		}
	}
	return out
}

// GetProcessingRecord returns the record or nil when unknown.
func (r *Registry) GetProcessingRecord(processingID string) *processing.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[processingID]
}

// GetSharingRecords returns the sharing records for a processing record.
func (r *Registry) GetSharingRecords(processingID string) []*processing.SharingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*processing.SharingRecord, len(r.sharing[processingID]))
	copy(out, r.sharing[processingID])
	return out
}

// GetDeletionRecords returns the deletion records for a processing record.
func (r *Registry) GetDeletionRecords(processingID string) []*processing.DeletionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*processing.DeletionRecord, len(r.deletions[processingID]))
	copy(out, r.deletions[processingID])
	return out
}

// Records returns every processing record in registration order.
func (r *Registry) Records() []*processing.Record {
	return r.QueryProcessingActivities(processing.Filters{})
}

// GetMessageLog returns every emitted message in emission order.
func (r *Registry) GetMessageLog() []string {
	r.mu.Lock()
	recorder := r.recorder
	r.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Messages()
}
