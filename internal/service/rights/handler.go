package rights

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/domain/regulatory"
	"github.com/agentmesh/compliance-engine/internal/domain/rights"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
)

// Handler owns data-subject rights requests from submission through
// resolution. Requests reference a user id only; they are deliberately not
// linked to consent or processing records.
type Handler struct {
	logger     *zap.Logger
	sink       topic.Sink
	metrics    *metrics.Registry
	operatorID string

	mu                  sync.Mutex
	recorder            *topic.Recorder
	defaultJurisdiction string
	requests            map[string]*rights.Request
	order               []string
}

// NewHandler creates a rights handler publishing on behalf of operatorID.
// Init must be called before any other operation.
func NewHandler(logger *zap.Logger, sink topic.Sink, reg *metrics.Registry, operatorID string) *Handler {
	return &Handler{
		logger:     logger,
		sink:       sink,
		metrics:    reg,
		operatorID: operatorID,
		requests:   make(map[string]*rights.Request),
	}
}

// Init scopes the handler to a topic and default jurisdiction. Re-init is
// idempotent.
func (h *Handler) Init(topicID, defaultJurisdiction string) error {
	if topicID == "" {
		return errors.NewValidationError("MISSING_TOPIC", "topic id is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorder = topic.NewRecorder(h.logger, h.sink, topicID, h.operatorID)
	h.defaultJurisdiction = defaultJurisdiction
	return nil
}

// SubmitInput carries the fields of a rights request submission.
// ExpectedCompletionDays overrides the framework deadline when non-nil; zero
// means due immediately, which deterministic overdue tests rely on.
type SubmitInput struct {
	UserID                 string
	Type                   regulatory.RightType
	Jurisdiction           string
	LegalBasis             string
	VerificationMethod     string
	FulfillmentMethod      string
	ResponseMethod         string
	ExpectedCompletionDays *int
}

// SubmitRequest resolves the governing framework, computes the expected
// completion deadline, and files a pending request.
func (h *Handler) SubmitRequest(ctx context.Context, in SubmitInput) (*rights.Request, error) {
	if in.UserID == "" {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user_id is required")
	}
	if in.Type == "" {
		return nil, errors.NewValidationError("MISSING_REQUEST_TYPE", "request_type is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recorder == nil {
		return nil, errors.NewInternalError("rights handler not initialized")
	}

	jurisdiction := in.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = h.defaultJurisdiction
	}
	framework := regulatory.ForJurisdiction(jurisdiction)
	deadlineDays := regulatory.DeadlineDays(framework, in.Type)
	if in.ExpectedCompletionDays != nil {
		deadlineDays = *in.ExpectedCompletionDays
	}

	request := rights.New(in.UserID, in.Type, jurisdiction, deadlineDays)
	if in.LegalBasis != "" {
		request.LegalBasis = in.LegalBasis
	}
	request.VerificationMethod = in.VerificationMethod
	request.FulfillmentMethod = in.FulfillmentMethod
	request.ResponseMethod = in.ResponseMethod

	if _, err := h.recorder.Publish(ctx, "rights_request_submitted", map[string]interface{}{
		"request_id":          request.RequestID,
		"user_id":             request.UserID,
		"request_type":        request.Type,
		"jurisdiction":        request.Jurisdiction,
		"framework":           request.Framework,
		"legal_basis":         request.LegalBasis,
		"expected_completion": request.ExpectedCompletion.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	h.requests[request.RequestID] = request
	h.order = append(h.order, request.RequestID)
	h.metrics.RightsSubmittedCounter.Add(ctx, 1)

	h.logger.Info("rights request submitted",
		zap.String("request_id", request.RequestID),
		zap.String("user_id", request.UserID),
		zap.String("request_type", string(request.Type)),
		zap.String("framework", string(request.Framework)),
		zap.Time("expected_completion", request.ExpectedCompletion),
	)
	return request, nil
}

// ProcessRequest transitions a pending request to processing.
func (h *Handler) ProcessRequest(ctx context.Context, requestID string) (*rights.Request, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	request, ok := h.requests[requestID]
	if !ok {
		return nil, errors.NewNotFoundError("rights request")
	}
	if err := request.StartProcessing(); err != nil {
		return nil, err
	}

	h.logger.Info("rights request processing",
		zap.String("request_id", request.RequestID),
		zap.String("user_id", request.UserID),
	)
	return request, nil
}

// CompleteRequest resolves an open request as completed and emits the
// operation-specific completion message: erasure requests get their own tag
// so downstream consumers can track deletions distinctly.
func (h *Handler) CompleteRequest(ctx context.Context, requestID, resolutionNote string) (*rights.Request, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recorder == nil {
		return nil, errors.NewInternalError("rights handler not initialized")
	}

	request, ok := h.requests[requestID]
	if !ok {
		return nil, errors.NewNotFoundError("rights request")
	}

	now := time.Now().UTC()
	if err := request.Complete(resolutionNote, now); err != nil {
		return nil, err
	}

	op := "rights_request_completed"
	if request.Type == regulatory.RightErasure {
		op = "erasure_completed"
	}
	if _, err := h.recorder.Publish(ctx, op, map[string]interface{}{
		"request_id":        request.RequestID,
		"user_id":           request.UserID,
		"request_type":      request.Type,
		"status":            request.Status,
		"actual_completion": now.Format(time.RFC3339Nano),
		"resolution_note":   request.ResolutionNote,
	}); err != nil {
		return nil, err
	}

	h.metrics.RecordResolution(ctx, string(request.Status))
	h.logger.Info("rights request completed",
		zap.String("request_id", request.RequestID),
		zap.String("request_type", string(request.Type)),
	)
	return request, nil
}

// RejectRequest resolves an open request as rejected with the given reason.
func (h *Handler) RejectRequest(ctx context.Context, requestID, reason string) (*rights.Request, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recorder == nil {
		return nil, errors.NewInternalError("rights handler not initialized")
	}

	request, ok := h.requests[requestID]
	if !ok {
		return nil, errors.NewNotFoundError("rights request")
	}

	now := time.Now().UTC()
	if err := request.Reject(reason, now); err != nil {
		return nil, err
	}

	if _, err := h.recorder.Publish(ctx, "rights_request_rejected", map[string]interface{}{
		"request_id":      request.RequestID,
		"user_id":         request.UserID,
		"request_type":    request.Type,
		"status":          request.Status,
		"resolution_note": request.ResolutionNote,
	}); err != nil {
		return nil, err
	}

	h.metrics.RecordResolution(ctx, string(request.Status))
	h.logger.Info("rights request rejected",
		zap.String("request_id", request.RequestID),
		zap.String("reason", reason),
	)
	return request, nil
}

// GetRequest returns the request or nil when unknown.
func (h *Handler) GetRequest(requestID string) *rights.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[requestID]
}

// Requests returns every rights request in submission order. The auditor
// reads this; it never mutates.
func (h *Handler) Requests() []*rights.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*rights.Request, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.requests[id])
	}
	return out
}

// GetMessageLog returns every emitted message in emission order.
func (h *Handler) GetMessageLog() []string {
	h.mu.Lock()
	recorder := h.recorder
	h.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Messages()
}
