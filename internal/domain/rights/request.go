package rights

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/domain/regulatory"
)

// Status is the lifecycle state of a rights request. Terminal states are
// completed and rejected; there are no transitions out of them.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Request is a formal data-subject rights request a controller must fulfill
// within the jurisdiction-defined deadline. Requests reference a user only,
// never specific consent or processing records; a request can be filed
// regardless of which processing activities exist.
type Request struct {
	RequestID          string               `json:"request_id"`
	UserID             string               `json:"user_id"`
	Type               regulatory.RightType `json:"request_type"`
	Jurisdiction       string               `json:"jurisdiction"`
	Framework          regulatory.Framework `json:"framework"`
	LegalBasis         string               `json:"legal_basis"`
	VerificationMethod string               `json:"verification_method"`
	FulfillmentMethod  string               `json:"fulfillment_method"`
	ResponseMethod     string               `json:"response_method"`
	RequestTimestamp   time.Time            `json:"request_timestamp"`
	ExpectedCompletion time.Time            `json:"expected_completion"`
	Status             Status               `json:"status"`
	ActualCompletion   *time.Time           `json:"actual_completion,omitempty"`
	ResolutionNote     string               `json:"resolution_note,omitempty"`
}

// New creates a pending request. The expected completion is the submission
// instant plus deadlineDays; callers resolve the deadline from the framework
// or supply an explicit override.
func New(userID string, rightType regulatory.RightType, jurisdiction string, deadlineDays int) *Request {
	now := time.Now().UTC()
	framework := regulatory.ForJurisdiction(jurisdiction)
	return &Request{
		RequestID:          "req_" + uuid.NewString(),
		UserID:             userID,
		Type:               rightType,
		Jurisdiction:       jurisdiction,
		Framework:          framework,
		LegalBasis:         regulatory.Citation(rightType, framework),
		RequestTimestamp:   now,
		ExpectedCompletion: now.AddDate(0, 0, deadlineDays),
		Status:             StatusPending,
	}
}

// IsTerminal reports whether the request has reached a final state.
func (r *Request) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusRejected
}

// IsOverdue reports whether a still-open request has passed its deadline.
func (r *Request) IsOverdue(now time.Time) bool {
	return !r.IsTerminal() && r.ExpectedCompletion.Before(now)
}

// StartProcessing transitions pending to processing.
func (r *Request) StartProcessing() error {
	if r.Status != StatusPending {
		return errors.NewConflictError("rights request is not pending")
	}
	r.Status = StatusProcessing
	return nil
}

// Complete transitions an open request to completed, recording the resolution
// note and completion instant. Completing straight from pending is legal; the
// controller may fulfill a request without an intermediate processing step.
func (r *Request) Complete(note string, at time.Time) error {
	if r.IsTerminal() {
		return errors.NewConflictError("rights request already resolved")
	}
	r.Status = StatusCompleted
	r.ActualCompletion = &at
	r.ResolutionNote = note
	return nil
}

// Reject transitions an open request to rejected with the given reason.
func (r *Request) Reject(reason string, at time.Time) error {
	if r.IsTerminal() {
		return errors.NewConflictError("rights request already resolved")
	}
	r.Status = StatusRejected
	r.ActualCompletion = &at
	r.ResolutionNote = reason
	return nil
}
