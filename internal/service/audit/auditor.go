package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/audit"
	"github.com/agentmesh/compliance-engine/internal/domain/consent"
	"github.com/agentmesh/compliance-engine/internal/domain/errors"
	"github.com/agentmesh/compliance-engine/internal/domain/processing"
	"github.com/agentmesh/compliance-engine/internal/domain/rights"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
)

// ConsentSource exposes consent records for auditing.
type ConsentSource interface {
	Records() []*consent.Record
}

// ProcessingSource exposes processing records for auditing.
type ProcessingSource interface {
	Records() []*processing.Record
}

// RightsSource exposes rights requests for auditing.
type RightsSource interface {
	Requests() []*rights.Request
}

// Sources bundles the read-only views an audit runs across.
type Sources struct {
	Consents   ConsentSource
	Processing ProcessingSource
	Rights     RightsSource
}

// Auditor computes compliance scores and violation lists across the three
// managers. It only reads; non-compliance is reported as data, never raised
// as an error.
type Auditor struct {
	logger     *zap.Logger
	sink       topic.Sink
	metrics    *metrics.Registry
	operatorID string
	penalty    float64

	mu       sync.Mutex
	recorder *topic.Recorder
}

// NewAuditor creates an auditor deducting penalty points per violation.
// Init must be called before running checks.
func NewAuditor(logger *zap.Logger, sink topic.Sink, reg *metrics.Registry, operatorID string, penalty float64) *Auditor {
	return &Auditor{
		logger:     logger,
		sink:       sink,
		metrics:    reg,
		operatorID: operatorID,
		penalty:    penalty,
	}
}

// Init scopes the auditor to a topic. Re-init is idempotent.
func (a *Auditor) Init(topicID string) error {
	if topicID == "" {
		return errors.NewValidationError("MISSING_TOPIC", "topic id is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorder = topic.NewRecorder(a.logger, a.sink, topicID, a.operatorID)
	return nil
}

// RunComplianceCheck scores the current record sets. The score starts at 100
// and loses a fixed penalty for every open rights request past its deadline,
// floored at zero. A fully compliant state scores exactly 100.
func (a *Auditor) RunComplianceCheck(ctx context.Context, src Sources) (*audit.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorder == nil {
		return nil, errors.NewInternalError("compliance auditor not initialized")
	}

	now := time.Now().UTC()
	report := &audit.Report{
		ComplianceScore: 100,
		Violations:      make([]string, 0),
		Timestamp:       now,
	}

	var consents []*consent.Record
	if src.Consents != nil {
		consents = src.Consents.Records()
	}
	var activities []*processing.Record
	if src.Processing != nil {
		activities = src.Processing.Records()
	}
	var requests []*rights.Request
	if src.Rights != nil {
		requests = src.Rights.Requests()
	}

	report.RecordsReviewed = audit.ReviewCounts{
		Consents:   len(consents),
		Processing: len(activities),
		Requests:   len(requests),
	}

	for _, req := range requests {
		if req.IsOverdue(now) {
			report.Violations = append(report.Violations, fmt.Sprintf(
				"Overdue %s request %s for user %s: expected completion %s",
				req.Type, req.RequestID, req.UserID,
				req.ExpectedCompletion.Format(time.RFC3339),
			))
			report.ComplianceScore -= a.penalty
		}
	}
	if report.ComplianceScore < 0 {
		report.ComplianceScore = 0
	}

	if len(report.Violations) == 0 {
		report.Result = audit.ResultCompliant
	} else {
		report.Result = audit.ResultNonCompliant
		report.FollowUpRequired = true
	}

	if _, err := a.recorder.Publish(ctx, "compliance_check", map[string]interface{}{
		"compliance_score":   report.ComplianceScore,
		"violations":         report.Violations,
		"violation_count":    len(report.Violations),
		"result":             report.Result,
		"follow_up_required": report.FollowUpRequired,
		"records_reviewed":   report.RecordsReviewed,
	}); err != nil {
		return nil, err
	}

	a.metrics.ViolationCounter.Add(ctx, int64(len(report.Violations)))
	a.metrics.ComplianceScore.Record(ctx, report.ComplianceScore)

	a.logger.Info("compliance check completed",
		zap.Float64("compliance_score", report.ComplianceScore),
		zap.Int("violations", len(report.Violations)),
		zap.String("result", string(report.Result)),
	)
	return report, nil
}

// RunRetentionCheck audits consent retention and withdrawal bookkeeping:
// every withdrawn record must carry its withdrawal timestamp, and no record
// may hold a stored status inconsistent with its expiry.
func (a *Auditor) RunRetentionCheck(ctx context.Context, consents ConsentSource) (*audit.RetentionReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorder == nil {
		return nil, errors.NewInternalError("compliance auditor not initialized")
	}

	now := time.Now().UTC()
	var records []*consent.Record
	if consents != nil {
		records = consents.Records()
	}

	status := "compliant"
	for _, record := range records {
		if record.Status == consent.StatusWithdrawn && record.WithdrawnAt == nil {
			status = "non_compliant"
			break
		}
		if record.Status == consent.StatusExpired && !record.IsExpired(now) {
			status = "non_compliant"
			break
		}
	}

	report := &audit.RetentionReport{
		RecordsReviewed:  len(records),
		ComplianceStatus: status,
		Protocol:         topic.Protocol,
		Operation:        "retention_check",
		Timestamp:        now,
	}

	if _, err := a.recorder.Publish(ctx, "retention_check", map[string]interface{}{
		"records_reviewed":  report.RecordsReviewed,
		"compliance_status": report.ComplianceStatus,
	}); err != nil {
		return nil, err
	}

	a.logger.Info("retention check completed",
		zap.Int("records_reviewed", report.RecordsReviewed),
		zap.String("compliance_status", report.ComplianceStatus),
	)
	return report, nil
}

// GetMessageLog returns every emitted message in emission order.
func (a *Auditor) GetMessageLog() []string {
	a.mu.Lock()
	recorder := a.recorder
	a.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Messages()
}
