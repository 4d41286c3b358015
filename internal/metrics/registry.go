package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the compliance-domain metrics for the engine.
type Registry struct {
	meter metric.Meter

	// Consent metrics
	ConsentGrantedCounter   metric.Int64Counter
	ConsentWithdrawnCounter metric.Int64Counter
	ConsentVerifyCounter    metric.Int64Counter

	// Processing metrics
	ProcessingRegisteredCounter metric.Int64Counter
	DataSharedCounter           metric.Int64Counter
	DataDeletedCounter          metric.Int64Counter

	// Rights metrics
	RightsSubmittedCounter metric.Int64Counter
	RightsResolvedCounter  metric.Int64Counter

	// Audit metrics
	ViolationCounter metric.Int64Counter
	ComplianceScore  metric.Float64Gauge
}

// NewRegistry creates all engine metrics on the given meter.
func NewRegistry(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}

	var err error

	if r.ConsentGrantedCounter, err = meter.Int64Counter(
		"compliance.consent.granted",
		metric.WithDescription("Number of consent records granted"),
	); err != nil {
		return nil, fmt.Errorf("creating consent granted counter: %w", err)
	}

	if r.ConsentWithdrawnCounter, err = meter.Int64Counter(
		"compliance.consent.withdrawn",
		metric.WithDescription("Number of consent withdrawals"),
	); err != nil {
		return nil, fmt.Errorf("creating consent withdrawn counter: %w", err)
	}

	if r.ConsentVerifyCounter, err = meter.Int64Counter(
		"compliance.consent.verifications",
		metric.WithDescription("Number of consent verification checks"),
	); err != nil {
		return nil, fmt.Errorf("creating consent verify counter: %w", err)
	}

	if r.ProcessingRegisteredCounter, err = meter.Int64Counter(
		"compliance.processing.registered",
		metric.WithDescription("Number of processing activities registered"),
	); err != nil {
		return nil, fmt.Errorf("creating processing registered counter: %w", err)
	}

	if r.DataSharedCounter, err = meter.Int64Counter(
		"compliance.processing.shared",
		metric.WithDescription("Number of third-party sharing records"),
	); err != nil {
		return nil, fmt.Errorf("creating data shared counter: %w", err)
	}

	if r.DataDeletedCounter, err = meter.Int64Counter(
		"compliance.processing.deleted",
		metric.WithDescription("Number of verified data deletions"),
	); err != nil {
		return nil, fmt.Errorf("creating data deleted counter: %w", err)
	}

	if r.RightsSubmittedCounter, err = meter.Int64Counter(
		"compliance.rights.submitted",
		metric.WithDescription("Number of data-subject rights requests submitted"),
	); err != nil {
		return nil, fmt.Errorf("creating rights submitted counter: %w", err)
	}

	if r.RightsResolvedCounter, err = meter.Int64Counter(
		"compliance.rights.resolved",
		metric.WithDescription("Number of rights requests completed or rejected"),
	); err != nil {
		return nil, fmt.Errorf("creating rights resolved counter: %w", err)
	}

	if r.ViolationCounter, err = meter.Int64Counter(
		"compliance.audit.violations",
		metric.WithDescription("Number of violations found by compliance checks"),
	); err != nil {
		return nil, fmt.Errorf("creating violation counter: %w", err)
	}

	if r.ComplianceScore, err = meter.Float64Gauge(
		"compliance.audit.score",
		metric.WithDescription("Score of the most recent compliance check"),
	); err != nil {
		return nil, fmt.Errorf("creating compliance score gauge: %w", err)
	}

	return r, nil
}

// RecordVerification records a consent verification and its outcome.
func (r *Registry) RecordVerification(ctx context.Context, consented bool) {
	r.ConsentVerifyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("consented", consented),
	))
}

// RecordResolution records a rights request reaching a terminal state.
func (r *Registry) RecordResolution(ctx context.Context, status string) {
	r.RightsResolvedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
