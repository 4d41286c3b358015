package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/agentmesh/compliance-engine/internal/domain/regulatory"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/config"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/telemetry"
	"github.com/agentmesh/compliance-engine/internal/infrastructure/topic"
	"github.com/agentmesh/compliance-engine/internal/metrics"
	auditsvc "github.com/agentmesh/compliance-engine/internal/service/audit"
	consentsvc "github.com/agentmesh/compliance-engine/internal/service/consent"
	processingsvc "github.com/agentmesh/compliance-engine/internal/service/processing"
	rightssvc "github.com/agentmesh/compliance-engine/internal/service/rights"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer logger.Sync()

	provider, _, err := telemetry.SetupMetrics("compliance-engine", cfg.Version)
	if err != nil {
		log.Fatalf("Failed to setup metrics: %v", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shutdown meter provider", zap.Error(err))
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("engine run failed", zap.Error(err))
	}
}

// run wires the engine and walks one compliant data lifecycle end to end:
// consent, processing, sharing, a rights request, its completion, and the
// closing audits.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg, err := metrics.NewRegistry(otel.Meter("compliance-engine"))
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	sink := topic.NewMemorySink(logger,
		topic.WithRateLimit(cfg.Sink.SubmitsPerSecond, cfg.Sink.Burst))

	retention := time.Duration(cfg.Compliance.DefaultRetentionDays) * 24 * time.Hour
	consents := consentsvc.NewManager(logger, sink, reg, cfg.Compliance.OperatorID, retention)
	registry := processingsvc.NewRegistry(logger, sink, reg, cfg.Compliance.OperatorID)
	handler := rightssvc.NewHandler(logger, sink, reg, cfg.Compliance.OperatorID)
	auditor := auditsvc.NewAuditor(logger, sink, reg, cfg.Compliance.OperatorID, cfg.Compliance.ViolationPenalty)

	if err := consents.Init(cfg.Topics.Consent, cfg.Compliance.DefaultJurisdiction); err != nil {
		return err
	}
	if err := registry.Init(cfg.Topics.Processing); err != nil {
		return err
	}
	if err := handler.Init(cfg.Topics.Rights, cfg.Compliance.DefaultJurisdiction); err != nil {
		return err
	}
	if err := auditor.Init(cfg.Topics.Audit); err != nil {
		return err
	}

	grant, err := consents.GrantConsent(ctx, consentsvc.GrantRequest{
		UserID:    "user-001",
		Purposes:  []string{"agent_matchmaking", "usage_analytics"},
		DataTypes: []string{"profile", "usage_history"},
	})
	if err != nil {
		return err
	}

	activity, err := registry.RegisterProcessingActivity(ctx, processingsvc.RegisterRequest{
		UserID:           grant.UserID,
		ControllerID:     "agent-042",
		Purpose:          "agent_matchmaking",
		DataCategories:   []string{"profile", "usage_history"},
		ProcessingMethod: "automated_matching",
		Duration:         "30d",
		SecurityMeasures: []string{"encryption_at_rest", "access_control"},
		ConsentID:        grant.ConsentID,
	})
	if err != nil {
		return err
	}

	if _, err := registry.RecordDataSharing(ctx, activity.ProcessingID,
		"analytics-partner", "usage_analytics", []string{"dpa_signed"}); err != nil {
		return err
	}

	request, err := handler.SubmitRequest(ctx, rightssvc.SubmitInput{
		UserID:             grant.UserID,
		Type:               regulatory.RightAccess,
		Jurisdiction:       grant.Jurisdiction,
		VerificationMethod: "signed_challenge",
		ResponseMethod:     "topic_message",
	})
	if err != nil {
		return err
	}
	if _, err := handler.ProcessRequest(ctx, request.RequestID); err != nil {
		return err
	}
	if _, err := handler.CompleteRequest(ctx, request.RequestID, "data export delivered"); err != nil {
		return err
	}

	report, err := auditor.RunComplianceCheck(ctx, auditsvc.Sources{
		Consents:   consents,
		Processing: registry,
		Rights:     handler,
	})
	if err != nil {
		return err
	}
	retentionReport, err := auditor.RunRetentionCheck(ctx, consents)
	if err != nil {
		return err
	}

	printJSON("compliance report", report)
	printJSON("retention report", retentionReport)

	for name, msgs := range map[string][]string{
		"consent":    consents.GetMessageLog(),
		"processing": registry.GetMessageLog(),
		"rights":     handler.GetMessageLog(),
		"audit":      auditor.GetMessageLog(),
	} {
		fmt.Printf("\n== %s topic (%d messages) ==\n", name, len(msgs))
		for _, msg := range msgs {
			fmt.Println(msg)
		}
	}
	return nil
}

func printJSON(label string, v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: %v\n", label, err)
		return
	}
	fmt.Printf("\n== %s ==\n%s\n", label, raw)
}
