package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `koanf:"log_level" validate:"required"`

	Topics     TopicsConfig     `koanf:"topics"`
	Compliance ComplianceConfig `koanf:"compliance"`
	Sink       SinkConfig       `koanf:"sink"`
}

// TopicsConfig names the topic each manager publishes its trail to.
type TopicsConfig struct {
	Consent    string `koanf:"consent" validate:"required"`
	Processing string `koanf:"processing" validate:"required"`
	Rights     string `koanf:"rights" validate:"required"`
	Audit      string `koanf:"audit" validate:"required"`
}

type ComplianceConfig struct {
	OperatorID           string  `koanf:"operator_id" validate:"required"`
	DefaultJurisdiction  string  `koanf:"default_jurisdiction" validate:"required"`
	DefaultRetentionDays int     `koanf:"default_retention_days" validate:"gt=0"`
	ViolationPenalty     float64 `koanf:"violation_penalty" validate:"gt=0,lte=100"`
}

type SinkConfig struct {
	SubmitsPerSecond float64 `koanf:"submits_per_second" validate:"gt=0"`
	Burst            int     `koanf:"burst" validate:"gt=0"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Topics: TopicsConfig{
			Consent:    "0.0.9101",
			Processing: "0.0.9102",
			Rights:     "0.0.9103",
			Audit:      "0.0.9104",
		},
		Compliance: ComplianceConfig{
			OperatorID:           "0.0.9001",
			DefaultJurisdiction:  "EU",
			DefaultRetentionDays: 365,
			ViolationPenalty:     20,
		},
		Sink: SinkConfig{
			SubmitsPerSecond: 10,
			Burst:            20,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Override with environment variables
	if err := k.Load(env.Provider("PCE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PCE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
