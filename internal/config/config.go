// Package config loads runtime configuration from environment variables.
//
// Endpoints and credentials come from the environment so the same binary can
// point at staging or production backends without a rebuild.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the delivery-intake components read at startup.
type Config struct {
	// BackendURL is the base URL of the delivery-management backend.
	BackendURL string `env:"DELIVERY_BACKEND_URL" envDefault:"https://api.deliveries.example.com"`

	// ExtractorKind selects the invoice extraction backend: "http" or "gemini".
	ExtractorKind string `env:"DELIVERY_EXTRACTOR" envDefault:"http"`

	// ExtractURL is the base URL of the HTTP text-extraction service.
	ExtractURL string `env:"DELIVERY_EXTRACT_URL" envDefault:"https://extract.example.com"`

	// GeminiAPIKey authenticates the Gemini extractor. Required when
	// ExtractorKind is "gemini".
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// GeminiModel overrides the default extraction model.
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	// SessionFile overrides the default session token file location
	// (~/.delivery-intake/session.json).
	SessionFile string `env:"DELIVERY_SESSION_FILE"`

	// SessionSSMParam optionally names an SSM parameter holding the session
	// token pair, read once at startup. The file remains the writable store.
	SessionSSMParam string `env:"DELIVERY_SESSION_SSM_PARAM"`

	// StagingTable optionally names a DynamoDB table for cross-device staging.
	// Empty means the in-memory store.
	StagingTable string `env:"DELIVERY_STAGING_TABLE"`

	// ArchiveBucket optionally names an S3 bucket that receives a zip bundle
	// of invoice photos after a successful confirm.
	ArchiveBucket string `env:"DELIVERY_ARCHIVE_BUCKET"`

	// Role is the acting role for status-transition gating: "foreman" or "ssk".
	Role string `env:"DELIVERY_ROLE" envDefault:"foreman"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ExtractorKind != "http" && cfg.ExtractorKind != "gemini" {
		return Config{}, fmt.Errorf("unknown DELIVERY_EXTRACTOR %q (want http or gemini)", cfg.ExtractorKind)
	}
	if cfg.ExtractorKind == "gemini" && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required for the gemini extractor")
	}
	return cfg, nil
}
