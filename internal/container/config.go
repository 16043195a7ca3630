// Package container provides dependency injection and lifecycle management
// for the agreement validation service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// OpenAI configuration
	OpenAI OpenAIConfig

	// Lark API configuration
	Lark LarkConfig

	// Validation rule and gate settings
	Validation ValidationConfig

	// CatalogPath is the agreement catalog file. Empty uses the built-in catalog.
	CatalogPath string

	// Storage configuration
	Storage StorageConfig

	// Attestation configuration
	Attestation AttestationConfig

	// Session configuration
	Session SessionConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Empty disables extraction.
	APIKey string

	// Model is the vision model to use (e.g., "gpt-4o")
	Model string

	// BaseURL overrides the API endpoint
	BaseURL string

	// Timeout for API calls
	Timeout time.Duration

	// PromptsPath is the prompt file. Empty uses the built-in prompts.
	PromptsPath string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID         string
	AppSecret     string
	BaseURL       string
	ReceiveIDType string
	CFOReceiveID  string
	DashboardURL  string
	Timeout       time.Duration
}

// ValidationConfig holds rule tolerances and gate settings.
type ValidationConfig struct {
	PriceTolerance          float64
	ReconciliationTolerance float64
	ConfidenceThreshold     float64
	Reconcile               bool
	RequireVendor           bool

	// Categories the extractor may choose from. Empty uses the catalog's.
	Categories []string
}

// StorageConfig holds receipt storage settings.
type StorageConfig struct {
	// BaseDir is the root directory for stored receipts
	BaseDir string

	// ReceiptRetention is how long stored receipts are kept
	ReceiptRetention time.Duration
}

// AttestationConfig holds attestation ledger settings.
type AttestationConfig struct {
	Enabled bool
	Network string
}

// SessionConfig holds session timeouts.
type SessionConfig struct {
	ExtractionTimeout time.Duration
	IdleTimeout       time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	ExpiryInterval           time.Duration
	SweepInterval            time.Duration
	RetentionInterval        time.Duration
	AttestationRetryInterval time.Duration
	AttestationBatchSize     int
	JobTimeout               time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/agreements.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o",
			Timeout: 60 * time.Second,
		},
		Lark: LarkConfig{
			ReceiveIDType: "open_id",
			Timeout:       30 * time.Second,
		},
		Validation: ValidationConfig{
			PriceTolerance:          100,
			ReconciliationTolerance: 100,
			ConfidenceThreshold:     0.7,
			Reconcile:               true,
			RequireVendor:           true,
		},
		Storage: StorageConfig{
			BaseDir:          "data/receipts",
			ReceiptRetention: 30 * 24 * time.Hour,
		},
		Attestation: AttestationConfig{
			Enabled: true,
			Network: "simulated",
		},
		Session: SessionConfig{
			ExtractionTimeout: 60 * time.Second,
			IdleTimeout:       2 * time.Hour,
		},
		Worker: WorkerConfig{
			ExpiryInterval:           time.Hour,
			SweepInterval:            5 * time.Minute,
			RetentionInterval:        24 * time.Hour,
			AttestationRetryInterval: time.Minute,
			AttestationBatchSize:     20,
			JobTimeout:               2 * time.Minute,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate database configuration
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	// Validate storage configuration
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage base directory is required")
	}

	// Validate thresholds
	if c.Validation.ConfidenceThreshold < 0 || c.Validation.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if c.Validation.PriceTolerance < 0 || c.Validation.ReconciliationTolerance < 0 {
		return fmt.Errorf("tolerances cannot be negative")
	}

	// Validate worker schedules
	if c.Worker.ExpiryInterval <= 0 || c.Worker.SweepInterval <= 0 ||
		c.Worker.RetentionInterval <= 0 || c.Worker.AttestationRetryInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}

	return nil
}
