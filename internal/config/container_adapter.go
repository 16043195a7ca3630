package config

import (
	"github.com/garyjia/agreement-validation/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			Model:       c.OpenAI.Model,
			BaseURL:     c.OpenAI.BaseURL,
			Timeout:     c.OpenAI.Timeout,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Lark: container.LarkConfig{
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			BaseURL:       c.Lark.BaseURL,
			ReceiveIDType: c.Lark.ReceiveIDType,
			CFOReceiveID:  c.Lark.CFOReceiveID,
			DashboardURL:  c.Lark.DashboardURL,
			Timeout:       c.Lark.Timeout,
		},
		Validation: container.ValidationConfig{
			PriceTolerance:          c.Validation.PriceTolerance,
			ReconciliationTolerance: c.Validation.ReconciliationTolerance,
			ConfidenceThreshold:     c.Validation.ConfidenceThreshold,
			Reconcile:               c.Validation.Reconcile,
			RequireVendor:           c.Validation.RequireVendor,
			Categories:              c.Validation.Categories,
		},
		CatalogPath: c.Catalog.Path,
		Storage: container.StorageConfig{
			BaseDir:          c.Storage.BaseDir,
			ReceiptRetention: c.Storage.ReceiptRetention,
		},
		Attestation: container.AttestationConfig{
			Enabled: c.Attestation.Enabled,
			Network: c.Attestation.Network,
		},
		Session: container.SessionConfig{
			ExtractionTimeout: c.Session.ExtractionTimeout,
			IdleTimeout:       c.Session.IdleTimeout,
		},
		Worker: container.WorkerConfig{
			ExpiryInterval:           c.Worker.ExpiryInterval,
			SweepInterval:            c.Worker.SweepInterval,
			RetentionInterval:        c.Worker.RetentionInterval,
			AttestationRetryInterval: c.Worker.AttestationRetryInterval,
			AttestationBatchSize:     c.Worker.AttestationBatchSize,
			JobTimeout:               c.Worker.JobTimeout,
		},
	}
}
