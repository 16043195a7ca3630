package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, env := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "LARK_APP_ID", "LARK_APP_SECRET", "LARK_CFO_RECEIVE_ID", "DATABASE_PATH", "PORT", "LOG_LEVEL"} {
		t.Setenv(env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearSecrets(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 100.0, cfg.Validation.PriceTolerance)
	assert.Equal(t, 0.7, cfg.Validation.ConfidenceThreshold)
	assert.True(t, cfg.Validation.RequireVendor)
	assert.True(t, cfg.Attestation.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Session.ExtractionTimeout)
	assert.Empty(t, cfg.OpenAI.APIKey, "a missing key does not stop the server from starting")
	assert.False(t, cfg.LarkEnabled())
}

func TestLoad_File(t *testing.T) {
	clearSecrets(t)

	path := writeConfig(t, `
server:
  port: 9090
  wait_timeout: 20s
database:
  path: /tmp/agreements-test.db
validation:
  price_tolerance: 250
  confidence_threshold: 0.8
  require_vendor: false
  categories: [Electronics, Services]
session:
  extraction_timeout: 45s
worker:
  attestation_batch_size: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	assert.Equal(t, 20*time.Second, cfg.Server.WaitTimeout)
	assert.Equal(t, "/tmp/agreements-test.db", cfg.Database.Path)
	assert.Equal(t, 250.0, cfg.Validation.PriceTolerance)
	assert.Equal(t, 0.8, cfg.Validation.ConfidenceThreshold)
	assert.False(t, cfg.Validation.RequireVendor)
	assert.Equal(t, []string{"Electronics", "Services"}, cfg.Validation.Categories)
	assert.Equal(t, 45*time.Second, cfg.Session.ExtractionTimeout)
	assert.Equal(t, 5, cfg.Worker.AttestationBatchSize)
}

func TestLoad_Environment(t *testing.T) {
	clearSecrets(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LARK_APP_ID", "cli_a1")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("LARK_CFO_RECEIVE_ID", "ou_cfo")

	cfg, err := Load(writeConfig(t, "openai:\n  api_key: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "cli_a1", cfg.Lark.AppID)
	assert.True(t, cfg.LarkEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold above one", "validation:\n  confidence_threshold: 1.5\n"},
		{"negative tolerance", "validation:\n  price_tolerance: -1\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"partial lark credentials", "lark:\n  app_id: cli_a1\n"},
		{"unknown log level", "logger:\n  level: loud\n"},
		{"wait longer than write timeout", "server:\n  wait_timeout: 5m\n"},
		{"zero worker interval", "worker:\n  sweep_interval: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSecrets(t)
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearSecrets(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestToContainerConfig(t *testing.T) {
	clearSecrets(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "catalog:\n  path: configs/catalog.json\nstorage:\n  base_dir: /var/receipts\n"))
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())

	assert.Equal(t, "sk-test", cc.OpenAI.APIKey)
	assert.Equal(t, "configs/catalog.json", cc.CatalogPath)
	assert.Equal(t, "/var/receipts", cc.Storage.BaseDir)
	assert.Equal(t, 100.0, cc.Validation.ReconciliationTolerance)
	assert.Equal(t, "simulated", cc.Attestation.Network)
	assert.Equal(t, 20, cc.Worker.AttestationBatchSize)
}
