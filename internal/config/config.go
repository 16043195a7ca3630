package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/agreement-validation/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Lark        LarkConfig        `mapstructure:"lark"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Session     SessionConfig     `mapstructure:"session"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OpenAIConfig holds OpenAI API configuration. An empty APIKey is allowed:
// extraction then fails with a configuration error instead of the server
// refusing to start.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model" validate:"required"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// LarkConfig holds Lark API configuration for CFO escalation messages
type LarkConfig struct {
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	ReceiveIDType string        `mapstructure:"receive_id_type" validate:"oneof=open_id user_id union_id email chat_id"`
	CFOReceiveID  string        `mapstructure:"cfo_receive_id"`
	DashboardURL  string        `mapstructure:"dashboard_url" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ValidationConfig holds rule tolerances and gate settings
type ValidationConfig struct {
	PriceTolerance          float64  `mapstructure:"price_tolerance" validate:"gte=0"`
	ReconciliationTolerance float64  `mapstructure:"reconciliation_tolerance" validate:"gte=0"`
	ConfidenceThreshold     float64  `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	Reconcile               bool     `mapstructure:"reconcile"`
	RequireVendor           bool     `mapstructure:"require_vendor"`
	Categories              []string `mapstructure:"categories"`
}

// CatalogConfig points at the agreement catalog. Empty uses the built-in one.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds receipt storage configuration
type StorageConfig struct {
	BaseDir          string        `mapstructure:"base_dir" validate:"required"`
	ReceiptRetention time.Duration `mapstructure:"receipt_retention" validate:"gt=0"`
}

// AttestationConfig holds settings of the attestation ledger
type AttestationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Network string `mapstructure:"network"`
}

// SessionConfig holds session timeouts
type SessionConfig struct {
	ExtractionTimeout time.Duration `mapstructure:"extraction_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
}

// WorkerConfig holds background job schedules
type WorkerConfig struct {
	ExpiryInterval           time.Duration `mapstructure:"expiry_interval" validate:"gt=0"`
	SweepInterval            time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	RetentionInterval        time.Duration `mapstructure:"retention_interval" validate:"gt=0"`
	AttestationRetryInterval time.Duration `mapstructure:"attestation_retry_interval" validate:"gt=0"`
	AttestationBatchSize     int           `mapstructure:"attestation_batch_size" validate:"gt=0"`
	JobTimeout               time.Duration `mapstructure:"job_timeout" validate:"gte=0"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
}

// Load loads configuration from file and environment variables.
// A .env file next to the working directory is loaded first when present.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set
func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.wait_timeout", 75*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/agreements.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.timeout", 60*time.Second)

	// Lark defaults
	v.SetDefault("lark.receive_id_type", "open_id")
	v.SetDefault("lark.timeout", 30*time.Second)

	// Validation defaults
	v.SetDefault("validation.price_tolerance", 100.0)
	v.SetDefault("validation.reconciliation_tolerance", 100.0)
	v.SetDefault("validation.confidence_threshold", 0.7)
	v.SetDefault("validation.reconcile", true)
	v.SetDefault("validation.require_vendor", true)

	// Storage defaults
	v.SetDefault("storage.base_dir", "data/receipts")
	v.SetDefault("storage.receipt_retention", 30*24*time.Hour)

	// Attestation defaults
	v.SetDefault("attestation.enabled", true)
	v.SetDefault("attestation.network", "simulated")

	// Session defaults
	v.SetDefault("session.extraction_timeout", 60*time.Second)
	v.SetDefault("session.idle_timeout", 2*time.Hour)

	// Worker defaults
	v.SetDefault("worker.expiry_interval", time.Hour)
	v.SetDefault("worker.sweep_interval", 5*time.Minute)
	v.SetDefault("worker.retention_interval", 24*time.Hour)
	v.SetDefault("worker.attestation_retry_interval", time.Minute)
	v.SetDefault("worker.attestation_batch_size", 20)
	v.SetDefault("worker.job_timeout", 2*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"openai.api_key":      "OPENAI_API_KEY",
		"openai.base_url":     "OPENAI_BASE_URL",
		"lark.app_id":         "LARK_APP_ID",
		"lark.app_secret":     "LARK_APP_SECRET",
		"lark.cfo_receive_id": "LARK_CFO_RECEIVE_ID",
		"database.path":       "DATABASE_PATH",
		"server.port":         "PORT",
		"logger.level":        "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		return fmt.Errorf("database.max_idle_conns cannot exceed database.max_open_conns")
	}

	// Partial Lark credentials are almost always a typo
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	if c.Server.WaitTimeout > c.Server.WriteTimeout {
		return fmt.Errorf("server.wait_timeout must not exceed server.write_timeout")
	}

	return nil
}

// LarkEnabled reports whether escalation messages can be sent
func (c *Config) LarkEnabled() bool {
	return c.Lark.AppID != "" && c.Lark.AppSecret != "" && c.Lark.CFOReceiveID != ""
}

// Address returns the HTTP listen address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
