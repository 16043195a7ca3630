package container

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/dispatcher"
	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/application/service"
	"github.com/garyjia/agreement-validation/internal/domain/event"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
	"github.com/garyjia/agreement-validation/internal/domain/gate"
	"github.com/garyjia/agreement-validation/internal/domain/validation"
	"github.com/garyjia/agreement-validation/internal/infrastructure/attestation"
	"github.com/garyjia/agreement-validation/internal/infrastructure/catalog"
	"github.com/garyjia/agreement-validation/internal/infrastructure/document"
	"github.com/garyjia/agreement-validation/internal/infrastructure/external/lark"
	"github.com/garyjia/agreement-validation/internal/infrastructure/external/openai"
	"github.com/garyjia/agreement-validation/internal/infrastructure/persistence/repository"
	"github.com/garyjia/agreement-validation/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/agreement-validation/internal/infrastructure/report"
	"github.com/garyjia/agreement-validation/internal/infrastructure/storage"
	"github.com/garyjia/agreement-validation/internal/infrastructure/worker"
	"github.com/garyjia/agreement-validation/pkg/database"
)

// receiptDir is the storage directory sessions save uploads under
const receiptDir = "receipts"

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and applies migrations.
// Returns the raw sql.DB and the transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Agreements:  repository.NewAgreementRepository(sqlDB, logger),
		Limits:      repository.NewDailyLimitRepository(sqlDB, logger),
		Ledger:      repository.NewSpendLedgerRepository(sqlDB, logger),
		Submissions: repository.NewSubmissionRepository(sqlDB, logger),
		Activities:  repository.NewActivityRepository(sqlDB, logger),
	}, nil
}

// ExternalBundle holds adapters to systems outside the process.
// Extractor and Attestor are nil when disabled by configuration.
type ExternalBundle struct {
	Extractor port.InvoiceExtractor
	Renderer  port.DocumentRenderer
	Notifier  port.EscalationNotifier
	Attestor  port.Attestor
	Exporter  port.ReportExporter
}

// ProvideExtractor creates the OpenAI receipt extractor.
// A missing API key is not fatal: sessions report a configuration error on
// upload instead, and no request is ever sent.
func ProvideExtractor(cfg *OpenAIConfig, logger *zap.Logger) (port.InvoiceExtractor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}

	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}

	extractor, err := openai.NewExtractor(openai.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}, prompts, logger)
	if err != nil {
		if extraction.IsConfigurationError(err) {
			logger.Warn("Receipt extraction disabled", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return extractor, nil
}

// ProvideNotifier creates the Lark escalation notifier, or a logging no-op
// when Lark is not configured.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) port.EscalationNotifier {
	larkCfg := lark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		BaseURL:       cfg.BaseURL,
		ReceiveIDType: cfg.ReceiveIDType,
		ReceiveID:     cfg.CFOReceiveID,
		DashboardURL:  cfg.DashboardURL,
		Timeout:       cfg.Timeout,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark not configured, escalations are only logged")
		return lark.NewNoopNotifier(logger)
	}
	return lark.NewNotifier(larkCfg, logger)
}

// ProvideAttestor creates the simulated chain, continuing after the highest
// block already stored.
func ProvideAttestor(ctx context.Context, cfg *AttestationConfig, submissions *repository.SubmissionRepository, logger *zap.Logger) (port.Attestor, error) {
	if !cfg.Enabled {
		logger.Info("Attestation disabled")
		return nil, nil
	}

	last, err := submissions.LastBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Attestation ledger ready",
		zap.String("network", cfg.Network),
		zap.Int64("last_block", last))
	return attestation.NewSimulatedChain(attestation.Config{
		Network:    cfg.Network,
		StartBlock: last,
	}, logger), nil
}

// ProvideExternal creates every external adapter.
func ProvideExternal(ctx context.Context, cfg *Config, repos *RepositoryBundle, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	extractor, err := ProvideExtractor(&cfg.OpenAI, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	attestor, err := ProvideAttestor(ctx, &cfg.Attestation, repos.Submissions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create attestor: %w", err)
	}

	return &ExternalBundle{
		Extractor: extractor,
		Renderer:  document.NewRenderer(document.DefaultConfig(), logger),
		Notifier:  ProvideNotifier(&cfg.Lark, logger),
		Attestor:  attestor,
		Exporter:  report.NewExcelExporter(logger),
	}, nil
}

// ProvideStorage creates the receipt storage, creating its base directory.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*storage.LocalFileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return storage.NewLocalFileStorage(cfg.BaseDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
// Returns dispatcher.Dispatcher implementation.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create dispatcher logger adapter
	dispatcherLogger := &dispatcherLoggerAdapter{logger: logger}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Storage    port.FileStorage
	Dispatcher dispatcher.Dispatcher
	Categories []string
	Validation *ValidationConfig
	Session    *SessionConfig
	Clock      service.Clock
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.External == nil {
		return nil, fmt.Errorf("external adapters are required")
	}
	if deps.Validation == nil || deps.Session == nil {
		return nil, fmt.Errorf("validation and session config are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	settings := ValidationSettings(deps.Validation)

	agreements := service.NewAgreementService(repos.Agreements, deps.Clock, serviceLogger)
	limits := service.NewLimitService(repos.Limits, repos.Ledger, deps.TxManager, deps.Clock, serviceLogger)
	validator := service.NewValidationService(repos.Limits, repos.Ledger, settings, deps.Clock, serviceLogger)

	submissions := service.NewSubmissionService(
		repos.Submissions,
		repos.Agreements,
		repos.Ledger,
		deps.TxManager,
		validator,
		deps.External.Attestor,
		deps.Dispatcher,
		deps.Clock,
		serviceLogger,
	)

	var opts []extraction.Option
	if deps.Clock != nil {
		opts = append(opts, extraction.WithClock(deps.Clock))
	}
	sessions := service.NewSessionService(service.SessionDeps{
		Agreements:  agreements,
		Validator:   validator,
		Submissions: submissions,
		Extractor:   deps.External.Extractor,
		Renderer:    deps.External.Renderer,
		Storage:     deps.Storage,
		Normalizer:  extraction.NewNormalizer(deps.Categories, opts...),
		Dispatcher:  deps.Dispatcher,
		Clock:       deps.Clock,
		Logger:      serviceLogger,
	}, service.SessionSettings{
		ExtractionTimeout: deps.Session.ExtractionTimeout,
		IdleTimeout:       deps.Session.IdleTimeout,
	})

	return &ServiceBundle{
		Agreements:  agreements,
		Limits:      limits,
		Validator:   validator,
		Submissions: submissions,
		Sessions:    sessions,
		Reports:     service.NewReportService(submissions, limits, deps.External.Exporter, deps.Clock, serviceLogger),
		Activities:  service.NewActivityService(repos.Activities, serviceLogger),
	}, nil
}

// ValidationSettings converts the configured tolerances into rule and gate settings.
func ValidationSettings(cfg *ValidationConfig) service.ValidationSettings {
	return service.ValidationSettings{
		Rules: validation.RuleSet{
			PriceTolerance:          cfg.PriceTolerance,
			ReconciliationTolerance: cfg.ReconciliationTolerance,
		},
		Gate: gate.Gate{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			RequireVendor:       cfg.RequireVendor,
		},
		Reconcile: cfg.Reconcile,
	}
}

// ProvideCatalog loads the agreement catalog. An empty path loads the built-in one.
func ProvideCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}

	source := path
	if source == "" {
		source = "built-in"
	}
	logger.Info("Catalog loaded",
		zap.String("source", source),
		zap.Int("agreements", len(cat.Agreements)),
		zap.Int("categories", len(cat.DailyLimits)))
	return cat, nil
}

// SeedCatalog stores the catalog's agreements and daily limits that are not
// stored yet. Usage recorded by earlier runs is kept.
func SeedCatalog(ctx context.Context, cat *catalog.Catalog, services *ServiceBundle) error {
	if err := services.Agreements.Seed(ctx, cat.Agreements); err != nil {
		return fmt.Errorf("failed to seed agreements: %w", err)
	}
	if err := services.Limits.Seed(ctx, cat.DailyLimits); err != nil {
		return fmt.Errorf("failed to seed daily limits: %w", err)
	}
	return nil
}

// SubscribeActivity records every published event in the activity log
func SubscribeActivity(d dispatcher.Dispatcher, activities service.ActivityService) {
	d.Subscribe("activity_log", activities.Record)
}

// SubscribeNotifications forwards escalations and CFO decisions to the notifier.
// Handlers run on the dispatcher's async path, so a slow or failing Lark call
// never delays a submission.
func SubscribeNotifications(d dispatcher.Dispatcher, submissions service.SubmissionService, notifier port.EscalationNotifier, logger *zap.Logger) {
	d.Subscribe("cfo_escalation", func(ctx context.Context, evt *event.Event) error {
		sub, err := submissions.Get(ctx, evt.SubjectID)
		if err != nil {
			return fmt.Errorf("load escalated submission: %w", err)
		}
		if err := notifier.NotifyEscalation(ctx, sub, evt.GetPayloadString("message")); err != nil {
			logger.Error("Failed to notify CFO",
				zap.String("submission_id", sub.ID),
				zap.Error(err))
			return err
		}
		return nil
	}, event.TypeSubmissionEscalated)

	decision := func(ctx context.Context, evt *event.Event) error {
		sub, err := submissions.Get(ctx, evt.SubjectID)
		if err != nil {
			return fmt.Errorf("load reviewed submission: %w", err)
		}
		return notifier.NotifyDecision(ctx, sub)
	}
	d.Subscribe("cfo_decision", decision, event.TypeSubmissionApproved, event.TypeSubmissionRejected)
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services  *ServiceBundle
	Storage   *storage.LocalFileStorage
	WorkerCfg *WorkerConfig
	Retention *StorageConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.WorkerCfg == nil || deps.Retention == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg := deps.WorkerCfg
	manager := worker.NewWorkerManager(deps.Logger)

	workers := []worker.Worker{
		worker.NewAgreementExpiryWorker(deps.Services.Agreements, worker.PeriodicConfig{
			Interval:   cfg.ExpiryInterval,
			Timeout:    cfg.JobTimeout,
			RunOnStart: true,
		}, deps.Logger),
		worker.NewSessionSweeperWorker(deps.Services.Sessions, worker.PeriodicConfig{
			Interval: cfg.SweepInterval,
			Timeout:  cfg.JobTimeout,
		}, deps.Logger),
		worker.NewReceiptRetentionWorker(deps.Storage, receiptDir, deps.Retention.ReceiptRetention, worker.PeriodicConfig{
			Interval: cfg.RetentionInterval,
			Timeout:  cfg.JobTimeout,
		}, deps.Logger),
		worker.NewAttestationRetryWorker(deps.Services.Submissions, cfg.AttestationBatchSize, worker.PeriodicConfig{
			Interval: cfg.AttestationRetryInterval,
			Timeout:  cfg.JobTimeout,
		}, deps.Logger),
	}

	for _, w := range workers {
		if err := manager.Register(w); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
