package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/config"
	"github.com/garyjia/agreement-validation/internal/container"
	httpserver "github.com/garyjia/agreement-validation/internal/interfaces/http"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "agreement-validation",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Agreement Validation Engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build and start all components
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	services := c.Services()
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		WaitTimeout:     cfg.Server.WaitTimeout,
	}, httpserver.Services{
		Agreements:  services.Agreements,
		Sessions:    services.Sessions,
		Submissions: services.Submissions,
		Limits:      services.Limits,
		Reports:     services.Reports,
		Activities:  services.Activities,
		Validator:   services.Validator,
		Health:      func() interface{} { return c.Health() },
	}, c.ServiceLogger())

	// Blocks until a signal arrives or the listener fails
	serverErr := server.Start(ctx)
	if serverErr != nil {
		logger.Error("HTTP server stopped with error", zap.Error(serverErr))
	}

	logger.Info("Shutting down...")
	if err := c.Close(); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}

	if serverErr != nil {
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}
