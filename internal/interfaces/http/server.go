// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agreement-validation/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps receipt uploads
	MaxUploadBytes int64
	// WaitTimeout bounds how long ?wait=true holds an upload request
	WaitTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxUploadBytes:  10 << 20,
		WaitTimeout:     75 * time.Second,
	}
}

// Services groups the application services the HTTP layer calls
type Services struct {
	Agreements  service.AgreementService
	Sessions    service.SessionService
	Submissions service.SubmissionService
	Limits      service.LimitService
	Reports     service.ReportService
	Validator   service.ValidationService
	Activities  service.ActivityService
	// Health reports background worker state. Optional.
	Health func() interface{}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadBytes

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// corsMiddleware adds CORS headers for the browser dashboards
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/validate", h.Validate)

		api.GET("/agreements", h.ListAgreements)
		api.GET("/agreements/:id", h.GetAgreement)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.OpenSession)
			sessions.GET("/:id", h.GetSession)
			sessions.GET("/:id/activity", h.SessionActivity)
			sessions.DELETE("/:id", h.CloseSession)
			sessions.PUT("/:id/agreement", h.SelectAgreement)
			sessions.POST("/:id/receipt", h.UploadReceipt)
			sessions.GET("/:id/receipt", h.AwaitExtraction)
			sessions.PATCH("/:id/invoice", h.UpdateInvoice)
			sessions.POST("/:id/items", h.AddItem)
			sessions.PATCH("/:id/items/:index", h.UpdateItem)
			sessions.DELETE("/:id/items/:index", h.RemoveItem)
			sessions.PUT("/:id/verification", h.SetVerification)
			sessions.GET("/:id/evaluation", h.EvaluateSession)
			sessions.POST("/:id/submit", h.SubmitSession)
		}

		submissions := api.Group("/submissions")
		{
			submissions.GET("", h.ListSubmissions)
			submissions.GET("/:id", h.GetSubmission)
			submissions.GET("/:id/activity", h.SubmissionActivity)
			submissions.POST("/:id/approve", h.requireRole(cfoOnly), h.ApproveSubmission)
			submissions.POST("/:id/reject", h.requireRole(cfoOnly), h.RejectSubmission)
			submissions.POST("/:id/attest", h.requireRole(cfoOrAuditor), h.AttestSubmission)
		}

		limits := api.Group("/daily-limits")
		{
			limits.GET("", h.ListLimits)
			limits.PUT("", h.requireRole(cfoOnly), h.UpdateLimits)
			limits.GET("/history", h.LimitHistory)
			limits.GET("/usage", h.LimitUsage)
		}

		api.GET("/reports/submissions", h.requireRole(cfoOrAuditor), h.ExportReport)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
