package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/application/service"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
	"github.com/garyjia/agreement-validation/internal/domain/workflow"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

// SessionHeader carries the caller's session ID on role-restricted routes
const SessionHeader = "X-Session-ID"

const sessionContextKey = "session"

var (
	cfoOnly      = []entity.Role{entity.RoleCFO}
	cfoOrAuditor = []entity.Role{entity.RoleCFO, entity.RoleAuditor}
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	config   ServerConfig
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, config ServerConfig, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		config:   config,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Version   string      `json:"version"`
	Workers   interface{} `json:"workers,omitempty"`
}

// ValidateRequest is the body of POST /api/validate
type ValidateRequest struct {
	AgreementID      string        `json:"agreement_id"`
	Invoice          *InvoiceInput `json:"invoice"`
	ManuallyVerified bool          `json:"manually_verified"`
}

// InvoiceInput is an invoice posted by a client. The confidence score is
// optional and treated like an extraction's.
type InvoiceInput struct {
	entity.ExtractedInvoice
	ConfidenceScore *float64 `json:"confidence_score"`
}

// Invoice applies the extraction defaults and rejects negative amounts.
// A zero quantity counts as one.
func (in *InvoiceInput) Invoice() (*entity.ExtractedInvoice, error) {
	inv := in.ExtractedInvoice.Clone()
	inv.ConfidenceScore = entity.DefaultConfidence
	if in.ConfidenceScore != nil {
		inv.ConfidenceScore = entity.ClampConfidence(*in.ConfidenceScore)
	}

	if err := utils.ValidateStruct(inv); err != nil {
		return nil, err
	}

	for i := range inv.Items {
		if inv.Items[i].Quantity == 0 {
			inv.Items[i].Quantity = 1
		}
	}
	inv.Recalculate()
	return inv, nil
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}
	if h.services.Health != nil {
		response.Workers = h.services.Health()
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// Validate handles POST /api/validate. It evaluates an invoice against an
// agreement without touching any session.
func (h *Handlers) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	var agreement *entity.Agreement
	if req.AgreementID != "" {
		a, err := h.services.Agreements.Get(ctx, req.AgreementID)
		if err != nil {
			h.fail(c, err)
			return
		}
		agreement = a
	}

	var invoice *entity.ExtractedInvoice
	if req.Invoice != nil {
		inv, err := req.Invoice.Invoice()
		if err != nil {
			h.badRequest(c, "invalid invoice", err)
			return
		}
		invoice = inv
	}

	evaluation, err := h.services.Validator.Evaluate(ctx, service.EvaluateInput{
		Agreement:        agreement,
		Invoice:          invoice,
		ManuallyVerified: req.ManuallyVerified,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: evaluation})
}

// ListAgreements handles GET /api/agreements?status=
func (h *Handlers) ListAgreements(c *gin.Context) {
	status := entity.AgreementStatus(c.Query("status"))

	agreements, err := h.services.Agreements.List(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err)
		return
	}
	if agreements == nil {
		agreements = []*entity.Agreement{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: agreements})
}

// GetAgreement handles GET /api/agreements/:id
func (h *Handlers) GetAgreement(c *gin.Context) {
	agreement, err := h.services.Agreements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: agreement})
}

// requireRole loads the caller's session from SessionHeader and checks its role
func (h *Handlers) requireRole(roles []entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "missing " + SessionHeader + " header"})
			return
		}

		sess, err := h.services.Sessions.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "unknown session"})
			return
		}

		for _, role := range roles {
			if sess.Role == role {
				c.Set(sessionContextKey, sess)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "role " + string(sess.Role) + " may not perform this action"})
	}
}

// caller returns the session stored by requireRole
func caller(c *gin.Context) *entity.Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*entity.Session)
	return sess
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg + ": " + err.Error()})
}

// fail maps service errors to status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	resp := Response{Success: false, Error: err.Error()}

	var blocked *service.BlockedError
	if errors.As(err, &blocked) {
		resp.Data = blocked.Evaluation
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrAgreementNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrUnsupportedReceipt),
		errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, service.ErrInvalidLimit):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrAgreementNotSelectable),
		errors.Is(err, service.ErrNoInvoice),
		errors.Is(err, service.ErrLastItem),
		errors.Is(err, service.ErrExtractionSuperseded),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrGuardFailed),
		errors.Is(err, port.ErrStaleStatus),
		errors.Is(err, port.ErrInsufficientQuantity):
		return http.StatusConflict

	case errors.Is(err, service.ErrSubmissionBlocked),
		extraction.IsExtractionFailure(err):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrAttestationDisabled),
		errors.Is(err, service.ErrReportsDisabled),
		extraction.IsConfigurationError(err):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
