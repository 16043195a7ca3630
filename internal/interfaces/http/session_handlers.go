package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agreement-validation/internal/application/service"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

// OpenSessionRequest is the body of POST /api/sessions
type OpenSessionRequest struct {
	Role          entity.Role `json:"role" binding:"required,oneof=auditor cfo vendor"`
	WalletAddress string      `json:"wallet_address" binding:"max=128"`
}

// SelectAgreementRequest is the body of PUT /api/sessions/:id/agreement
type SelectAgreementRequest struct {
	AgreementID string `json:"agreement_id" binding:"required"`
}

// InvoicePatchRequest edits invoice header fields. Amounts may be numbers or
// thousand-separated strings.
type InvoicePatchRequest struct {
	Vendor         *string      `json:"vendor"`
	InvoiceNumber  *string      `json:"invoice_number"`
	Date           *entity.Date `json:"date"`
	Category       *string      `json:"category"`
	TaxAmount      *Amount      `json:"tax_amount"`
	ExtractedTotal *Amount      `json:"extracted_total"`
}

// ItemPatchRequest edits one line item
type ItemPatchRequest struct {
	Description *string `json:"description"`
	Quantity    *Amount `json:"quantity"`
	UnitPrice   *Amount `json:"unit_price"`
}

// VerificationRequest is the body of PUT /api/sessions/:id/verification
type VerificationRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

// OpenSession handles POST /api/sessions
func (h *Handlers) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sess, err := h.services.Sessions.Open(c.Request.Context(), req.Role, utils.SanitizeString(req.WalletAddress))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: sess})
}

// GetSession handles GET /api/sessions/:id
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.services.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// CloseSession handles DELETE /api/sessions/:id
func (h *Handlers) CloseSession(c *gin.Context) {
	if err := h.services.Sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// SelectAgreement handles PUT /api/sessions/:id/agreement
func (h *Handlers) SelectAgreement(c *gin.Context) {
	var req SelectAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sess, err := h.services.Sessions.SelectAgreement(c.Request.Context(), c.Param("id"), req.AgreementID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// UploadReceipt handles POST /api/sessions/:id/receipt (multipart field "file").
// With ?wait=true the response is held until extraction finishes.
func (h *Handlers) UploadReceipt(c *gin.Context) {
	if h.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "missing receipt file", err)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.badRequest(c, "unreadable receipt file", err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.badRequest(c, "unreadable receipt file", err)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(content)
	}

	id := c.Param("id")
	sess, err := h.services.Sessions.UploadReceipt(c.Request.Context(), id, service.ReceiptUpload{
		Filename: header.Filename,
		MimeType: mimeType,
		Content:  content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		h.awaitAndRespond(c, id)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: sess})
}

// AwaitExtraction handles GET /api/sessions/:id/receipt. It waits for the
// extraction running at call time and returns the session.
func (h *Handlers) AwaitExtraction(c *gin.Context) {
	h.awaitAndRespond(c, c.Param("id"))
}

func (h *Handlers) awaitAndRespond(c *gin.Context, id string) {
	ctx := c.Request.Context()
	if h.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.WaitTimeout)
		defer cancel()
	}

	sess, err := h.services.Sessions.AwaitExtraction(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	if sess.LastError != "" {
		c.JSON(http.StatusUnprocessableEntity, Response{Success: false, Data: sess, Error: sess.LastError})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// UpdateInvoice handles PATCH /api/sessions/:id/invoice
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	var req InvoicePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sess, err := h.services.Sessions.UpdateInvoice(c.Request.Context(), c.Param("id"), service.InvoicePatch{
		Vendor:         sanitized(req.Vendor),
		InvoiceNumber:  sanitized(req.InvoiceNumber),
		Date:           req.Date,
		Category:       sanitized(req.Category),
		TaxAmount:      req.TaxAmount.Float(),
		ExtractedTotal: req.ExtractedTotal.Float(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// AddItem handles POST /api/sessions/:id/items
func (h *Handlers) AddItem(c *gin.Context) {
	sess, err := h.services.Sessions.AddItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: sess})
}

// UpdateItem handles PATCH /api/sessions/:id/items/:index
func (h *Handlers) UpdateItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.badRequest(c, "invalid item index", err)
		return
	}

	var req ItemPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sess, err := h.services.Sessions.UpdateItem(c.Request.Context(), c.Param("id"), index, service.ItemPatch{
		Description: sanitized(req.Description),
		Quantity:    req.Quantity.Float(),
		UnitPrice:   req.UnitPrice.Float(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// RemoveItem handles DELETE /api/sessions/:id/items/:index
func (h *Handlers) RemoveItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.badRequest(c, "invalid item index", err)
		return
	}

	sess, err := h.services.Sessions.RemoveItem(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// SetVerification handles PUT /api/sessions/:id/verification
func (h *Handlers) SetVerification(c *gin.Context) {
	var req VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sess, err := h.services.Sessions.SetManualVerification(c.Request.Context(), c.Param("id"), *req.Verified)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// EvaluateSession handles GET /api/sessions/:id/evaluation
func (h *Handlers) EvaluateSession(c *gin.Context) {
	evaluation, err := h.services.Sessions.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: evaluation})
}

// SubmitSession handles POST /api/sessions/:id/submit
func (h *Handlers) SubmitSession(c *gin.Context) {
	sub, err := h.services.Sessions.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Submission created", "submission_id", sub.ID, "status", sub.Status, "route", sub.Route)
	c.JSON(http.StatusCreated, Response{Success: true, Data: sub})
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	v := utils.SanitizeString(*s)
	return &v
}

// Amount accepts a JSON number or a thousand-separated string such as "8.000.000"
type Amount float64

// UnmarshalJSON implements json.Unmarshaler
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid amount %s", string(data))
		}
		*a = Amount(n)
		return nil
	}

	v, err := utils.ParseNumber(s)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = Amount(v)
	return nil
}

// Float returns the amount as *float64, nil when a is nil
func (a *Amount) Float() *float64 {
	if a == nil {
		return nil
	}
	v := float64(*a)
	return &v
}
