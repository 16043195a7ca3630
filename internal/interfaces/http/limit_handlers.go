package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// UpdateLimitsRequest is the body of PUT /api/daily-limits
type UpdateLimitsRequest struct {
	Limits map[string]float64 `json:"limits" binding:"required,min=1"`
}

// ListLimits handles GET /api/daily-limits
func (h *Handlers) ListLimits(c *gin.Context) {
	limits, err := h.services.Limits.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if limits == nil {
		limits = []*entity.DailyLimit{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: limits})
}

// UpdateLimits handles PUT /api/daily-limits
func (h *Handlers) UpdateLimits(c *gin.Context) {
	var req UpdateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	changes, err := h.services.Limits.Update(c.Request.Context(), reviewerOf(caller(c)), req.Limits)
	if err != nil {
		h.fail(c, err)
		return
	}
	if changes == nil {
		changes = []*entity.LimitChange{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: changes})
}

// LimitHistory handles GET /api/daily-limits/history?category=&limit=
func (h *Handlers) LimitHistory(c *gin.Context) {
	history, err := h.services.Limits.History(c.Request.Context(), c.Query("category"), parseLimit(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	if history == nil {
		history = []*entity.LimitChange{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// LimitUsage handles GET /api/daily-limits/usage?day=YYYY-MM-DD (today when unset)
func (h *Handlers) LimitUsage(c *gin.Context) {
	day := h.services.Validator.Today()
	if raw := c.Query("day"); raw != "" {
		parsed, err := entity.ParseDate(raw)
		if err != nil {
			h.badRequest(c, "invalid day", err)
			return
		}
		day = parsed
	}

	usage, err := h.services.Limits.Usage(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	if usage == nil {
		usage = []*entity.CategoryUsage{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: usage})
}

// ExportReport handles GET /api/reports/submissions and streams the workbook
func (h *Handlers) ExportReport(c *gin.Context) {
	filter, ok := h.bindSubmissionFilter(c)
	if !ok {
		return
	}

	report, err := h.services.Reports.Export(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.Filename+`"`)
	c.Data(http.StatusOK, report.ContentType, report.Content)
}
