package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/workflow"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

// ListSubmissionsRequest represents query parameters for listing submissions
type ListSubmissionsRequest struct {
	Status      string `form:"status"`
	AgreementID string `form:"agreement_id"`
	From        string `form:"from"`
	To          string `form:"to"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

// DecisionRequest is the body of the CFO approve and reject routes
type DecisionRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// SubmissionResponse adds the auditor status bucket and the lifecycle
// actions still open to a submission
type SubmissionResponse struct {
	*entity.Submission
	AuditStatus string             `json:"audit_status"`
	Actions     []workflow.Trigger `json:"actions"`
	Final       bool               `json:"final"`
}

// ListSubmissions handles GET /api/submissions
func (h *Handlers) ListSubmissions(c *gin.Context) {
	filter, ok := h.bindSubmissionFilter(c)
	if !ok {
		return
	}

	subs, err := h.services.Submissions.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	responses := make([]SubmissionResponse, 0, len(subs))
	for _, sub := range subs {
		responses = append(responses, toSubmissionResponse(sub))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: responses})
}

// GetSubmission handles GET /api/submissions/:id
func (h *Handlers) GetSubmission(c *gin.Context) {
	sub, err := h.services.Submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toSubmissionResponse(sub)})
}

// ApproveSubmission handles POST /api/submissions/:id/approve
func (h *Handlers) ApproveSubmission(c *gin.Context) {
	h.decide(c, true)
}

// RejectSubmission handles POST /api/submissions/:id/reject
func (h *Handlers) RejectSubmission(c *gin.Context) {
	h.decide(c, false)
}

func (h *Handlers) decide(c *gin.Context, approve bool) {
	var req DecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	reviewer := reviewerOf(caller(c))
	note := utils.SanitizeString(req.Note)
	id := c.Param("id")

	var (
		sub *entity.Submission
		err error
	)
	if approve {
		sub, err = h.services.Submissions.Approve(c.Request.Context(), id, reviewer, note)
	} else {
		sub, err = h.services.Submissions.Reject(c.Request.Context(), id, reviewer, note)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toSubmissionResponse(sub)})
}

// AttestSubmission handles POST /api/submissions/:id/attest. It retries the
// attestation of an approved submission.
func (h *Handlers) AttestSubmission(c *gin.Context) {
	sub, err := h.services.Submissions.Attest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toSubmissionResponse(sub)})
}

// bindSubmissionFilter reads the shared submission query parameters
func (h *Handlers) bindSubmissionFilter(c *gin.Context) (entity.SubmissionFilter, bool) {
	var req ListSubmissionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return entity.SubmissionFilter{}, false
	}

	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	filter := entity.SubmissionFilter{
		Status:      entity.SubmissionStatus(req.Status),
		AgreementID: req.AgreementID,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}

	var err error
	if req.From != "" {
		if filter.From, err = entity.ParseDate(req.From); err != nil {
			h.badRequest(c, "invalid from date", err)
			return entity.SubmissionFilter{}, false
		}
	}
	if req.To != "" {
		if filter.To, err = entity.ParseDate(req.To); err != nil {
			h.badRequest(c, "invalid to date", err)
			return entity.SubmissionFilter{}, false
		}
	}
	return filter, true
}

func reviewerOf(sess *entity.Session) string {
	if sess == nil {
		return ""
	}
	if sess.WalletAddress != "" {
		return sess.WalletAddress
	}
	return string(sess.Role) + ":" + sess.ID
}

func toSubmissionResponse(sub *entity.Submission) SubmissionResponse {
	return SubmissionResponse{
		Submission:  sub,
		AuditStatus: sub.AuditStatus(),
		Actions:     workflow.Actions(sub.Status),
		Final:       workflow.IsFinal(sub.Status),
	}
}

// parseLimit reads an optional positive integer query parameter
func parseLimit(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
