package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SubmissionActivity handles GET /api/submissions/:id/activity
func (h *Handlers) SubmissionActivity(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.services.Submissions.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.listActivity(c, id)
}

// SessionActivity handles GET /api/sessions/:id/activity. The history is
// kept after the session itself has expired.
func (h *Handlers) SessionActivity(c *gin.Context) {
	h.listActivity(c, c.Param("id"))
}

func (h *Handlers) listActivity(c *gin.Context, subjectID string) {
	activities, err := h.services.Activities.List(c.Request.Context(), subjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: activities})
}
