package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

// GetAuditLogs lists audit entries filtered by user_id, action, resource and success.
func (h *Handler) GetAuditLogs(c *gin.Context) {
	f := audit.Filter{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    queryLimit(c, 100, 500),
	}
	if s := c.Query("success"); s != "" {
		success, err := strconv.ParseBool(s)
		if err != nil {
			handlers.BadRequest(c, "success must be true or false")
			return
		}
		f.Success = &success
	}

	logs, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": len(logs),
		"filters": gin.H{
			"user_id":  f.UserID,
			"action":   f.Action,
			"resource": f.Resource,
			"success":  c.Query("success"),
			"limit":    f.Limit,
		},
	})
}
