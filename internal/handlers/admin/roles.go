package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/audit"
	"subscription_live/internal/handlers"
	"subscription_live/internal/models"
)

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Users.ListUsers(c.Request.Context(), queryLimit(c, 100, 500))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// SetUserRole promotes a customer to admin or demotes an admin. Admins cannot
// change their own role.
func (h *Handler) SetUserRole(c *gin.Context) {
	userID := c.Param("id")
	var in struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "role is required")
		return
	}
	if userID == c.GetString("user_id") {
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot change your own role"})
		return
	}
	u, err := h.Users.SetRole(c.Request.Context(), userID, in.Role)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.Set(audit.KeyNewValue, gin.H{"role": u.Role})
	c.JSON(http.StatusOK, u)
}
