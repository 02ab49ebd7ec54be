package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/handlers"
)

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var in struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "current_password and new_password are required")
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), c.GetString("user_id"), in.CurrentPassword, in.NewPassword); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
