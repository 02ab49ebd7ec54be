package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/models"
)

// RequireRole lets the request through when the authenticated role is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Access restricted to administrators"})
		c.Abort()
	}
}

// RequireAdmin checks that the user has the "admin" role.
func RequireAdmin(c *gin.Context) {
	RequireRole(models.RoleAdmin)(c)
}
