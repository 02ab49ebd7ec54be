package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"subscription_live/internal/utils"
)

// Blacklist reports revoked access tokens by their jti.
type Blacklist interface {
	IsTokenBlacklisted(ctx context.Context, tokenID string) bool
}

// AuthRequired verifies the bearer token and puts user_id, email, role and
// claims in the gin context. Websocket upgrades may pass the token as ?token=
// since browsers cannot set headers on them.
func AuthRequired(tokens *utils.TokenIssuer, blacklist Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or malformed Authorization header"})
			c.Abort()
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			log.Printf("❌ Rejected token: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if blacklist != nil && blacklist.IsTokenBlacklisted(c.Request.Context(), claims.ID) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has been revoked"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if websocket.IsWebSocketUpgrade(c.Request) && c.Query("token") != "" {
			return c.Query("token"), true
		}
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ClaimsFrom returns the claims AuthRequired stored, or nil.
func ClaimsFrom(c *gin.Context) *utils.Claims {
	v, ok := c.Get("claims")
	if !ok {
		return nil
	}
	claims, _ := v.(*utils.Claims)
	return claims
}
