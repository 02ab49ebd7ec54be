package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"subscription_live/internal/account"
	"subscription_live/internal/handlers"
	"subscription_live/internal/middleware"
	"subscription_live/internal/models"
	"subscription_live/internal/utils"
)

// Accounts is the account service behind the auth and profile handlers.
type Accounts interface {
	Register(ctx context.Context, in account.RegisterInput) (*account.AuthResult, error)
	Login(ctx context.Context, email, password string) (*account.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*account.AuthResult, error)
	Logout(ctx context.Context, claims *utils.Claims, refreshToken string) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in account.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

type AuthHandler struct {
	accounts Accounts
}

func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var in account.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Name, email and password are required")
		return
	}
	res, err := h.accounts.Register(c.Request.Context(), in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var in struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Email and password are required")
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var in struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "refresh_token is required")
		return
	}
	res, err := h.accounts.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Logout revokes the current access token and, when sent, the refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&in)

	if err := h.accounts.Logout(c.Request.Context(), claims, in.RefreshToken); err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.accounts.Profile(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) UpdateMe(c *gin.Context) {
	var in account.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Invalid profile")
		return
	}
	u, err := h.accounts.UpdateProfile(c.Request.Context(), c.GetString("user_id"), in)
	if err != nil {
		handlers.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
