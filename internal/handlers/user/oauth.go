package user

import (
	"context"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"subscription_live/internal/account"
)

// SocialAccounts signs in users returning from an OAuth provider.
type SocialAccounts interface {
	SocialLogin(ctx context.Context, gu goth.User) (*account.AuthResult, error)
}

type OAuthHandler struct {
	accounts    SocialAccounts
	frontendURL string
}

func NewOAuthHandler(accounts SocialAccounts, frontendURL string) *OAuthHandler {
	return &OAuthHandler{accounts: accounts, frontendURL: frontendURL}
}

// withProvider exposes the :provider path parameter where gothic looks for it.
func withProvider(c *gin.Context) bool {
	provider := c.Param("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No provider given"})
		return false
	}
	if _, err := goth.GetProvider(provider); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider " + provider})
		return false
	}
	q := c.Request.URL.Query()
	q.Set("provider", provider)
	c.Request.URL.RawQuery = q.Encode()
	return true
}

func (h *OAuthHandler) BeginAuth(c *gin.Context) {
	if !withProvider(c) {
		return
	}
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// CallbackAuth finishes the provider flow and sends the browser back to the
// storefront with the tokens in the URL fragment.
func (h *OAuthHandler) CallbackAuth(c *gin.Context) {
	if !withProvider(c) {
		return
	}

	gu, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		log.Printf("❌ OAuth callback from %s failed: %v", c.Param("provider"), err)
		c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/login?error=oauth_failed")
		return
	}

	res, err := h.accounts.SocialLogin(c.Request.Context(), gu)
	if err != nil {
		log.Printf("❌ Social login for %s failed: %v", gu.Email, err)
		c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/login?error=account")
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", res.Tokens.AccessToken)
	fragment.Set("refresh_token", res.Tokens.RefreshToken)
	c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/auth/callback#"+fragment.Encode())
}
