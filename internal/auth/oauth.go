package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"

	"subscription_live/internal/config"
)

const sessionMaxAge = 86400 * 30

// InitProviders configures the gothic session store and registers the social
// login providers that have credentials. It returns the number registered.
func InitProviders(cfg config.AuthConfig, baseURL string) int {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.MaxAge(sessionMaxAge)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(baseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = store
	gothic.GetProviderName = providerName

	var providers []goth.Provider
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		callback := strings.TrimRight(baseURL, "/") + "/api/auth/google/callback"
		providers = append(providers, google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, callback, "email", "profile"))
		log.Println("✅ Google OAuth enabled")
	}

	if len(providers) == 0 {
		log.Println("⚠️ No OAuth provider configured")
		return 0
	}
	goth.UseProviders(providers...)
	return len(providers)
}

// providerName reads the provider the handlers copied from the :provider path parameter.
func providerName(req *http.Request) (string, error) {
	if provider := req.URL.Query().Get("provider"); provider != "" {
		return provider, nil
	}
	if provider := req.FormValue("provider"); provider != "" {
		return provider, nil
	}
	return "", errors.New("provider not found")
}
