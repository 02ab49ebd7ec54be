package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"subscription_live/internal/config"
)

func TestInitProvidersWithoutCredentials(t *testing.T) {
	goth.ClearProviders()
	if n := InitProviders(config.AuthConfig{SessionSecret: "s"}, "http://localhost:8080"); n != 0 {
		t.Fatalf("registered %d providers", n)
	}
	if _, ok := gothic.Store.(*sessions.CookieStore); !ok {
		t.Errorf("gothic store = %T", gothic.Store)
	}
}

func TestInitProvidersGoogle(t *testing.T) {
	goth.ClearProviders()
	t.Cleanup(goth.ClearProviders)

	n := InitProviders(config.AuthConfig{
		SessionSecret:      "s",
		GoogleClientID:     "id",
		GoogleClientSecret: "secret",
	}, "https://api.shop.example/")
	if n != 1 {
		t.Fatalf("registered %d providers", n)
	}
	if _, err := goth.GetProvider("google"); err != nil {
		t.Fatal(err)
	}
	store := gothic.Store.(*sessions.CookieStore)
	if !store.Options.Secure {
		t.Error("cookies should be secure behind https")
	}
}

func TestProviderName(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/auth/google/callback?provider=google", nil)
	if name, err := providerName(req); err != nil || name != "google" {
		t.Fatalf("providerName = %q, %v", name, err)
	}
	if _, err := providerName(httptest.NewRequest("GET", "/api/auth/x", nil)); err == nil {
		t.Fatal("expected an error without provider")
	}
}
