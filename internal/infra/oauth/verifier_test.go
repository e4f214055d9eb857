package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/infra/config"
)

func TestVerifyGoogleAcceptsValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id_token"); got != "token-1" {
			t.Errorf("unexpected id_token %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"g-123","aud":"client-1","email":"ada@example.com","email_verified":"true","name":"Ada Lovelace"}`))
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{GoogleClientID: "client-1"}, nil)
	v.googleURL = srv.URL

	identity, err := v.Verify(context.Background(), domain.AuthProviderGoogle, "token-1")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ProviderID != "g-123" {
		t.Errorf("expected provider id g-123, got %q", identity.ProviderID)
	}
	if identity.Email != "ada@example.com" {
		t.Errorf("expected email ada@example.com, got %q", identity.Email)
	}
	if identity.Provider != domain.AuthProviderGoogle {
		t.Errorf("unexpected provider %q", identity.Provider)
	}
}

func TestVerifyGoogleRejectsAudienceMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"g-123","aud":"someone-else","email":"ada@example.com","email_verified":"true"}`))
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{GoogleClientID: "client-1"}, nil)
	v.googleURL = srv.URL

	if _, err := v.Verify(context.Background(), domain.AuthProviderGoogle, "token-1"); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestVerifyGoogleRejectsUnverifiedEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"g-123","aud":"client-1","email":"ada@example.com","email_verified":"false"}`))
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{GoogleClientID: "client-1"}, nil)
	v.googleURL = srv.URL

	if _, err := v.Verify(context.Background(), domain.AuthProviderGoogle, "token-1"); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestVerifyGoogleRejectsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{}, nil)
	v.googleURL = srv.URL

	if _, err := v.Verify(context.Background(), domain.AuthProviderGoogle, "garbage"); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestVerifyFacebookAcceptsValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/debug_token"):
			_, _ = w.Write([]byte(`{"data":{"app_id":"app-1","is_valid":true,"user_id":"f-77"}}`))
		case strings.HasPrefix(r.URL.Path, "/me"):
			_, _ = w.Write([]byte(`{"id":"f-77","name":"Grace Hopper","email":"grace@example.com"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{FacebookAppID: "app-1", FacebookAppSecret: "secret"}, nil)
	v.facebookURL = srv.URL

	identity, err := v.Verify(context.Background(), domain.AuthProviderFacebook, "fb-token")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.ProviderID != "f-77" {
		t.Errorf("expected provider id f-77, got %q", identity.ProviderID)
	}
	if identity.FullName != "Grace Hopper" {
		t.Errorf("unexpected name %q", identity.FullName)
	}
}

func TestVerifyFacebookRejectsInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"app_id":"app-1","is_valid":false}}`))
	}))
	defer srv.Close()

	v := NewVerifier(config.SocialSettings{FacebookAppID: "app-1"}, nil)
	v.facebookURL = srv.URL

	if _, err := v.Verify(context.Background(), domain.AuthProviderFacebook, "fb-token"); !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestVerifyUnknownProvider(t *testing.T) {
	v := NewVerifier(config.SocialSettings{}, nil)
	if _, err := v.Verify(context.Background(), domain.AuthProvider("myspace"), "token"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
