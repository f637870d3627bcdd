package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/auth"
	"github.com/angelmondragon/inventory-sync/pkg/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{Secret: "secret", Issuer: "inventory-sync", TokenTTLMinutes: 10}
}

func mintTestToken(t *testing.T, cfg config.AuthConfig, subject string, scopes ...string) string {
	t.Helper()
	token, err := auth.MintServiceToken(cfg, time.Now(), auth.ServiceTokenPayload{Subject: subject, Scopes: scopes})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestServiceAuthRejectsMissingToken(t *testing.T) {
	handler := ServiceAuth(testAuthConfig(), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestServiceAuthRejectsInvalidToken(t *testing.T) {
	handler := ServiceAuth(testAuthConfig(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestServiceAuthAllowsValidToken(t *testing.T) {
	cfg := testAuthConfig()
	token := mintTestToken(t, cfg, "storefront", auth.ScopeReservations)

	var subject string
	var scopes []string
	handler := ServiceAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		scopes = ScopesFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if subject != "storefront" {
		t.Fatalf("expected subject storefront, got %q", subject)
	}
	if len(scopes) != 1 || scopes[0] != auth.ScopeReservations {
		t.Fatalf("unexpected scopes %v", scopes)
	}
}

func TestRequireScope(t *testing.T) {
	cfg := testAuthConfig()
	chain := func() http.Handler {
		return ServiceAuth(cfg, nil)(RequireScope(auth.ScopeInventoryWrite, nil)(okHandler()))
	}

	cases := []struct {
		name   string
		scopes []string
		want   int
	}{
		{"granted", []string{auth.ScopeInventoryWrite}, http.StatusOK},
		{"missing", []string{auth.ScopeInventoryRead}, http.StatusForbidden},
		{"full access", nil, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		req.Header.Set("Authorization", "Bearer "+mintTestToken(t, cfg, "automation", tc.scopes...))
		resp := httptest.NewRecorder()
		chain().ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}
