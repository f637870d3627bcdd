package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{Secret: "secret", Issuer: "inventory-sync", TokenTTLMinutes: 30}
}

func TestMintAndParseServiceToken(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now().UTC()

	token, err := MintServiceToken(cfg, now, ServiceTokenPayload{
		Subject: "storefront",
		Scopes:  []string{ScopeInventoryRead, ScopeReservations},
	})
	if err != nil {
		t.Fatalf("mint service token: %v", err)
	}

	claims, err := ParseServiceToken(cfg, token)
	if err != nil {
		t.Fatalf("parse service token: %v", err)
	}
	if claims.Subject != "storefront" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be generated")
	}
	if !claims.HasScope(ScopeReservations) || claims.HasScope(ScopeInventoryWrite) {
		t.Fatalf("unexpected scopes %v", claims.Scopes)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %v", got)
	}
}

func TestServiceClaimsWithoutScopesAreFullAccess(t *testing.T) {
	claims := &ServiceClaims{}
	if !claims.HasScope(ScopeInventoryWrite) {
		t.Fatal("expected scopeless token to grant every scope")
	}
	var nilClaims *ServiceClaims
	if nilClaims.HasScope(ScopeInventoryRead) {
		t.Fatal("nil claims must not grant scopes")
	}
}

func TestParseServiceTokenRejectsWrongSecret(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintServiceToken(cfg, time.Now(), ServiceTokenPayload{Subject: "automation"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "other"
	if _, err := ParseServiceToken(other, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseServiceTokenRejectsExpired(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintServiceToken(cfg, time.Now().Add(-2*time.Hour), ServiceTokenPayload{Subject: "automation"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseServiceToken(cfg, token); err == nil || !strings.Contains(err.Error(), jwt.ErrTokenExpired.Error()) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestParseServiceTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintServiceToken(cfg, time.Now(), ServiceTokenPayload{Subject: "automation"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseServiceToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestMintServiceTokenValidatesInput(t *testing.T) {
	if _, err := MintServiceToken(config.AuthConfig{}, time.Now(), ServiceTokenPayload{Subject: "x"}); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if _, err := MintServiceToken(testAuthConfig(), time.Now(), ServiceTokenPayload{Subject: "  "}); !errors.Is(err, ErrSubjectRequired) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
	if _, err := MintServiceToken(testAuthConfig(), time.Now(), ServiceTokenPayload{Subject: "x", Scopes: []string{"admin"}}); !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("expected unknown scope error, got %v", err)
	}
}

func TestNormalizeScopes(t *testing.T) {
	got, err := NormalizeScopes([]string{" reservations", ScopeInventoryRead, "", ScopeReservations})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []string{ScopeInventoryRead, ScopeReservations}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseServiceTokenToleratesSmallSkew(t *testing.T) {
	cfg := testAuthConfig()
	token, err := MintServiceToken(cfg, time.Now().Add(10*time.Second), ServiceTokenPayload{Subject: "storefront"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseServiceToken(cfg, token); err != nil {
		t.Fatalf("expected token issued slightly in the future to pass, got %v", err)
	}
}

func TestParseServiceTokenRejectsOtherAlgorithms(t *testing.T) {
	cfg := testAuthConfig()
	claims := ServiceClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   "storefront",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseServiceToken(cfg, token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}
