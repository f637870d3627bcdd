package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

// clockSkew tolerates drift between the minting host and this service.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	ErrSecretRequired  = errors.New("auth secret is required")
	ErrIssuerRequired  = errors.New("auth issuer is required")
	ErrSubjectRequired = errors.New("token subject is required")
	ErrUnknownScope    = errors.New("unknown token scope")
)

var knownScopes = []string{ScopeInventoryRead, ScopeInventoryWrite, ScopeReservations}

// MintServiceToken signs an HS256 token for payload, valid for the
// configured TTL from now. Scopes are deduplicated and sorted.
func MintServiceToken(cfg config.AuthConfig, now time.Time, payload ServiceTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSecretRequired
	case cfg.Issuer == "":
		return "", ErrIssuerRequired
	}
	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		return "", ErrSubjectRequired
	}
	scopes, err := NormalizeScopes(payload.Scopes)
	if err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := ServiceClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseServiceToken verifies signature, issuer and expiry and returns the
// claims. Tokens without exp are rejected.
func ParseServiceToken(cfg config.AuthConfig, raw string) (*ServiceClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}
	claims := &ServiceClaims{}
	secret := []byte(cfg.Secret)
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrSubjectRequired
	}
	return claims, nil
}

// NormalizeScopes trims, deduplicates and sorts scopes, rejecting any the
// API does not know.
func NormalizeScopes(scopes []string) ([]string, error) {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if !slices.Contains(knownScopes, scope) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
		}
		out = append(out, scope)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
