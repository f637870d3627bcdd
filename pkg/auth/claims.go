package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes a service token can carry.
const (
	ScopeInventoryRead  = "inventory:read"
	ScopeInventoryWrite = "inventory:write"
	ScopeReservations   = "reservations"
)

// ServiceTokenPayload captures the data available when minting a service token.
type ServiceTokenPayload struct {
	Subject string
	Scopes  []string
	JTI     string
}

// ServiceClaims is the typed JWT presented by storefront and automation callers.
type ServiceClaims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope. A token minted without
// scopes is treated as a full-access service token.
func (c *ServiceClaims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	if len(c.Scopes) == 0 {
		return true
	}
	return slices.Contains(c.Scopes, scope)
}
