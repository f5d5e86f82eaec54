package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenClaims is the decoded body of a verified access token.
type TokenClaims struct {
	Issuer    string
	Audience  string
	Subject   uuid.UUID
	TenantID  uuid.UUID
	Role      RoleName
	Scope     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ScopeString renders the scope list in its wire form.
func (c TokenClaims) ScopeString() string {
	return strings.Join(c.Scope, " ")
}

// HasScope reports whether the claims carry the given scope token.
func (c TokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// IssuedToken is the ephemeral result of a signin or refresh. It is never
// persisted; it can only be reconstructed by re-verification.
type IssuedToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuditEvent records a security-relevant action for later review.
type AuditEvent struct {
	ID       int64
	TenantID uuid.UUID
	ActorSub uuid.UUID
	Action   string
	Entity   string
	EntityID string
	At       time.Time
	Meta     map[string]any
}
