package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/domain"
)

const claimsKey = "authClaims"

// TokenVerifier verifies an encoded bearer token into claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (domain.TokenClaims, error)
}

// Auth authenticates requests from the Authorization header and enforces
// role requirements. Verification failures are logged server-side and
// surfaced to the client as a generic unauthorized response.
type Auth struct {
	Verifier TokenVerifier
	Logger   *zap.Logger
}

// NewAuth creates the authorization middleware.
func NewAuth(verifier TokenVerifier, logger *zap.Logger) *Auth {
	return &Auth{Verifier: verifier, Logger: logger}
}

// Authenticate requires a valid bearer token and attaches its claims to
// the request context.
func (m *Auth) Authenticate(c *gin.Context) {
	if _, ok := m.authenticate(c); ok {
		c.Next()
	}
}

// RequireRoles requires a valid bearer token whose role belongs to the
// allowed set. An empty set imposes no role restriction. Role failures are
// 403, distinct from the 401 of authentication failures.
func (m *Auth) RequireRoles(allowed ...domain.RoleName) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.authenticate(c)
		if !ok {
			return
		}
		if len(allowed) > 0 && !roleAllowed(claims.Role, allowed) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": "Insufficient role.",
			})
			return
		}
		c.Next()
	}
}

func (m *Auth) authenticate(c *gin.Context) (domain.TokenClaims, bool) {
	if claims, ok := GetClaims(c); ok {
		return claims, true
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		abortUnauthorized(c, "Authorization header required.")
		return domain.TokenClaims{}, false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		abortUnauthorized(c, "Bearer token required.")
		return domain.TokenClaims{}, false
	}

	claims, err := m.Verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		m.log().Warn("bearer token rejected",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		abortUnauthorized(c, "Invalid or expired credentials.")
		return domain.TokenClaims{}, false
	}

	c.Set(claimsKey, claims)
	return claims, true
}

// GetClaims returns the verified claims attached to the request, if any.
func GetClaims(c *gin.Context) (domain.TokenClaims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return domain.TokenClaims{}, false
	}
	claims, ok := value.(domain.TokenClaims)
	return claims, ok
}

func (m *Auth) log() *zap.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return zap.L()
}

func roleAllowed(role domain.RoleName, allowed []domain.RoleName) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

func abortUnauthorized(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "unauthorized",
		"error_description": description,
	})
}
