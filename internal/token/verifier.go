package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/jwks"
)

// KeyResolver resolves verification keys by key id.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (jwks.Key, error)
}

// Verifier decodes and validates signed tokens against the configured
// issuer, audience, and key set. Verification never mutates key-set state.
type Verifier struct {
	keys     KeyResolver
	issuer   string
	audience string
	now      func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the time source, mainly for tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier builds a verifier over the given key resolver.
func NewVerifier(keys KeyResolver, issuer, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var allowedAlgorithms = []gojose.SignatureAlgorithm{gojose.RS256}

// Verify parses, verifies, and validates an encoded token, returning its
// claims. Each failure mode maps to a distinct sentinel so callers can
// separate expiry from tampering without string matching.
func (v *Verifier) Verify(ctx context.Context, raw string) (domain.TokenClaims, error) {
	parsed, err := gojwt.ParseSigned(raw, allowedAlgorithms)
	if err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(parsed.Headers) != 1 {
		return domain.TokenClaims{}, ErrMalformedToken
	}

	kid := parsed.Headers[0].KeyID
	if kid == "" {
		return domain.TokenClaims{}, ErrMissingKeyID
	}

	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return domain.TokenClaims{}, err
	}

	var std gojwt.Claims
	var custom wireClaims
	if err := parsed.Claims(key.Public, &std, &custom); err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if std.Expiry == nil {
		return domain.TokenClaims{}, ErrInvalidClaims
	}
	expected := gojwt.Expected{
		Issuer:      v.issuer,
		AnyAudience: gojwt.Audience{v.audience},
		Time:        v.now(),
	}
	if err := std.ValidateWithLeeway(expected, 0); err != nil {
		switch {
		case errors.Is(err, gojwt.ErrExpired):
			return domain.TokenClaims{}, ErrExpiredToken
		case errors.Is(err, gojwt.ErrInvalidIssuer):
			return domain.TokenClaims{}, ErrInvalidIssuer
		case errors.Is(err, gojwt.ErrInvalidAudience):
			return domain.TokenClaims{}, ErrInvalidAudience
		default:
			return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
		}
	}

	return buildClaims(std, custom)
}

func buildClaims(std gojwt.Claims, custom wireClaims) (domain.TokenClaims, error) {
	subject, err := uuid.Parse(std.Subject)
	if err != nil {
		return domain.TokenClaims{}, ErrInvalidClaims
	}
	tenantID, err := uuid.Parse(custom.TenantID)
	if err != nil {
		return domain.TokenClaims{}, ErrInvalidClaims
	}
	role, err := domain.ParseRoleName(custom.Role)
	if err != nil {
		return domain.TokenClaims{}, ErrInvalidClaims
	}
	scope := strings.Fields(custom.Scope)
	if len(scope) == 0 {
		return domain.TokenClaims{}, ErrInvalidClaims
	}

	claims := domain.TokenClaims{
		Issuer:    std.Issuer,
		Subject:   subject,
		TenantID:  tenantID,
		Role:      role,
		Scope:     scope,
		ExpiresAt: std.Expiry.Time(),
	}
	if len(std.Audience) > 0 {
		claims.Audience = std.Audience[0]
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	return claims, nil
}
