// Package token signs and verifies the RS256 access tokens exchanged by the
// API. Issuance and verification are split so only the issuer holds private
// key material.
package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/admaesmo/aiddiag/internal/domain"
)

// wireClaims are the custom claims signed alongside the registered set.
type wireClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Scope    string `json:"scope"`
}

// Issuer mints signed access tokens. It exclusively owns the private
// signing key.
type Issuer struct {
	signer   gojose.Signer
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the time source, mainly for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer builds an issuer signing RS256 tokens with the given key id.
func NewIssuer(key *rsa.PrivateKey, keyID, issuer, audience string, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.RS256, Key: key},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	i := &Issuer{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// LoadIssuer builds an issuer from a PEM private key file.
func LoadIssuer(privateKeyPath, keyID, issuer, audience string, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	key, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}
	return NewIssuer(key, keyID, issuer, audience, ttl, opts...)
}

// Issue signs a token binding the subject to its tenant, role, and scope.
// iat and exp are computed from the issuer clock and configured TTL.
func (i *Issuer) Issue(subject, tenantID uuid.UUID, role domain.RoleName, scope []string) (domain.IssuedToken, error) {
	now := i.now()
	expires := now.Add(i.ttl)

	std := gojwt.Claims{
		Issuer:   i.issuer,
		Audience: gojwt.Audience{i.audience},
		Subject:  subject.String(),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(expires),
	}
	custom := wireClaims{
		TenantID: tenantID.String(),
		Role:     string(role),
		Scope:    domain.TokenClaims{Scope: scope}.ScopeString(),
	}

	signed, err := gojwt.Signed(i.signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("serialize token: %w", err)
	}

	return domain.IssuedToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresAt: expires,
	}, nil
}
