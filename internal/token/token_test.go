package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/jwks"
	"github.com/admaesmo/aiddiag/internal/token"
)

const (
	testKID      = "local-rs256"
	testIssuer   = "http://localhost:8000"
	testAudience = "aiddiag-api"
)

type staticSource struct {
	set jose.JSONWebKeySet
}

func (s *staticSource) Load(ctx context.Context) (jose.JSONWebKeySet, error) {
	return s.set, nil
}

type fixture struct {
	key      *rsa.PrivateKey
	issuer   *token.Issuer
	verifier *token.Verifier
}

func newFixture(t *testing.T, opts ...token.IssuerOption) fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer, err := token.NewIssuer(key, testKID, testIssuer, testAudience, time.Hour, opts...)
	require.NoError(t, err)

	resolver := jwks.NewResolver(&staticSource{set: jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &key.PublicKey, KeyID: testKID, Algorithm: "RS256", Use: "sig"},
	}}})
	return fixture{
		key:      key,
		issuer:   issuer,
		verifier: token.NewVerifier(resolver, testIssuer, testAudience),
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	fx := newFixture(t)
	subject := uuid.New()
	tenantID := uuid.New()

	issued, err := fx.issuer.Issue(subject, tenantID, domain.RoleProfessional, []string{"api.read", "api.write"})
	require.NoError(t, err)
	require.Equal(t, "Bearer", issued.TokenType)
	require.NotEmpty(t, issued.Token)

	claims, err := fx.verifier.Verify(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, subject, claims.Subject)
	require.Equal(t, tenantID, claims.TenantID)
	require.Equal(t, domain.RoleProfessional, claims.Role)
	require.Equal(t, []string{"api.read", "api.write"}, claims.Scope)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Equal(t, testAudience, claims.Audience)
	require.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt, time.Second)
}

func TestVerifyMalformedToken(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.verifier.Verify(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, token.ErrMalformedToken)
}

func TestVerifyTamperedSignature(t *testing.T) {
	fx := newFixture(t)
	issued, err := fx.issuer.Issue(uuid.New(), uuid.New(), domain.RolePatient, []string{"api.read"})
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := strings.Join([]string{parts[0], parts[1], string(sig)}, ".")

	_, err = fx.verifier.Verify(context.Background(), tampered)
	require.ErrorIs(t, err, token.ErrInvalidSignature)
}

func TestVerifyExpiredToken(t *testing.T) {
	past := time.Now().UTC().Add(-2 * time.Hour)
	fx := newFixture(t, token.WithIssuerClock(func() time.Time { return past }))

	issued, err := fx.issuer.Issue(uuid.New(), uuid.New(), domain.RolePatient, []string{"api.read"})
	require.NoError(t, err)

	_, err = fx.verifier.Verify(context.Background(), issued.Token)
	require.ErrorIs(t, err, token.ErrExpiredToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	fx := newFixture(t)
	other, err := token.NewIssuer(fx.key, testKID, "http://evil.example", testAudience, time.Hour)
	require.NoError(t, err)

	issued, err := other.Issue(uuid.New(), uuid.New(), domain.RolePatient, []string{"api.read"})
	require.NoError(t, err)

	_, err = fx.verifier.Verify(context.Background(), issued.Token)
	require.ErrorIs(t, err, token.ErrInvalidIssuer)
}

func TestVerifyWrongAudience(t *testing.T) {
	fx := newFixture(t)
	other, err := token.NewIssuer(fx.key, testKID, testIssuer, "other-api", time.Hour)
	require.NoError(t, err)

	issued, err := other.Issue(uuid.New(), uuid.New(), domain.RolePatient, []string{"api.read"})
	require.NoError(t, err)

	_, err = fx.verifier.Verify(context.Background(), issued.Token)
	require.ErrorIs(t, err, token.ErrInvalidAudience)
}

func TestVerifyUnknownKeyID(t *testing.T) {
	fx := newFixture(t)
	other, err := token.NewIssuer(fx.key, "rotated-away", testIssuer, testAudience, time.Hour)
	require.NoError(t, err)

	issued, err := other.Issue(uuid.New(), uuid.New(), domain.RolePatient, []string{"api.read"})
	require.NoError(t, err)

	_, err = fx.verifier.Verify(context.Background(), issued.Token)
	require.ErrorIs(t, err, jwks.ErrUnknownKey)
}

func TestVerifyMissingKeyID(t *testing.T) {
	fx := newFixture(t)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: fx.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	raw, err := gojwt.Signed(signer).Claims(gojwt.Claims{Subject: "x"}).Serialize()
	require.NoError(t, err)

	_, err = fx.verifier.Verify(context.Background(), raw)
	require.ErrorIs(t, err, token.ErrMissingKeyID)
}

func signRaw(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKID),
	)
	require.NoError(t, err)
	raw, err := gojwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func TestVerifyRejectsDefectiveClaims(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	base := func() map[string]any {
		return map[string]any{
			"iss":       testIssuer,
			"aud":       testAudience,
			"iat":       now.Unix(),
			"exp":       now.Add(time.Hour).Unix(),
			"sub":       uuid.New().String(),
			"tenant_id": uuid.New().String(),
			"role":      "Paciente",
			"scope":     "api.read",
		}
	}

	cases := map[string]func(map[string]any){
		"missing exp":    func(c map[string]any) { delete(c, "exp") },
		"bad subject":    func(c map[string]any) { c["sub"] = "not-a-uuid" },
		"bad tenant":     func(c map[string]any) { c["tenant_id"] = "42" },
		"unknown role":   func(c map[string]any) { c["role"] = "Superuser" },
		"empty scope":    func(c map[string]any) { c["scope"] = "" },
		"missing tenant": func(c map[string]any) { delete(c, "tenant_id") },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			claims := base()
			mutate(claims)
			_, err := fx.verifier.Verify(context.Background(), signRaw(t, fx.key, claims))
			require.ErrorIs(t, err, token.ErrInvalidClaims)
		})
	}
}
