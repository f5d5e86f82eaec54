package token

import "errors"

// Verification failures are a closed set of sentinels: callers branch with
// errors.Is instead of matching message strings.
var (
	// ErrMalformedToken signals the token is not structurally parseable.
	ErrMalformedToken = errors.New("token: malformed")
	// ErrMissingKeyID signals the header carries no key id.
	ErrMissingKeyID = errors.New("token: missing key id")
	// ErrInvalidSignature signals the signature does not verify.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrExpiredToken signals the token expiry is not in the future.
	ErrExpiredToken = errors.New("token: expired")
	// ErrInvalidIssuer signals the iss claim does not match configuration.
	ErrInvalidIssuer = errors.New("token: invalid issuer")
	// ErrInvalidAudience signals the aud claim does not match configuration.
	ErrInvalidAudience = errors.New("token: invalid audience")
	// ErrInvalidClaims signals a required claim is absent or empty.
	ErrInvalidClaims = errors.New("token: invalid claims")
)
