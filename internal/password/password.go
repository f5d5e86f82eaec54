// Package password hashes and verifies user passwords. Hash strings are
// self-describing: argon2id hashes use the PHC "$argon2id$..." format and
// the degraded fallback uses a "sha256$" prefix, so mixed formats can
// coexist during migration.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	hashTime    uint32 = 3
	hashMemory  uint32 = 64 * 1024
	hashThreads uint8  = 2
	hashKeyLen  uint32 = 32
	hashSaltLen        = 16

	argonPrefix    = "$argon2id$"
	fallbackPrefix = "sha256$"
)

var (
	// ErrUnsupportedHashFormat signals a stored hash with no recognized tag.
	ErrUnsupportedHashFormat = errors.New("password: unsupported hash format")
	// ErrVerifierUnavailable signals an argon2id hash must be checked while
	// the strong verifier is disabled.
	ErrVerifierUnavailable = errors.New("password: strong verifier unavailable")

	errInvalidHash = errors.New("password: invalid argon2id hash")
)

// Mode selects the hashing algorithm for newly produced hashes.
type Mode string

const (
	// ModeArgon2id is the strong adaptive default.
	ModeArgon2id Mode = "argon2id"
	// ModeSHA256 is a single-round digest fallback for environments where
	// the adaptive algorithm cannot run. It exists for availability, not
	// security-equivalence.
	ModeSHA256 Mode = "sha256"
)

// Hasher produces and verifies tagged password hashes.
type Hasher struct {
	mode Mode
}

// NewHasher creates a hasher in the given mode.
func NewHasher(mode Mode) (*Hasher, error) {
	switch mode {
	case ModeArgon2id, ModeSHA256:
		return &Hasher{mode: mode}, nil
	}
	return nil, fmt.Errorf("unknown password hash mode %q", mode)
}

// Hash returns a tagged hash of the plaintext in the configured mode.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if h.mode == ModeSHA256 {
		sum := sha256.Sum256([]byte(plaintext))
		return fallbackPrefix + hex.EncodeToString(sum[:]), nil
	}

	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(plaintext), salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemory,
		hashTime,
		hashThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify checks the plaintext against a tagged hash, dispatching on the tag.
// Comparisons are constant-time for both formats.
func (h *Hasher) Verify(plaintext, tagged string) (bool, error) {
	switch {
	case strings.HasPrefix(tagged, fallbackPrefix):
		sum := sha256.Sum256([]byte(plaintext))
		candidate := hex.EncodeToString(sum[:])
		stored := strings.TrimPrefix(tagged, fallbackPrefix)
		return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, nil
	case strings.HasPrefix(tagged, argonPrefix):
		if h.mode != ModeArgon2id {
			return false, ErrVerifierUnavailable
		}
		return verifyArgon2id(plaintext, tagged)
	}
	return false, ErrUnsupportedHashFormat
}

func verifyArgon2id(plaintext, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errInvalidHash
	}

	version, err := parseVersion(parts[2])
	if err != nil || version != argon2.Version {
		return false, errInvalidHash
	}

	mem, timeCost, threads, err := parseParams(parts[3])
	if err != nil {
		return false, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errInvalidHash
	}

	actual := argon2.IDKey([]byte(plaintext), salt, timeCost, mem, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func parseVersion(value string) (int, error) {
	if !strings.HasPrefix(value, "v=") {
		return 0, errInvalidHash
	}
	return strconv.Atoi(strings.TrimPrefix(value, "v="))
}

func parseParams(value string) (uint32, uint32, uint8, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errInvalidHash
	}

	mem, err := parseUint32Param(parts[0], "m=")
	if err != nil {
		return 0, 0, 0, errInvalidHash
	}
	timeCost, err := parseUint32Param(parts[1], "t=")
	if err != nil {
		return 0, 0, 0, errInvalidHash
	}
	threadsVal, err := parseUint32Param(parts[2], "p=")
	if err != nil || threadsVal > 255 {
		return 0, 0, 0, errInvalidHash
	}
	return mem, timeCost, uint8(threadsVal), nil
}

func parseUint32Param(value, prefix string) (uint32, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, errInvalidHash
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 32)
	if err != nil {
		return 0, errInvalidHash
	}
	return uint32(parsed), nil
}
