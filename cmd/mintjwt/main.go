// Command mintjwt generates a local RS256 key pair on first run, publishes
// the matching JWKS document, and prints a freshly signed development token.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/admaesmo/aiddiag/internal/config"
	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/token"
)

func main() {
	role := flag.String("role", string(domain.RoleProfessional), "role claim for the minted token")
	subject := flag.String("sub", "", "subject UUID; random when empty")
	tenantID := flag.String("tenant", uuid.Nil.String(), "tenant UUID claim")
	flag.Parse()

	if err := run(*role, *subject, *tenantID); err != nil {
		fmt.Fprintln(os.Stderr, "mintjwt:", err)
		os.Exit(1)
	}
}

func run(roleName, subject, tenantID string) error {
	cfg, err := config.Load()
	if err != nil {
		// DATABASE_URL is irrelevant here; fall back to pure defaults.
		cfg = config.Defaults()
	}

	role, err := domain.ParseRoleName(roleName)
	if err != nil {
		return err
	}
	sub := uuid.New()
	if subject != "" {
		if sub, err = uuid.Parse(subject); err != nil {
			return fmt.Errorf("parse sub: %w", err)
		}
	}
	tenant, err := uuid.Parse(tenantID)
	if err != nil {
		return fmt.Errorf("parse tenant: %w", err)
	}

	key, err := ensurePrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return err
	}
	if err := writeJWKS(cfg.JWKSPath, cfg.DefaultKeyID, &key.PublicKey); err != nil {
		return err
	}

	issuer, err := token.NewIssuer(key, cfg.DefaultKeyID, cfg.Issuer, cfg.Audience, time.Hour)
	if err != nil {
		return err
	}
	issued, err := issuer.Issue(sub, tenant, role, []string{"api.read", "api.write"})
	if err != nil {
		return err
	}

	fmt.Println(issued.Token)
	return nil
}

func ensurePrivateKey(path string) (*rsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return token.LoadPrivateKey(path)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}

func writeJWKS(path, keyID string, pub *rsa.PublicKey) error {
	set := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       pub,
			KeyID:     keyID,
			Algorithm: "RS256",
			Use:       "sig",
		}},
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal jwks: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create jwks dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write jwks: %w", err)
	}
	return nil
}
