package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// Source loads a raw JSON Web Key Set from a configured location.
type Source interface {
	Load(ctx context.Context) (jose.JSONWebKeySet, error)
}

// FileSource reads the key set from a local JWKS document.
type FileSource struct {
	Path string
}

// Load reads and decodes the JWKS file.
func (s FileSource) Load(ctx context.Context) (jose.JSONWebKeySet, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("read jwks %s: %w", s.Path, err)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks %s: %w", s.Path, err)
	}
	return set, nil
}

// HTTPSource fetches the key set from a remote JWKS endpoint.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Load fetches and decodes the remote JWKS document.
func (s HTTPSource) Load(ctx context.Context) (jose.JSONWebKeySet, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks %s: unexpected status %d", s.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("read jwks response: %w", err)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks response: %w", err)
	}
	return set, nil
}
