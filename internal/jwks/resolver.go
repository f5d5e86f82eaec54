// Package jwks resolves token verification keys from a JSON Web Key Set.
package jwks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnknownKey signals the requested key id is absent from the set.
	ErrUnknownKey = errors.New("jwks: unknown signing key")
	// ErrUnsupportedAlgorithm signals the resolved key declares an
	// algorithm outside the allow-list.
	ErrUnsupportedAlgorithm = errors.New("jwks: unsupported signing algorithm")
)

// AllowedAlgorithm is the only signature algorithm honored for verification.
const AllowedAlgorithm = string(jose.RS256)

// Key is an immutable verification key indexed by key id.
type Key struct {
	ID        string
	Algorithm string
	Public    *rsa.PublicKey
}

type keyIndex struct {
	byID map[string]Key
	set  jose.JSONWebKeySet
}

// Resolver owns the in-memory key index. The index is loaded once on first
// use (single-flight under concurrency) and replaced wholesale on Refresh;
// readers never observe a partially built set.
type Resolver struct {
	source Source

	mu    sync.Mutex // serializes Refresh against itself
	index atomic.Pointer[keyIndex]
	group singleflight.Group
}

// NewResolver creates a resolver over the given key source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the verification key for the given key id, loading the
// key set on first use.
func (r *Resolver) Resolve(ctx context.Context, kid string) (Key, error) {
	idx, err := r.current(ctx)
	if err != nil {
		return Key{}, err
	}
	key, ok := idx.byID[kid]
	if !ok {
		return Key{}, ErrUnknownKey
	}
	if key.Algorithm != AllowedAlgorithm || key.Public == nil {
		return Key{}, ErrUnsupportedAlgorithm
	}
	return key, nil
}

// KeySet returns the currently loaded public key set, loading it on first use.
func (r *Resolver) KeySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	idx, err := r.current(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	return idx.set, nil
}

// Refresh reloads the key set from the source and installs it atomically.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("refresh key set: %w", err)
	}
	r.index.Store(buildIndex(set))
	return nil
}

func (r *Resolver) current(ctx context.Context) (*keyIndex, error) {
	if idx := r.index.Load(); idx != nil {
		return idx, nil
	}
	// Single-flight so concurrent first resolutions trigger one load.
	_, err, _ := r.group.Do("load", func() (any, error) {
		if r.index.Load() != nil {
			return nil, nil
		}
		return nil, r.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return r.index.Load(), nil
}

func buildIndex(set jose.JSONWebKeySet) *keyIndex {
	idx := &keyIndex{byID: make(map[string]Key, len(set.Keys))}
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" {
			continue
		}
		key := Key{ID: jwk.KeyID, Algorithm: jwk.Algorithm}
		if pub, ok := jwk.Key.(*rsa.PublicKey); ok {
			key.Public = pub
		}
		idx.byID[jwk.KeyID] = key
		idx.set.Keys = append(idx.set.Keys, jwk.Public())
	}
	return idx
}
