// Package tenant resolves tenant records, with an optional cache in front
// of the repository.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/repository"
)

// Cache stores resolved tenants keyed by name. Get returns (nil, nil) on a
// miss; cache failures are soft and never fail resolution.
type Cache interface {
	Get(ctx context.Context, name string) (*domain.Tenant, error)
	Set(ctx context.Context, name string, tenant domain.Tenant, ttl time.Duration) error
}

// Resolver loads tenants by name, creating the default tenant on first use.
type Resolver struct {
	repo   repository.TenantRepository
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a tenant resolver. cache may be nil.
func NewResolver(repo repository.TenantRepository, cache Cache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.L()
	}
	return &Resolver{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns the tenant with the given name, consulting the cache
// first and creating the tenant if it does not exist yet.
func (r *Resolver) Resolve(ctx context.Context, name string) (domain.Tenant, error) {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if cleaned == "" {
		return domain.Tenant{}, fmt.Errorf("resolve tenant: empty name")
	}

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, cleaned)
		if err != nil {
			r.logger.Warn("tenant cache read failed", zap.String("tenant", cleaned), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	tenant, err := r.repo.GetByName(ctx, cleaned)
	if errors.Is(err, domain.ErrNotFound) {
		tenant, err = r.repo.Create(ctx, domain.Tenant{Name: cleaned})
	}
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("resolve tenant %q: %w", cleaned, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cleaned, tenant, r.ttl); err != nil {
			r.logger.Warn("tenant cache write failed", zap.String("tenant", cleaned), zap.Error(err))
		}
	}
	return tenant, nil
}
