package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/config"
	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/password"
	"github.com/admaesmo/aiddiag/internal/repository"
	"github.com/admaesmo/aiddiag/internal/tenant"
)

type seedUser struct {
	email    string
	password string
	role     domain.RoleName
}

var demoUsers = []seedUser{
	{email: "admin@demo.local", password: "Admin123!", role: domain.RoleAdmin},
	{email: "pro@demo.local", password: "Pro123!", role: domain.RoleProfessional},
	{email: "patient@demo.local", password: "Patient123!", role: domain.RolePatient},
}

var seedRoles = []domain.Role{
	{Name: domain.RolePatient, Description: "Rol Paciente"},
	{Name: domain.RoleProfessional, Description: "Rol Profesional"},
	{Name: domain.RoleAdmin, Description: "Rol Admin"},
}

// EnsureDemoData creates the default tenant, the role catalogue, and the
// demo accounts for dev/e2e if missing.
func EnsureDemoData(lc fx.Lifecycle, cfg config.Config, tenants *tenant.Resolver, users repository.UserRepository, roles repository.RoleRepository, hasher *password.Hasher, logger *zap.Logger) {
	if !cfg.SeedDemoData {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureDemoData(ctx, cfg, tenants, users, roles, hasher, logger)
		},
	})
}

func ensureDemoData(ctx context.Context, cfg config.Config, tenants *tenant.Resolver, users repository.UserRepository, roles repository.RoleRepository, hasher *password.Hasher, logger *zap.Logger) error {
	tn, err := tenants.Resolve(ctx, cfg.DefaultTenantName)
	if err != nil {
		return fmt.Errorf("seed tenant: %w", err)
	}

	byName := make(map[domain.RoleName]domain.Role, len(seedRoles))
	for _, role := range seedRoles {
		ensured, err := ensureRole(ctx, roles, role)
		if err != nil {
			return err
		}
		byName[ensured.Name] = ensured
	}

	for _, seed := range demoUsers {
		if err := ensureUser(ctx, users, hasher, tn, seed, byName[seed.role], logger); err != nil {
			return err
		}
	}
	return nil
}

func ensureRole(ctx context.Context, roles repository.RoleRepository, role domain.Role) (domain.Role, error) {
	existing, err := roles.GetByName(ctx, role.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Role{}, fmt.Errorf("seed role lookup: %w", err)
	}

	created, err := roles.Create(ctx, role)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return roles.GetByName(ctx, role.Name)
		}
		return domain.Role{}, fmt.Errorf("seed role create: %w", err)
	}
	return created, nil
}

func ensureUser(ctx context.Context, users repository.UserRepository, hasher *password.Hasher, tn domain.Tenant, seed seedUser, role domain.Role, logger *zap.Logger) error {
	email := strings.ToLower(seed.email)

	if _, err := users.GetByEmail(ctx, tn.ID, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("seed user lookup: %w", err)
	}

	hashed, err := hasher.Hash(seed.password)
	if err != nil {
		return fmt.Errorf("seed hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		ID:           uuid.New(),
		TenantID:     tn.ID,
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("seed create user: %w", err)
	}

	if err := users.AddRole(ctx, created.ID, role.ID); err != nil {
		return fmt.Errorf("seed assign role: %w", err)
	}

	if logger != nil {
		logger.Info("seeded demo user",
			zap.String("email", created.Email),
			zap.String("tenant_id", tn.ID.String()),
			zap.String("role", string(role.Name)),
		)
	}
	return nil
}
