package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/admaesmo/aiddiag/internal/domain"
)

// TenantRepository exposes tenant lookup and creation.
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	GetByName(ctx context.Context, name string) (domain.Tenant, error)
	Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error)
}

// UserRepository exposes persistence for user accounts. Lookups return
// users with their roles loaded.
type UserRepository interface {
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, secret string) error
	AddRole(ctx context.Context, userID uuid.UUID, roleID int64) error
}

// RoleRepository exposes RBAC role records.
type RoleRepository interface {
	GetByName(ctx context.Context, name domain.RoleName) (domain.Role, error)
	Create(ctx context.Context, role domain.Role) (domain.Role, error)
}

// AuditRepository persists audit events.
type AuditRepository interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
