package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/admaesmo/aiddiag/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TenantRepository = (*PostgresTenantRepo)(nil)
	_ UserRepository   = (*PostgresUserRepo)(nil)
	_ RoleRepository   = (*PostgresRoleRepo)(nil)
	_ AuditRepository  = (*PostgresAuditRepo)(nil)
)

const uniqueViolation = "23505"

// translate maps driver errors to the domain error set. Not-found and
// uniqueness outcomes stay distinct from connectivity failures so callers
// never report an unreachable store as invalid credentials.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, domain.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrRepositoryUnavailable)
}

// PostgresTenantRepo implements TenantRepository on pgx.
type PostgresTenantRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTenantRepo(pool *pgxpool.Pool) *PostgresTenantRepo {
	return &PostgresTenantRepo{pool: pool}
}

func (r *PostgresTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return domain.Tenant{}, translate("get tenant", err)
	}
	return t, nil
}

func (r *PostgresTenantRepo) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE name = $1`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return domain.Tenant{}, translate("get tenant by name", err)
	}
	return t, nil
}

func (r *PostgresTenantRepo) Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error) {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2) RETURNING created_at`,
		tenant.ID, tenant.Name,
	).Scan(&tenant.CreatedAt)
	if err != nil {
		return domain.Tenant{}, translate("create tenant", err)
	}
	return tenant, nil
}

// PostgresUserRepo implements UserRepository on pgx.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const selectUser = `SELECT id, tenant_id, email, hashed_password, mfa_enabled, COALESCE(mfa_secret, ''), status, created_at FROM users `

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (domain.User, error) {
	u, err := r.scanUser(r.pool.QueryRow(ctx, selectUser+`WHERE tenant_id = $1 AND email = $2`, tenantID, email))
	if err != nil {
		return domain.User{}, translate("get user by email", err)
	}
	if err := r.loadRoles(ctx, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	u, err := r.scanUser(r.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, translate("get user", err)
	}
	if err := r.loadRoles(ctx, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = "active"
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, tenant_id, email, hashed_password, mfa_enabled, mfa_secret, status)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7) RETURNING created_at`,
		user.ID, user.TenantID, user.Email, user.PasswordHash, user.MFAEnabled, user.MFASecret, user.Status,
	).Scan(&user.CreatedAt)
	if err != nil {
		return domain.User{}, translate("create user", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET hashed_password = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return translate("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, secret string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET mfa_enabled = $2, mfa_secret = NULLIF($3, '') WHERE id = $1`,
		id, enabled, secret)
	if err != nil {
		return translate("update mfa", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update mfa: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresUserRepo) AddRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		return translate("add role", err)
	}
	return nil
}

func (r *PostgresUserRepo) scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.MFAEnabled, &u.MFASecret, &u.Status, &u.CreatedAt)
	return u, err
}

func (r *PostgresUserRepo) loadRoles(ctx context.Context, u *domain.User) error {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, COALESCE(r.description, '')
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.id`, u.ID)
	if err != nil {
		return translate("load user roles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role domain.Role
		var name string
		if err := rows.Scan(&role.ID, &name, &role.Description); err != nil {
			return translate("scan user role", err)
		}
		role.Name = domain.RoleName(name)
		u.Roles = append(u.Roles, role)
	}
	return translate("load user roles", rows.Err())
}

// PostgresRoleRepo implements RoleRepository on pgx.
type PostgresRoleRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRoleRepo(pool *pgxpool.Pool) *PostgresRoleRepo {
	return &PostgresRoleRepo{pool: pool}
}

func (r *PostgresRoleRepo) GetByName(ctx context.Context, name domain.RoleName) (domain.Role, error) {
	var role domain.Role
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(description, '') FROM roles WHERE name = $1`, string(name),
	).Scan(&role.ID, &raw, &role.Description)
	if err != nil {
		return domain.Role{}, translate("get role", err)
	}
	role.Name = domain.RoleName(raw)
	return role, nil
}

func (r *PostgresRoleRepo) Create(ctx context.Context, role domain.Role) (domain.Role, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, NULLIF($2, '')) RETURNING id`,
		string(role.Name), role.Description,
	).Scan(&role.ID)
	if err != nil {
		return domain.Role{}, translate("create role", err)
	}
	return role, nil
}

// PostgresAuditRepo implements AuditRepository on pgx.
type PostgresAuditRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{pool: pool}
}

func (r *PostgresAuditRepo) Record(ctx context.Context, event domain.AuditEvent) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, tenant_id, actor_sub, action, entity, entity_id, ts, meta)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		event.ID, event.TenantID, event.ActorSub, event.Action, event.Entity, event.EntityID, event.At, meta)
	if err != nil {
		return translate("record audit event", err)
	}
	return nil
}
