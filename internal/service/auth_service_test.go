package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/audit"
	"github.com/admaesmo/aiddiag/internal/config"
	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/jwks"
	"github.com/admaesmo/aiddiag/internal/password"
	"github.com/admaesmo/aiddiag/internal/service"
	"github.com/admaesmo/aiddiag/internal/tenant"
	"github.com/admaesmo/aiddiag/internal/token"
)

const (
	testIssuer   = "http://localhost:8000"
	testAudience = "aiddiag-api"
	testKID      = "local-rs256"
)

type memTenantRepo struct {
	tenants map[uuid.UUID]domain.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[uuid.UUID]domain.Tenant)}
}

func (m *memTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	if tn, ok := m.tenants[id]; ok {
		return tn, nil
	}
	return domain.Tenant{}, domain.ErrNotFound
}

func (m *memTenantRepo) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	for _, tn := range m.tenants {
		if tn.Name == name {
			return tn, nil
		}
	}
	return domain.Tenant{}, domain.ErrNotFound
}

func (m *memTenantRepo) Create(ctx context.Context, tn domain.Tenant) (domain.Tenant, error) {
	if tn.ID == uuid.Nil {
		tn.ID = uuid.New()
	}
	tn.CreatedAt = time.Now().UTC()
	m.tenants[tn.ID] = tn
	return tn, nil
}

type memUserRepo struct {
	users map[uuid.UUID]domain.User
	roles *memRoleRepo
	err   error
}

func newMemUserRepo(roles *memRoleRepo) *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]domain.User), roles: roles}
}

func (m *memUserRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	for _, u := range m.users {
		if u.TenantID == user.TenantID && u.Email == user.Email {
			return domain.User{}, domain.ErrAlreadyExists
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Status == "" {
		user.Status = "active"
	}
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memUserRepo) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, secret string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.MFAEnabled = enabled
	u.MFASecret = secret
	m.users[id] = u
	return nil
}

func (m *memUserRepo) AddRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	role, ok := m.roles.byID[roleID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, existing := range u.Roles {
		if existing.ID == roleID {
			return nil
		}
	}
	u.Roles = append(u.Roles, role)
	m.users[userID] = u
	return nil
}

type memRoleRepo struct {
	byID   map[int64]domain.Role
	nextID int64
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{byID: make(map[int64]domain.Role), nextID: 1}
}

func (m *memRoleRepo) GetByName(ctx context.Context, name domain.RoleName) (domain.Role, error) {
	for _, role := range m.byID {
		if role.Name == name {
			return role, nil
		}
	}
	return domain.Role{}, domain.ErrNotFound
}

func (m *memRoleRepo) Create(ctx context.Context, role domain.Role) (domain.Role, error) {
	role.ID = m.nextID
	m.nextID++
	m.byID[role.ID] = role
	return role, nil
}

type memAuditRepo struct {
	events []domain.AuditEvent
}

func (m *memAuditRepo) Record(ctx context.Context, event domain.AuditEvent) error {
	m.events = append(m.events, event)
	return nil
}

type env struct {
	svc      *service.AuthService
	verifier *token.Verifier
	issuer   *token.Issuer
	users    *memUserRepo
	roles    *memRoleRepo
	audits   *memAuditRepo
	tenantID uuid.UUID
}

type staticSource struct{ set jose.JSONWebKeySet }

func (s *staticSource) Load(ctx context.Context) (jose.JSONWebKeySet, error) {
	return s.set, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(key, testKID, testIssuer, testAudience, time.Hour)
	require.NoError(t, err)
	resolver := jwks.NewResolver(&staticSource{set: jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &key.PublicKey, KeyID: testKID, Algorithm: "RS256"},
	}}})
	verifier := token.NewVerifier(resolver, testIssuer, testAudience)

	hasher, err := password.NewHasher(password.ModeArgon2id)
	require.NoError(t, err)

	tenants := newMemTenantRepo()
	tn, err := tenants.Create(context.Background(), domain.Tenant{Name: "demo"})
	require.NoError(t, err)

	roles := newMemRoleRepo()
	for _, name := range []domain.RoleName{domain.RolePatient, domain.RoleProfessional, domain.RoleAdmin} {
		_, err := roles.Create(context.Background(), domain.Role{Name: name})
		require.NoError(t, err)
	}
	users := newMemUserRepo(roles)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	audits := &memAuditRepo{}
	recorder := audit.NewRecorder(audits, node, zap.NewNop())

	cfg := config.Config{DefaultTenantName: "demo", AccessTokenTTL: time.Hour}
	resolverT := tenant.NewResolver(tenants, nil, time.Minute, zap.NewNop())
	svc := service.NewAuthService(resolverT, users, roles, hasher, issuer, verifier, recorder, cfg, zap.NewNop())

	return &env{
		svc:      svc,
		verifier: verifier,
		issuer:   issuer,
		users:    users,
		roles:    roles,
		audits:   audits,
		tenantID: tn.ID,
	}
}

func (e *env) seedUser(t *testing.T, email, plaintext string, role domain.RoleName) domain.User {
	t.Helper()
	hasher, err := password.NewHasher(password.ModeArgon2id)
	require.NoError(t, err)
	hash, err := hasher.Hash(plaintext)
	require.NoError(t, err)

	user, err := e.users.Create(context.Background(), domain.User{
		TenantID:     e.tenantID,
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	stored, err := e.roles.GetByName(context.Background(), role)
	require.NoError(t, err)
	require.NoError(t, e.users.AddRole(context.Background(), user.ID, stored.ID))

	user, err = e.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	return user
}

func TestSignInPasswordIssuesToken(t *testing.T) {
	e := newEnv(t)
	user := e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	issued, err := e.svc.SignInPassword(context.Background(), "patient@demo.local", "Patient123!")
	require.NoError(t, err)
	require.Equal(t, "Bearer", issued.TokenType)

	claims, err := e.verifier.Verify(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, e.tenantID, claims.TenantID)
	require.Equal(t, domain.RolePatient, claims.Role)
	require.Equal(t, service.DefaultScope, claims.Scope)

	require.Len(t, e.audits.events, 1)
	require.Equal(t, "auth.signin.password", e.audits.events[0].Action)
}

func TestSignInPasswordNormalizesEmail(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	_, err := e.svc.SignInPassword(context.Background(), "  Patient@Demo.LOCAL ", "Patient123!")
	require.NoError(t, err)
}

func TestSignInPasswordRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	_, err := e.svc.SignInPassword(context.Background(), "patient@demo.local", "wrong")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = e.svc.SignInPassword(context.Background(), "nobody@demo.local", "Patient123!")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestSignInPasswordRepositoryOutage(t *testing.T) {
	e := newEnv(t)
	e.users.err = fmt.Errorf("%w: connection refused", domain.ErrRepositoryUnavailable)

	_, err := e.svc.SignInPassword(context.Background(), "patient@demo.local", "Patient123!")
	require.ErrorIs(t, err, domain.ErrRepositoryUnavailable)
	require.NotErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestSignInExternalPassesAccessTokenThrough(t *testing.T) {
	e := newEnv(t)
	subject := uuid.New()

	idToken, err := e.issuer.Issue(subject, e.tenantID, domain.RoleProfessional, []string{"api.read"})
	require.NoError(t, err)

	issued, err := e.svc.SignInExternal(context.Background(), idToken.Token, "opaque-upstream-token")
	require.NoError(t, err)
	require.Equal(t, "opaque-upstream-token", issued.Token)
	require.Equal(t, "Bearer", issued.TokenType)
	require.WithinDuration(t, idToken.ExpiresAt, issued.ExpiresAt, time.Second)
}

func TestSignInExternalRejectsBadIDToken(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.SignInExternal(context.Background(), "garbage", "opaque")
	require.ErrorIs(t, err, token.ErrMalformedToken)
}

func TestRefreshIssuesFreshToken(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "pro@demo.local", "Pro123!", domain.RoleProfessional)

	issued, err := e.svc.SignInPassword(context.Background(), "pro@demo.local", "Pro123!")
	require.NoError(t, err)

	refreshed, err := e.svc.Refresh(context.Background(), issued.Token)
	require.NoError(t, err)

	claims, err := e.verifier.Verify(context.Background(), refreshed.Token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleProfessional, claims.Role)
	require.Equal(t, service.DefaultScope, claims.Scope)
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	e := newEnv(t)
	user := e.seedUser(t, "pro@demo.local", "Pro123!", domain.RoleProfessional)

	issued, err := e.svc.SignInPassword(context.Background(), "pro@demo.local", "Pro123!")
	require.NoError(t, err)

	delete(e.users.users, user.ID)
	_, err = e.svc.Refresh(context.Background(), issued.Token)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestRefreshRejectsTenantMismatch(t *testing.T) {
	e := newEnv(t)
	user := e.seedUser(t, "pro@demo.local", "Pro123!", domain.RoleProfessional)

	issued, err := e.svc.SignInPassword(context.Background(), "pro@demo.local", "Pro123!")
	require.NoError(t, err)

	moved := e.users.users[user.ID]
	moved.TenantID = uuid.New()
	e.users.users[user.ID] = moved

	_, err = e.svc.Refresh(context.Background(), issued.Token)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestSignUpCreatesUserWithRole(t *testing.T) {
	e := newEnv(t)

	profile, err := e.svc.SignUp(context.Background(), "New@Demo.Local", "Secret123!", "Paciente")
	require.NoError(t, err)
	require.Equal(t, "new@demo.local", profile.Email)
	require.Equal(t, []string{"Paciente"}, profile.Roles)

	issued, err := e.svc.SignInPassword(context.Background(), "new@demo.local", "Secret123!")
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
}

func TestSignUpRejectsDuplicates(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	_, err := e.svc.SignUp(context.Background(), "patient@demo.local", "Other123!", "Paciente")
	require.ErrorIs(t, err, service.ErrUserExists)
}

func TestSignUpRejectsUnknownRole(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.SignUp(context.Background(), "new@demo.local", "Secret123!", "Wizard")
	require.ErrorIs(t, err, service.ErrRoleNotFound)
}

func adminClaims(e *env, admin domain.User) domain.TokenClaims {
	return domain.TokenClaims{
		Subject:  admin.ID,
		TenantID: e.tenantID,
		Role:     domain.RoleAdmin,
		Scope:    service.DefaultScope,
	}
}

func TestAssignRole(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "admin@demo.local", "Admin123!", domain.RoleAdmin)
	patient := e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	profile, err := e.svc.AssignRole(context.Background(), adminClaims(e, admin), patient.ID, "Profesional")
	require.NoError(t, err)
	require.Contains(t, profile.Roles, "Profesional")
	require.Contains(t, profile.Roles, "Paciente")
}

func TestAssignRoleRejectsForeignTenantUser(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "admin@demo.local", "Admin123!", domain.RoleAdmin)

	outsider, err := e.users.Create(context.Background(), domain.User{
		TenantID: uuid.New(),
		Email:    "stranger@other.local",
	})
	require.NoError(t, err)

	_, err = e.svc.AssignRole(context.Background(), adminClaims(e, admin), outsider.ID, "Profesional")
	require.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestEnableMFASelf(t *testing.T) {
	e := newEnv(t)
	patient := e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	actor := domain.TokenClaims{Subject: patient.ID, TenantID: e.tenantID, Role: domain.RolePatient}
	profile, err := e.svc.EnableMFA(context.Background(), actor, uuid.Nil)
	require.NoError(t, err)
	require.True(t, profile.MFAEnabled)

	stored := e.users.users[patient.ID]
	require.True(t, stored.MFAEnabled)
	require.NotEmpty(t, stored.MFASecret)
}

func TestEnableMFAForOtherRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	patient := e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)
	pro := e.seedUser(t, "pro@demo.local", "Pro123!", domain.RoleProfessional)

	actor := domain.TokenClaims{Subject: pro.ID, TenantID: e.tenantID, Role: domain.RoleProfessional}
	_, err := e.svc.EnableMFA(context.Background(), actor, patient.ID)
	require.ErrorIs(t, err, service.ErrNotAllowed)

	admin := e.seedUser(t, "admin@demo.local", "Admin123!", domain.RoleAdmin)
	_, err = e.svc.EnableMFA(context.Background(), adminClaims(e, admin), patient.ID)
	require.NoError(t, err)
}

func TestResetPasswordByAdmin(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "admin@demo.local", "Admin123!", domain.RoleAdmin)
	e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	_, err := e.svc.ResetPassword(context.Background(), adminClaims(e, admin), "patient@demo.local", "Fresh123!")
	require.NoError(t, err)

	_, err = e.svc.SignInPassword(context.Background(), "patient@demo.local", "Patient123!")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = e.svc.SignInPassword(context.Background(), "patient@demo.local", "Fresh123!")
	require.NoError(t, err)
}

func TestResetPasswordRejectsNonAdminForOther(t *testing.T) {
	e := newEnv(t)
	pro := e.seedUser(t, "pro@demo.local", "Pro123!", domain.RoleProfessional)
	e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	actor := domain.TokenClaims{Subject: pro.ID, TenantID: e.tenantID, Role: domain.RoleProfessional}
	_, err := e.svc.ResetPassword(context.Background(), actor, "patient@demo.local", "Fresh123!")
	require.ErrorIs(t, err, service.ErrNotAllowed)
}

func TestResetPasswordUnknownUser(t *testing.T) {
	e := newEnv(t)
	admin := e.seedUser(t, "admin@demo.local", "Admin123!", domain.RoleAdmin)

	_, err := e.svc.ResetPassword(context.Background(), adminClaims(e, admin), "ghost@demo.local", "Fresh123!")
	require.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	patient := e.seedUser(t, "patient@demo.local", "Patient123!", domain.RolePatient)

	actor := domain.TokenClaims{Subject: patient.ID, TenantID: e.tenantID, Role: domain.RolePatient, Scope: service.DefaultScope}
	profile, err := e.svc.Me(context.Background(), actor)
	require.NoError(t, err)
	require.Equal(t, "patient@demo.local", profile.User.Email)
	require.Equal(t, service.DefaultScope, profile.Scopes)
}
