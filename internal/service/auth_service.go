// Package service implements the authentication flows: password and
// external-token signin, refresh, and the administrative identity
// mutations.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/audit"
	"github.com/admaesmo/aiddiag/internal/config"
	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/password"
	"github.com/admaesmo/aiddiag/internal/repository"
	"github.com/admaesmo/aiddiag/internal/tenant"
	"github.com/admaesmo/aiddiag/internal/token"
)

// DefaultScope is granted to every locally issued token.
var DefaultScope = []string{"api.read", "api.write"}

// AuthService orchestrates signin, refresh, and identity administration.
type AuthService struct {
	tenants  *tenant.Resolver
	users    repository.UserRepository
	roles    repository.RoleRepository
	hasher   *password.Hasher
	issuer   *token.Issuer
	verifier *token.Verifier
	audit    *audit.Recorder
	cfg      config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(tenants *tenant.Resolver, users repository.UserRepository, roles repository.RoleRepository, hasher *password.Hasher, issuer *token.Issuer, verifier *token.Verifier, recorder *audit.Recorder, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		tenants:  tenants,
		users:    users,
		roles:    roles,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		audit:    recorder,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/admaesmo/aiddiag/internal/service"),
	}
}

// SignInPassword authenticates an email/password pair against the default
// tenant. Unknown email and wrong password produce the same error.
func (s *AuthService) SignInPassword(ctx context.Context, email, plaintext string) (domain.IssuedToken, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignInPassword")
	defer span.End()

	ten, err := s.tenants.Resolve(ctx, s.cfg.DefaultTenantName)
	if err != nil {
		span.RecordError(err)
		return domain.IssuedToken{}, err
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, ten.ID, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.IssuedToken{}, ErrInvalidCredentials
		}
		span.RecordError(err)
		return domain.IssuedToken{}, err
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		span.RecordError(err)
		s.log().Error("password verification misconfigured", zap.String("user_id", user.ID.String()), zap.Error(err))
		return domain.IssuedToken{}, err
	}
	if !ok {
		return domain.IssuedToken{}, ErrInvalidCredentials
	}

	issued, err := s.issuer.Issue(user.ID, user.TenantID, user.PrimaryRole(), DefaultScope)
	if err != nil {
		span.RecordError(err)
		return domain.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit.Record(ctx, user.TenantID, user.ID, "auth.signin.password", "user", user.ID.String(), nil)
	return issued, nil
}

// SignInExternal validates an externally issued id token and passes the
// caller's access token through unmodified with the id token's expiry. It
// consults neither the credential store nor the identity repository.
func (s *AuthService) SignInExternal(ctx context.Context, idToken, accessToken string) (domain.IssuedToken, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignInExternal")
	defer span.End()

	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		span.RecordError(err)
		return domain.IssuedToken{}, err
	}

	s.audit.Record(ctx, claims.TenantID, claims.Subject, "auth.signin.external", "user", claims.Subject.String(), nil)
	return domain.IssuedToken{
		Token:     accessToken,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Refresh verifies a refresh token through the shared verification path,
// confirms the subject still exists in the same tenant, and issues a fresh
// token carrying the same role.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.IssuedToken, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.verifier.Verify(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		return domain.IssuedToken{}, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.IssuedToken{}, ErrInvalidRefreshToken
		}
		span.RecordError(err)
		return domain.IssuedToken{}, err
	}
	if user.TenantID != claims.TenantID {
		return domain.IssuedToken{}, ErrInvalidRefreshToken
	}

	issued, err := s.issuer.Issue(user.ID, user.TenantID, claims.Role, claims.Scope)
	if err != nil {
		span.RecordError(err)
		return domain.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit.Record(ctx, user.TenantID, user.ID, "auth.refresh", "user", user.ID.String(), nil)
	return issued, nil
}

// SignUp registers a user in the default tenant with a hashed password and
// the requested role.
func (s *AuthService) SignUp(ctx context.Context, email, plaintext, roleName string) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignUp")
	defer span.End()

	parsed, err := domain.ParseRoleName(roleName)
	if err != nil {
		return UserProfile{}, ErrRoleNotFound
	}
	role, err := s.roles.GetByName(ctx, parsed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UserProfile{}, ErrRoleNotFound
		}
		span.RecordError(err)
		return UserProfile{}, err
	}

	ten, err := s.tenants.Resolve(ctx, s.cfg.DefaultTenantName)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.GetByEmail(ctx, ten.ID, normalized); err == nil {
		return UserProfile{}, ErrUserExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		return UserProfile{}, err
	}

	hashed, err := s.hasher.Hash(plaintext)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           uuid.New(),
		TenantID:     ten.ID,
		Email:        normalized,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return UserProfile{}, ErrUserExists
		}
		span.RecordError(err)
		return UserProfile{}, err
	}
	if err := s.users.AddRole(ctx, user.ID, role.ID); err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}
	user.Roles = append(user.Roles, role)

	s.audit.Record(ctx, user.TenantID, user.ID, "auth.signup", "user", user.ID.String(), map[string]any{"role": string(role.Name)})
	return NewUserProfile(user), nil
}

// AssignRole grants an existing role to a user in the caller's tenant.
// Admin gating happens at the authorization middleware; the tenant match is
// re-checked here.
func (s *AuthService) AssignRole(ctx context.Context, actor domain.TokenClaims, userID uuid.UUID, roleName string) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.AssignRole")
	defer span.End()

	parsed, err := domain.ParseRoleName(roleName)
	if err != nil {
		return UserProfile{}, ErrRoleNotFound
	}
	role, err := s.roles.GetByName(ctx, parsed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UserProfile{}, ErrRoleNotFound
		}
		span.RecordError(err)
		return UserProfile{}, err
	}

	user, err := s.loadTenantUser(ctx, actor.TenantID, userID)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	if err := s.users.AddRole(ctx, user.ID, role.ID); err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	user, err = s.users.GetByID(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	s.audit.Record(ctx, actor.TenantID, actor.Subject, "auth.role.assign", "user", user.ID.String(), map[string]any{"role": string(role.Name)})
	return NewUserProfile(user), nil
}

// EnableMFA stores a generated MFA secret for the target user. The caller
// must be the target or an admin.
func (s *AuthService) EnableMFA(ctx context.Context, actor domain.TokenClaims, targetID uuid.UUID) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.EnableMFA")
	defer span.End()

	if targetID == uuid.Nil {
		targetID = actor.Subject
	}
	if targetID != actor.Subject && actor.Role != domain.RoleAdmin {
		return UserProfile{}, ErrNotAllowed
	}

	user, err := s.loadTenantUser(ctx, actor.TenantID, targetID)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	secret, err := randomHex(16)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, fmt.Errorf("generate mfa secret: %w", err)
	}
	if err := s.users.UpdateMFA(ctx, user.ID, true, secret); err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}
	user.MFAEnabled = true
	user.MFASecret = secret

	s.audit.Record(ctx, actor.TenantID, actor.Subject, "auth.mfa.enable", "user", user.ID.String(), nil)
	return NewUserProfile(user), nil
}

// ResetPassword replaces the stored password hash for the addressed user.
// The caller must be the target or an admin.
func (s *AuthService) ResetPassword(ctx context.Context, actor domain.TokenClaims, email, newPassword string) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ResetPassword")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, actor.TenantID, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UserProfile{}, ErrUserNotFound
		}
		span.RecordError(err)
		return UserProfile{}, err
	}
	if user.ID != actor.Subject && actor.Role != domain.RoleAdmin {
		return UserProfile{}, ErrNotAllowed
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		span.RecordError(err)
		return UserProfile{}, err
	}

	s.audit.Record(ctx, actor.TenantID, actor.Subject, "auth.password.reset", "user", user.ID.String(), nil)
	return NewUserProfile(user), nil
}

// Me returns the caller's profile with its granted scopes.
func (s *AuthService) Me(ctx context.Context, actor domain.TokenClaims) (Profile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.loadTenantUser(ctx, actor.TenantID, actor.Subject)
	if err != nil {
		span.RecordError(err)
		return Profile{}, err
	}
	return Profile{User: NewUserProfile(user), Scopes: actor.Scope}, nil
}

func (s *AuthService) loadTenantUser(ctx context.Context, tenantID, userID uuid.UUID) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if user.TenantID != tenantID {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
