package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/admaesmo/aiddiag/internal/http/middleware"
	"github.com/admaesmo/aiddiag/internal/jwks"
	"github.com/admaesmo/aiddiag/internal/service"
	"github.com/admaesmo/aiddiag/internal/token"
)

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	Keys   *jwks.Resolver
	Logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, keys *jwks.Resolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Keys: keys, Logger: logger}
}

// Health reports service liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// JWKS exposes the public verification keys.
func (h *AuthHandler) JWKS(c *gin.Context) {
	set, err := h.Keys.KeySet(c.Request.Context())
	if err != nil {
		h.log().Error("jwks unavailable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Key set unavailable."})
		return
	}
	c.JSON(http.StatusOK, set)
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// SignUp registers a new user in the default tenant.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and a password of at least 8 characters are required.")
		return
	}

	profile, err := h.Auth.SignUp(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

type signInRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
}

func (r signInRequest) passwordMode() bool {
	return r.Email != "" || r.Password != ""
}

func (r signInRequest) externalMode() bool {
	return r.IDToken != "" || r.AccessToken != ""
}

// SignIn exchanges credentials for a bearer token. The request carries
// either a password pair or an external token pair, never both.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid signin request body.")
		return
	}

	switch {
	case req.passwordMode() && req.externalMode():
		badRequest(c, "Provide either email/password or id_token/access_token, not both.")
		return
	case req.passwordMode():
		if req.Email == "" || req.Password == "" {
			badRequest(c, "Both email and password are required.")
			return
		}
		issued, err := h.Auth.SignInPassword(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, issued)
	case req.externalMode():
		if req.IDToken == "" || req.AccessToken == "" {
			badRequest(c, "Both id_token and access_token are required.")
			return
		}
		issued, err := h.Auth.SignInExternal(c.Request.Context(), req.IDToken, req.AccessToken)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, issued)
	default:
		badRequest(c, "Signin credentials are required.")
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a fresh bearer token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required.")
		return
	}

	issued, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

type assignRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AssignRole grants a role to a user within the caller's tenant.
func (h *AuthHandler) AssignRole(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id and role are required.")
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		badRequest(c, "user_id must be a UUID.")
		return
	}

	profile, err := h.Auth.AssignRole(c.Request.Context(), claims, userID, req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type enableMFARequest struct {
	UserID string `json:"user_id"`
}

// EnableMFA provisions an MFA secret for the caller or, for admins, a
// named user.
func (h *AuthHandler) EnableMFA(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		unauthorized(c)
		return
	}

	// Body is optional; without one the caller enrolls themselves.
	var req enableMFARequest
	_ = c.ShouldBindJSON(&req)
	targetID := uuid.Nil
	if trimmed := strings.TrimSpace(req.UserID); trimmed != "" {
		parsed, err := uuid.Parse(trimmed)
		if err != nil {
			badRequest(c, "user_id must be a UUID.")
			return
		}
		targetID = parsed
	}

	profile, err := h.Auth.EnableMFA(c.Request.Context(), claims, targetID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ResetPassword replaces the addressed user's password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and a new_password of at least 8 characters are required.")
		return
	}

	profile, err := h.Auth.ResetPassword(c.Request.Context(), claims, req.Email, req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Me returns the authenticated user's profile and token scopes.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		unauthorized(c)
		return
	}

	profile, err := h.Auth.Me(c.Request.Context(), claims)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, token.ErrMalformedToken),
		errors.Is(err, token.ErrMissingKeyID),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrInvalidIssuer),
		errors.Is(err, token.ErrInvalidAudience),
		errors.Is(err, token.ErrInvalidClaims),
		errors.Is(err, jwks.ErrUnknownKey),
		errors.Is(err, jwks.ErrUnsupportedAlgorithm):
		h.log().Warn("authentication rejected", zap.Error(err))
		unauthorized(c)
	case errors.Is(err, service.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Operation not allowed."})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "User not found."})
	case errors.Is(err, service.ErrRoleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Role not found."})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "error_description": "User already exists."})
	default:
		h.log().Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal error."})
	}
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": description})
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Invalid or expired credentials."})
}
