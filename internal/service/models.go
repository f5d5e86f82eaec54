package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/admaesmo/aiddiag/internal/domain"
)

// UserProfile is the outward representation of a user account.
type UserProfile struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Email      string    `json:"email"`
	MFAEnabled bool      `json:"mfa_enabled"`
	Status     string    `json:"status"`
	Roles      []string  `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUserProfile maps a domain user to its outward shape.
func NewUserProfile(u domain.User) UserProfile {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role.Name))
	}
	return UserProfile{
		ID:         u.ID,
		TenantID:   u.TenantID,
		Email:      u.Email,
		MFAEnabled: u.MFAEnabled,
		Status:     u.Status,
		Roles:      roles,
		CreatedAt:  u.CreatedAt,
	}
}

// Profile bundles a user profile with the caller's granted scopes.
type Profile struct {
	User   UserProfile `json:"user"`
	Scopes []string    `json:"scopes"`
}
