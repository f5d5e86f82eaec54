package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can authenticate within a tenant.
// (tenant_id, email) is unique.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string
	MFAEnabled   bool
	MFASecret    string
	Status       string
	Roles        []Role
	CreatedAt    time.Time
}

// PrimaryRole returns the user's first assigned role name, falling back to
// the patient role for accounts with no assignment.
func (u User) PrimaryRole() RoleName {
	if len(u.Roles) > 0 {
		return u.Roles[0].Name
	}
	return RolePatient
}
