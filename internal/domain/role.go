package domain

import "fmt"

// RoleName is the closed set of role identifiers carried in tokens.
type RoleName string

const (
	RoleAdmin        RoleName = "Admin"
	RoleProfessional RoleName = "Profesional"
	RolePatient      RoleName = "Paciente"
)

// ParseRoleName validates a raw role string against the known set.
func ParseRoleName(raw string) (RoleName, error) {
	switch RoleName(raw) {
	case RoleAdmin, RoleProfessional, RolePatient:
		return RoleName(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Role is a persisted RBAC role record.
type Role struct {
	ID          int64
	Name        RoleName
	Description string
}
