package domain

import "errors"

var (
	// ErrNotFound signals a missing tenant, user, or role record.
	ErrNotFound = errors.New("identity: record not found")
	// ErrAlreadyExists signals a (tenant_id, email) uniqueness violation.
	ErrAlreadyExists = errors.New("identity: record already exists")
	// ErrRepositoryUnavailable signals the identity store is unreachable.
	// Callers must never report it as an invalid-credential outcome.
	ErrRepositoryUnavailable = errors.New("identity: repository unavailable")
)
