package service

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not be able to tell which.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidRefreshToken signals the refresh subject no longer exists
	// or belongs to a different tenant.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	// ErrUserExists signals a (tenant, email) collision on signup.
	ErrUserExists = errors.New("auth: user already exists")
	// ErrUserNotFound signals a missing target user in an admin operation.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrRoleNotFound signals an unknown role name.
	ErrRoleNotFound = errors.New("auth: role not found")
	// ErrNotAllowed signals the caller is neither admin nor the target.
	ErrNotAllowed = errors.New("auth: operation not allowed")
)
