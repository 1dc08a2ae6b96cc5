package identity

import "errors"

var (
	// ErrInvalidCredential covers every bad email/password/tenant
	// combination. Deliberately generic so callers cannot distinguish
	// which part was wrong.
	ErrInvalidCredential = errors.New("identity: invalid credentials")

	// ErrInactiveAccount marks a deactivated user or tenant. The HTTP
	// layer collapses it into the generic unauthorized response.
	ErrInactiveAccount = errors.New("identity: account is not active")

	// ErrInvalidToken covers refresh, verification and reset tokens that
	// are unknown, revoked or expired. The distinction is logged, never
	// surfaced.
	ErrInvalidToken = errors.New("identity: invalid token")

	// ErrConflict marks unique-constraint violations: duplicate email in
	// tenant, duplicate role name, duplicate assignment.
	ErrConflict = errors.New("identity: resource conflict")

	// ErrNotFound marks a referenced id that does not exist.
	ErrNotFound = errors.New("identity: not found")

	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("identity: invalid input")
)
