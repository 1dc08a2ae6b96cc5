package identity

import (
	"context"
	"time"
)

// Store describes persistence operations required by the identity core. The
// relational implementation lives in internal/store/pg; tests use in-memory
// stubs.
type Store interface {
	Users() UserStore
	Tenants() TenantStore
	Memberships() MembershipStore
	Roles() RoleStore
	Permissions() PermissionStore
	Sessions() SessionStore
}

// UserStore manages principals.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail locates a user by the legacy (email, tenant) pair.
	FindByEmail(ctx context.Context, email, tenantID string) (*User, error)
	// FindByEmailAcrossTenants locates a user by email regardless of tenant.
	FindByEmailAcrossTenants(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	FindByResetToken(ctx context.Context, token string) (*User, error)

	SetVerificationToken(ctx context.Context, userID, token string, expires time.Time) error
	// MarkEmailVerified flips the verified flag and clears the
	// verification token so it cannot be replayed.
	MarkEmailVerified(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, userID, token string, expires time.Time) error
	ClearResetToken(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
	SetActive(ctx context.Context, userID string, active bool) error
	SoftDelete(ctx context.Context, userID string) error
}

// TenantStore manages tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// MembershipStore manages user↔tenant links.
type MembershipStore interface {
	// Create fails with ErrConflict when the (user, tenant) pair already
	// exists. When m.IsPrimary is set, other primaries for the user are
	// cleared in the same atomic unit.
	Create(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, userID, tenantID string) error
	// ListByUser returns active memberships ordered primary first, then
	// by creation time.
	ListByUser(ctx context.Context, userID string) ([]Membership, error)
	ListByEmail(ctx context.Context, email string) ([]Membership, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Membership, error)
	// SetPrimary clears all primaries for the user and marks the given
	// tenant's membership primary, atomically.
	SetPrimary(ctx context.Context, userID, tenantID string) error
}

// RoleStore manages roles and user↔role assignments.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Role, error)
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	// RolesForUser returns the union of roles assigned to the user,
	// independent of tenant membership.
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// PermissionStore manages the permission catalog and role attachments.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	// SetForRole replaces the role's permission set in one transaction.
	SetForRole(ctx context.Context, roleID string, permissionIDs []string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
}

// SessionStore manages refresh-token rows.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Rotate atomically marks the old session revoked and inserts its
	// replacement. The revocation is a compare-and-swap on the revoked
	// flag: when another rotation already won, Rotate returns
	// ErrInvalidToken and inserts nothing.
	Rotate(ctx context.Context, oldID string, replacement *Session) error
	// Revoke is idempotent; revoking an unknown or already-revoked
	// session is a no-op.
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID, exceptID string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string, onlyInactive bool) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
}
