package httpapi

import (
	"context"

	"authcore.dev/internal/identity"
)

// Service is the identity surface the HTTP layer depends on. Implemented by
// *identity.Service; tests substitute stubs.
type Service interface {
	Login(ctx context.Context, email, password string, sel identity.TenantSelector, meta identity.ClientMeta) (*identity.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta identity.ClientMeta) (*identity.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Register(ctx context.Context, in identity.RegisterInput) (*identity.User, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	TenantsForEmail(ctx context.Context, email string) ([]identity.TenantMembership, error)

	VerifyAccessToken(token string) (*identity.Claims, error)
	AbilityFromClaims(c *identity.Claims) *identity.Ability

	Sessions(ctx context.Context, userID string) ([]identity.Session, error)
	RevokeSession(ctx context.Context, sessionID, userID string) error
	RevokeAllSessions(ctx context.Context, userID, exceptID string) (int64, error)
	DeleteSession(ctx context.Context, sessionID, userID string) error
	DeleteAllSessions(ctx context.Context, userID string, onlyInactive bool) (int64, error)

	ListTenants(ctx context.Context) ([]identity.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*identity.Tenant, error)
	CreateTenant(ctx context.Context, name, slug string, settings map[string]any) (*identity.Tenant, error)
	SetTenantActive(ctx context.Context, tenantID string, active bool) error
	TenantMembers(ctx context.Context, tenantID string) ([]identity.Membership, error)
	GetUser(ctx context.Context, userID string) (*identity.User, error)
	DeleteUser(ctx context.Context, userID string) error
	CapabilitiesForUser(ctx context.Context, userID string) ([]identity.ResourcePermissions, error)
	CreateRole(ctx context.Context, tenantID *string, name, description string, isSystem bool) (*identity.Role, error)
	ListRoles(ctx context.Context, tenantID string) ([]identity.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
	ListPermissions(ctx context.Context) ([]identity.Permission, error)
	CreatePermission(ctx context.Context, resource, action string, tenantID *string, condition map[string]any) (*identity.Permission, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
	AssignTenant(ctx context.Context, userID, tenantID string, isPrimary bool) (*identity.Membership, error)
	UnassignTenant(ctx context.Context, userID, tenantID string) error
	SetPrimaryTenant(ctx context.Context, userID, tenantID string) error
}

var _ Service = (*identity.Service)(nil)
