package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"authcore.dev/internal/ids"
)

const (
	defaultVerificationTTL = 24 * time.Hour
	defaultResetTTL        = time.Hour
)

// Notifier dispatches account emails. Calls are fire-and-forget from the
// orchestrator's perspective: a failed send is logged and never fails the
// underlying state transition.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, token, displayName string) error
	SendPasswordResetEmail(ctx context.Context, to, token, displayName string) error
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) SendVerificationEmail(context.Context, string, string, string) error {
	return nil
}
func (NopNotifier) SendPasswordResetEmail(context.Context, string, string, string) error {
	return nil
}

// Service composes the resolver, token service and stores for the login,
// refresh and logout flows plus the account and session state transitions
// around them.
type Service struct {
	store    Store
	resolver *TenantResolver
	tokens   *TokenService
	notifier Notifier
	events   Publisher
	log      zerolog.Logger

	now             func() time.Time
	bcryptCost      int
	verificationTTL time.Duration
	resetTTL        time.Duration
	ability         AbilityConfig
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNotifier sets the email collaborator.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPublisher sets the domain event sink.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithServiceClock overrides the time source. Useful for tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithVerificationTTL sets the email-verification token lifetime.
func WithVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.verificationTTL = ttl
		}
	}
}

// WithResetTTL sets the password-reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithAbilityConfig names the elevated roles.
func WithAbilityConfig(cfg AbilityConfig) ServiceOption {
	return func(s *Service) { s.ability = cfg }
}

// NewService constructs the orchestrator.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) *Service {
	svc := &Service{
		store:           store,
		resolver:        NewTenantResolver(store),
		tokens:          tokens,
		notifier:        NopNotifier{},
		events:          NopPublisher{},
		log:             zerolog.Nop(),
		now:             time.Now,
		bcryptCost:      10,
		verificationTTL: defaultVerificationTTL,
		resetTTL:        defaultResetTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Tokens exposes the token service for session management surfaces.
func (s *Service) Tokens() *TokenService { return s.tokens }

// VerifyAccessToken validates an access token and returns its claims.
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.tokens.VerifyAccessToken(token)
}

// AuthResult is the outcome of a successful login or refresh. Tenant is nil
// for a verified user awaiting tenant assignment.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *User
	Tenant           *Tenant
	Roles            []string
	Permissions      []ResourcePermissions
}

// Login authenticates the email/password pair within the resolved tenant
// context and issues a token pair. Every failure mode (unknown user,
// inactive user or tenant, wrong password) is reported to the caller as
// the same generic condition by the transport layer.
func (s *Service) Login(ctx context.Context, email, password string, sel TenantSelector, meta ClientMeta) (*AuthResult, error) {
	res, err := s.resolver.Resolve(ctx, email, sel)
	if err != nil {
		s.publish(Event{Type: EventLoginFailed, Fields: map[string]string{"reason": "resolution"}})
		return nil, err
	}
	user := res.User
	if !user.IsActive {
		s.publish(Event{Type: EventLoginFailed, UserID: user.ID, Fields: map[string]string{"reason": "inactive"}})
		return nil, ErrInactiveAccount
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.publish(Event{Type: EventLoginFailed, UserID: user.ID, Fields: map[string]string{"reason": "password"}})
		return nil, ErrInvalidCredential
	}

	if err := s.store.Users().SetLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, err
	}

	refreshToken, session, err := s.tokens.IssueRefreshToken(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	result, err := s.composeAuthResult(ctx, user, res.Tenant, refreshToken, session)
	if err != nil {
		return nil, err
	}

	evt := Event{Type: EventLoginSucceeded, UserID: user.ID, SessionID: session.ID,
		Fields: map[string]string{"strategy": string(res.Strategy)}}
	if res.Tenant != nil {
		evt.TenantID = res.Tenant.ID
	}
	s.publish(evt)
	return result, nil
}

// Refresh rotates the presented refresh token and issues a new access token
// bound to the replacement. Capabilities are recomputed from the current
// role state, so a permission revoked since the last login takes effect on
// the next refresh rather than the next full login.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	newToken, session, err := s.tokens.VerifyAndRotate(ctx, refreshToken, meta)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Users().Find(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}

	res, err := s.resolver.Resolve(ctx, user.Email, TenantSelector{})
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrInactiveAccount) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	result, err := s.composeAuthResult(ctx, user, res.Tenant, newToken, session)
	if err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventTokenRotated, UserID: user.ID, SessionID: session.ID})
	return result, nil
}

// Logout revokes the presented refresh token. Unknown and already-revoked
// tokens succeed silently; the endpoint never reveals whether a token ever
// existed.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if id, _, err := splitRefreshToken(refreshToken); err == nil {
		s.publish(Event{Type: EventSessionRevoked, SessionID: id})
	}
	return nil
}

func (s *Service) composeAuthResult(ctx context.Context, user *User, tenant *Tenant, refreshToken string, session *Session) (*AuthResult, error) {
	roles, err := s.store.Roles().RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	caps, err := s.capabilitiesForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	names := RoleNames(roles)

	access, accessExp, err := s.tokens.IssueAccessToken(user, tenant, caps, names)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.ExpiresAt,
		User:             user,
		Tenant:           tenant,
		Roles:            names,
		Permissions:      caps,
	}, nil
}

func (s *Service) capabilitiesForRoles(ctx context.Context, roles []Role) ([]ResourcePermissions, error) {
	var perms []Permission
	for _, role := range roles {
		list, err := s.store.Permissions().PermissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		perms = append(perms, list...)
	}
	return Aggregate(perms), nil
}

// CapabilitiesForUser computes the current aggregated capability set for a
// user from the live role state.
func (s *Service) CapabilitiesForUser(ctx context.Context, userID string) ([]ResourcePermissions, error) {
	roles, err := s.store.Roles().RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.capabilitiesForRoles(ctx, roles)
}

// AbilityFromClaims builds the request-time ability evaluator from verified
// access-token claims.
func (s *Service) AbilityFromClaims(c *Claims) *Ability {
	if c == nil {
		return NewAbility(nil, nil, nil, s.ability)
	}
	return NewAbility(c.Roles, c.Permissions, c.TenantID, s.ability)
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an unverified user without a tenant and dispatches the
// verification email. A tenant is assigned later by an administrator. Email
// dispatch failure does not fail the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if existing, err := s.store.Users().FindByEmailAcrossTenants(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	expires := now.Add(s.verificationTTL)
	if err := s.store.Users().SetVerificationToken(ctx, user.ID, token, expires); err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerificationEmail(ctx, user.Email, token, displayName(user)); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("verification email dispatch failed")
	}
	s.publish(Event{Type: EventUserRegistered, UserID: user.ID})
	return user, nil
}

// VerifyEmail consumes a verification token. Verifying an already-verified
// account is an idempotent no-op; an unknown or expired token fails.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.store.Users().FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if user.VerificationExpires != nil && s.now().After(*user.VerificationExpires) {
		return ErrInvalidToken
	}
	if user.EmailVerified {
		return nil
	}
	if err := s.store.Users().MarkEmailVerified(ctx, user.ID); err != nil {
		return err
	}
	s.publish(Event{Type: EventEmailVerified, UserID: user.ID})
	return nil
}

// ForgotPassword issues a reset token and dispatches the reset email. It
// always succeeds from the caller's perspective to prevent email
// enumeration.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.Users().FindByEmailAcrossTenants(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug().Str("email", email).Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token := uuid.NewString()
	expires := s.now().UTC().Add(s.resetTTL)
	if err := s.store.Users().SetResetToken(ctx, user.ID, token, expires); err != nil {
		return err
	}
	if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, token, displayName(user)); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("reset email dispatch failed")
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. The token
// is single-use: successful consumption clears it so replay fails.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user, err := s.store.Users().FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if user.ResetExpires == nil || s.now().After(*user.ResetExpires) {
		return ErrInvalidToken
	}

	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.store.Users().ClearResetToken(ctx, user.ID); err != nil {
		return err
	}
	s.publish(Event{Type: EventPasswordReset, UserID: user.ID})
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.Users().FindByEmailAcrossTenants(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", ErrInvalidInput)
	}

	token := uuid.NewString()
	expires := s.now().UTC().Add(s.verificationTTL)
	if err := s.store.Users().SetVerificationToken(ctx, user.ID, token, expires); err != nil {
		return err
	}
	if err := s.notifier.SendVerificationEmail(ctx, user.Email, token, displayName(user)); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// TenantMembership pairs a tenant with the caller's membership flags, for
// the tenant-switcher read path.
type TenantMembership struct {
	Tenant    Tenant `json:"tenant"`
	IsPrimary bool   `json:"is_primary"`
	IsActive  bool   `json:"is_active"`
}

// TenantsForEmail lists the tenants a user belongs to.
func (s *Service) TenantsForEmail(ctx context.Context, email string) ([]TenantMembership, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	memberships, err := s.store.Memberships().ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var out []TenantMembership
	for _, m := range memberships {
		tenant, err := s.store.Tenants().Find(ctx, m.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, TenantMembership{Tenant: *tenant, IsPrimary: m.IsPrimary, IsActive: m.IsActive})
	}
	return out, nil
}

// AssignTenant links the user to the tenant. With isPrimary the previous
// primary is cleared within the same atomic unit, preserving the at-most-one
// invariant.
func (s *Service) AssignTenant(ctx context.Context, userID, tenantID string, isPrimary bool) (*Membership, error) {
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.Tenants().Find(ctx, tenantID); err != nil {
		return nil, err
	}
	m := &Membership{
		ID:        ids.New(),
		UserID:    userID,
		TenantID:  tenantID,
		IsPrimary: isPrimary,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Memberships().Create(ctx, m); err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventMembershipChanged, UserID: userID, TenantID: tenantID,
		Fields: map[string]string{"op": "assign"}})
	return m, nil
}

// UnassignTenant removes the membership.
func (s *Service) UnassignTenant(ctx context.Context, userID, tenantID string) error {
	if err := s.store.Memberships().Delete(ctx, userID, tenantID); err != nil {
		return err
	}
	s.publish(Event{Type: EventMembershipChanged, UserID: userID, TenantID: tenantID,
		Fields: map[string]string{"op": "unassign"}})
	return nil
}

// SetPrimaryTenant atomically moves the primary flag to the given tenant's
// membership.
func (s *Service) SetPrimaryTenant(ctx context.Context, userID, tenantID string) error {
	if err := s.store.Memberships().SetPrimary(ctx, userID, tenantID); err != nil {
		return err
	}
	s.publish(Event{Type: EventMembershipChanged, UserID: userID, TenantID: tenantID,
		Fields: map[string]string{"op": "set_primary"}})
	return nil
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.store.Sessions().ListByUser(ctx, userID)
}

// RevokeSession revokes one session owned by the user. Revoking an
// already-revoked session reports a conflict.
func (s *Service) RevokeSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.store.Sessions().Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrNotFound
	}
	if session.Revoked {
		return fmt.Errorf("%w: session already revoked", ErrConflict)
	}
	if err := s.store.Sessions().Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.publish(Event{Type: EventSessionRevoked, UserID: userID, SessionID: sessionID})
	return nil
}

// RevokeAllSessions revokes every active session for the user except the
// optionally excluded one.
func (s *Service) RevokeAllSessions(ctx context.Context, userID, exceptID string) (int64, error) {
	count, err := s.tokens.RevokeAll(ctx, userID, exceptID)
	if err != nil {
		return 0, err
	}
	s.publish(Event{Type: EventSessionRevoked, UserID: userID,
		Fields: map[string]string{"scope": "all", "count": fmt.Sprintf("%d", count)}})
	return count, nil
}

// DeleteSession hard-deletes one session owned by the user.
func (s *Service) DeleteSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.store.Sessions().Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrNotFound
	}
	return s.store.Sessions().Delete(ctx, sessionID)
}

// DeleteAllSessions hard-deletes the user's session rows, optionally only
// the revoked or expired ones. History cleanup is independent of
// revocation.
func (s *Service) DeleteAllSessions(ctx context.Context, userID string, onlyInactive bool) (int64, error) {
	return s.tokens.DeleteAll(ctx, userID, onlyInactive)
}

// GetUser returns one user by id. Soft-deleted users are not found.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users().Find(ctx, userID)
}

// DeleteUser soft-deletes the user and revokes every session, so issued
// refresh tokens die with the account. Access tokens already in flight run
// to expiry.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.Users().SoftDelete(ctx, userID); err != nil {
		return err
	}
	count, err := s.tokens.RevokeAll(ctx, userID, "")
	if err != nil {
		return err
	}
	s.publish(Event{Type: EventSessionRevoked, UserID: userID,
		Fields: map[string]string{"scope": "all", "count": fmt.Sprintf("%d", count), "reason": "user_deleted"}})
	return nil
}

// CreateTenant registers a new tenant with a unique slug.
func (s *Service) CreateTenant(ctx context.Context, name, slug string, settings map[string]any) (*Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(strings.ToLower(slug))
	if name == "" || slug == "" {
		return nil, fmt.Errorf("%w: tenant name and slug are required", ErrInvalidInput)
	}
	now := s.now().UTC()
	tenant := &Tenant{
		ID:        ids.New(),
		Name:      name,
		Slug:      slug,
		IsActive:  true,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Tenants().Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// ListTenants returns all tenants, active or not.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.store.Tenants().List(ctx)
}

// GetTenant returns one tenant by id.
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.store.Tenants().Find(ctx, tenantID)
}

// SetTenantActive activates or deactivates a tenant. Deactivation locks out
// every member at their next login or refresh; already-issued access tokens
// run to expiry.
func (s *Service) SetTenantActive(ctx context.Context, tenantID string, active bool) error {
	return s.store.Tenants().SetActive(ctx, tenantID, active)
}

// TenantMembers lists the tenant's memberships, suspended ones included.
func (s *Service) TenantMembers(ctx context.Context, tenantID string) ([]Membership, error) {
	if _, err := s.store.Tenants().Find(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.Memberships().ListByTenant(ctx, tenantID)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().List(ctx)
}

// CreatePermission registers a capability in the catalog. Resource and
// action accept the wildcard "*".
func (s *Service) CreatePermission(ctx context.Context, resource, action string, tenantID *string, condition map[string]any) (*Permission, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return nil, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	p := &Permission{
		ID:        ids.New(),
		Resource:  resource,
		Action:    action,
		TenantID:  tenantID,
		Condition: condition,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Permissions().Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsurePermissions inserts the catalog entries that are missing, keyed by
// (resource, action, tenant). Existing rows are left untouched, so the call
// is safe to repeat at every startup.
func (s *Service) EnsurePermissions(ctx context.Context, perms []Permission) error {
	now := s.now().UTC()
	prepared := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p.Resource = strings.TrimSpace(p.Resource)
		p.Action = strings.TrimSpace(p.Action)
		if p.Resource == "" || p.Action == "" {
			return fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		prepared = append(prepared, p)
	}
	return s.store.Permissions().Ensure(ctx, prepared)
}

// BaselinePermissions is the catalog the administrative endpoints check
// against. Ensured at startup so a fresh database can authorize its first
// administrator.
func BaselinePermissions() []Permission {
	resources := []string{"users", "tenants", "roles", "permissions", "sessions"}
	actions := []string{"read", "create", "manage", "delete"}
	perms := make([]Permission, 0, len(resources)*len(actions))
	for _, resource := range resources {
		for _, action := range actions {
			perms = append(perms, Permission{Resource: resource, Action: action})
		}
	}
	return perms
}

// CreateRole registers a role, optionally tenant-scoped. Role names are
// unique within their tenant.
func (s *Service) CreateRole(ctx context.Context, tenantID *string, name, description string, isSystem bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	role := &Role{
		ID:          ids.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsSystem:    isSystem,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns the roles visible in a tenant, global roles included.
// An empty tenant id lists only the global roles.
func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return s.store.Roles().ListByTenant(ctx, strings.TrimSpace(tenantID))
}

// DeleteRole removes a role. System roles cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system roles cannot be deleted", ErrConflict)
	}
	return s.store.Roles().Delete(ctx, roleID)
}

// SetRolePermissions replaces the role's permission set.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(permissionIDs))
	deduped := make([]string, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return s.store.Permissions().SetForRole(ctx, roleID, deduped)
}

// AssignRole grants the role to the user. Assigning an already-held role is
// a no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.store.Roles().Find(ctx, roleID); err != nil {
		return err
	}
	return s.store.Roles().Assign(ctx, userID, roleID)
}

// UnassignRole removes the role from the user.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	return s.store.Roles().Unassign(ctx, userID, roleID)
}

func (s *Service) publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = s.now().UTC()
	}
	s.events.Publish(evt)
}

func displayName(u *User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}
