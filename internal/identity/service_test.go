package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(evt Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type serviceFixture struct {
	store  *memStore
	svc    *Service
	events *capturePublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := newMemStore()
	tokens, err := NewTokenService(store.Sessions(), "test-secret", "authcore-test")
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	events := &capturePublisher{}
	svc := NewService(store, tokens,
		WithPublisher(events),
		WithBcryptCost(4),
	)
	return &serviceFixture{store: store, svc: svc, events: events}
}

func (f *serviceFixture) seedLoginUser(t *testing.T, email, password string) *User {
	t.Helper()
	hash, err := HashPassword(password, 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{
		ID: "u-" + email, Email: email, PasswordHash: hash,
		IsActive: true, EmailVerified: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *serviceFixture) seedRBAC(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	role := &Role{ID: "r1", Name: "editor", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := f.store.Roles().Create(ctx, role); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	perms := []Permission{
		{ID: "p1", Resource: "posts", Action: "read"},
		{ID: "p2", Resource: "posts", Action: "write"},
	}
	for i := range perms {
		if err := f.store.Permissions().Create(ctx, &perms[i]); err != nil {
			t.Fatalf("seed permission: %v", err)
		}
	}
	if err := f.store.Permissions().SetForRole(ctx, "r1", []string{"p1", "p2"}); err != nil {
		t.Fatalf("attach permissions: %v", err)
	}
	if err := f.store.Roles().Assign(ctx, userID, "r1"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")
	f.seedRBAC(t, u.ID)

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("token pair must be issued")
	}
	if len(res.Roles) != 1 || res.Roles[0] != "editor" {
		t.Fatalf("unexpected roles: %v", res.Roles)
	}
	if len(res.Permissions) != 1 || res.Permissions[0].Resource != "posts" {
		t.Fatalf("unexpected permissions: %+v", res.Permissions)
	}

	claims, err := f.svc.VerifyAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != u.ID {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}

	stored, err := f.store.Users().Find(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("last login must be recorded")
	}

	types := f.events.types()
	if len(types) != 1 || types[0] != EventLoginSucceeded {
		t.Fatalf("expected login event, got %v", types)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	f.seedLoginUser(t, "dana@example.com", "hunter2!")

	_, err := f.svc.Login(context.Background(), "dana@example.com", "wrong", TenantSelector{}, ClientMeta{})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Login(context.Background(), "ghost@example.com", "pw", TenantSelector{}, ClientMeta{})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")
	if err := f.store.Users().SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestRefreshRecomputesCapabilities(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")
	f.seedRBAC(t, u.ID)

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Narrow the role to read-only between login and refresh.
	if err := f.store.Permissions().SetForRole(ctx, "r1", []string{"p1"}); err != nil {
		t.Fatalf("narrow role: %v", err)
	}

	refreshed, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == res.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}
	if len(refreshed.Permissions) != 1 || len(refreshed.Permissions[0].Actions) != 1 {
		t.Fatalf("capabilities must reflect current role state, got %+v", refreshed.Permissions)
	}

	// Old refresh token is single use.
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestRefreshInactiveUser(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.store.Users().SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedLoginUser(t, "dana@example.com", "hunter2!")

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.svc.Logout(ctx, res.RefreshToken); err != nil {
			t.Fatalf("logout #%d: %v", i+1, err)
		}
	}
	if err := f.svc.Logout(ctx, "not-a-token"); err != nil {
		t.Fatalf("logout with malformed token must succeed, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout must fail, got %v", err)
	}
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	user, err := f.svc.Register(ctx, RegisterInput{
		Email: "New@Example.com", Password: "hunter2!", FirstName: "Dana",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email must be normalized, got %q", user.Email)
	}
	if user.EmailVerified {
		t.Fatal("new user must start unverified")
	}

	stored, err := f.store.Users().Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.VerificationToken == "" {
		t.Fatal("verification token must be set")
	}

	if err := f.svc.VerifyEmail(ctx, stored.VerificationToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	verified, _ := f.store.Users().Find(ctx, user.ID)
	if !verified.EmailVerified || verified.VerificationToken != "" {
		t.Fatalf("verification must flip flag and clear token, got %+v", verified)
	}

	// Duplicate registration conflicts regardless of case.
	if _, err := f.svc.Register(ctx, RegisterInput{Email: "NEW@example.com", Password: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestVerifyEmailIdempotentWhenAlreadyVerified(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	exp := time.Now().Add(time.Hour)
	if err := f.store.Users().SetVerificationToken(ctx, u.ID, "tok-123", exp); err != nil {
		t.Fatalf("set token: %v", err)
	}

	// Already verified (seed user is verified): token consumption succeeds
	// without mutating anything.
	if err := f.svc.VerifyEmail(ctx, "tok-123"); err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}

	if err := f.svc.VerifyEmail(ctx, "unknown-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	user, err := f.svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "hunter2!"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := f.store.Users().SetVerificationToken(ctx, user.ID, "tok-expired", past); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := f.svc.VerifyEmail(ctx, "tok-expired"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestForgotPasswordNeverLeaks(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	if err := f.svc.ForgotPassword(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must succeed silently, got %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "dana@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	stored, _ := f.store.Users().Find(ctx, u.ID)
	if stored.ResetToken == "" || stored.ResetExpires == nil {
		t.Fatal("reset token must be recorded for known email")
	}
}

func TestResetPasswordSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	if err := f.svc.ForgotPassword(ctx, "dana@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	stored, _ := f.store.Users().Find(ctx, u.ID)

	if err := f.svc.ResetPassword(ctx, stored.ResetToken, "new-password!"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := f.svc.Login(ctx, "dana@example.com", "new-password!", TenantSelector{}, ClientMeta{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("old password must be dead, got %v", err)
	}
	// Token is cleared on use.
	if err := f.svc.ResetPassword(ctx, stored.ResetToken, "another!"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestResetPasswordExpired(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	past := time.Now().Add(-time.Minute)
	if err := f.store.Users().SetResetToken(ctx, u.ID, "tok-old", past); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "tok-old", "x!"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAssignTenantPrimaryInvariant(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")
	for _, tn := range []Tenant{
		{ID: "t1", Name: "Alpha", Slug: "alpha", IsActive: true},
		{ID: "t2", Name: "Beta", Slug: "beta", IsActive: true},
	} {
		cp := tn
		if err := f.store.Tenants().Create(ctx, &cp); err != nil {
			t.Fatalf("seed tenant: %v", err)
		}
	}

	if _, err := f.svc.AssignTenant(ctx, u.ID, "t1", true); err != nil {
		t.Fatalf("assign t1: %v", err)
	}
	if _, err := f.svc.AssignTenant(ctx, u.ID, "t2", true); err != nil {
		t.Fatalf("assign t2: %v", err)
	}

	memberships, err := f.store.Memberships().ListByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var primaries int
	for _, m := range memberships {
		if m.IsPrimary {
			primaries++
			if m.TenantID != "t2" {
				t.Fatalf("latest primary assignment must win, got %s", m.TenantID)
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("exactly one primary expected, got %d", primaries)
	}

	// Duplicate assignment conflicts.
	if _, err := f.svc.AssignTenant(ctx, u.ID, "t1", false); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Unknown tenant is NotFound.
	if _, err := f.svc.AssignTenant(ctx, u.ID, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := f.svc.SetPrimaryTenant(ctx, u.ID, "t1"); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	memberships, _ = f.store.Memberships().ListByUser(ctx, u.ID)
	if memberships[0].TenantID != "t1" || !memberships[0].IsPrimary {
		t.Fatalf("primary must move to t1, got %+v", memberships)
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedLoginUser(t, "dana@example.com", "hunter2!")
	f.seedLoginUser(t, "eve@example.com", "hunter2!")

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	sessions, err := f.svc.Sessions(ctx, "u-dana@example.com")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("expected one session, got %v %v", sessions, err)
	}
	sid := sessions[0].ID

	// Someone else's session is invisible.
	if err := f.svc.RevokeSession(ctx, sid, "u-eve@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}
	if err := f.svc.RevokeSession(ctx, sid, "u-dana@example.com"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Revoking again conflicts.
	if err := f.svc.RevokeSession(ctx, sid, "u-dana@example.com"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked session must not refresh, got %v", err)
	}
}

func TestDeleteRoleGuardsSystemRoles(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	role, err := f.svc.CreateRole(ctx, nil, "super_admin", "root role", true)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.svc.DeleteRole(ctx, role.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for system role, got %v", err)
	}

	plain, err := f.svc.CreateRole(ctx, nil, "editor", "", false)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.svc.DeleteRole(ctx, plain.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")

	res, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.svc.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := f.svc.GetUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted user must not be found, got %v", err)
	}
	// The account is gone from login and refresh alike.
	if _, err := f.svc.Login(ctx, "dana@example.com", "hunter2!", TenantSelector{}, ClientMeta{}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential after delete, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.RefreshToken, ClientMeta{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must die with the account, got %v", err)
	}

	if err := f.svc.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListRolesScopedByTenant(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	if _, err := f.svc.CreateRole(ctx, nil, "super_admin", "", true); err != nil {
		t.Fatalf("create global role: %v", err)
	}
	t1, t2 := "t1", "t2"
	if _, err := f.svc.CreateRole(ctx, &t1, "editor", "", false); err != nil {
		t.Fatalf("create t1 role: %v", err)
	}
	if _, err := f.svc.CreateRole(ctx, &t2, "viewer", "", false); err != nil {
		t.Fatalf("create t2 role: %v", err)
	}

	roles, err := f.svc.ListRoles(ctx, "t1")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "editor" || roles[1].Name != "super_admin" {
		t.Fatalf("expected t1 role plus global role, got %+v", roles)
	}

	// Empty tenant sees only global roles.
	roles, err = f.svc.ListRoles(ctx, "")
	if err != nil {
		t.Fatalf("list global roles: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "super_admin" {
		t.Fatalf("expected only the global role, got %+v", roles)
	}
}

func TestTenantMembersRequiresTenant(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	u := f.seedLoginUser(t, "dana@example.com", "hunter2!")
	tenant := Tenant{ID: "t1", Name: "Alpha", Slug: "alpha", IsActive: true}
	if err := f.store.Tenants().Create(ctx, &tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if _, err := f.svc.AssignTenant(ctx, u.ID, "t1", true); err != nil {
		t.Fatalf("assign: %v", err)
	}

	members, err := f.svc.TenantMembers(ctx, "t1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != u.ID || !members[0].IsPrimary {
		t.Fatalf("unexpected members: %+v", members)
	}

	if _, err := f.svc.TenantMembers(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestEnsurePermissionsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	catalog := BaselinePermissions()
	if err := f.svc.EnsurePermissions(ctx, catalog); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	first, err := f.svc.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != len(catalog) {
		t.Fatalf("expected %d catalog rows, got %d", len(catalog), len(first))
	}

	// A second run inserts nothing new.
	if err := f.svc.EnsurePermissions(ctx, BaselinePermissions()); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	second, err := f.svc.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("ensure must be idempotent, got %d then %d rows", len(first), len(second))
	}

	if err := f.svc.EnsurePermissions(ctx, []Permission{{Resource: "", Action: "read"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
