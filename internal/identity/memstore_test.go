package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store shared by the package tests. It mirrors the
// semantics of the relational implementation, including conflict detection,
// primary clearing and compare-and-swap rotation.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User
	tenants     map[string]*Tenant
	memberships map[string]*Membership
	roles       map[string]*Role
	perms       map[string]*Permission
	rolePerms   map[string][]string
	userRoles   map[string]map[string]bool
	sessions    map[string]*Session
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*User),
		tenants:     make(map[string]*Tenant),
		memberships: make(map[string]*Membership),
		roles:       make(map[string]*Role),
		perms:       make(map[string]*Permission),
		rolePerms:   make(map[string][]string),
		userRoles:   make(map[string]map[string]bool),
		sessions:    make(map[string]*Session),
	}
}

func (s *memStore) Users() UserStore             { return &memUsers{s} }
func (s *memStore) Tenants() TenantStore         { return &memTenants{s} }
func (s *memStore) Memberships() MembershipStore { return &memMemberships{s} }
func (s *memStore) Roles() RoleStore             { return &memRoles{s} }
func (s *memStore) Permissions() PermissionStore { return &memPermissions{s} }
func (s *memStore) Sessions() SessionStore       { return &memSessions{s} }

type memUsers struct{ s *memStore }

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	cp := *u
	m.s.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email, tenantID string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) &&
			u.TenantID != nil && *u.TenantID == tenantID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByEmailAcrossTenants(_ context.Context, email string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var found *User
	for _, u := range m.s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			if found == nil || u.CreatedAt.Before(found.CreatedAt) {
				found = u
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *memUsers) FindByVerificationToken(_ context.Context, token string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.DeletedAt == nil && token != "" && u.VerificationToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByResetToken(_ context.Context, token string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.DeletedAt == nil && token != "" && u.ResetToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) mutate(id string, fn func(*User)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) SetVerificationToken(_ context.Context, userID, token string, expires time.Time) error {
	return m.mutate(userID, func(u *User) {
		u.VerificationToken = token
		exp := expires
		u.VerificationExpires = &exp
	})
}

func (m *memUsers) MarkEmailVerified(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *User) {
		u.EmailVerified = true
		u.VerificationToken = ""
		u.VerificationExpires = nil
	})
}

func (m *memUsers) SetResetToken(_ context.Context, userID, token string, expires time.Time) error {
	return m.mutate(userID, func(u *User) {
		u.ResetToken = token
		exp := expires
		u.ResetExpires = &exp
	})
}

func (m *memUsers) ClearResetToken(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *User) {
		u.ResetToken = ""
		u.ResetExpires = nil
	})
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	return m.mutate(userID, func(u *User) { u.PasswordHash = passwordHash })
}

func (m *memUsers) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	return m.mutate(userID, func(u *User) {
		t := at
		u.LastLoginAt = &t
	})
}

func (m *memUsers) SetActive(_ context.Context, userID string, active bool) error {
	return m.mutate(userID, func(u *User) { u.IsActive = active })
}

func (m *memUsers) SoftDelete(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *User) {
		now := time.Now()
		u.DeletedAt = &now
		u.IsActive = false
	})
}

type memTenants struct{ s *memStore }

func (m *memTenants) Create(_ context.Context, t *Tenant) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.tenants {
		if existing.Slug == t.Slug {
			return ErrConflict
		}
	}
	cp := *t
	m.s.tenants[t.ID] = &cp
	return nil
}

func (m *memTenants) Find(_ context.Context, id string) (*Tenant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTenants) FindBySlug(_ context.Context, slug string) (*Tenant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTenants) List(_ context.Context) ([]Tenant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Tenant
	for _, t := range m.s.tenants {
		res = append(res, *t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *memTenants) SetActive(_ context.Context, id string, active bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.IsActive = active
	return nil
}

type memMemberships struct{ s *memStore }

func (m *memMemberships) Create(_ context.Context, mem *Membership) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.memberships {
		if existing.UserID == mem.UserID && existing.TenantID == mem.TenantID {
			return ErrConflict
		}
	}
	if mem.IsPrimary {
		for _, existing := range m.s.memberships {
			if existing.UserID == mem.UserID {
				existing.IsPrimary = false
			}
		}
	}
	cp := *mem
	m.s.memberships[mem.ID] = &cp
	return nil
}

func (m *memMemberships) Delete(_ context.Context, userID, tenantID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, existing := range m.s.memberships {
		if existing.UserID == userID && existing.TenantID == tenantID {
			delete(m.s.memberships, id)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memMemberships) ListByUser(_ context.Context, userID string) ([]Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Membership
	for _, mem := range m.s.memberships {
		if mem.UserID == userID && mem.IsActive {
			res = append(res, *mem)
		}
	}
	sortMemberships(res)
	return res, nil
}

func (m *memMemberships) ListByEmail(ctx context.Context, email string) ([]Membership, error) {
	m.s.mu.Lock()
	var userIDs []string
	for _, u := range m.s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			userIDs = append(userIDs, u.ID)
		}
	}
	var res []Membership
	for _, mem := range m.s.memberships {
		if !mem.IsActive {
			continue
		}
		for _, id := range userIDs {
			if mem.UserID == id {
				res = append(res, *mem)
			}
		}
	}
	m.s.mu.Unlock()
	sortMemberships(res)
	return res, nil
}

func (m *memMemberships) ListByTenant(_ context.Context, tenantID string) ([]Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Membership
	for _, mem := range m.s.memberships {
		if mem.TenantID == tenantID {
			res = append(res, *mem)
		}
	}
	sortMemberships(res)
	return res, nil
}

func (m *memMemberships) SetPrimary(_ context.Context, userID, tenantID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var target *Membership
	for _, mem := range m.s.memberships {
		if mem.UserID == userID && mem.TenantID == tenantID && mem.IsActive {
			target = mem
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	for _, mem := range m.s.memberships {
		if mem.UserID == userID {
			mem.IsPrimary = false
		}
	}
	target.IsPrimary = true
	return nil
}

func sortMemberships(res []Membership) {
	sort.Slice(res, func(i, j int) bool {
		if res[i].IsPrimary != res[j].IsPrimary {
			return res[i].IsPrimary
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
}

type memRoles struct{ s *memStore }

func (m *memRoles) Create(_ context.Context, r *Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.roles {
		if existing.Name == r.Name && strPtrEq(existing.TenantID, r.TenantID) {
			return ErrConflict
		}
	}
	cp := *r
	m.s.roles[r.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) ListByTenant(_ context.Context, tenantID string) ([]Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Role
	for _, r := range m.s.roles {
		if r.TenantID == nil || *r.TenantID == tenantID {
			res = append(res, *r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.roles, id)
	delete(m.s.rolePerms, id)
	return nil
}

func (m *memRoles) Assign(_ context.Context, userID, roleID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.userRoles[userID] == nil {
		m.s.userRoles[userID] = make(map[string]bool)
	}
	m.s.userRoles[userID][roleID] = true
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if !m.s.userRoles[userID][roleID] {
		return ErrNotFound
	}
	delete(m.s.userRoles[userID], roleID)
	return nil
}

func (m *memRoles) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Role
	for roleID := range m.s.userRoles[userID] {
		if r, ok := m.s.roles[roleID]; ok {
			res = append(res, *r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

type memPermissions struct{ s *memStore }

func (m *memPermissions) Create(_ context.Context, p *Permission) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.perms {
		if existing.Resource == p.Resource && existing.Action == p.Action &&
			strPtrEq(existing.TenantID, p.TenantID) {
			return ErrConflict
		}
	}
	cp := *p
	m.s.perms[p.ID] = &cp
	return nil
}

func (m *memPermissions) Ensure(ctx context.Context, perms []Permission) error {
	for i := range perms {
		if err := m.Create(ctx, &perms[i]); err != nil && err != ErrConflict {
			return err
		}
	}
	return nil
}

func (m *memPermissions) List(_ context.Context) ([]Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Permission
	for _, p := range m.s.perms {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Resource != res[j].Resource {
			return res[i].Resource < res[j].Resource
		}
		return res[i].Action < res[j].Action
	})
	return res, nil
}

func (m *memPermissions) SetForRole(_ context.Context, roleID string, permissionIDs []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range permissionIDs {
		if _, ok := m.s.perms[id]; !ok {
			return ErrNotFound
		}
	}
	m.s.rolePerms[roleID] = append([]string(nil), permissionIDs...)
	return nil
}

func (m *memPermissions) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Permission
	for _, id := range m.s.rolePerms[roleID] {
		if p, ok := m.s.perms[id]; ok {
			res = append(res, *p)
		}
	}
	return res, nil
}

type memSessions struct{ s *memStore }

func (m *memSessions) Create(_ context.Context, sess *Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sessions[sess.ID]; ok {
		return ErrConflict
	}
	cp := *sess
	m.s.sessions[sess.ID] = &cp
	return nil
}

func (m *memSessions) Find(_ context.Context, id string) (*Session, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sess, ok := m.s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memSessions) Rotate(_ context.Context, oldID string, replacement *Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	old, ok := m.s.sessions[oldID]
	if !ok || old.Revoked || !time.Now().Before(old.ExpiresAt) {
		return ErrInvalidToken
	}
	now := time.Now()
	old.Revoked = true
	old.RevokedAt = &now
	old.ReplacedBy = replacement.ID
	cp := *replacement
	m.s.sessions[replacement.ID] = &cp
	return nil
}

func (m *memSessions) Revoke(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sess, ok := m.s.sessions[id]
	if !ok || sess.Revoked {
		return nil
	}
	now := time.Now()
	sess.Revoked = true
	sess.RevokedAt = &now
	return nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID, exceptID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var count int64
	now := time.Now()
	for _, sess := range m.s.sessions {
		if sess.UserID == userID && !sess.Revoked && sess.ID != exceptID {
			sess.Revoked = true
			sess.RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.sessions, id)
	return nil
}

func (m *memSessions) DeleteAllForUser(_ context.Context, userID string, onlyInactive bool) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var count int64
	now := time.Now()
	for id, sess := range m.s.sessions {
		if sess.UserID != userID {
			continue
		}
		if onlyInactive && sess.Active(now) {
			continue
		}
		delete(m.s.sessions, id)
		count++
	}
	return count, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string) ([]Session, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []Session
	for _, sess := range m.s.sessions {
		if sess.UserID == userID {
			res = append(res, *sess)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
