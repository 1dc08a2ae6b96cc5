package identity

import "time"

// User is an authenticable principal. Email is unique within a tenant, not
// globally. PasswordHash is empty for federated identities. TenantID carries
// the legacy single-tenant attachment and may be empty when the user is
// linked through memberships instead (or is pending assignment).
type User struct {
	ID            string  `json:"id"`
	TenantID      *string `json:"tenant_id"`
	Email         string  `json:"email"`
	PasswordHash  string  `json:"-"`
	FirstName     string  `json:"first_name,omitempty"`
	LastName      string  `json:"last_name,omitempty"`
	IsActive      bool    `json:"is_active"`
	EmailVerified bool    `json:"email_verified"`

	VerificationToken   string     `json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetToken          string     `json:"-"`
	ResetExpires        *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// Tenant is an organizational boundary partitioning users, roles and data.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	IsActive  bool           `json:"is_active"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Membership links a user to a tenant. At most one membership per user may
// be primary; the store enforces the invariant on write.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	IsPrimary bool      `json:"is_primary"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Role groups permissions. TenantID is empty for global roles. System roles
// cannot be deleted.
type Role struct {
	ID          string    `json:"id"`
	TenantID    *string   `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a (resource, action) capability. Resource or action "*"
// denotes a wildcard. Condition is an opaque structured filter evaluated by
// downstream callers, never by this package.
type Permission struct {
	ID        string         `json:"id"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	TenantID  *string        `json:"tenant_id"`
	Condition map[string]any `json:"condition,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is a persisted refresh token. The opaque token string is returned
// once at issuance; only its hash is stored.
type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy string     `json:"-"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Active reports whether the session may still be exchanged. There is no
// grace window: revoked or expired means dead.
func (s Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// ClientMeta carries request metadata recorded on session rows.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// ResourcePermissions is one aggregated capability entry: a resource and the
// deduplicated actions granted on it.
type ResourcePermissions struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}
