package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authcore.dev/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the typed access-token payload. TenantID is nil for users
// pending tenant assignment.
type Claims struct {
	Email       string                `json:"email"`
	TenantID    *string               `json:"tenant_id"`
	TenantSlug  string                `json:"tenant_slug"`
	Roles       []string              `json:"roles"`
	Permissions []ResourcePermissions `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenService issues signed access tokens and manages the rotating
// refresh-token lifecycle.
type TokenService struct {
	sessions   SessionStore
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. The signing secret and issuer
// come from configuration, never from ambient environment reads.
func NewTokenService(sessions SessionStore, secret, issuer string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity: token secret is required")
	}
	svc := &TokenService{
		sessions:   sessions,
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssueAccessToken signs a short-lived HS256 token embedding identity plus
// the aggregated capability set. No side effects beyond signing.
func (s *TokenService) IssueAccessToken(user *User, tenant *Tenant, caps []ResourcePermissions, roleNames []string) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("identity: user is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)

	claims := Claims{
		Email:       user.Email,
		Roles:       roleNames,
		Permissions: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	if tenant != nil {
		id := tenant.ID
		claims.TenantID = &id
		claims.TenantSlug = tenant.Slug
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks the signature and registered claims of an access
// token.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefreshToken generates an opaque `<id>.<secret>` token, persists its
// hash with the configured expiry and returns the token string. The secret
// half is never stored and never recoverable after issuance.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID string, meta ClientMeta) (string, *Session, error) {
	token, session, err := s.newSession(userID, meta)
	if err != nil {
		return "", nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// VerifyAndRotate exchanges a refresh token for its replacement. The
// rotation is one-way and single-use: the old row is revoked and the new one
// inserted in a single atomic unit, so the first caller wins any race and
// every later caller observes ErrInvalidToken. Not-found, revoked, expired
// and hash-mismatch are all collapsed into the same error; the distinction
// is for internal logging only.
func (s *TokenService) VerifyAndRotate(ctx context.Context, token string, meta ClientMeta) (string, *Session, error) {
	id, secret, err := splitRefreshToken(token)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	record, err := s.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidToken
		}
		return "", nil, err
	}
	if !record.Active(s.now()) {
		return "", nil, ErrInvalidToken
	}
	if !hashMatches(record.TokenHash, secret) {
		// A forged secret against a live session id is suspicious
		// enough to burn the session.
		_ = s.sessions.Revoke(ctx, record.ID)
		return "", nil, ErrInvalidToken
	}

	newToken, replacement, err := s.newSession(record.UserID, meta)
	if err != nil {
		return "", nil, err
	}
	if err := s.sessions.Rotate(ctx, record.ID, replacement); err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNotFound) {
			// Lost the rotation race: another caller already
			// consumed this token.
			return "", nil, ErrInvalidToken
		}
		return "", nil, err
	}
	return newToken, replacement, nil
}

// Revoke marks the session revoked. Idempotent: unknown or already-revoked
// tokens are a no-op, not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	id, _, err := splitRefreshToken(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// RevokeAll revokes every active session for the user except the optionally
// excluded one and returns the affected count. Sessions created concurrently
// are not guaranteed to be included; the operation is best-effort over a
// snapshot, not linearizable.
func (s *TokenService) RevokeAll(ctx context.Context, userID, exceptID string) (int64, error) {
	return s.sessions.RevokeAllForUser(ctx, userID, exceptID)
}

// DeleteAll hard-deletes session rows for the user. With onlyInactive only
// revoked or expired rows are removed; revocation and deletion remain
// independent operations.
func (s *TokenService) DeleteAll(ctx context.Context, userID string, onlyInactive bool) (int64, error) {
	return s.sessions.DeleteAllForUser(ctx, userID, onlyInactive)
}

func (s *TokenService) newSession(userID string, meta ClientMeta) (string, *Session, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	now := s.now().UTC()
	session := &Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}
	return session.ID + "." + secret, session, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashMatches(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
