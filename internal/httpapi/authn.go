package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"authcore.dev/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/auth/register",
	"/v1/auth/verify-email",
	"/v1/auth/resend-verification",
	"/v1/auth/forgot-password",
	"/v1/auth/reset-password",
	"/v1/auth/tenants",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

type principalKey struct{}

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Claims  *identity.Claims
	Ability *identity.Ability
}

// UserID returns the subject of the access token.
func (p *Principal) UserID() string {
	if p == nil || p.Claims == nil {
		return ""
	}
	return p.Claims.Subject
}

// ContextWithPrincipal attaches the principal to the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.svc.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		principal := &Principal{Claims: claims, Ability: a.svc.AbilityFromClaims(claims)}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// requirePrincipal returns the caller or writes a 401.
func (a *API) requirePrincipal(w http.ResponseWriter, r *http.Request) (*Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return p, true
}

// ensureCan returns false and writes a 403 when the caller's ability does
// not grant the action on the resource.
func (a *API) ensureCan(w http.ResponseWriter, r *http.Request, action, resource string) bool {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return false
	}
	if p.Ability == nil || !p.Ability.Can(action, resource) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
