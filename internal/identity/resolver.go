package identity

import (
	"context"
	"errors"
	"strings"
)

// ResolutionStrategy names which membership model produced a resolution.
// Two models coexist: the membership join table and the legacy tenant_id
// column on the user row. They are kept as distinct strategies rather than
// merged, since merging would change observable login routing for data that
// only populates one of them.
type ResolutionStrategy string

const (
	StrategyMembership   ResolutionStrategy = "membership"
	StrategyDirectTenant ResolutionStrategy = "direct_tenant"
	StrategyUnassigned   ResolutionStrategy = "unassigned"
)

// TenantSelector is the optional explicit tenant choice supplied at login.
// TenantID selects through the membership model; TenantSlug takes the legacy
// single-tenant-per-row path.
type TenantSelector struct {
	TenantID   string
	TenantSlug string
}

// Resolution is the outcome of tenant resolution. Tenant may be nil: a
// verified user awaiting administrator assignment is a valid login outcome,
// not an error.
type Resolution struct {
	User     *User
	Tenant   *Tenant
	Strategy ResolutionStrategy
}

// TenantResolver decides which tenant context a login binds to.
type TenantResolver struct {
	store Store
}

// NewTenantResolver constructs a resolver over the given store.
func NewTenantResolver(store Store) *TenantResolver {
	return &TenantResolver{store: store}
}

// Resolve locates the user and tenant for a login attempt. Every failure
// mode that could leak account or tenant existence collapses into
// ErrInvalidCredential; an inactive tenant surfaces ErrInactiveAccount for
// internal logging, which the transport layer collapses outward as well.
func (r *TenantResolver) Resolve(ctx context.Context, email string, sel TenantSelector) (Resolution, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return Resolution{}, ErrInvalidCredential
	}
	switch {
	case sel.TenantID != "":
		return r.resolveByTenantID(ctx, email, sel.TenantID)
	case sel.TenantSlug != "":
		return r.resolveBySlug(ctx, email, sel.TenantSlug)
	default:
		return r.resolveAuto(ctx, email)
	}
}

func (r *TenantResolver) resolveByTenantID(ctx context.Context, email, tenantID string) (Resolution, error) {
	tenant, err := r.store.Tenants().Find(ctx, tenantID)
	if err != nil {
		// "tenant does not exist" and "user is not a member" must be
		// indistinguishable to the caller.
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, ErrInvalidCredential
		}
		return Resolution{}, err
	}
	if !tenant.IsActive {
		return Resolution{}, ErrInactiveAccount
	}

	memberships, err := r.store.Memberships().ListByEmail(ctx, email)
	if err != nil {
		return Resolution{}, err
	}
	var member *Membership
	for i := range memberships {
		if memberships[i].TenantID == tenantID && memberships[i].IsActive {
			member = &memberships[i]
			break
		}
	}
	if member == nil {
		return Resolution{}, ErrInvalidCredential
	}

	user, err := r.store.Users().Find(ctx, member.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, ErrInvalidCredential
		}
		return Resolution{}, err
	}
	return Resolution{User: user, Tenant: tenant, Strategy: StrategyMembership}, nil
}

// resolveBySlug is the legacy path: the tenant is found by slug and the user
// directly by the (email, tenant) pair, bypassing the membership table.
func (r *TenantResolver) resolveBySlug(ctx context.Context, email, slug string) (Resolution, error) {
	tenant, err := r.store.Tenants().FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, ErrInvalidCredential
		}
		return Resolution{}, err
	}
	if !tenant.IsActive {
		return Resolution{}, ErrInactiveAccount
	}

	user, err := r.store.Users().FindByEmail(ctx, email, tenant.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, ErrInvalidCredential
		}
		return Resolution{}, err
	}
	return Resolution{User: user, Tenant: tenant, Strategy: StrategyDirectTenant}, nil
}

func (r *TenantResolver) resolveAuto(ctx context.Context, email string) (Resolution, error) {
	user, err := r.store.Users().FindByEmailAcrossTenants(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{}, ErrInvalidCredential
		}
		return Resolution{}, err
	}

	memberships, err := r.store.Memberships().ListByUser(ctx, user.ID)
	if err != nil {
		return Resolution{}, err
	}
	if len(memberships) > 0 {
		selected := memberships[0]
		for _, m := range memberships {
			if m.IsPrimary {
				selected = m
				break
			}
		}
		tenant, err := r.store.Tenants().Find(ctx, selected.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Resolution{}, ErrInvalidCredential
			}
			return Resolution{}, err
		}
		if !tenant.IsActive {
			return Resolution{}, ErrInactiveAccount
		}
		return Resolution{User: user, Tenant: tenant, Strategy: StrategyMembership}, nil
	}

	// Legacy single-tenant shape: tenant_id directly on the user row.
	if user.TenantID != nil && *user.TenantID != "" {
		tenant, err := r.store.Tenants().Find(ctx, *user.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Resolution{}, ErrInvalidCredential
			}
			return Resolution{}, err
		}
		if !tenant.IsActive {
			return Resolution{}, ErrInactiveAccount
		}
		return Resolution{User: user, Tenant: tenant, Strategy: StrategyDirectTenant}, nil
	}

	// No tenant yet: the user is verified but pending assignment.
	return Resolution{User: user, Tenant: nil, Strategy: StrategyUnassigned}, nil
}
