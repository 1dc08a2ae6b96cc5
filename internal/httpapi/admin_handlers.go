package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"authcore.dev/internal/identity"
)

type createTenantRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Settings map[string]any `json:"settings"`
}

type createRoleRequest struct {
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
}

type createPermissionRequest struct {
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	TenantID  string         `json:"tenant_id"`
	Condition map[string]any `json:"condition"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type assignTenantRequest struct {
	TenantID  string `json:"tenant_id"`
	IsPrimary bool   `json:"is_primary"`
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureCan(w, r, "read", "tenants") {
			return
		}
		tenants, err := a.svc.ListTenants(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if tenants == nil {
			tenants = []identity.Tenant{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
	case http.MethodPost:
		if !a.ensureCan(w, r, "create", "tenants") {
			return
		}
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tenant, err := a.svc.CreateTenant(r.Context(), req.Name, req.Slug, req.Settings)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tenant.ID))
		writeJSON(w, http.StatusCreated, tenant)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type setTenantActiveRequest struct {
	Active bool `json:"active"`
}

func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.ensureCan(w, r, "read", "tenants") {
			return
		}
		tenant, err := a.svc.GetTenant(r.Context(), parts[0])
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tenant)

	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.ensureCan(w, r, "read", "tenants") {
			return
		}
		members, err := a.svc.TenantMembers(r.Context(), parts[0])
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if members == nil {
			members = []identity.Membership{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant_id": parts[0], "members": members})

	case len(parts) == 2 && parts[1] == "active":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureCan(w, r, "manage", "tenants") {
			return
		}
		var req setTenantActiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.SetTenantActive(r.Context(), parts[0], req.Active); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleListRoles(w, r)
	case http.MethodPost:
		a.handleCreateRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleListRoles returns the roles visible in the tenant named by the
// tenant_id query parameter, global roles included.
func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensureCan(w, r, "read", "roles") {
		return
	}
	roles, err := a.svc.ListRoles(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if roles == nil {
		roles = []identity.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensureCan(w, r, "create", "roles") {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var tenantID *string
	if s := strings.TrimSpace(req.TenantID); s != "" {
		tenantID = &s
	}
	role, err := a.svc.CreateRole(r.Context(), tenantID, req.Name, req.Description, req.IsSystem)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensureCan(w, r, "delete", "roles") {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), parts[0]); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureCan(w, r, "manage", "permissions") {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.SetRolePermissions(r.Context(), parts[0], req.Permissions); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureCan(w, r, "read", "permissions") {
			return
		}
		perms, err := a.svc.ListPermissions(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if perms == nil {
			perms = []identity.Permission{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		if !a.ensureCan(w, r, "create", "permissions") {
			return
		}
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var tenantID *string
		if s := strings.TrimSpace(req.TenantID); s != "" {
			tenantID = &s
		}
		perm, err := a.svc.CreatePermission(r.Context(), req.Resource, req.Action, tenantID, req.Condition)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if !a.ensureCan(w, r, "read", "users") {
				return
			}
			user, err := a.svc.GetUser(r.Context(), userID)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodDelete:
			if !a.ensureCan(w, r, "manage", "users") {
				return
			}
			if err := a.svc.DeleteUser(r.Context(), userID); err != nil {
				handleAuthError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}

	switch parts[1] {
	case "roles":
		a.handleUserRoles(w, r, userID, parts[2:])
	case "tenants":
		a.handleUserTenants(w, r, userID, parts[2:])
	case "permissions":
		a.handleUserPermissions(w, r, userID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string, rest []string) {
	if len(rest) != 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureCan(w, r, "read", "users") {
		return
	}
	caps, err := a.svc.CapabilitiesForUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if caps == nil {
		caps = []identity.ResourcePermissions{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": caps})
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string, rest []string) {
	if !a.ensureCan(w, r, "manage", "users") {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.RoleID = strings.TrimSpace(req.RoleID)
		if req.RoleID == "" {
			writeError(w, r, http.StatusBadRequest, "role_id is required")
			return
		}
		if err := a.svc.AssignRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "role_id": req.RoleID})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := a.svc.UnassignRole(r.Context(), userID, rest[0]); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleUserTenants(w http.ResponseWriter, r *http.Request, userID string, rest []string) {
	if !a.ensureCan(w, r, "manage", "users") {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req assignTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		if req.TenantID == "" {
			writeError(w, r, http.StatusBadRequest, "tenant_id is required")
			return
		}
		m, err := a.svc.AssignTenant(r.Context(), userID, req.TenantID, req.IsPrimary)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := a.svc.UnassignTenant(r.Context(), userID, rest[0]); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(rest) == 2 && rest[1] == "primary" && r.Method == http.MethodPut:
		if err := a.svc.SetPrimaryTenant(r.Context(), userID, rest[0]); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete, http.MethodPut)
	}
}
