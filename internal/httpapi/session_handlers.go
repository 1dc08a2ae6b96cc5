package httpapi

import (
	"net/http"
	"strings"

	"authcore.dev/internal/identity"
)

type revokeAllRequest struct {
	ExceptSessionID string `json:"except_session_id"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := a.svc.Sessions(r.Context(), p.UserID())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if sessions == nil {
			sessions = []identity.Session{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	case http.MethodDelete:
		onlyInactive := r.URL.Query().Get("only_inactive") == "true"
		count, err := a.svc.DeleteAllSessions(r.Context(), p.UserID(), onlyInactive)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": count})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] == "revoke-all":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req revokeAllRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		count, err := a.svc.RevokeAllSessions(r.Context(), p.UserID(), req.ExceptSessionID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revoked": count})

	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.svc.DeleteSession(r.Context(), parts[0], p.UserID()); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "revoke":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := a.svc.RevokeSession(r.Context(), parts[0], p.UserID()); err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "session revoked"})

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
