package identity

import "time"

// Domain event types emitted by the orchestrator. External audit
// collaborators subscribe to these rather than intercepting calls.
const (
	EventLoginSucceeded    = "identity.login.succeeded"
	EventLoginFailed       = "identity.login.failed"
	EventTokenRotated      = "identity.token.rotated"
	EventSessionRevoked    = "identity.session.revoked"
	EventUserRegistered    = "identity.user.registered"
	EventEmailVerified     = "identity.email.verified"
	EventPasswordReset     = "identity.password.reset"
	EventMembershipChanged = "identity.membership.changed"
)

// Event is a structured domain event.
type Event struct {
	Type      string            `json:"type"`
	At        time.Time         `json:"at"`
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Publisher receives domain events. Implementations must not block the
// caller; slow consumers drop rather than stall login.
type Publisher interface {
	Publish(evt Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
