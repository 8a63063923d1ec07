package events

import (
	"time"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPrincipalRegistered  EventType = "principal_registered"
	EventPrincipalLoggedIn    EventType = "principal_logged_in"
	EventPrincipalDeactivated EventType = "principal_deactivated"
	EventTierChanged          EventType = "principal_tier_changed"
	EventSessionRevoked       EventType = "session_revoked"
	EventSessionsRevokedAll   EventType = "sessions_revoked_all"
	EventSessionsSwept        EventType = "sessions_swept"
	EventQuotaDenied          EventType = "quota_denied"
)

// AllTypes lists every event type, for subscribers that want everything.
func AllTypes() []EventType {
	return []EventType{
		EventPrincipalRegistered,
		EventPrincipalLoggedIn,
		EventPrincipalDeactivated,
		EventTierChanged,
		EventSessionRevoked,
		EventSessionsRevokedAll,
		EventSessionsSwept,
		EventQuotaDenied,
	}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload,omitempty"`
}

type PrincipalRegisteredPayload struct {
	Email string      `json:"email"`
	Tier  domain.Tier `json:"tier"`
}

type PrincipalLoggedInPayload struct {
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type PrincipalDeactivatedPayload struct {
	RevokedSessions int64 `json:"revoked_sessions"`
}

type TierChangedPayload struct {
	OldTier domain.Tier `json:"old_tier"`
	NewTier domain.Tier `json:"new_tier"`
}

// SessionRevokedPayload describes a single logout. SessionID is empty when
// the session was addressed by token.
type SessionRevokedPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason"`
}

type SessionsRevokedAllPayload struct {
	Count int64 `json:"count"`
}

type SessionsSweptPayload struct {
	Count int64 `json:"count"`
}

type QuotaDeniedPayload struct {
	Resource domain.ResourceType `json:"resource"`
	Current  int64               `json:"current"`
	Limit    int64               `json:"limit"`
}
