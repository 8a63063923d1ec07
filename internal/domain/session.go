package domain

import "time"

// Session pairs the hash of an issued token with its owner. The raw token is
// never stored.
type Session struct {
	ID           string
	PrincipalID  string
	TokenHash    string
	DeviceInfo   *string
	IPAddress    *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Device carries optional client metadata recorded with a session.
type Device struct {
	UserAgent string
	IP        string
}
