package dto

import (
	"time"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// RegisterRequest payload for new principals.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Username *string `json:"username,omitempty"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PrincipalSummary is the principal as embedded in auth responses.
type PrincipalSummary struct {
	ID       string      `json:"id"`
	Email    string      `json:"email"`
	Username *string     `json:"username"`
	Tier     domain.Tier `json:"tier"`
}

// AuthResponse standard response for register and login. ExpiresAt is in
// epoch seconds.
type AuthResponse struct {
	Token     string           `json:"token"`
	Principal PrincipalSummary `json:"principal"`
	ExpiresAt int64            `json:"expires_at"`
}

// PrincipalDetail is returned by the verify endpoint.
type PrincipalDetail struct {
	PrincipalSummary
	DisplayName   *string    `json:"display_name"`
	Active        bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at"`
}

// SessionResponse describes one live session.
type SessionResponse struct {
	ID           string    `json:"id"`
	DeviceInfo   *string   `json:"device_info"`
	IPAddress    *string   `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    int64     `json:"expires_at"`
	Current      bool      `json:"current"`
}

// SessionListResponse wraps the session listing.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// RevokedResponse reports how many sessions were removed.
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// NewPrincipalSummary maps a principal for responses.
func NewPrincipalSummary(p *domain.Principal) PrincipalSummary {
	return PrincipalSummary{ID: p.ID, Email: p.Email, Username: p.Username, Tier: p.Tier}
}

// NewPrincipalDetail maps a principal for the verify endpoint.
func NewPrincipalDetail(p *domain.Principal) PrincipalDetail {
	return PrincipalDetail{
		PrincipalSummary: NewPrincipalSummary(p),
		DisplayName:      p.DisplayName,
		Active:           p.Active,
		EmailVerified:    p.EmailVerified,
		CreatedAt:        p.CreatedAt,
		LastLoginAt:      p.LastLoginAt,
	}
}

// NewSessionResponse maps a session; current marks the caller's own.
func NewSessionResponse(s domain.Session, current bool) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		DeviceInfo:   s.DeviceInfo,
		IPAddress:    s.IPAddress,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt.Unix(),
		Current:      current,
	}
}
