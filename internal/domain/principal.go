package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a subscription level. Tiers are ordered by increasing quota.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Rank orders tiers; unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierEnterprise:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// ParseTier normalizes and validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Principal is an account that requests act as.
type Principal struct {
	ID            string
	Email         string
	Username      *string
	DisplayName   *string
	PasswordHash  string
	Tier          Tier
	Active        bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}
