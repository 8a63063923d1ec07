package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// DefaultTokenTTL applies when no positive TTL is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenManager issues and validates HS256 bearer tokens. It performs no I/O.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenManager builds a manager. A nil clock means time.Now.
func NewTokenManager(secret string, ttl time.Duration, clock func() time.Time) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Claims describes the JWT payload.
type Claims struct {
	Email string      `json:"email"`
	Tier  domain.Tier `json:"tier"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject claim.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// TTL reports the default lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a token for p. A non-positive ttl uses the manager's default.
// The returned expiry equals the token's exp claim.
func (tm *TokenManager) Issue(p *domain.Principal, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = tm.ttl
	}
	now := tm.clock().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Email: p.Email,
		Tier:  p.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func (tm *TokenManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// HashToken returns the persisted form of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}
