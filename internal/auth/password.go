package auth

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordRunes is the shortest accepted password.
	MinPasswordRunes = 8
	// MaxPasswordBytes is bcrypt's input limit; longer inputs are rejected
	// rather than silently truncated.
	MaxPasswordBytes = 72
	// MinBcryptCost is the lowest cost the hasher accepts.
	MinBcryptCost = 10
)

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordRunes)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	ErrPasswordMismatch = errors.New("password does not match")
)

// CheckPasswordPolicy validates a candidate password before hashing.
func CheckPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordRunes {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Hasher hashes and compares passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher. Costs below MinBcryptCost are raised to it.
func NewHasher(cost int) *Hasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash applies the password policy and returns the bcrypt encoding.
func (h *Hasher) Hash(password string) (string, error) {
	if err := CheckPasswordPolicy(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare verifies plain against hashed in constant time.
func (h *Hasher) Compare(hashed, plain string) error {
	if len(plain) > MaxPasswordBytes {
		return ErrPasswordMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// CompareDummy burns one comparison against a throwaway hash so that lookups
// for unknown accounts take as long as real ones.
func (h *Hasher) CompareDummy(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), h.cost)
	})
	if len(plain) > MaxPasswordBytes {
		plain = plain[:MaxPasswordBytes]
	}
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}

// Cost reports the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}
