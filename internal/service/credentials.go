package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// CredentialStore owns principal records and their password hashes.
type CredentialStore struct {
	store  repository.Store
	hasher *auth.Hasher
	logger *zap.Logger
	clock  func() time.Time
}

// NewCredentialStore builds the store. A nil clock means time.Now.
func NewCredentialStore(store repository.Store, hasher *auth.Hasher, logger *zap.Logger, clock func() time.Time) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &CredentialStore{store: store, hasher: hasher, logger: logger, clock: clock}
}

// Create validates and hashes the credentials and persists a free-tier
// principal.
func (s *CredentialStore) Create(ctx context.Context, email, password string, username *string) (*domain.Principal, error) {
	p, err := s.prepare(email, password, username)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, s.store.Principals(), p); err != nil {
		return nil, err
	}
	return p, nil
}

// prepare builds an unsaved principal. Hashing happens here so that callers
// can keep it outside of any transaction.
func (s *CredentialStore) prepare(email, password string, username *string) (*domain.Principal, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock().UTC()
	return &domain.Principal{
		ID:           uuid.NewString(),
		Email:        normalized,
		Username:     name,
		PasswordHash: hashed,
		Tier:         domain.TierFree,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *CredentialStore) insert(ctx context.Context, repo repository.PrincipalRepository, p *domain.Principal) error {
	err := repo.Create(ctx, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case errors.Is(err, repository.ErrDuplicateUsername):
		return ErrDuplicateUsername
	default:
		return fmt.Errorf("create principal: %w", err)
	}
}

// Verify checks a login attempt. Every failure the caller could act on is
// reported as ErrInvalidCredentials; the reason is only logged.
func (s *CredentialStore) Verify(ctx context.Context, email, password string) (*domain.Principal, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	p, err := s.store.Principals().GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			s.logger.Info("login rejected", zap.String("reason", "unknown_email"))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login rejected", zap.String("reason", "wrong_password"), zap.String("principal_id", p.ID))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !p.Active {
		s.logger.Info("login rejected", zap.String("reason", "inactive"), zap.String("principal_id", p.ID))
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// Get loads a principal by id.
func (s *CredentialStore) Get(ctx context.Context, principalID string) (*domain.Principal, error) {
	p, err := s.store.Principals().GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

// Deactivate disables a principal. Its sessions stop passing the gate
// immediately because liveness checks principal activity.
func (s *CredentialStore) Deactivate(ctx context.Context, principalID string) error {
	return s.mutate(s.store.Principals().SetActive(ctx, principalID, false))
}

// ChangeTier moves a principal to another subscription tier.
func (s *CredentialStore) ChangeTier(ctx context.Context, principalID string, tier domain.Tier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	return s.mutate(s.store.Principals().SetTier(ctx, principalID, tier))
}

func (s *CredentialStore) mutate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPrincipalNotFound
	}
	return fmt.Errorf("update principal: %w", err)
}

// NormalizeEmail trims and lower-cases an address and rejects anything that
// is not a bare addr-spec.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || !strings.Contains(normalized, "@") {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func normalizeUsername(username *string) (*string, error) {
	if username == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*username)
	if trimmed == "" {
		return nil, nil
	}
	if !usernamePattern.MatchString(trimmed) {
		return nil, ErrInvalidUsername
	}
	return &trimmed, nil
}
