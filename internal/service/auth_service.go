package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/auth"
	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

// AuthService coordinates registration, login and logout. Each flow that
// writes more than one record does so in a single transaction.
type AuthService struct {
	store       repository.Store
	credentials *CredentialStore
	sessions    *SessionRegistry
	tokens      *auth.TokenManager
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	clock       func() time.Time
}

// AuthDependencies bundles the collaborators of AuthService.
type AuthDependencies struct {
	Store       repository.Store
	Credentials *CredentialStore
	Sessions    *SessionRegistry
	Tokens      *auth.TokenManager
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	s := &AuthService{
		store:       deps.Store,
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		clock:       deps.Clock,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email    string
	Password string
	Username *string
}

// AuthResult is returned by successful register and login calls.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Principal *domain.Principal
	Session   *domain.Session
}

// Register creates a principal and its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, device domain.Device) (*AuthResult, error) {
	p, err := s.credentials.prepare(in.Email, in.Password, in.Username)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(p, 0)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	session := s.sessions.newSession(p.ID, auth.HashToken(token), expiresAt, device)

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := s.credentials.insert(ctx, tx.Principals(), p); err != nil {
			return err
		}
		return s.sessions.insert(ctx, tx.Sessions(), session)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("principal registered", zap.String("principal_id", p.ID))
	s.publish(ctx, events.EventPrincipalRegistered, p.ID, events.PrincipalRegisteredPayload{Email: p.Email, Tier: p.Tier})
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Principal: p, Session: session}, nil
}

// Login verifies credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string, device domain.Device) (*AuthResult, error) {
	p, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(p, 0)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	session := s.sessions.newSession(p.ID, auth.HashToken(token), expiresAt, device)
	now := s.clock().UTC()

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Principals().TouchLogin(ctx, p.ID, now); err != nil {
			return fmt.Errorf("touch login: %w", err)
		}
		return s.sessions.insert(ctx, tx.Sessions(), session)
	})
	if err != nil {
		return nil, err
	}
	p.LastLoginAt = &now

	s.logger.Info("principal logged in", zap.String("principal_id", p.ID), zap.String("session_id", session.ID))
	s.publish(ctx, events.EventPrincipalLoggedIn, p.ID, events.PrincipalLoggedInPayload{
		SessionID: session.ID,
		UserAgent: device.UserAgent,
		IP:        device.IP,
	})
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Principal: p, Session: session}, nil
}

// Logout revokes the session of rawToken. The token does not need to be
// valid: an expired or unknown token is simply a no-op.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	revoked, err := s.sessions.RevokeToken(ctx, auth.HashToken(rawToken))
	if err != nil {
		return err
	}
	if revoked {
		var principalID string
		if claims, err := s.tokens.Verify(rawToken); err == nil {
			principalID = claims.PrincipalID()
		}
		s.publish(ctx, events.EventSessionRevoked, principalID, events.SessionRevokedPayload{Reason: "logout"})
	}
	return nil
}

// LogoutAll revokes every session of principalID.
func (s *AuthService) LogoutAll(ctx context.Context, principalID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, principalID)
}

// ListSessions returns the principal's live sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, principalID string) ([]domain.Session, error) {
	return s.sessions.List(ctx, principalID)
}

// RevokeSession deletes one of the principal's own sessions.
func (s *AuthService) RevokeSession(ctx context.Context, principalID, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID, principalID)
}

// Deactivate disables the principal and drops all of its sessions.
func (s *AuthService) Deactivate(ctx context.Context, principalID string) (int64, error) {
	var revoked int64
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Principals().SetActive(ctx, principalID, false); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPrincipalNotFound
			}
			return fmt.Errorf("deactivate principal: %w", err)
		}
		n, err := tx.Sessions().DeleteAllForPrincipal(ctx, principalID)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		revoked = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("principal deactivated", zap.String("principal_id", principalID), zap.Int64("revoked_sessions", revoked))
	s.publish(ctx, events.EventPrincipalDeactivated, principalID, events.PrincipalDeactivatedPayload{RevokedSessions: revoked})
	return revoked, nil
}

// ChangeTier moves a principal to tier. Tokens issued earlier keep their old
// tier claim; quota decisions read the stored principal.
func (s *AuthService) ChangeTier(ctx context.Context, principalID string, tier domain.Tier) error {
	p, err := s.credentials.Get(ctx, principalID)
	if err != nil {
		return err
	}
	if err := s.credentials.ChangeTier(ctx, principalID, tier); err != nil {
		return err
	}
	s.publish(ctx, events.EventTierChanged, principalID, events.TierChangedPayload{OldTier: p.Tier, NewTier: tier})
	return nil
}

func (s *AuthService) publish(ctx context.Context, typ events.EventType, principalID string, payload any) {
	publishEvent(ctx, s.dispatcher, s.logger, s.clock, typ, principalID, payload)
}
