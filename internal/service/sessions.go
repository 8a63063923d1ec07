package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/events"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

// maxDeviceInfo bounds the stored User-Agent.
const maxDeviceInfo = 512

// SessionRegistry records issued tokens by hash and decides whether a
// presented token is still live.
type SessionRegistry struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// NewSessionRegistry builds the registry. dispatcher may be nil.
func NewSessionRegistry(store repository.Store, dispatcher events.Dispatcher, logger *zap.Logger, clock func() time.Time) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionRegistry{store: store, dispatcher: dispatcher, logger: logger, clock: clock}
}

// Register records a session for tokenHash expiring at expiresAt.
func (r *SessionRegistry) Register(ctx context.Context, principalID, tokenHash string, expiresAt time.Time, device domain.Device) (*domain.Session, error) {
	session := r.newSession(principalID, tokenHash, expiresAt, device)
	if err := r.insert(ctx, r.store.Sessions(), session); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *SessionRegistry) newSession(principalID, tokenHash string, expiresAt time.Time, device domain.Device) *domain.Session {
	now := r.clock().UTC()
	s := &domain.Session{
		ID:           uuid.NewString(),
		PrincipalID:  principalID,
		TokenHash:    tokenHash,
		ExpiresAt:    expiresAt.UTC(),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if ua := device.UserAgent; ua != "" {
		ua = truncateUTF8(ua, maxDeviceInfo)
		s.DeviceInfo = &ua
	}
	if ip := device.IP; ip != "" {
		s.IPAddress = &ip
	}
	return s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *SessionRegistry) insert(ctx context.Context, repo repository.SessionRepository, s *domain.Session) error {
	if err := repo.Create(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Confirm returns the live session for tokenHash. Expiry and principal
// activity are checked in the same read, so a sweep that has not run yet never
// lets an expired token through.
func (r *SessionRegistry) Confirm(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s, err := r.store.Sessions().FindLive(ctx, tokenHash, r.clock())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotLive
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// IsLive reports whether tokenHash belongs to a live session.
func (r *SessionRegistry) IsLive(ctx context.Context, tokenHash string) (bool, error) {
	_, err := r.Confirm(ctx, tokenHash)
	if errors.Is(err, ErrSessionNotLive) {
		return false, nil
	}
	return err == nil, err
}

// Touch refreshes last_active_at. Failures are logged and otherwise ignored.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) {
	if err := r.store.Sessions().Touch(ctx, sessionID, r.clock().UTC()); err != nil {
		r.logger.Debug("session touch failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Revoke deletes one session owned by principalID. Sessions that do not exist
// and sessions owned by someone else are indistinguishable to the caller.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, principalID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrSessionNotFound
	}
	ok, err := r.store.Sessions().DeleteOwned(ctx, sessionID, principalID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	r.publish(ctx, events.EventSessionRevoked, principalID, events.SessionRevokedPayload{SessionID: sessionID, Reason: "device_revoked"})
	return nil
}

// RevokeToken deletes the session for a presented token. Unknown tokens are
// not an error.
func (r *SessionRegistry) RevokeToken(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.store.Sessions().DeleteByTokenHash(ctx, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// RevokeAll deletes every session of principalID and returns how many there
// were.
func (r *SessionRegistry) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	n, err := r.store.Sessions().DeleteAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	r.publish(ctx, events.EventSessionsRevokedAll, principalID, events.SessionsRevokedAllPayload{Count: n})
	return n, nil
}

// List returns the principal's unexpired sessions, newest first.
func (r *SessionRegistry) List(ctx context.Context, principalID string) ([]domain.Session, error) {
	sessions, err := r.store.Sessions().ListLive(ctx, principalID, r.clock())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Sweep deletes expired sessions. Running it again right away deletes nothing.
func (r *SessionRegistry) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.Sessions().DeleteExpired(ctx, r.clock())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		r.publish(ctx, events.EventSessionsSwept, "", events.SessionsSweptPayload{Count: n})
	}
	return n, nil
}

func (r *SessionRegistry) publish(ctx context.Context, typ events.EventType, principalID string, payload any) {
	publishEvent(ctx, r.dispatcher, r.logger, r.clock, typ, principalID, payload)
}

// publishEvent delivers an event without letting handler failures reach the
// caller.
func publishEvent(ctx context.Context, d events.Dispatcher, logger *zap.Logger, clock func() time.Time, typ events.EventType, principalID string, payload any) {
	if d == nil {
		return
	}
	event := events.Event{
		ID:          uuid.NewString(),
		Type:        typ,
		PrincipalID: principalID,
		Timestamp:   clock().UTC(),
		Payload:     payload,
	}
	if err := d.Publish(ctx, event); err != nil {
		logger.Warn("event handlers failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}
