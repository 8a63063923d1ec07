package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

// SessionRepository persists issued-token records.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	// FindLive returns the session for tokenHash only if it has not expired at
	// now and its principal is active.
	FindLive(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error)
	ListLive(ctx context.Context, principalID string, now time.Time) ([]domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteOwned(ctx context.Context, id, principalID string) (bool, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db DBTX
}

// NewSessionRepository returns a Postgres-backed implementation.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	const query = `
        INSERT INTO sessions (id, principal_id, token_hash, device_info, ip_address, expires_at, created_at, last_active_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.PrincipalID,
		s.TokenHash,
		s.DeviceInfo,
		s.IPAddress,
		s.ExpiresAt,
		s.CreatedAt,
		s.LastActiveAt,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *sessionRepository) FindLive(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	const query = `
        SELECT s.id, s.principal_id, s.token_hash, s.device_info, s.ip_address,
               s.expires_at, s.created_at, s.last_active_at
        FROM sessions s
        JOIN principals p ON p.id = s.principal_id
        WHERE s.token_hash=$1 AND s.expires_at > $2 AND p.is_active`

	s, err := scanSession(r.db.QueryRow(ctx, query, tokenHash, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) ListLive(ctx context.Context, principalID string, now time.Time) ([]domain.Session, error) {
	const query = `
        SELECT id, principal_id, token_hash, device_info, ip_address,
               expires_at, created_at, last_active_at
        FROM sessions
        WHERE principal_id=$1 AND expires_at > $2
        ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, principalID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *sessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE sessions SET last_active_at=$1 WHERE id=$2`
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}

func (r *sessionRepository) DeleteOwned(ctx context.Context, id, principalID string) (bool, error) {
	const query = `DELETE FROM sessions WHERE id=$1 AND principal_id=$2`
	cmd, err := r.db.Exec(ctx, query, id, principalID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	const query = `DELETE FROM sessions WHERE token_hash=$1`
	cmd, err := r.db.Exec(ctx, query, tokenHash)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *sessionRepository) DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE principal_id=$1`
	cmd, err := r.db.Exec(ctx, query, principalID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.PrincipalID,
		&s.TokenHash,
		&s.DeviceInfo,
		&s.IPAddress,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.LastActiveAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
