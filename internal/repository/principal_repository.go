package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
)

const (
	uniqueViolation        = "23505"
	principalEmailIndex    = "principals_email_key"
	principalUsernameIndex = "principals_username_key"
	sessionTokenHashIndex  = "sessions_token_hash_key"
)

// PrincipalRepository defines persistence access for principals.
type PrincipalRepository interface {
	Create(ctx context.Context, p *domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	SetTier(ctx context.Context, id string, tier domain.Tier) error
}

type principalRepository struct {
	db DBTX
}

// NewPrincipalRepository returns a Postgres-backed implementation.
func NewPrincipalRepository(db DBTX) PrincipalRepository {
	return &principalRepository{db: db}
}

const principalColumns = `id, email, username, display_name, password_hash, tier,
               is_active, email_verified, created_at, updated_at, last_login_at`

func (r *principalRepository) Create(ctx context.Context, p *domain.Principal) error {
	const query = `
        INSERT INTO principals (id, email, username, display_name, password_hash, tier, is_active, email_verified)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.Email,
		p.Username,
		p.DisplayName,
		p.PasswordHash,
		p.Tier,
		p.Active,
		p.EmailVerified,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *principalRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE principals SET last_login_at=$1, updated_at=$1 WHERE id=$2`
	return r.execOne(ctx, query, at, id)
}

func (r *principalRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE principals SET is_active=$1, updated_at=NOW() WHERE id=$2`
	return r.execOne(ctx, query, active, id)
}

func (r *principalRepository) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	const query = `UPDATE principals SET tier=$1, updated_at=NOW() WHERE id=$2`
	return r.execOne(ctx, query, tier, id)
}

func (r *principalRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *principalRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Principal, error) {
	var (
		p    domain.Principal
		tier string
	)
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.Email,
		&p.Username,
		&p.DisplayName,
		&p.PasswordHash,
		&tier,
		&p.Active,
		&p.EmailVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.LastLoginAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Tier = domain.Tier(tier)
	return &p, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case principalEmailIndex:
		return ErrDuplicateEmail
	case principalUsernameIndex:
		return ErrDuplicateUsername
	case sessionTokenHashIndex:
		return ErrDuplicateToken
	default:
		return err
	}
}
