package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter is a DBTX that can open transactions, e.g. *pgxpool.Pool.
type TxStarter interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store groups the repositories that must be able to share a transaction.
type Store interface {
	Principals() PrincipalRepository
	Sessions() SessionRepository
	// InTx runs fn against a transactional Store. fn's writes are committed
	// together when it returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}

type pgStore struct {
	db         TxStarter
	principals PrincipalRepository
	sessions   SessionRepository
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(db TxStarter) Store {
	return &pgStore{
		db:         db,
		principals: NewPrincipalRepository(db),
		sessions:   NewSessionRepository(db),
	}
}

func (s *pgStore) Principals() PrincipalRepository { return s.principals }
func (s *pgStore) Sessions() SessionRepository     { return s.sessions }

func (s *pgStore) InTx(ctx context.Context, fn func(Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTxStore{
			principals: NewPrincipalRepository(tx),
			sessions:   NewSessionRepository(tx),
		})
	})
}

type pgTxStore struct {
	principals PrincipalRepository
	sessions   SessionRepository
}

func (s *pgTxStore) Principals() PrincipalRepository { return s.principals }
func (s *pgTxStore) Sessions() SessionRepository     { return s.sessions }

// InTx on a transactional store reuses the open transaction.
func (s *pgTxStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(s)
}
