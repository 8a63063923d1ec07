// Package memory provides in-process repository implementations used when no
// database is configured and by tests. A Store serializes access with one
// mutex and implements InTx by working on a copy that is swapped in on
// success.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CeoatNorthstar/qhub-auth/internal/domain"
	"github.com/CeoatNorthstar/qhub-auth/internal/repository"
)

type state struct {
	principals map[string]domain.Principal
	sessions   map[string]domain.Session
}

func newState() *state {
	return &state{
		principals: make(map[string]domain.Principal),
		sessions:   make(map[string]domain.Session),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.principals {
		out.principals[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	return out
}

// Store is a repository.Store kept in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) Principals() repository.PrincipalRepository { return lockedPrincipals{s} }
func (s *Store) Sessions() repository.SessionRepository     { return lockedSessions{s} }

// InTx holds the store lock for the duration of fn.
func (s *Store) InTx(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(txStore{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) with(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

type txStore struct {
	st *state
}

func (t txStore) Principals() repository.PrincipalRepository { return principals{t.st} }
func (t txStore) Sessions() repository.SessionRepository     { return sessions{t.st} }
func (t txStore) InTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

// principals operates on state without locking.
type principals struct{ st *state }

func (p principals) Create(_ context.Context, in *domain.Principal) error {
	for _, existing := range p.st.principals {
		if existing.Email == in.Email {
			return repository.ErrDuplicateEmail
		}
		if in.Username != nil && existing.Username != nil && strings.EqualFold(*existing.Username, *in.Username) {
			return repository.ErrDuplicateUsername
		}
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	p.st.principals[in.ID] = *in
	return nil
}

func (p principals) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	found, ok := p.st.principals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &found, nil
}

func (p principals) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	for _, found := range p.st.principals {
		if found.Email == email {
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (p principals) TouchLogin(_ context.Context, id string, at time.Time) error {
	return p.update(id, func(pr *domain.Principal) {
		pr.LastLoginAt = &at
		pr.UpdatedAt = at
	})
}

func (p principals) SetActive(_ context.Context, id string, active bool) error {
	return p.update(id, func(pr *domain.Principal) {
		pr.Active = active
		pr.UpdatedAt = time.Now().UTC()
	})
}

func (p principals) SetTier(_ context.Context, id string, tier domain.Tier) error {
	return p.update(id, func(pr *domain.Principal) {
		pr.Tier = tier
		pr.UpdatedAt = time.Now().UTC()
	})
}

func (p principals) update(id string, fn func(*domain.Principal)) error {
	found, ok := p.st.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&found)
	p.st.principals[id] = found
	return nil
}

// sessions operates on state without locking.
type sessions struct{ st *state }

func (s sessions) Create(_ context.Context, in *domain.Session) error {
	for _, existing := range s.st.sessions {
		if existing.TokenHash == in.TokenHash {
			return repository.ErrDuplicateToken
		}
	}
	if _, ok := s.st.principals[in.PrincipalID]; !ok {
		return repository.ErrNotFound
	}
	s.st.sessions[in.ID] = *in
	return nil
}

func (s sessions) FindLive(_ context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	for _, found := range s.st.sessions {
		if found.TokenHash != tokenHash || found.Expired(now) {
			continue
		}
		owner, ok := s.st.principals[found.PrincipalID]
		if !ok || !owner.Active {
			return nil, repository.ErrNotFound
		}
		return &found, nil
	}
	return nil, repository.ErrNotFound
}

func (s sessions) ListLive(_ context.Context, principalID string, now time.Time) ([]domain.Session, error) {
	out := make([]domain.Session, 0)
	for _, found := range s.st.sessions {
		if found.PrincipalID == principalID && !found.Expired(now) {
			out = append(out, found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s sessions) Touch(_ context.Context, id string, at time.Time) error {
	found, ok := s.st.sessions[id]
	if !ok {
		return nil
	}
	found.LastActiveAt = at
	s.st.sessions[id] = found
	return nil
}

func (s sessions) DeleteOwned(_ context.Context, id, principalID string) (bool, error) {
	found, ok := s.st.sessions[id]
	if !ok || found.PrincipalID != principalID {
		return false, nil
	}
	delete(s.st.sessions, id)
	return true, nil
}

func (s sessions) DeleteByTokenHash(_ context.Context, tokenHash string) (int64, error) {
	return s.deleteWhere(func(found domain.Session) bool { return found.TokenHash == tokenHash }), nil
}

func (s sessions) DeleteAllForPrincipal(_ context.Context, principalID string) (int64, error) {
	return s.deleteWhere(func(found domain.Session) bool { return found.PrincipalID == principalID }), nil
}

func (s sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(func(found domain.Session) bool { return found.Expired(now) }), nil
}

func (s sessions) deleteWhere(match func(domain.Session) bool) int64 {
	var n int64
	for id, found := range s.st.sessions {
		if match(found) {
			delete(s.st.sessions, id)
			n++
		}
	}
	return n
}

// lockedPrincipals and lockedSessions wrap each call in the store lock.
type lockedPrincipals struct{ s *Store }

func (l lockedPrincipals) Create(ctx context.Context, p *domain.Principal) error {
	return l.s.with(func(st *state) error { return principals{st}.Create(ctx, p) })
}

func (l lockedPrincipals) GetByID(ctx context.Context, id string) (out *domain.Principal, err error) {
	err = l.s.with(func(st *state) error {
		out, err = principals{st}.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (l lockedPrincipals) GetByEmail(ctx context.Context, email string) (out *domain.Principal, err error) {
	err = l.s.with(func(st *state) error {
		out, err = principals{st}.GetByEmail(ctx, email)
		return err
	})
	return out, err
}

func (l lockedPrincipals) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return l.s.with(func(st *state) error { return principals{st}.TouchLogin(ctx, id, at) })
}

func (l lockedPrincipals) SetActive(ctx context.Context, id string, active bool) error {
	return l.s.with(func(st *state) error { return principals{st}.SetActive(ctx, id, active) })
}

func (l lockedPrincipals) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	return l.s.with(func(st *state) error { return principals{st}.SetTier(ctx, id, tier) })
}

type lockedSessions struct{ s *Store }

func (l lockedSessions) Create(ctx context.Context, in *domain.Session) error {
	return l.s.with(func(st *state) error { return sessions{st}.Create(ctx, in) })
}

func (l lockedSessions) FindLive(ctx context.Context, tokenHash string, now time.Time) (out *domain.Session, err error) {
	err = l.s.with(func(st *state) error {
		out, err = sessions{st}.FindLive(ctx, tokenHash, now)
		return err
	})
	return out, err
}

func (l lockedSessions) ListLive(ctx context.Context, principalID string, now time.Time) (out []domain.Session, err error) {
	err = l.s.with(func(st *state) error {
		out, err = sessions{st}.ListLive(ctx, principalID, now)
		return err
	})
	return out, err
}

func (l lockedSessions) Touch(ctx context.Context, id string, at time.Time) error {
	return l.s.with(func(st *state) error { return sessions{st}.Touch(ctx, id, at) })
}

func (l lockedSessions) DeleteOwned(ctx context.Context, id, principalID string) (ok bool, err error) {
	err = l.s.with(func(st *state) error {
		ok, err = sessions{st}.DeleteOwned(ctx, id, principalID)
		return err
	})
	return ok, err
}

func (l lockedSessions) DeleteByTokenHash(ctx context.Context, tokenHash string) (n int64, err error) {
	err = l.s.with(func(st *state) error {
		n, err = sessions{st}.DeleteByTokenHash(ctx, tokenHash)
		return err
	})
	return n, err
}

func (l lockedSessions) DeleteAllForPrincipal(ctx context.Context, principalID string) (n int64, err error) {
	err = l.s.with(func(st *state) error {
		n, err = sessions{st}.DeleteAllForPrincipal(ctx, principalID)
		return err
	})
	return n, err
}

func (l lockedSessions) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	err = l.s.with(func(st *state) error {
		n, err = sessions{st}.DeleteExpired(ctx, now)
		return err
	})
	return n, err
}
