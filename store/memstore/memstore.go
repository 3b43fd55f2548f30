// Package memstore is an in-memory identity.Store and identity.AttemptLog.
//
// It is meant for tests, examples and single-process deployments; nothing
// survives a restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/identity"
)

type tokenKey struct {
	kind identity.TokenKind
	hash string
}

// Store implements identity.Store and identity.AttemptLog.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]identity.Account
	byEmail  map[string]string
	settings map[string]identity.SecuritySettings
	tokens   map[tokenKey]identity.Token
	attempts []identity.LoginAttempt
}

var (
	_ identity.Store      = (*Store)(nil)
	_ identity.AttemptLog = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]identity.Account),
		byEmail:  make(map[string]string),
		settings: make(map[string]identity.SecuritySettings),
		tokens:   make(map[tokenKey]identity.Token),
	}
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return acc, nil
}

func (s *Store) CreateAccount(_ context.Context, acc identity.Account, settings identity.SecuritySettings) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc.Email = identity.NormalizeEmail(acc.Email)
	if _, taken := s.byEmail[acc.Email]; taken {
		return identity.Account{}, identity.ErrDuplicateEmail
	}
	if _, taken := s.accounts[acc.ID]; taken {
		return identity.Account{}, identity.ErrConflict
	}

	acc.Version = 1
	settings.AccountID = acc.ID
	settings.Version = 1

	s.accounts[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	s.settings[acc.ID] = settings.Clone()
	return acc, nil
}

func (s *Store) UpdateAccount(_ context.Context, acc identity.Account) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.accounts[acc.ID]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	if cur.Version != acc.Version {
		return identity.Account{}, identity.ErrConflict
	}

	acc.Email = identity.NormalizeEmail(acc.Email)
	if acc.Email != cur.Email {
		if _, taken := s.byEmail[acc.Email]; taken {
			return identity.Account{}, identity.ErrDuplicateEmail
		}
		delete(s.byEmail, cur.Email)
		s.byEmail[acc.Email] = acc.ID
	}

	acc.Version = cur.Version + 1
	s.accounts[acc.ID] = acc
	return acc, nil
}

func (s *Store) GetSecuritySettings(_ context.Context, accountID string) (identity.SecuritySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[accountID]
	if !ok {
		return identity.SecuritySettings{}, identity.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) UpdateSecuritySettings(_ context.Context, st identity.SecuritySettings) (identity.SecuritySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.settings[st.AccountID]
	if !ok {
		return identity.SecuritySettings{}, identity.ErrNotFound
	}
	if cur.Version != st.Version {
		return identity.SecuritySettings{}, identity.ErrConflict
	}

	st.Version = cur.Version + 1
	s.settings[st.AccountID] = st.Clone()
	return st.Clone(), nil
}

func (s *Store) InsertToken(_ context.Context, tok identity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tokenKey{tok.Kind, tok.Hash}
	if _, exists := s.tokens[k]; exists {
		return identity.ErrConflict
	}
	s.tokens[k] = tok
	return nil
}

func (s *Store) GetToken(_ context.Context, kind identity.TokenKind, hash string) (identity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[tokenKey{kind, hash}]
	if !ok {
		return identity.Token{}, identity.ErrNotFound
	}
	return tok, nil
}

func (s *Store) ConsumeToken(_ context.Context, kind identity.TokenKind, hash string, at time.Time) (identity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tokenKey{kind, hash}
	tok, ok := s.tokens[k]
	if !ok {
		return identity.Token{}, identity.ErrNotFound
	}
	if err := tok.Usable(at); err != nil {
		return identity.Token{}, err
	}
	tok.UsedAt = at
	s.tokens[k] = tok
	return tok, nil
}

func (s *Store) AppendAttempt(_ context.Context, a identity.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, a)
	return nil
}

func (s *Store) ListAttempts(_ context.Context, accountID string, since time.Time) ([]identity.LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []identity.LoginAttempt
	for _, a := range s.attempts {
		if a.AccountID == accountID && !a.At.Before(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Attempts returns a copy of the whole attempt log in append order.
func (s *Store) Attempts() []identity.LoginAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]identity.LoginAttempt(nil), s.attempts...)
}
