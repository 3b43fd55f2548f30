package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/internal/random"
)

// ErrSessionExpired is returned by Validate for a session past its expiry.
// The session is deleted before the error is returned.
var ErrSessionExpired = errors.New("session: expired")

/*
====================================
SESSION MANAGER CONFIG
====================================
*/

// Config controls session lifetimes and limits.
type Config struct {
	// DefaultTimeout is the idle timeout used when Limits.Timeout is zero.
	DefaultTimeout time.Duration
	// RememberMeTimeout replaces the idle timeout for remember-me sessions.
	RememberMeTimeout time.Duration
	// MaxLifetime caps a session's age regardless of activity. Zero disables it.
	MaxLifetime time.Duration
	// MaxSessions is used when Limits.MaxSessions is zero. Zero means unlimited.
	MaxSessions int
	// RetentionGrace keeps expired records around so Validate can report
	// ErrSessionExpired instead of ErrSessionNotFound.
	RetentionGrace time.Duration
	// SweepBatch bounds one SweepExpired round trip.
	SweepBatch int
}

// DefaultConfig returns the recommended session configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    30 * time.Minute,
		RememberMeTimeout: 30 * 24 * time.Hour,
		MaxSessions:       5,
		RetentionGrace:    10 * time.Minute,
		SweepBatch:        500,
	}
}

// Limits are the per-account values taken from SecuritySettings.
type Limits struct {
	Timeout     time.Duration
	MaxSessions int
}

// Issued is the result of Create. Token is the only copy of the bearer
// secret and is never persisted.
type Issued struct {
	Token   string
	Session *Session
	Evicted []string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(c identity.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger used by the background sweeper.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithOnSweep registers fn to receive the removal count of every
// successful background sweep.
func WithOnSweep(fn func(removed int)) Option {
	return func(m *Manager) {
		m.onSweep = fn
	}
}

// Manager issues, validates and revokes sessions.
type Manager struct {
	store   Store
	cfg     Config
	clock   identity.Clock
	logger  *slog.Logger
	locks   *keylock.Locker
	onSweep func(int)
}

// NewManager builds a Manager over store. Zero config fields take defaults.
func NewManager(store Store, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.RememberMeTimeout <= 0 {
		cfg.RememberMeTimeout = def.RememberMeTimeout
	}
	if cfg.RetentionGrace < 0 {
		cfg.RetentionGrace = 0
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = def.SweepBatch
	}

	m := &Manager{
		store:  store,
		cfg:    cfg,
		clock:  identity.SystemClock{},
		logger: slog.Default(),
		locks:  keylock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a new session for accountID. Expired sessions of the
// account are purged and, when the account exceeds its limit, the least
// recently active sessions are evicted. The new session is never evicted.
func (m *Manager) Create(ctx context.Context, accountID string, dev identity.DeviceInfo, lim Limits) (Issued, error) {
	token, err := random.Token()
	if err != nil {
		return Issued{}, err
	}

	now := m.clock.Now()
	timeout := lim.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	if dev.RememberMe {
		timeout = m.cfg.RememberMeTimeout
	}

	s := &Session{
		ID:             random.HashToken(token),
		AccountID:      accountID,
		IP:             dev.IP,
		UserAgent:      dev.UserAgent,
		DeviceName:     dev.DeviceName,
		Country:        dev.Country,
		RememberMe:     dev.RememberMe,
		Active:         true,
		Timeout:        timeout,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.ExpiresAt = m.expiry(s, now)

	unlock := m.locks.Lock(accountID)
	defer unlock()

	if err := m.store.Put(ctx, s, m.ttl(s, now)); err != nil {
		return Issued{}, err
	}

	evicted, err := m.enforceLimit(ctx, s, m.maxSessions(lim), now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{Token: token, Session: s.Clone(), Evicted: evicted}, nil
}

func (m *Manager) enforceLimit(ctx context.Context, created *Session, max int, now time.Time) ([]string, error) {
	all, err := m.store.ListByAccount(ctx, created.AccountID)
	if err != nil {
		return nil, err
	}

	live := make([]*Session, 0, len(all))
	for _, s := range all {
		if s.ID == created.ID {
			continue
		}
		if m.dead(s, now) {
			if _, err := m.store.Delete(ctx, s.ID); err != nil {
				return nil, err
			}
			continue
		}
		live = append(live, s)
	}

	if max <= 0 || len(live)+1 <= max {
		return nil, nil
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].LastActivityAt.Before(live[j].LastActivityAt)
	})

	excess := len(live) + 1 - max
	evicted := make([]string, 0, excess)
	for _, s := range live[:excess] {
		if _, err := m.store.Delete(ctx, s.ID); err != nil {
			return evicted, err
		}
		evicted = append(evicted, s.ID)
	}
	return evicted, nil
}

// Validate resolves a bearer token. A live session has its activity
// timestamp refreshed and its expiry slid forward.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if !random.ValidTokenFormat(token) {
		return nil, ErrSessionNotFound
	}

	id := random.HashToken(token)
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Active {
		return nil, ErrSessionNotFound
	}

	now := m.clock.Now()
	if m.dead(s, now) {
		if _, err := m.store.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	s.LastActivityAt = now
	s.ExpiresAt = m.expiry(s, now)
	if err := m.store.Touch(ctx, s, m.ttl(s, now)); err != nil {
		return nil, err
	}
	return s, nil
}

// Revoke deletes the session behind token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if !random.ValidTokenFormat(token) {
		return nil
	}
	_, err := m.store.Delete(ctx, random.HashToken(token))
	return err
}

// RevokeByID deletes one of accountID's sessions by id. It reports false
// when no such session belongs to the account.
func (m *Manager) RevokeByID(ctx context.Context, accountID, id string) (bool, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if s.AccountID != accountID {
		return false, nil
	}
	return m.store.Delete(ctx, id)
}

// RevokeAll deletes every session of accountID and returns how many existed.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) (int, error) {
	return m.revokeExcept(ctx, accountID, "")
}

// RevokeOthers deletes every session of accountID except the one behind keepToken.
func (m *Manager) RevokeOthers(ctx context.Context, accountID, keepToken string) (int, error) {
	return m.revokeExcept(ctx, accountID, random.HashToken(keepToken))
}

func (m *Manager) revokeExcept(ctx context.Context, accountID, keepID string) (int, error) {
	unlock := m.locks.Lock(accountID)
	defer unlock()

	all, err := m.store.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, s := range all {
		if s.ID == keepID {
			continue
		}
		existed, err := m.store.Delete(ctx, s.ID)
		if err != nil {
			return n, err
		}
		if existed {
			n++
		}
	}
	return n, nil
}

// List returns the account's live sessions, most recently active first.
func (m *Manager) List(ctx context.Context, accountID string) ([]*Session, error) {
	all, err := m.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	out := make([]*Session, 0, len(all))
	for _, s := range all {
		if !s.Active || m.dead(s, now) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// Sweep removes every session past its expiry and returns the count.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.clock.Now()
	total := 0
	for {
		n, err := m.store.SweepExpired(ctx, now, m.cfg.SweepBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < m.cfg.SweepBatch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is cancelled. Failures
// are logged and the loop keeps going.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("session sweep failed", "error", err, "removed", n)
				continue
			}
			if m.onSweep != nil {
				m.onSweep(n)
			}
			if n > 0 {
				m.logger.Debug("session sweep", "removed", n)
			}
		}
	}
}

func (m *Manager) maxSessions(lim Limits) int {
	if lim.MaxSessions > 0 {
		return lim.MaxSessions
	}
	return m.cfg.MaxSessions
}

func (m *Manager) expiry(s *Session, now time.Time) time.Time {
	exp := now.Add(s.Timeout)
	if m.cfg.MaxLifetime > 0 {
		if hard := s.CreatedAt.Add(m.cfg.MaxLifetime); exp.After(hard) {
			exp = hard
		}
	}
	return exp
}

func (m *Manager) dead(s *Session, now time.Time) bool {
	if s.Expired(now) {
		return true
	}
	return m.cfg.MaxLifetime > 0 && now.After(s.CreatedAt.Add(m.cfg.MaxLifetime))
}

func (m *Manager) ttl(s *Session, now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now) + m.cfg.RetentionGrace
}
