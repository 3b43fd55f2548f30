package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/keylock"
)

/*
====================================
ACCOUNT GUARD CONFIG
====================================
*/

// Config controls lockout and the suspicious-activity heuristics.
type Config struct {
	Threshold       int
	LockoutDuration time.Duration

	FailureWindow        time.Duration
	FailureAlertCount    int
	ActivityWindow       time.Duration
	MaxDistinctIPs       int
	MaxDistinctCountries int
	// OffHoursStart and OffHoursEnd are hours of the day in Location.
	// The window wraps midnight when start > end.
	OffHoursStart int
	OffHoursEnd   int
	Location      *time.Location

	MaxCASRetries int
}

// DefaultConfig returns the recommended guard configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:            5,
		LockoutDuration:      15 * time.Minute,
		FailureWindow:        time.Hour,
		FailureAlertCount:    3,
		ActivityWindow:       24 * time.Hour,
		MaxDistinctIPs:       2,
		MaxDistinctCountries: 1,
		OffHoursStart:        22,
		OffHoursEnd:          6,
		Location:             time.UTC,
		MaxCASRetries:        5,
	}
}

// Validate checks the configuration for values that would disable the guard.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return errors.New("guard: Threshold must be >= 1")
	}
	if c.LockoutDuration <= 0 {
		return errors.New("guard: LockoutDuration must be > 0")
	}
	if c.FailureWindow <= 0 || c.ActivityWindow <= 0 {
		return errors.New("guard: activity windows must be > 0")
	}
	if c.OffHoursStart < 0 || c.OffHoursStart > 23 || c.OffHoursEnd < 0 || c.OffHoursEnd > 23 {
		return errors.New("guard: off-hours bounds must be in [0,23]")
	}
	return nil
}

// AccountStore is the subset of identity.Store the guard needs.
type AccountStore interface {
	GetAccountByEmail(ctx context.Context, email string) (identity.Account, error)
	GetAccountByID(ctx context.Context, id string) (identity.Account, error)
	UpdateAccount(ctx context.Context, account identity.Account) (identity.Account, error)
}

// Outcome describes the account state after RecordAttempt.
type Outcome struct {
	FailedLogins int
	Locked       bool
	LockedUntil  time.Time
	// JustLocked is true only for the attempt that crossed the threshold.
	JustLocked bool
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock sets the time source.
func WithClock(c identity.Clock) Option {
	return func(g *Guard) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithAudit sets the sink for lockout and suspicious-activity events.
func WithAudit(s audit.Sink) Option {
	return func(g *Guard) {
		if s != nil {
			g.audit = s
		}
	}
}

// Guard is the AccountGuard.
type Guard struct {
	accounts AccountStore
	attempts identity.AttemptLog
	cfg      Config
	clock    identity.Clock
	logger   *slog.Logger
	audit    audit.Sink
	locks    *keylock.Locker
}

// New builds a Guard. Zero config fields take defaults.
func New(accounts AccountStore, attempts identity.AttemptLog, cfg Config, opts ...Option) *Guard {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = def.FailureWindow
	}
	if cfg.FailureAlertCount <= 0 {
		cfg.FailureAlertCount = def.FailureAlertCount
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = def.ActivityWindow
	}
	if cfg.MaxDistinctIPs <= 0 {
		cfg.MaxDistinctIPs = def.MaxDistinctIPs
	}
	if cfg.MaxDistinctCountries <= 0 {
		cfg.MaxDistinctCountries = def.MaxDistinctCountries
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = def.MaxCASRetries
	}

	g := &Guard{
		accounts: accounts,
		attempts: attempts,
		cfg:      cfg,
		clock:    identity.SystemClock{},
		logger:   slog.Default(),
		audit:    audit.NoOpSink{},
		locks:    keylock.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsLocked reports whether the account behind email is inside a lock
// window. Unknown emails are never locked.
func (g *Guard) IsLocked(ctx context.Context, email string) (bool, error) {
	acc, err := g.accounts.GetAccountByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return acc.IsLocked(g.clock.Now()), nil
}

// RecordAttempt appends the attempt to the log and updates the account's
// lockout state. The log append is best effort and never fails the call.
func (g *Guard) RecordAttempt(ctx context.Context, a identity.LoginAttempt) (Outcome, error) {
	now := g.clock.Now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = now
	}
	if err := g.attempts.AppendAttempt(ctx, a); err != nil {
		g.logger.Warn("login attempt not recorded", "account_id", a.AccountID, "error", err)
	}

	if a.AccountID == "" {
		return Outcome{}, nil
	}

	unlock := g.locks.Lock(a.AccountID)
	defer unlock()

	for i := 0; i <= g.cfg.MaxCASRetries; i++ {
		acc, err := g.accounts.GetAccountByID(ctx, a.AccountID)
		if err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return Outcome{}, nil
			}
			return Outcome{}, err
		}

		next, out, changed := g.apply(acc, a, now)
		if !changed {
			return out, nil
		}

		if _, err := g.accounts.UpdateAccount(ctx, next); err != nil {
			if errors.Is(err, identity.ErrConflict) {
				continue
			}
			return Outcome{}, err
		}

		if out.JustLocked {
			g.audit.Emit(ctx, audit.Event{
				EventType:   "account_locked",
				Description: "account locked after repeated failed logins",
				AccountID:   acc.ID,
				Severity:    audit.SeverityHigh,
				IP:          a.IP,
				UserAgent:   a.UserAgent,
				Metadata: map[string]string{
					"failed_logins": strconv.Itoa(out.FailedLogins),
					"locked_until":  out.LockedUntil.Format(time.RFC3339),
				},
			})
		}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("guard: %w after %d retries", identity.ErrConflict, g.cfg.MaxCASRetries)
}

func (g *Guard) apply(acc identity.Account, a identity.LoginAttempt, now time.Time) (identity.Account, Outcome, bool) {
	if a.Success {
		acc.FailedLogins = 0
		acc.LockedUntil = time.Time{}
		acc.LastLoginAt = now
		acc.LoginCount++
		acc.UpdatedAt = now
		return acc, Outcome{}, true
	}

	current := Outcome{
		FailedLogins: acc.FailedLogins,
		Locked:       acc.IsLocked(now),
	}
	if current.Locked {
		current.LockedUntil = acc.LockedUntil
	}
	if !a.FailureReason.CountsTowardLockout() || current.Locked {
		return acc, current, false
	}

	if !acc.LockedUntil.IsZero() {
		acc.FailedLogins = 0
		acc.LockedUntil = time.Time{}
	}
	acc.FailedLogins++
	acc.UpdatedAt = now

	out := Outcome{FailedLogins: acc.FailedLogins}
	if acc.FailedLogins >= g.cfg.Threshold {
		acc.LockedUntil = now.Add(g.cfg.LockoutDuration)
		out.Locked = true
		out.LockedUntil = acc.LockedUntil
		out.JustLocked = true
	}
	return acc, out, true
}

// Unlock clears the failed-login counter and any lock window.
func (g *Guard) Unlock(ctx context.Context, accountID string) error {
	unlock := g.locks.Lock(accountID)
	defer unlock()

	for i := 0; i <= g.cfg.MaxCASRetries; i++ {
		acc, err := g.accounts.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if acc.FailedLogins == 0 && acc.LockedUntil.IsZero() {
			return nil
		}
		acc.FailedLogins = 0
		acc.LockedUntil = time.Time{}
		acc.UpdatedAt = g.clock.Now()

		if _, err := g.accounts.UpdateAccount(ctx, acc); err != nil {
			if errors.Is(err, identity.ErrConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("guard: %w after %d retries", identity.ErrConflict, g.cfg.MaxCASRetries)
}
