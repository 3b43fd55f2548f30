package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/keylock"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
)

// Engine is the credential manager. It owns the login state machine and
// coordinates the password, guard, MFA, session and permission components.
//
// Engine instances are built once by Builder and are safe for concurrent
// use. Apart from metrics counters they hold no mutable cross-request
// state; per-account mutations serialize in the components and through
// versioned store updates.
type Engine struct {
	config      Config
	store       identity.Store
	attempts    identity.AttemptLog
	hasher      *password.Hasher
	policy      password.Policy
	roles       *permission.RoleRegistry
	sessions    *session.Manager
	guard       *guard.Guard
	mfa         *mfa.Service
	tickets     *jwt.Manager
	challenges  *stores.ChallengeStore
	limiter     *rate.Limiter
	notifier    notify.Notifier
	audit       *audit.Dispatcher
	sink        audit.Sink
	metrics     *Metrics
	clock       identity.Clock
	logger      *slog.Logger
	locks       *keylock.Locker
	defaultRole identity.Role
}

// Close drains pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events the dispatcher discarded
// because its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled. It is the
// source read by the metrics exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RoleRegistry exposes the resolved role hierarchy for menu and route checks.
func (e *Engine) RoleRegistry() *permission.RoleRegistry {
	return e.roles
}

// SweepSessions removes every expired session once and returns the count.
func (e *Engine) SweepSessions(ctx context.Context) (int, error) {
	n, err := e.sessions.Sweep(ctx)
	e.metrics.Add(MetricSessionSwept, uint64(n))
	return n, storeErr(err)
}

// RunSessionSweeper sweeps expired sessions every Config.SweepInterval
// until ctx is cancelled. It blocks; run it in its own goroutine.
func (e *Engine) RunSessionSweeper(ctx context.Context) {
	e.sessions.RunSweeper(ctx, e.config.SweepInterval)
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func recipient(a identity.Account) notify.Recipient {
	return notify.Recipient{AccountID: a.ID, Email: a.Email, Name: a.FullName}
}

func (d Device) info(rememberMe bool) identity.DeviceInfo {
	return identity.DeviceInfo{
		IP:         d.IP,
		UserAgent:  d.UserAgent,
		DeviceName: d.DeviceName,
		Country:    d.Country,
		RememberMe: rememberMe,
	}
}

// loadAccount resolves an account by id, mapping not-found to
// ErrAccountNotFound.
func (e *Engine) loadAccount(ctx context.Context, id string) (identity.Account, error) {
	if strings.TrimSpace(id) == "" {
		return identity.Account{}, ErrAccountNotFound
	}
	acc, err := e.store.GetAccountByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return identity.Account{}, ErrAccountNotFound
		}
		return identity.Account{}, storeErr(err)
	}
	return acc, nil
}

// activeAccount is loadAccount that also rejects deactivated accounts.
func (e *Engine) activeAccount(ctx context.Context, id string) (identity.Account, error) {
	acc, err := e.loadAccount(ctx, id)
	if err != nil {
		return identity.Account{}, err
	}
	if !acc.Active {
		return identity.Account{}, ErrAccountDisabled
	}
	return acc, nil
}

func alertFor(reason string, at time.Time, details ...string) notify.Alert {
	return notify.Alert{Reason: reason, Details: details, At: at}
}

const maxCASRetries = 5

// mutateAccount applies fn to the freshest copy of the account and writes
// it back with a versioned update, retrying on conflicts. fn returning
// errUnchanged skips the write.
func (e *Engine) mutateAccount(ctx context.Context, id string, fn func(*identity.Account) error) (identity.Account, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	for i := 0; i <= maxCASRetries; i++ {
		acc, err := e.loadAccount(ctx, id)
		if err != nil {
			return identity.Account{}, err
		}
		if err := fn(&acc); err != nil {
			if errors.Is(err, errUnchanged) {
				return acc, nil
			}
			return identity.Account{}, err
		}
		acc.UpdatedAt = e.clock.Now()

		updated, err := e.store.UpdateAccount(ctx, acc)
		if err != nil {
			if errors.Is(err, identity.ErrConflict) {
				continue
			}
			return identity.Account{}, storeErr(err)
		}
		return updated, nil
	}
	return identity.Account{}, fmt.Errorf("%w: account %s: %v after %d retries", ErrStoreUnavailable, id, identity.ErrConflict, maxCASRetries)
}

var errUnchanged = errors.New("unchanged")

func isNotFound(err error) bool {
	return errors.Is(err, identity.ErrNotFound)
}
