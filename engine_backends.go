package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/session"
)

// storeErr maps a backend failure onto ErrStoreUnavailable. Domain
// outcomes reported by the stores pass through unchanged. A version
// conflict that survived the bounded CAS retries counts as a failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, identity.ErrNotFound),
		errors.Is(err, identity.ErrDuplicateEmail),
		errors.Is(err, identity.ErrTokenUsed),
		errors.Is(err, identity.ErrTokenExpired),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// boundedStore applies the store timeout to every identity.Store call.
// identity.ErrConflict is passed through so CAS loops can retry.
type boundedStore struct {
	next    identity.Store
	timeout time.Duration
}

func (s boundedStore) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	if err == nil || errors.Is(err, identity.ErrConflict) {
		return err
	}
	return storeErr(err)
}

func (s boundedStore) GetAccountByEmail(ctx context.Context, email string) (out identity.Account, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.GetAccountByEmail(ctx, email)
		return err
	})
	return out, err
}

func (s boundedStore) GetAccountByID(ctx context.Context, id string) (out identity.Account, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.GetAccountByID(ctx, id)
		return err
	})
	return out, err
}

func (s boundedStore) CreateAccount(ctx context.Context, a identity.Account, st identity.SecuritySettings) (out identity.Account, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.CreateAccount(ctx, a, st)
		return err
	})
	return out, err
}

func (s boundedStore) UpdateAccount(ctx context.Context, a identity.Account) (out identity.Account, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.UpdateAccount(ctx, a)
		return err
	})
	return out, err
}

func (s boundedStore) GetSecuritySettings(ctx context.Context, accountID string) (out identity.SecuritySettings, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.GetSecuritySettings(ctx, accountID)
		return err
	})
	return out, err
}

func (s boundedStore) UpdateSecuritySettings(ctx context.Context, st identity.SecuritySettings) (out identity.SecuritySettings, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.UpdateSecuritySettings(ctx, st)
		return err
	})
	return out, err
}

func (s boundedStore) InsertToken(ctx context.Context, t identity.Token) error {
	return s.call(ctx, func(ctx context.Context) error {
		return s.next.InsertToken(ctx, t)
	})
}

func (s boundedStore) GetToken(ctx context.Context, kind identity.TokenKind, hash string) (out identity.Token, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.GetToken(ctx, kind, hash)
		return err
	})
	return out, err
}

func (s boundedStore) ConsumeToken(ctx context.Context, kind identity.TokenKind, hash string, at time.Time) (out identity.Token, err error) {
	err = s.call(ctx, func(ctx context.Context) error {
		out, err = s.next.ConsumeToken(ctx, kind, hash, at)
		return err
	})
	return out, err
}

type boundedAttemptLog struct {
	next    identity.AttemptLog
	timeout time.Duration
}

func (l boundedAttemptLog) AppendAttempt(ctx context.Context, a identity.LoginAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return storeErr(l.next.AppendAttempt(ctx, a))
}

func (l boundedAttemptLog) ListAttempts(ctx context.Context, accountID string, since time.Time) ([]identity.LoginAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	out, err := l.next.ListAttempts(ctx, accountID, since)
	return out, storeErr(err)
}

type boundedSessionStore struct {
	next    session.Store
	timeout time.Duration
}

func (s boundedSessionStore) Put(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return storeErr(s.next.Put(ctx, sess, ttl))
}

func (s boundedSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.next.Get(ctx, id)
	return out, storeErr(err)
}

func (s boundedSessionStore) Touch(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return storeErr(s.next.Touch(ctx, sess, ttl))
}

func (s boundedSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ok, err := s.next.Delete(ctx, id)
	return ok, storeErr(err)
}

func (s boundedSessionStore) ListByAccount(ctx context.Context, accountID string) ([]*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.next.ListByAccount(ctx, accountID)
	return out, storeErr(err)
}

func (s boundedSessionStore) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.next.SweepExpired(ctx, now, limit)
	return n, storeErr(err)
}

// boundedNotifier applies the notifier timeout and wraps every failure in
// ErrNotifierUnavailable. Whether a failure reaches the caller is decided
// per operation.
type boundedNotifier struct {
	next    notify.Notifier
	timeout time.Duration
	onFail  func(kind notify.Kind, err error)
}

func (n boundedNotifier) call(ctx context.Context, kind notify.Kind, fn func(context.Context) error) error {
	// Notifications follow committed state changes and must not be cut
	// short by the caller going away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		if n.onFail != nil {
			n.onFail(kind, err)
		}
		return fmt.Errorf("%w: %v", ErrNotifierUnavailable, err)
	}
	return nil
}

func (n boundedNotifier) SendWelcome(ctx context.Context, to notify.Recipient) error {
	return n.call(ctx, notify.KindWelcome, func(ctx context.Context) error {
		return n.next.SendWelcome(ctx, to)
	})
}

func (n boundedNotifier) SendVerification(ctx context.Context, to notify.Recipient, token string, expiresAt time.Time) error {
	return n.call(ctx, notify.KindVerification, func(ctx context.Context) error {
		return n.next.SendVerification(ctx, to, token, expiresAt)
	})
}

func (n boundedNotifier) SendPasswordReset(ctx context.Context, to notify.Recipient, token string, expiresAt time.Time) error {
	return n.call(ctx, notify.KindPasswordReset, func(ctx context.Context) error {
		return n.next.SendPasswordReset(ctx, to, token, expiresAt)
	})
}

func (n boundedNotifier) SendPasswordChangedConfirmation(ctx context.Context, to notify.Recipient, at time.Time) error {
	return n.call(ctx, notify.KindPasswordChanged, func(ctx context.Context) error {
		return n.next.SendPasswordChangedConfirmation(ctx, to, at)
	})
}

func (n boundedNotifier) SendLoginNotification(ctx context.Context, to notify.Recipient, device notify.Device) error {
	return n.call(ctx, notify.KindLogin, func(ctx context.Context) error {
		return n.next.SendLoginNotification(ctx, to, device)
	})
}

func (n boundedNotifier) SendSecurityAlert(ctx context.Context, to notify.Recipient, alert notify.Alert) error {
	return n.call(ctx, notify.KindSecurityAlert, func(ctx context.Context) error {
		return n.next.SendSecurityAlert(ctx, to, alert)
	})
}

func (n boundedNotifier) SendAccountLocked(ctx context.Context, to notify.Recipient, until time.Time) error {
	return n.call(ctx, notify.KindAccountLocked, func(ctx context.Context) error {
		return n.next.SendAccountLocked(ctx, to, until)
	})
}
