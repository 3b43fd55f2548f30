package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword re-authenticates with the current password, applies the
// password policy, rejects reuse of the current password and stores the
// new hash. Every session except in.SessionToken is revoked; with an
// empty SessionToken all sessions are revoked. Failures are audited.
func (e *Engine) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	acc, err := e.loadAccount(ctx, in.AccountID)
	if err != nil {
		return err
	}
	if !acc.Active {
		return ErrAccountDisabled
	}

	ok, _ := e.hasher.Verify(in.CurrentPassword, acc.PasswordHash)
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.passwordChangeFailed(ctx, acc.ID, ErrInvalidCredentials)
		return ErrInvalidCredentials
	}

	if err := e.checkNewPassword(in.NewPassword); err != nil {
		e.passwordChangeFailed(ctx, acc.ID, err)
		return err
	}
	if same, _ := e.hasher.Verify(in.NewPassword, acc.PasswordHash); same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.passwordChangeFailed(ctx, acc.ID, ErrPasswordReuse)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	updated, err := e.mutateAccount(ctx, acc.ID, func(a *identity.Account) error {
		// A concurrent change or reset invalidates the re-authentication.
		if a.PasswordHash != acc.PasswordHash {
			return ErrInvalidCredentials
		}
		a.PasswordHash = hash
		a.PasswordChangedAt = e.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.passwordChangeFailed(ctx, acc.ID, err)
		}
		return err
	}

	var revoked int
	if in.SessionToken != "" {
		revoked, err = e.sessions.RevokeOthers(ctx, acc.ID, in.SessionToken)
	} else {
		revoked, err = e.sessions.RevokeAll(ctx, acc.ID)
	}
	if err != nil {
		e.logger.Warn("sessions not revoked after password change", "account_id", acc.ID, "error", err)
	}
	e.metrics.Add(MetricSessionInvalidated, uint64(revoked))

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventPasswordChanged,
		description: "password changed",
		severity:    audit.SeverityMedium,
		accountID:   acc.ID,
		success:     true,
		metadata:    map[string]string{"sessions_revoked": strconv.Itoa(revoked)},
	})
	e.confirmPasswordChange(ctx, updated)
	return nil
}

func (e *Engine) passwordChangeFailed(ctx context.Context, accountID string, cause error) {
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPasswordChangeFailure,
		severity:  audit.SeverityMedium,
		accountID: accountID,
		err:       cause,
	})
}

// InitiatePasswordReset mails a single-use reset token when email belongs
// to an active account. It always returns nil: unknown emails, throttled
// requests and notifier failures look identical to the caller.
func (e *Engine) InitiatePasswordReset(ctx context.Context, email string) error {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	if err := e.limiter.Allow(ctx, rate.ScopeResetRequest, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "password_reset")
		} else {
			e.logger.Warn("reset throttle unavailable", "error", err)
		}
		return nil
	}

	acc, err := e.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("reset lookup failed", "error", err)
		}
		return nil
	}
	if !acc.Active {
		return nil
	}

	raw, expires, err := e.issueToken(ctx, acc.ID, identity.TokenPasswordReset, e.config.Tokens.ResetTTL)
	if err != nil {
		e.logger.Warn("reset token not issued", "account_id", acc.ID, "error", err)
		return nil
	}
	e.metricInc(MetricPasswordResetRequest)

	if err := e.notifier.SendPasswordReset(ctx, recipient(acc), raw, expires); err != nil {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventNotificationFailed,
			severity:  audit.SeverityMedium,
			accountID: acc.ID,
			err:       err,
			metadata:  map[string]string{"kind": string(notify.KindPasswordReset)},
		})
		return nil
	}

	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPasswordResetRequested,
		severity:  audit.SeverityMedium,
		accountID: acc.ID,
		success:   true,
	})
	return nil
}

// CompletePasswordReset describes the completepasswordreset operation and its observable behavior.
//
// The token is checked before the new password so a bad token never
// leaks policy feedback. It is consumed only after the password passed the
// policy and the account was read back, so a rejected password or an
// unreachable store leaves it usable. Consumption precedes the credential
// write: of two concurrent redemptions only one may change the password.
// If the write itself fails after consumption the token is spent and the
// user has to request a new reset. The stored hash is replaced, any
// lockout is cleared and every session of the account is revoked.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	pending, err := e.checkToken(ctx, identity.TokenPasswordReset, token)
	if err != nil {
		e.passwordResetFailed(ctx, "", err)
		return err
	}
	if err := e.checkNewPassword(newPassword); err != nil {
		e.passwordResetFailed(ctx, "", err)
		return err
	}
	if _, err := e.loadAccount(ctx, pending.AccountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			err = ErrTokenInvalid
		}
		e.passwordResetFailed(ctx, pending.AccountID, err)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	tok, err := e.redeemToken(ctx, identity.TokenPasswordReset, token)
	if err != nil {
		e.passwordResetFailed(ctx, "", err)
		return err
	}

	acc, err := e.mutateAccount(ctx, tok.AccountID, func(a *identity.Account) error {
		a.PasswordHash = hash
		a.PasswordChangedAt = e.clock.Now()
		a.FailedLogins = 0
		a.LockedUntil = time.Time{}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			err = ErrTokenInvalid
		}
		e.passwordResetFailed(ctx, tok.AccountID, err)
		return err
	}

	revoked, err := e.sessions.RevokeAll(ctx, acc.ID)
	if err != nil {
		e.logger.Warn("sessions not revoked after password reset", "account_id", acc.ID, "error", err)
	}
	e.metrics.Add(MetricSessionInvalidated, uint64(revoked))

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventPasswordResetCompleted,
		description: "password reset completed",
		severity:    audit.SeverityHigh,
		accountID:   acc.ID,
		success:     true,
		metadata:    map[string]string{"sessions_revoked": strconv.Itoa(revoked)},
	})
	e.confirmPasswordChange(ctx, acc)
	return nil
}

func (e *Engine) passwordResetFailed(ctx context.Context, accountID string, cause error) {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPasswordResetFailure,
		severity:  audit.SeverityMedium,
		accountID: accountID,
		err:       cause,
	})
}

func (e *Engine) confirmPasswordChange(ctx context.Context, acc identity.Account) {
	if err := e.notifier.SendPasswordChangedConfirmation(ctx, recipient(acc), e.clock.Now()); err != nil {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventNotificationFailed,
			severity:  audit.SeverityMedium,
			accountID: acc.ID,
			err:       err,
			metadata:  map[string]string{"kind": string(notify.KindPasswordChanged)},
		})
	}
}

// checkNewPassword applies the policy and the hasher's input limits.
func (e *Engine) checkNewPassword(pw string) error {
	verr := &ValidationError{}
	res := e.policy.Validate(pw)
	if !res.Valid {
		for _, msg := range res.Feedback {
			verr.add("password", msg)
		}
		if len(res.Feedback) == 0 {
			verr.add("password", "password does not meet the policy")
		}
	}
	return verr.orNil()
}

// GeneratePassword returns a random password of length n that satisfies
// the configured policy. n <= 0 selects the default length.
func (e *Engine) GeneratePassword(n int) (string, error) {
	pw, err := e.policy.Generate(n)
	if err != nil {
		if errors.Is(err, password.ErrGenerateLength) {
			verr := &ValidationError{}
			verr.add("length", err.Error())
			return "", verr
		}
		return "", errors.Join(ErrInsecureRandom, err)
	}
	return pw, nil
}

// CheckPassword scores pw against the configured policy without storing
// anything.
func (e *Engine) CheckPassword(pw string) PasswordCheck {
	res := e.policy.Validate(pw)
	return PasswordCheck{
		Valid:    res.Valid,
		Strength: string(res.Strength),
		Score:    res.Score,
		Feedback: res.Feedback,
	}
}
