package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/guard"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Login describes the login operation and its observable behavior.
//
// Login checks the lock window, verifies the password, and either issues
// a session (LoginAuthenticated) or, for MFA-enabled accounts, returns a
// short-lived challenge ticket (LoginMFAPending) to be redeemed by
// CompleteMFA. Unknown emails cost the same password-hash work as known
// ones and fail with ErrInvalidCredentials.
//
// Every outcome is appended to the attempt log. The failure that reaches
// the lockout threshold still reports ErrInvalidCredentials; the next
// attempt reports ErrAccountLocked.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	d := withContextDevice(ctx, in.Device)
	attempt := identity.LoginAttempt{
		Email:     in.Email,
		IP:        d.IP,
		UserAgent: d.UserAgent,
		Country:   d.Country,
	}

	acc, err := e.store.GetAccountByEmail(ctx, identity.NormalizeEmail(in.Email))
	if err != nil {
		if !isNotFound(err) {
			return nil, storeErr(err)
		}
		e.hasher.VerifyDummy(in.Password)
		attempt.FailureReason = identity.FailureUnknownAccount
		return nil, e.loginFailed(ctx, attempt, d, ErrInvalidCredentials)
	}
	attempt.AccountID = acc.ID

	if acc.IsLocked(e.clock.Now()) {
		e.metricInc(MetricLoginLocked)
		attempt.FailureReason = identity.FailureAccountLocked
		return nil, e.loginFailed(ctx, attempt, d, ErrAccountLocked)
	}

	ok, verr := e.hasher.Verify(in.Password, acc.PasswordHash)
	switch {
	case errors.Is(verr, password.ErrEmptyPassword), errors.Is(verr, password.ErrPasswordTooLong):
		e.hasher.VerifyDummy(in.Password)
	case verr != nil:
		e.logger.Error("stored password hash unreadable", "account_id", acc.ID, "error", verr)
	}
	if !ok {
		attempt.FailureReason = identity.FailureInvalidPassword
		return nil, e.loginFailed(ctx, attempt, d, ErrInvalidCredentials)
	}

	if !acc.Active {
		attempt.FailureReason = identity.FailureAccountDisabled
		return nil, e.loginFailed(ctx, attempt, d, ErrAccountDisabled)
	}
	if e.config.RequireVerifiedEmail && !acc.EmailVerified {
		attempt.FailureReason = identity.FailureEmailUnverified
		return nil, e.loginFailed(ctx, attempt, d, ErrEmailNotVerified)
	}

	e.upgradeHash(ctx, acc, in.Password)

	settings, err := e.store.GetSecuritySettings(ctx, acc.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	if settings.MFAEnabled {
		return e.startMFA(ctx, acc, in.RememberMe, d)
	}
	return e.completeLogin(ctx, acc, settings, d, in.RememberMe, "password")
}

// loginFailed records a rejected attempt and returns cause. A backend
// failure while counting the attempt takes precedence, so a wrong
// password is never reported while the counter did not move.
func (e *Engine) loginFailed(ctx context.Context, a identity.LoginAttempt, d Device, cause error) error {
	e.metricInc(MetricLoginFailure)

	out, err := e.guard.RecordAttempt(ctx, a)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLoginFailure,
		severity:  audit.SeverityLow,
		accountID: a.AccountID,
		device:    d,
		err:       cause,
		metadata:  map[string]string{"reason": string(a.FailureReason)},
	})
	if err != nil {
		return storeErr(err)
	}

	if out.JustLocked {
		e.metricInc(MetricAccountLocked)
		if acc, lerr := e.store.GetAccountByID(ctx, a.AccountID); lerr == nil {
			_ = e.notifier.SendAccountLocked(ctx, recipient(acc), out.LockedUntil)
		}
	}
	return cause
}

// upgradeHash re-hashes a correct password stored under a legacy or
// weaker scheme. Failures are logged; the login proceeds either way.
func (e *Engine) upgradeHash(ctx context.Context, acc identity.Account, plain string) {
	stale, err := e.hasher.NeedsUpgrade(acc.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		e.logger.Warn("password rehash failed", "account_id", acc.ID, "error", err)
		return
	}

	_, err = e.mutateAccount(ctx, acc.ID, func(a *identity.Account) error {
		if a.PasswordHash != acc.PasswordHash {
			return errUnchanged
		}
		a.PasswordHash = hash
		return nil
	})
	if err != nil {
		e.logger.Warn("password rehash not stored", "account_id", acc.ID, "error", err)
		return
	}
	e.metricInc(MetricPasswordRehashed)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventPasswordRehashed,
		severity:  audit.SeverityLow,
		accountID: acc.ID,
		success:   true,
	})
}

func (e *Engine) startMFA(ctx context.Context, acc identity.Account, rememberMe bool, d Device) (*LoginResult, error) {
	jti := uuid.NewString()
	ticket, expires, err := e.tickets.Issue(acc.ID, jti)
	if err != nil {
		return nil, err
	}

	err = e.challenges.Save(ctx, jti, &stores.Challenge{
		AccountID:  acc.ID,
		ExpiresAt:  expires.Unix(),
		RememberMe: rememberMe,
		IP:         d.IP,
		UserAgent:  d.UserAgent,
		DeviceName: d.DeviceName,
		Country:    d.Country,
	}, e.tickets.TTL())
	if err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricMFALoginRequired)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventMFARequired,
		severity:  audit.SeverityLow,
		accountID: acc.ID,
		device:    d,
		success:   true,
	})

	return &LoginResult{
		State:           LoginMFAPending,
		AccountID:       acc.ID,
		Role:            acc.Role,
		ChallengeTicket: ticket,
		ChallengeExpiry: expires,
	}, nil
}

// CompleteMFA describes the completemfa operation and its observable behavior.
//
// CompleteMFA redeems the challenge ticket returned by Login with a TOTP
// code or a backup code. A wrong code returns ErrMFAInvalid; after the
// configured number of wrong codes the challenge is destroyed and every
// later call returns ErrMFAChallengeExpired, as do expired, forged or
// already redeemed tickets.
func (e *Engine) CompleteMFA(ctx context.Context, ticket, code string) (*LoginResult, error) {
	claims, err := e.tickets.Parse(ticket)
	if err != nil {
		return nil, ErrMFAChallengeExpired
	}
	jti := claims.ID

	ch, err := e.challenges.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) || errors.Is(err, stores.ErrChallengeExpired) {
			return nil, ErrMFAChallengeExpired
		}
		return nil, storeErr(err)
	}
	if ch.AccountID != claims.UID {
		return nil, ErrMFAChallengeExpired
	}

	d := Device{IP: ch.IP, UserAgent: ch.UserAgent, DeviceName: ch.DeviceName, Country: ch.Country}
	attempt := identity.LoginAttempt{
		AccountID: ch.AccountID,
		IP:        d.IP,
		UserAgent: d.UserAgent,
		Country:   d.Country,
	}

	acc, err := e.loadAccount(ctx, ch.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrMFAChallengeExpired
		}
		return nil, err
	}
	attempt.Email = acc.Email
	if acc.IsLocked(e.clock.Now()) {
		_, _ = e.challenges.Consume(ctx, jti)
		attempt.FailureReason = identity.FailureAccountLocked
		return nil, e.loginFailed(ctx, attempt, d, ErrAccountLocked)
	}
	if !acc.Active {
		_, _ = e.challenges.Consume(ctx, jti)
		attempt.FailureReason = identity.FailureAccountDisabled
		return nil, e.loginFailed(ctx, attempt, d, ErrAccountDisabled)
	}

	method, err := e.mfa.VerifyMethod(ctx, acc.ID, code)
	if err != nil {
		if errors.Is(err, mfa.ErrNotEnabled) {
			_, _ = e.challenges.Consume(ctx, jti)
			return nil, ErrMFAChallengeExpired
		}
		return nil, storeErr(err)
	}

	if method == mfa.MethodNone {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventMFAFailure,
			severity:  audit.SeverityMedium,
			accountID: acc.ID,
			device:    d,
			err:       ErrMFAInvalid,
			metadata:  map[string]string{"attempt": strconv.Itoa(int(ch.Attempts) + 1)},
		})

		exceeded, ferr := e.challenges.RecordFailure(ctx, jti, e.config.Challenge.MaxAttempts)
		attempt.FailureReason = identity.FailureMFAInvalid
		if _, err := e.guard.RecordAttempt(ctx, attempt); err != nil {
			e.logger.Warn("mfa attempt not recorded", "account_id", acc.ID, "error", err)
		}
		if ferr != nil {
			if errors.Is(ferr, stores.ErrChallengeNotFound) {
				return nil, ErrMFAChallengeExpired
			}
			return nil, storeErr(ferr)
		}
		if exceeded {
			e.metricInc(MetricMFAChallengeExhausted)
			e.emitAudit(ctx, auditRecord{
				eventType: auditEventMFAAttemptsExceeded,
				severity:  audit.SeverityHigh,
				accountID: acc.ID,
				device:    d,
				err:       ErrMFAChallengeExpired,
			})
		}
		return nil, ErrMFAInvalid
	}

	consumed, err := e.challenges.Consume(ctx, jti)
	if err != nil {
		return nil, storeErr(err)
	}
	if !consumed {
		return nil, ErrMFAChallengeExpired
	}

	if method == mfa.MethodBackupCode {
		e.metricInc(MetricBackupCodeUsed)
	}
	e.metricInc(MetricMFALoginSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventMFASuccess,
		severity:  audit.SeverityLow,
		accountID: acc.ID,
		device:    d,
		success:   true,
		metadata:  map[string]string{"method": string(method)},
	})

	settings, err := e.store.GetSecuritySettings(ctx, acc.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	return e.completeLogin(ctx, acc, settings, d, ch.RememberMe, string(method))
}

// completeLogin is the Authenticated transition: issue the session, reset
// the failure counter, run the suspicious-activity heuristics and send
// the notifications the account opted into.
func (e *Engine) completeLogin(ctx context.Context, acc identity.Account, st identity.SecuritySettings, d Device, rememberMe bool, method string) (*LoginResult, error) {
	issued, err := e.sessions.Create(ctx, acc.ID, d.info(rememberMe), session.Limits{
		Timeout:     st.SessionTimeout,
		MaxSessions: st.MaxConcurrentSessions,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	e.metricInc(MetricSessionCreated)

	if _, err := e.guard.RecordAttempt(ctx, identity.LoginAttempt{
		AccountID: acc.ID,
		Email:     acc.Email,
		Success:   true,
		IP:        d.IP,
		UserAgent: d.UserAgent,
		Country:   d.Country,
	}); err != nil {
		e.logger.Warn("successful login not recorded", "account_id", acc.ID, "error", err)
	}

	for _, id := range issued.Evicted {
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, auditRecord{
			eventType:   auditEventSessionEvicted,
			description: "session evicted by the concurrent session limit",
			severity:    audit.SeverityLow,
			accountID:   acc.ID,
			sessionID:   id,
			success:     true,
		})
	}

	findings, err := e.guard.Assess(ctx, acc.ID)
	if err != nil {
		e.logger.Warn("suspicious activity check failed", "account_id", acc.ID, "error", err)
	}
	suspicious := guard.Suspicious(findings)
	if suspicious {
		e.metricInc(MetricSuspiciousActivity)
		if st.SuspiciousActivityAlerts {
			details := make([]string, 0, len(findings))
			for _, f := range findings {
				details = append(details, f.Description)
			}
			_ = e.notifier.SendSecurityAlert(ctx, recipient(acc), notify.Alert{
				Reason:  "suspicious_login",
				Details: details,
				At:      e.clock.Now(),
			})
		}
	}
	if st.LoginNotifications {
		_ = e.notifier.SendLoginNotification(ctx, recipient(acc), notify.Device{
			IP:         d.IP,
			UserAgent:  d.UserAgent,
			DeviceName: d.DeviceName,
			Country:    d.Country,
			At:         issued.Session.CreatedAt,
		})
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLoginSuccess,
		severity:  audit.SeverityLow,
		accountID: acc.ID,
		sessionID: issued.Session.ID,
		device:    d,
		success:   true,
		metadata: map[string]string{
			"method":      method,
			"remember_me": strconv.FormatBool(rememberMe),
			"suspicious":  strconv.FormatBool(suspicious),
		},
	})

	return &LoginResult{
		State:        LoginAuthenticated,
		AccountID:    acc.ID,
		Role:         acc.Role,
		SessionToken: issued.Token,
		SessionID:    issued.Session.ID,
		ExpiresAt:    issued.Session.ExpiresAt,
		Suspicious:   suspicious,
		Evicted:      issued.Evicted,
	}, nil
}
