package authcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/notify"
)

const (
	maxEmailLength    = 254
	maxFullNameLength = 100
)

// Register describes the register operation and its observable behavior.
//
// Register validates the input, creates the account with default security
// settings and mails a verification token. A request for an email that is
// already registered returns the same nil outcome after the same hashing
// work, and the owner of that email receives a security alert instead.
// Requests over the per-email throttle are dropped silently.
//
// Only a *ValidationError or an infrastructure failure is ever returned.
func (e *Engine) Register(ctx context.Context, in RegisterInput) error {
	email := identity.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.FullName)

	verr := &ValidationError{}
	validateEmail(verr, email)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		verr.add("full_name", "full name is required")
	case n > maxFullNameLength:
		verr.add("full_name", "full name is too long")
	}
	if res := e.policy.Validate(in.Password); !res.Valid {
		for _, msg := range res.Feedback {
			verr.add("password", msg)
		}
		if len(res.Feedback) == 0 {
			verr.add("password", "password does not meet the policy")
		}
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	if err := e.limiter.Allow(ctx, rate.ScopeRegister, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "register")
			return nil
		}
		return storeErr(err)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return err
	}

	existing, err := e.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		e.registrationDuplicate(ctx, existing, in.Device)
		return nil
	case !isNotFound(err):
		return storeErr(err)
	}

	now := e.clock.Now()
	acc := identity.Account{
		ID:                uuid.NewString(),
		Email:             email,
		FullName:          name,
		Role:              e.defaultRole,
		Active:            true,
		PasswordHash:      hash,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	settings := identity.DefaultSecuritySettings(acc.ID, e.config.Session.MaxSessions, e.config.Session.DefaultTimeout)
	settings.UpdatedAt = now

	created, err := e.store.CreateAccount(ctx, acc, settings)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			if existing, lookupErr := e.store.GetAccountByEmail(ctx, email); lookupErr == nil {
				e.registrationDuplicate(ctx, existing, in.Device)
			}
			return nil
		}
		return storeErr(err)
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventAccountRegistered,
		description: "account registered",
		severity:    audit.SeverityLow,
		accountID:   created.ID,
		success:     true,
		device:      in.Device,
		metadata:    map[string]string{"role": string(created.Role)},
	})

	if err := e.sendVerification(ctx, created); err != nil {
		e.logger.Warn("verification email not sent", "account_id", created.ID, "error", err)
	}
	return nil
}

func (e *Engine) registrationDuplicate(ctx context.Context, owner identity.Account, d Device) {
	e.metricInc(MetricAccountCreationDuplicate)
	d = withContextDevice(ctx, d)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventRegistrationDuplicate,
		description: "registration attempted for an existing email",
		severity:    audit.SeverityMedium,
		accountID:   owner.ID,
		device:      d,
	})

	details := []string{"Someone tried to create a new account with your email address."}
	if d.IP != "" {
		details = append(details, "IP address: "+d.IP)
	}
	_ = e.notifier.SendSecurityAlert(ctx, recipient(owner), notify.Alert{
		Reason:  "registration_attempt",
		Details: details,
		At:      e.clock.Now(),
	})
}

// VerifyEmail redeems an email-verification token. An unknown, malformed
// or already used token returns ErrTokenInvalid; an expired one
// ErrTokenExpired.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	tok, err := e.redeemToken(ctx, identity.TokenEmailVerification, token)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventEmailVerificationFail,
			severity:  audit.SeverityLow,
			err:       err,
		})
		return err
	}

	acc, err := e.mutateAccount(ctx, tok.AccountID, func(a *identity.Account) error {
		if a.EmailVerified {
			return errUnchanged
		}
		a.EmailVerified = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType:   auditEventEmailVerified,
		description: "email address verified",
		severity:    audit.SeverityLow,
		accountID:   acc.ID,
		success:     true,
	})
	_ = e.notifier.SendWelcome(ctx, recipient(acc))
	return nil
}

// ResendVerification mails a fresh verification token when email belongs
// to an active, unverified account. It always returns nil so callers
// cannot probe which emails are registered.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	if err := e.limiter.Allow(ctx, rate.ScopeVerification, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "verification")
		} else {
			e.logger.Warn("verification throttle unavailable", "error", err)
		}
		return nil
	}

	acc, err := e.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			e.logger.Warn("resend verification lookup failed", "error", err)
		}
		return nil
	}
	if !acc.Active || acc.EmailVerified {
		return nil
	}

	if err := e.sendVerification(ctx, acc); err != nil {
		e.logger.Warn("verification email not sent", "account_id", acc.ID, "error", err)
	}
	return nil
}

// SendVerification mails a fresh verification token to an authenticated
// account. Unlike ResendVerification it reports ErrNotifierUnavailable.
// Already verified accounts are a no-op.
func (e *Engine) SendVerification(ctx context.Context, accountID string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.EmailVerified {
		return nil
	}
	if !acc.Active {
		return ErrAccountDisabled
	}

	if err := e.limiter.Allow(ctx, rate.ScopeVerification, acc.Email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "verification")
			return nil
		}
		return storeErr(err)
	}
	return e.sendVerification(ctx, acc)
}

func (e *Engine) sendVerification(ctx context.Context, acc identity.Account) error {
	raw, expires, err := e.issueToken(ctx, acc.ID, identity.TokenEmailVerification, e.config.Tokens.VerificationTTL)
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	if err := e.notifier.SendVerification(ctx, recipient(acc), raw, expires); err != nil {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventNotificationFailed,
			severity:  audit.SeverityMedium,
			accountID: acc.ID,
			err:       err,
			metadata:  map[string]string{"kind": string(notify.KindVerification)},
		})
		return err
	}

	e.emitAudit(ctx, auditRecord{
		eventType: auditEventEmailVerificationSent,
		severity:  audit.SeverityLow,
		accountID: acc.ID,
		success:   true,
	})
	return nil
}

// issueToken mints a single-use token and persists its hash. The raw
// value is returned for the notifier only.
func (e *Engine) issueToken(ctx context.Context, accountID string, kind identity.TokenKind, ttl time.Duration) (string, time.Time, error) {
	raw, err := random.Token()
	if err != nil {
		return "", time.Time{}, errors.Join(ErrInsecureRandom, err)
	}

	now := e.clock.Now()
	tok := identity.Token{
		Hash:      random.HashToken(raw),
		Kind:      kind,
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := e.store.InsertToken(ctx, tok); err != nil {
		return "", time.Time{}, storeErr(err)
	}
	return raw, tok.ExpiresAt, nil
}

// redeemToken atomically consumes a single-use token of kind.
func (e *Engine) redeemToken(ctx context.Context, kind identity.TokenKind, raw string) (identity.Token, error) {
	if !random.ValidTokenFormat(raw) {
		return identity.Token{}, ErrTokenInvalid
	}
	tok, err := e.store.ConsumeToken(ctx, kind, random.HashToken(raw), e.clock.Now())
	if err != nil {
		return identity.Token{}, tokenErr(err)
	}
	return tok, nil
}

// checkToken reports whether a token could be redeemed without consuming it.
func (e *Engine) checkToken(ctx context.Context, kind identity.TokenKind, raw string) (identity.Token, error) {
	if !random.ValidTokenFormat(raw) {
		return identity.Token{}, ErrTokenInvalid
	}
	tok, err := e.store.GetToken(ctx, kind, random.HashToken(raw))
	if err != nil {
		return identity.Token{}, tokenErr(err)
	}
	if err := tok.Usable(e.clock.Now()); err != nil {
		return identity.Token{}, tokenErr(err)
	}
	return tok, nil
}

func tokenErr(err error) error {
	switch {
	case isNotFound(err), errors.Is(err, identity.ErrTokenUsed):
		return ErrTokenInvalid
	case errors.Is(err, identity.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return storeErr(err)
	}
}

func validateEmail(verr *ValidationError, email string) {
	if email == "" {
		verr.add("email", "email is required")
		return
	}
	if len(email) > maxEmailLength {
		verr.add("email", "email is too long")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		verr.add("email", "email is not a valid address")
		return
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		verr.add("email", "email is not a valid address")
	}
}
