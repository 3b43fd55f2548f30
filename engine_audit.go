package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/audit"
)

const (
	auditEventAccountRegistered      = "account_registered"
	auditEventRegistrationDuplicate  = "registration_duplicate"
	auditEventEmailVerified          = "email_verified"
	auditEventEmailVerificationSent  = "email_verification_sent"
	auditEventEmailVerificationFail  = "email_verification_failure"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventMFARequired            = "mfa_required"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventMFAAttemptsExceeded    = "mfa_attempts_exceeded"
	auditEventMFADisableFailure      = "mfa_disable_failure"
	auditEventPasswordChanged        = "password_changed"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordRehashed       = "password_rehashed"
	auditEventPasswordResetRequested = "password_reset_requested"
	auditEventPasswordResetCompleted = "password_reset_completed"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventNotificationFailed     = "notification_failed"
	auditEventSessionEvicted         = "session_evicted"
	auditEventLogout                 = "logout"
	auditEventLogoutAll              = "logout_all"
	auditEventRoleChanged            = "role_changed"
	auditEventAccountDeactivated     = "account_deactivated"
	auditEventAccountReactivated     = "account_reactivated"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventPermissionDenied       = "permission_denied"
	auditEventRateLimited            = "rate_limited"
)

// AuditErrorCode is the stable, non-sensitive error label attached to
// failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrEmailNotVerified   AuditErrorCode = "email_not_verified"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFAExpired         AuditErrorCode = "mfa_challenge_expired"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrNotifier           AuditErrorCode = "notifier_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType   string
	description string
	severity    audit.Severity
	accountID   string
	sessionID   string
	success     bool
	err         error
	device      Device
	metadata    map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e == nil || e.sink == nil {
		return
	}

	d := withContextDevice(ctx, r.device)
	event := audit.Event{
		EventType:   r.eventType,
		Description: r.description,
		AccountID:   r.accountID,
		SessionID:   r.sessionID,
		Severity:    r.severity,
		IP:          d.IP,
		UserAgent:   d.UserAgent,
		Success:     r.success,
		Metadata:    r.metadata,
	}
	if code := auditErrorCode(r.err); code != "" {
		event.Error = string(code)
	}

	e.sink.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRateLimited,
		severity:  audit.SeverityMedium,
		metadata:  map[string]string{"scope": scope},
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrMFAInvalid):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAChallengeExpired):
		return auditErrMFAExpired
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrSessionExpired):
		return auditErrSessionInvalid
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrNotifierUnavailable):
		return auditErrNotifier
	default:
		return auditErrInternal
	}
}
