package identity

import "time"

// FailureReason classifies a failed login attempt.
type FailureReason string

const (
	FailureNone            FailureReason = ""
	FailureInvalidPassword FailureReason = "invalid_password"
	FailureUnknownAccount  FailureReason = "unknown_account"
	FailureAccountLocked   FailureReason = "account_locked"
	FailureAccountDisabled FailureReason = "account_disabled"
	FailureEmailUnverified FailureReason = "email_unverified"
	FailureMFAInvalid      FailureReason = "mfa_invalid"
)

// CountsTowardLockout reports whether the failure advances the failed-login
// counter. Only a wrong password does.
func (r FailureReason) CountsTowardLockout() bool {
	return r == FailureInvalidPassword
}

// LoginAttempt is one append-only entry of the attempt log. AccountID is
// empty when the email did not resolve to an account.
type LoginAttempt struct {
	ID            string
	AccountID     string
	Email         string
	Success       bool
	FailureReason FailureReason
	IP            string
	UserAgent     string
	Country       string
	At            time.Time
}

// DeviceInfo describes the client a session is issued to.
type DeviceInfo struct {
	IP         string
	UserAgent  string
	DeviceName string
	Country    string
	RememberMe bool
}
