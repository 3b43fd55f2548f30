package authcore

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for a wrong password or an unknown
	// email. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the account is inside a lock window.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailNotVerified is returned by Login when verified email is required.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrMFAInvalid is returned by CompleteMFA and the MFA re-auth paths for a wrong code.
	ErrMFAInvalid = errors.New("invalid mfa code")
	// ErrMFAChallengeExpired is returned when the MFA challenge ticket expired,
	// was already used or ran out of attempts.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAAlreadyEnabled is returned by EnrollMFA and ConfirmMFA once MFA is on.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled is returned by operations that need MFA to be on.
	ErrMFANotEnabled = errors.New("mfa not enabled")

	// ErrTokenExpired is returned for a reset or verification token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for unknown, malformed or already used tokens.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSessionExpired is returned by ValidateSession for a session past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid is returned for unknown, revoked or orphaned sessions.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrPermissionDenied is returned when the actor lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAccountNotFound is returned by administrative operations on unknown ids.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from the current password")

	// ErrStoreUnavailable wraps identity, session and challenge backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotifierUnavailable wraps notifier failures on paths that surface them.
	ErrNotifierUnavailable = errors.New("notifier unavailable")

	// ErrInsecureRandom is returned by Build when the CSPRNG self-check fails.
	ErrInsecureRandom = errors.New("secure random source unavailable")
	// ErrConfigInvalid wraps every configuration validation failure.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEngineNotReady is returned when a required dependency was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind string

const (
	KindUnknown        ErrorKind = "unknown"
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindToken          ErrorKind = "token"
	KindSession        ErrorKind = "session"
	KindAuthorization  ErrorKind = "authorization"
	KindInfrastructure ErrorKind = "infrastructure"
	KindStartup        ErrorKind = "startup"
)

// Retryable reports whether the same request may succeed if repeated.
// Only infrastructure failures are retryable.
func (k ErrorKind) Retryable() bool {
	return k == KindInfrastructure
}

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidCredentials, KindAuthentication},
	{ErrAccountLocked, KindAuthentication},
	{ErrAccountDisabled, KindAuthentication},
	{ErrEmailNotVerified, KindAuthentication},
	{ErrMFAInvalid, KindAuthentication},
	{ErrMFAChallengeExpired, KindAuthentication},
	{ErrMFAAlreadyEnabled, KindValidation},
	{ErrMFANotEnabled, KindValidation},
	{ErrPasswordReuse, KindValidation},
	{ErrTokenExpired, KindToken},
	{ErrTokenInvalid, KindToken},
	{ErrSessionExpired, KindSession},
	{ErrSessionInvalid, KindSession},
	{ErrPermissionDenied, KindAuthorization},
	{ErrAccountNotFound, KindAuthorization},
	{ErrStoreUnavailable, KindInfrastructure},
	{ErrNotifierUnavailable, KindInfrastructure},
	{ErrInsecureRandom, KindStartup},
	{ErrConfigInvalid, KindStartup},
	{ErrEngineNotReady, KindStartup},
}

// KindOf classifies err. Wrapped errors are classified by their sentinel.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindUnknown
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when caller input fails validation. It
// carries every problem found, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the messages recorded for name.
func (e *ValidationError) Field(name string) []string {
	var out []string
	for _, f := range e.Fields {
		if f.Field == name {
			out = append(out, f.Message)
		}
	}
	return out
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
