package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/identity"
)

// Device describes the client behind a login request. Empty IP and
// UserAgent are filled from WithClientIP and WithUserAgent.
type Device struct {
	IP         string
	UserAgent  string
	DeviceName string
	Country    string
}

// RegisterInput is the self-registration request.
type RegisterInput struct {
	Email    string
	FullName string
	Password string
	Device   Device
}

// LoginInput is the credential step of a login.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	Device     Device
}

// LoginState is the terminal state reached by Login or CompleteMFA.
type LoginState string

const (
	// LoginAuthenticated means a session was issued.
	LoginAuthenticated LoginState = "authenticated"
	// LoginMFAPending means the password was correct and a second factor
	// must be presented to CompleteMFA with ChallengeTicket.
	LoginMFAPending LoginState = "mfa_pending"
)

// LoginResult is returned by Login and CompleteMFA.
//
// SessionToken is the only copy of the bearer secret and is set only in
// the LoginAuthenticated state. ChallengeTicket is set only in the
// LoginMFAPending state.
type LoginResult struct {
	State           LoginState
	AccountID       string
	Role            identity.Role
	SessionToken    string
	SessionID       string
	ExpiresAt       time.Time
	ChallengeTicket string
	ChallengeExpiry time.Time
	// Suspicious is set when the login tripped a heuristic. The session is
	// still issued and the owner is alerted.
	Suspicious bool
	// Evicted lists the ids of sessions removed to honor the account limit.
	Evicted []string
}

// ChangePasswordInput re-authenticates with the current password.
// SessionToken, when set, is the session kept alive; every other session
// of the account is revoked.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string
	SessionToken    string
}

// SessionInfo is the outcome of a successful ValidateSession.
type SessionInfo struct {
	SessionID     string
	AccountID     string
	Email         string
	FullName      string
	Role          identity.Role
	EmailVerified bool
	MFAEnabled    bool
	Permissions   []string
	ExpiresAt     time.Time
}

// SessionView is a session as shown to its owner. It never contains the
// bearer token.
type SessionView struct {
	ID             string
	IP             string
	UserAgent      string
	DeviceName     string
	Country        string
	RememberMe     bool
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Current        bool
}

// MFAEnrollment is returned once by EnrollMFA. The secret and plaintext
// backup codes are never retrievable again.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// MFAStatus summarizes an account's second-factor state.
type MFAStatus struct {
	Enabled              bool
	Pending              bool
	BackupCodesRemaining int
}

// PasswordCheck is the scored result of CheckPassword.
type PasswordCheck struct {
	Valid    bool
	Strength string
	Score    int
	Feedback []string
}

// AuditEvent is the record handed to audit sinks.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit must not block for long; the
// engine wraps it in an asynchronous dispatcher.
type AuditSink = audit.Sink
