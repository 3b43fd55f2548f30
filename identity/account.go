package identity

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleHRManager Role = "hr_manager"
	RoleUser      Role = "user"
	RoleViewer    Role = "viewer"
)

// Roles lists every valid role, highest privilege first.
var Roles = []Role{RoleAdmin, RoleHRManager, RoleUser, RoleViewer}

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHRManager, RoleUser, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Account is a registered identity. Accounts are never hard-deleted;
// deactivation clears Active.
//
// Version is bumped by the store on every successful update and is the
// compare-and-swap token for UpdateAccount.
type Account struct {
	ID                string
	Email             string
	FullName          string
	Role              Role
	Active            bool
	EmailVerified     bool
	FailedLogins      int
	LockedUntil       time.Time
	LastLoginAt       time.Time
	LoginCount        int64
	PasswordHash      string
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

// IsLocked reports whether the lock window is set and still in the future.
func (a *Account) IsLocked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SecuritySettings holds per-account security preferences and MFA material.
//
// MFASecret is set but MFAEnabled is false while an enrollment awaits
// confirmation. BackupCodes holds SHA-256 hex digests, never plaintext.
type SecuritySettings struct {
	AccountID                string
	MFAEnabled               bool
	MFASecret                string
	BackupCodes              []string
	MFALastStep              int64
	MaxConcurrentSessions    int
	SessionTimeout           time.Duration
	LoginNotifications       bool
	SuspiciousActivityAlerts bool
	UpdatedAt                time.Time
	Version                  int64
}

// MFAPending reports whether a secret was enrolled but not yet confirmed.
func (s *SecuritySettings) MFAPending() bool {
	return !s.MFAEnabled && s.MFASecret != ""
}

// DefaultSecuritySettings returns the settings created alongside a new account.
func DefaultSecuritySettings(accountID string, maxSessions int, timeout time.Duration) SecuritySettings {
	return SecuritySettings{
		AccountID:                accountID,
		MaxConcurrentSessions:    maxSessions,
		SessionTimeout:           timeout,
		LoginNotifications:       true,
		SuspiciousActivityAlerts: true,
	}
}

// Clone returns a deep copy of s.
func (s SecuritySettings) Clone() SecuritySettings {
	out := s
	if s.BackupCodes != nil {
		out.BackupCodes = append([]string(nil), s.BackupCodes...)
	}
	return out
}
