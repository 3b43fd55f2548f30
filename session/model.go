package session

import "time"

// Session is a time-bounded, revocable proof of prior authentication.
// ID is the hex SHA-256 of the bearer token.
type Session struct {
	ID             string
	AccountID      string
	IP             string
	UserAgent      string
	DeviceName     string
	Country        string
	RememberMe     bool
	Active         bool
	Timeout        time.Duration
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	out := *s
	return &out
}
