package identity

import "time"

// TokenKind distinguishes the single-use token families.
type TokenKind string

const (
	TokenPasswordReset     TokenKind = "password_reset"
	TokenEmailVerification TokenKind = "email_verification"
)

// Token is a single-use, time-bounded credential. Only the SHA-256 hash of
// the opaque value is persisted; the raw value goes to the Notifier.
type Token struct {
	Hash      string
	Kind      TokenKind
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    time.Time
}

// Usable returns nil when the token can still be redeemed at now.
// A consumed token is reported as used even after it also expired.
func (t *Token) Usable(now time.Time) error {
	if !t.UsedAt.IsZero() {
		return ErrTokenUsed
	}
	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
