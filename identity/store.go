package identity

import (
	"context"
	"time"
)

// Store persists accounts, their security settings and single-use tokens.
//
// Reads after writes for the same account must be strongly consistent.
// UpdateAccount and UpdateSecuritySettings compare the supplied Version
// with the stored one, return ErrConflict on mismatch, and return the
// stored record with its new Version on success.
type Store interface {
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)
	CreateAccount(ctx context.Context, account Account, settings SecuritySettings) (Account, error)
	UpdateAccount(ctx context.Context, account Account) (Account, error)

	GetSecuritySettings(ctx context.Context, accountID string) (SecuritySettings, error)
	UpdateSecuritySettings(ctx context.Context, settings SecuritySettings) (SecuritySettings, error)

	InsertToken(ctx context.Context, token Token) error
	GetToken(ctx context.Context, kind TokenKind, hash string) (Token, error)
	// ConsumeToken atomically marks the token used at the given time. It
	// returns ErrTokenUsed or ErrTokenExpired when the token cannot be
	// redeemed, so exactly one concurrent caller succeeds.
	ConsumeToken(ctx context.Context, kind TokenKind, hash string, at time.Time) (Token, error)
}

// AttemptLog is the append-only login attempt log.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, attempt LoginAttempt) error
	// ListAttempts returns the account's attempts at or after since, oldest first.
	ListAttempts(ctx context.Context, accountID string, since time.Time) ([]LoginAttempt, error)
}
