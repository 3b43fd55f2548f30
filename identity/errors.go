package identity

import "errors"

var (
	// ErrNotFound is returned when an account, settings row or token does not exist.
	ErrNotFound = errors.New("identity: not found")
	// ErrDuplicateEmail is returned by CreateAccount when the normalized email is taken.
	ErrDuplicateEmail = errors.New("identity: email already registered")
	// ErrConflict is returned by versioned updates when the stored version moved on.
	ErrConflict = errors.New("identity: version conflict")
	// ErrTokenUsed is returned when a single-use token was already consumed.
	ErrTokenUsed = errors.New("identity: token already used")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("identity: token expired")
	// ErrUnavailable wraps every backend failure of a store implementation.
	ErrUnavailable = errors.New("identity: store unavailable")
)
