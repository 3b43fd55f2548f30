// Package pgstore persists accounts, security settings, single-use tokens,
// the login attempt log and the audit trail in PostgreSQL through pgx.
//
// The schema ships as embedded goose migrations; call Migrate (or Open)
// before use. Optimistic concurrency is enforced with a version column:
// updates carry the version that was read and fail with
// identity.ErrConflict when another writer got there first.
//
// # What this package must NOT do
//
//   - Hash passwords, evaluate lockout or decide authorization.
//   - Hold sessions; those live in Redis behind package session.
package pgstore
