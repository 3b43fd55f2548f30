// Package stores provides Redis-backed, short-lived records for the MFA
// step of a login.
//
// # Design
//
// A challenge is stored as a versioned binary record with a TTL equal to
// the ticket lifetime. RecordFailure uses a WATCH/MULTI optimistic
// transaction with retry on contention and deletes the record once the
// attempt cap is reached. Consume deletes the record so only one caller
// can complete a challenge.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge
// records. It does NOT sign tickets, verify codes or make authentication
// decisions.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store TOTP codes, secrets or passwords.
package stores
