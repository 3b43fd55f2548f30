// Package session issues, validates and revokes bearer sessions and keeps
// them in Redis so they are valid across processes.
//
// # Tokens
//
// A session token is 32 random bytes, base64url encoded, handed to the
// caller exactly once by [Manager.Create]. Sessions are stored under the
// SHA-256 of the token, so a leaked Redis snapshot does not leak usable
// tokens.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned binary record. The leading
// bytes (version, account id) are read by the delete Lua script to maintain
// the per-account index, so their layout must not change within a version.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Manager]
// (expiry, sliding renewal, per-account ceilings, sweeping). It does not
// check whether the owning account is still active; that belongs to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authcore, permission or mfa.
//   - Store raw tokens.
//   - Make authorization decisions.
package session
