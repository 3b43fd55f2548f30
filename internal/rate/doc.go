// Package rate provides a Redis-backed fixed-window limiter for
// unauthenticated request flows that must answer identically whether or
// not an account exists.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes per scope:
//   - rr: registration requests per email
//   - rp: password reset requests per email
//   - rv: verification resends per email
//
// Subjects are hashed before they become part of a key so Redis never
// holds raw email addresses.
//
// # What this package must NOT do
//
//   - Decide what a caller does when limited (the engine drops silently).
//   - Be imported outside the authcore module.
package rate
