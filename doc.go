// Package authcore is the authentication, session and authorization core of
// an HR platform: registration with email verification, password login
// with optional TOTP second factor, password change and reset, brute-force
// lockout, concurrent session management and role-based permissions.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and the request/result value types. The components it coordinates live
// in their own packages (password, permission, guard, session, mfa,
// notify, audit) and persistence is pluggable through identity.Store,
// identity.AttemptLog and session.Store. Redis clients, challenge
// encoding and throttling stay under internal/.
//
// # What this package must NOT do
//
//   - Return raw backend errors. Store and notifier failures surface as
//     ErrStoreUnavailable or ErrNotifierUnavailable.
//   - Reveal whether an email is registered on Register, Login,
//     ResendVerification or InitiatePasswordReset.
//   - Persist bearer tokens, reset tokens or backup codes in plaintext.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
