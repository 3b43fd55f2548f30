// Package mfa implements TOTP multi-factor enrollment and verification
// with single-use backup codes.
//
// # Architecture boundaries
//
// Secrets and hashed backup codes live in identity.SecuritySettings. The
// service mutates them under a per-account key lock and a version
// compare-and-swap, so concurrent verifications cannot both consume the
// same backup code or TOTP step.
//
// # What this package must NOT do
//
//   - Touch the failed-login counter of an Account.
//   - Return the TOTP secret outside of Enroll.
//   - Store backup codes in plaintext.
package mfa
