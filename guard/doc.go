// Package guard implements brute-force lockout and suspicious-activity
// detection on top of the identity attempt log.
//
// # Architecture boundaries
//
// Guard owns the failed-login counter and the lock window of an Account.
// Every change to them goes through RecordAttempt or Unlock, which
// serialize per account with a key lock and retry on version conflicts.
//
// # What this package must NOT do
//
//   - Verify passwords or MFA codes.
//   - Block authentication because of a suspicious-activity finding.
//   - Count non-password failures toward the lockout threshold.
package guard
