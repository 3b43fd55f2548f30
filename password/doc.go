// Package password implements the password policy (scoring, validation,
// generation) and credential hashing.
//
// # Hash format
//
// New hashes are Argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) still verify, and
// [Hasher.NeedsUpgrade] reports them, together with Argon2 hashes produced
// under weaker parameters, so the caller can re-hash on the next login.
//
// # Architecture boundaries
//
// This package owns policy evaluation and hashing only. It does not decide
// when a password may be changed or who may change it.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import authcore or any sibling component package.
//   - Log plaintext passwords.
//   - Fall back to a non-cryptographic random source.
package password
