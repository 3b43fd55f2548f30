// Package identity defines the account data model and the persistence
// contracts the authentication core depends on.
//
// # Components
//
//   - [Account], [SecuritySettings], [Token], [LoginAttempt]: the records the core reads and mutates.
//   - [Store]: account, settings and single-use token persistence.
//   - [AttemptLog]: append-only login attempt log.
//   - [Clock]: injectable time source.
//
// # Architecture boundaries
//
// Implementations live in store/memstore and store/pgstore. Backend failures
// must wrap [ErrUnavailable] so callers can tell "denied" from "system down".
//
// # What this package must NOT do
//
//   - Import authcore or any sibling component package.
//   - Hash passwords or generate tokens.
package identity
