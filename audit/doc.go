// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op, fan-out).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with type, description, account, severity and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Engine, AccountGuard and MFAService.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Return errors into the caller's control flow.
//   - Import authcore or any sibling component package.
package audit
