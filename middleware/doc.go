// Package middleware exposes net/http guards built on authcore.Engine
// session validation and the role registry.
//
// # Guards
//
//   - [RequireSession] rejects requests without a live session.
//   - [RequirePermission] additionally requires every listed permission.
//   - [RequireRoute] checks the request path against the role route table.
//
// Each guard reads the Authorization bearer token (or the session cookie),
// forwards client IP and user agent to the engine and stores the resolved
// [authcore.SessionInfo] in the request context.
//
// # What this package must NOT do
//
//   - Hash, parse or store session tokens itself.
//   - Make authorization decisions beyond the engine and role registry.
package middleware
