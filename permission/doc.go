// Package permission resolves role-based permissions with inheritance.
//
// # Model
//
// Permission names are registered into a [Registry] that assigns each a
// stable bit position, and every role resolves to a fixed 512-bit [Mask]. A
// [RoleRegistry] is built once from a [Table]: the inheritance graph is
// checked for unknown references and cycles, and each role's transitive
// closure is computed and memoized so lookups never walk the graph.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It does not
// know which account holds which role; callers pass role names.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import authcore, identity, or session.
//   - Change a registry after construction.
package permission
