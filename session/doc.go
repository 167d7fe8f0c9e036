// Package session provides snapshot persistence for the durable subset of
// session state.
//
// Only {user, isAuthenticated, requiresPasswordChange} survive a restart;
// loading and error flags are request-lifecycle transients and are never
// persisted. A restored snapshot is an advisory hint: the store marks the
// session provisional until a profile fetch confirms it, and the route guard
// never grants access on the persisted flag alone.
//
// # What this package must NOT do
//
//   - Import the root package (no upward imports). The snapshot carries its
//     own minimal user record; the store converts at the boundary.
//   - Persist credentials. Tokens live in httpOnly cookies held by the
//     transport's cookie jar, never in a snapshot.
package session
