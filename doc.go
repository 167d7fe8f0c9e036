// Package authgate implements the client-side session lifecycle for the
// school-management API: a credential transport that silently refreshes
// expired access tokens, a session store that owns the authenticated user,
// and a cross-process failure broadcast that keeps every frontend of the
// same logical session consistent.
//
// The package is designed for concurrent callers: Store and Client methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Gate], [Builder], [Config],
// the error taxonomy, and value types (User, Credentials, RoutePolicy,
// MetricsSnapshot). HTTP middleware adapters live under middleware/, token
// claim inspection under jwtclaims/, snapshot persistence under session/,
// and the pub/sub channel under broadcast/.
//
// # What this package must NOT do
//
//   - Read or mint bearer tokens. Tokens travel in httpOnly cookies managed
//     by the server; the only client-side inspection is the edge gate's
//     claim decode in jwtclaims.
//   - Retry a request more than once per 401. The retry budget is threaded
//     explicitly through the transport and defaults to one.
//   - Grant access on rehydrated state. A restored snapshot is provisional
//     until a profile fetch confirms it.
package authgate
