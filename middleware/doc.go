// Package middleware exposes the HTTP enforcement layers in front of
// protected routes.
//
// # Gates
//
//   - [EdgeGate] — request-time pre-check using only locally decoded token
//     claims (role, expiry). Fast, network-free, best-effort.
//   - [Guard] — authoritative check against the session store's live
//     profile, including snapshot revalidation and the mandatory
//     password-change interposition.
//   - [GuardRoles] — Guard with an explicit per-route role allow-list.
//   - [LoginLimiter] — per-IP rate limiting for the login route.
//
// EdgeGate runs first on every navigation as defense-in-depth; it never
// replaces Guard because a token's role claim can be stale relative to a
// just-changed server-side role. Neither gate writes a byte of protected
// content before its checks pass.
//
// # What this package must NOT do
//
//   - Mutate session state (the Store owns it; Guard only triggers the
//     store's own FetchUser).
//   - Interpret transport error causes. Guard reacts only to the boolean
//     authenticated/loading surface the store exposes.
package middleware
