// Package jwtclaims inspects access-token claims for the edge gate without
// touching the network.
//
// The gate is a coarse, fast first line of defense: it decides from the
// token's role and expiry claims alone whether to let a navigation proceed.
// The claims can be stale relative to a just-changed server-side role, so
// nothing here replaces the route guard's authoritative profile-backed
// check.
//
// Two modes exist. With an Ed25519 verify key the decoder validates the
// signature like a resource server would. Without one it decodes claims
// unverified — acceptable only because the cookie carrying the token is
// httpOnly and server-set, and because every pass through the gate is
// re-checked by the guard.
package jwtclaims
