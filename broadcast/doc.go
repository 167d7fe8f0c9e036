// Package broadcast is the typed pub/sub channel that decouples "the session
// is dead" (discovered by the transport, deep inside a request) from "reset
// state and navigate to login" (owned by the store and the app shell).
//
// A [Bus] fans events out to local subscribers on a bounded channel drained
// by a single goroutine; Publish never blocks. When constructed with a Redis
// client the bus also mirrors events over a pub/sub channel so every process
// sharing the same logical session converges — the moral equivalent of a
// second browser tab seeing the first tab's logout. Events carry an origin
// id and a bus drops echoes of its own publishes.
//
// # What this package must NOT do
//
//   - Interpret events. Reactions (clearing the store, redirecting) belong
//     to subscribers; exactly one top-level handler per kind is expected to
//     perform the authoritative reaction.
//   - Import the root package. Event kinds are self-contained strings.
package broadcast
