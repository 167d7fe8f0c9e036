// Package password enforces the client-side password policy applied before a
// change-password request leaves the process.
//
// Rules are checked fail-fast in a fixed order — emptiness, confirmation
// match, distinctness from the current password, then structural strength —
// and only the first failing rule is surfaced. Hashing is a server concern
// and deliberately absent here.
package password
