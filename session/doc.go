// Package session persists the local user's sign-in state.
//
// # Layout
//
// The record is a flat key/value map with the fields is_logged_in, user_id,
// user_email, user_token and first_time_launch. Every [Backend] stores that same
// map: [MemoryBackend] in process memory, [RedisBackend] as one hash, and
// [SQLiteBackend] as rows of a two-column table.
//
// # Atomicity
//
// [Store.Save] writes only the fields named by a [Patch]. [Store.Clear] resets the
// whole record. Both are atomic with respect to [Store.Load]: a reader sees the
// record before or after, never in between.
//
// # What this package must NOT do
//
//   - Import authflow or any internal package (no upward imports).
//   - Interpret the session token. It is opaque here as everywhere else.
//   - Decide when a session is created or cleared; the Coordinator does.
package session
