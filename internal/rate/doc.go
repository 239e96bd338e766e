// Package rate implements the sliding-window attempt limiter used by the
// authentication flows.
//
// # Window semantics
//
// Every recorded attempt keeps its own timestamp. A check first purges stamps at or
// before now-window and then denies when the remaining count reaches maxAttempts.
// Records that purge to empty are deleted. maxAttempts <= 0 always denies and
// window <= 0 treats every prior attempt as expired.
//
// # Backends
//
//   - [Memory]: per-key records in a sync.Map, each guarded by its own mutex. Keys never
//     contend with each other.
//   - [Redis]: one sorted set per key (score = unix millis). Purge and count run in one
//     Lua script so a check is atomic with respect to concurrent records.
//
// # Keys
//
// [Key] builds "<action>_<identifier>" with the identifier sanitized, lower-cased and
// stripped of whitespace so that case and spacing variants share one record.
//
// # What this package must NOT do
//
//   - Decide what a denial means for the caller (authflow maps it to RATE_LIMITED).
//   - Roll back recorded attempts; only [Memory.Clear] and [Redis.Clear] remove them.
package rate
