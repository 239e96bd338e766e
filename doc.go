// Package authflow is a client-side authentication core: it sanitizes and
// validates credentials, rate-limits attempts per identifier, delegates
// verification to an external [IdentityProvider], issues opaque session tokens
// and publishes a finite [AuthState] that UI code observes.
//
// A [Coordinator] is assembled with [Builder] and started with
// [Coordinator.Start], which restores any persisted session. Its methods are
// safe to call from multiple goroutines.
//
// # State machine
//
//	Loading         -> Authenticated | Unauthenticated | Error
//	Unauthenticated -> Loading | Error
//	Error           -> Loading | Unauthenticated | Error
//	Authenticated   -> Unauthenticated
//
// Offline, invalid-input and rate-limited rejections move to Error without
// passing through Loading. SignOut always ends in Unauthenticated.
//
// # Architecture boundaries
//
// authflow is the public surface. Validation lives in validate, session
// persistence in session, rate limiting and audit dispatch under internal/.
// Concrete identity backends live under provider/ and are never imported by
// this package.
//
// # What this package must NOT do
//
//   - Surface provider error text to users. Every failure carries a fixed message.
//   - Persist credentials. Only the flat session record is stored.
//   - Roll back a recorded attempt, whatever happens to the call that made it.
package authflow
