// Package internal holds helpers that are private to authflow: session token and
// OTP generation plus code hashing for challenge storage.
//
// # Sub-packages
//
//   - audit: async auth event dispatch (Dispatcher + Sink implementations)
//   - rate: sliding-window attempt limiters (in-memory and Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authflow API.
//   - Be imported by any package outside the authflow module.
package internal
