// Package local is a self-contained identity provider for development, tests
// and single-device deployments. Accounts live in SQLite with argon2id
// password hashes; phone sign-in uses hashed one-time codes with a TTL and an
// attempt cap, delivered through an [OTPSender].
//
// Failures are returned as *authflow.ProviderError carrying the codes a hosted
// identity service would use, so the coordinator classifies them the same way.
package local
