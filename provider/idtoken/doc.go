// Package idtoken verifies ID tokens from federated sign-in brokers.
//
// [Wrap] decorates an authflow.IdentityProvider: a FederatedToken whose
// Provider has a registered [Verifier] is checked locally (signature, issuer,
// audience, expiry with leeway) and mapped to a SubjectIdentity; every other
// credential goes to the wrapped provider unchanged. Supported algorithms are
// HS256 and Ed25519, with optional kid-based key selection.
package idtoken
