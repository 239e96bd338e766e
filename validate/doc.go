// Package validate provides the pure input checks used by the authentication flows:
// sanitation, email/password/name/phone/OTP shape rules, and password strength scoring.
//
// # Contract
//
// Every function in this package is a pure function of its arguments. Nothing here performs
// I/O, reads clocks, or keeps state between calls, so results are deterministic and safe to
// use from any goroutine.
//
// # Sanitation
//
// [Sanitize] trims, collapses internal whitespace to single spaces, strips control and
// format characters, and normalizes to NFC. It is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x) for every input. [Validator.Validate] always
// sanitizes before checking, so callers may pass raw input.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling package.
//   - Decide policy consequences; callers own rate limiting and error surfacing.
package validate
