// Package audit implements async dispatch of authentication events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured record of one sign-in, sign-up, OTP or sign-out outcome.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Coordinator does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authflow or any sibling internal package.
//   - Carry raw credentials. Identifiers arrive already masked.
package audit
