// Package connectivity answers authflow.ConnectivityCheck without blocking.
//
// [Monitor] dials a set of TCP targets on an interval and caches whether any
// was reachable. [Static] returns a fixed answer.
package connectivity
