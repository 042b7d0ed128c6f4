// Package session owns server-side tunnel session state and the shared
// reliability configuration used by both tunnel endpoints.
//
// Ownership boundary:
// - session identity, lifecycle state, and liveness metadata
// - the session registry contract and its in-memory implementation
// - reliability timeouts, backoff, and transport policy validation
//
// A Session is mutated only by the handler that owns it. The registry holds
// references for lookup and enumeration but does not own session lifecycle.
package session
