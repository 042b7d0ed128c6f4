// Package channel owns the SecureChannel abstraction: one established,
// encrypted, ordered byte-stream connection, independent of which side
// initiated it.
//
// A Channel is a raw byte pipe. It does no framing and keeps no data
// across Receive calls; interpreting boundaries is the caller's job.
// Receive reports expected conditions (idle timeout, peer close) as result
// kinds rather than errors so callers can tell them apart from faults.
package channel
