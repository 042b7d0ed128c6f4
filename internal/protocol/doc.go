// Package protocol owns the control-frame convention layered over a raw
// secure channel.
//
// Ownership boundary:
// - keep-alive marker and acknowledgment bytes
// - classification of received frames into control or payload
//
// There is no envelope beyond raw bytes. A frame is whatever a single
// channel receive returned.
package protocol
