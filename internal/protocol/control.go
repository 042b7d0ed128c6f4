package protocol

// Classify reports how a received frame should be dispatched.
// Only frames of exactly one byte can be control frames; payload
// ciphertexts always carry a nonce and tag and are never that short.
func Classify(frame []byte) FrameKind {
	switch {
	case len(frame) == 0:
		return FrameEmpty
	case len(frame) == 1 && frame[0] == KeepAliveMarker:
		return FrameKeepAlive
	case len(frame) == 1 && frame[0] == KeepAliveAck:
		return FrameAck
	default:
		return FramePayload
	}
}

// KeepAliveFrame returns a fresh keep-alive frame.
func KeepAliveFrame() []byte {
	return []byte{KeepAliveMarker}
}

// AckFrame returns a fresh keep-alive acknowledgment frame.
func AckFrame() []byte {
	return []byte{KeepAliveAck}
}
