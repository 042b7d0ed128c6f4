package protocol

const (
	// KeepAliveMarker is sent by a client to signal liveness.
	KeepAliveMarker byte = 0x01
	// KeepAliveAck is the server reply to KeepAliveMarker.
	KeepAliveAck byte = 0x02
)

// FrameKind classifies one received frame.
type FrameKind int

const (
	FrameEmpty FrameKind = iota
	FrameKeepAlive
	FrameAck
	FramePayload
)

func (k FrameKind) String() string {
	switch k {
	case FrameEmpty:
		return "empty"
	case FrameKeepAlive:
		return "keepalive"
	case FrameAck:
		return "ack"
	case FramePayload:
		return "payload"
	default:
		return "unknown"
	}
}
