package channel

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("channel: not connected")
	// ErrConnection matches every *ConnectionError via errors.Is.
	ErrConnection = errors.New("channel: connection failed")
	// ErrTransport matches every *TransportError via errors.Is.
	ErrTransport = errors.New("channel: transport fault")
	// ErrPayloadTooLarge rejects a frame the peer could not read back with
	// a single Receive.
	ErrPayloadTooLarge = errors.New("channel: payload exceeds read quantum")
)

// ConnectionError reports a failed connect or handshake. No resources are
// held once it is returned.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// TransportError reports a send or receive fault on a connected channel.
type TransportError struct {
	Op   string
	Peer string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel: %s %s: %v", e.Op, e.Peer, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
