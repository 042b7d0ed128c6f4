package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var ErrAcceptTimeout = errors.New("transport: accept timeout")

// Listener accepts TLS connections with a bounded wait per Accept call so
// the caller can poll its own running state between calls.
//
// The listen backlog is the operating system default; the Go runtime does
// not expose it.
type Listener struct {
	tcp       *net.TCPListener
	tlsConfig *tls.Config
	closeOnce sync.Once
	closeErr  error
}

// Listen binds addr and returns a TLS listener using tlsConfig.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return NewListener(ln.(*net.TCPListener), tlsConfig), nil
}

// NewListener wraps an already bound TCP listener. Dynamic record sizing is
// always disabled on tlsConfig.
func NewListener(tcp *net.TCPListener, tlsConfig *tls.Config) *Listener {
	return &Listener{tcp: tcp, tlsConfig: WholeRecords(tlsConfig)}
}

// Accept waits at most timeout for one connection. A timeout is reported
// as ErrAcceptTimeout; a closed listener as net.ErrClosed. The returned
// connection has not completed its handshake yet.
func (l *Listener) Accept(timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		if err := l.tcp.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	conn, err := l.tcp.AcceptTCP()
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrAcceptTimeout, err)
		}
		return nil, err
	}
	_ = conn.SetNoDelay(true)
	return tls.Server(conn, l.tlsConfig), nil
}

func (l *Listener) Addr() net.Addr {
	return l.tcp.Addr()
}

// Close is idempotent.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.tcp.Close()
	})
	return l.closeErr
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAcceptTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
