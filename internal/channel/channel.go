package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/sectun/internal/session"
	"github.com/danmuck/sectun/internal/transport"
)

const closeNotifyTimeout = time.Second

// Options bounds the blocking operations of one channel. Zero disables the
// corresponding deadline.
type Options struct {
	ReceiveTimeout   time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// OptionsFrom extracts channel timeouts from a session config.
func OptionsFrom(cfg session.Config) Options {
	return Options{
		ReceiveTimeout:   cfg.ReceiveTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
}

// Channel is one secure byte-stream connection. Send is safe for concurrent
// use; Receive expects a single reader.
type Channel struct {
	conn net.Conn
	peer string
	opts Options

	sendMu    sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once
}

// Dial connects to host:port and completes the TLS handshake. tlsConfig may
// be nil, in which case it is built from cfg. Every failure is a
// *ConnectionError.
func Dial(ctx context.Context, host string, port int, cfg session.Config, tlsConfig *tls.Config) (*Channel, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := transport.Dial(ctx, host, port, cfg, tlsConfig)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return Wrap(conn, OptionsFrom(cfg.WithDefaults())), nil
}

// Wrap adopts an established connection. The channel starts connected and
// takes ownership of conn.
func Wrap(conn net.Conn, opts Options) *Channel {
	c := &Channel{
		conn: conn,
		opts: opts,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		c.peer = addr.String()
	}
	c.connected.Store(true)
	return c
}

// Handshake completes a pending TLS handshake on an accepted connection,
// bounded by the handshake timeout. The channel is closed on failure.
func (c *Channel) Handshake(ctx context.Context) error {
	tlsConn, ok := c.conn.(*tls.Conn)
	if !ok {
		return nil
	}
	if c.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandshakeTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = c.Close()
		return &ConnectionError{Addr: c.peer, Err: err}
	}
	return nil
}

// ConnectionState returns the negotiated TLS state when the underlying
// connection is TLS.
func (c *Channel) ConnectionState() (tls.ConnectionState, bool) {
	tlsConn, ok := c.conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tlsConn.ConnectionState(), true
}

func (c *Channel) PeerAddress() string { return c.peer }

func (c *Channel) Connected() bool { return c.connected.Load() }

// Send writes p as-is. Concurrent senders are serialized so their bytes
// never interleave on the stream.
func (c *Channel) Send(p []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if len(p) == 0 {
		return nil
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return c.sendFault(err)
		}
	}
	if _, err := c.conn.Write(p); err != nil {
		return c.sendFault(err)
	}
	return nil
}

func (c *Channel) sendFault(err error) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return &TransportError{Op: "send", Peer: c.peer, Err: err}
}

// Receive blocks until data arrives, the peer closes, or the receive
// timeout elapses, and returns at most ReadQuantum bytes. Once the peer
// has closed, the channel reports disconnected.
func (c *Channel) Receive() (Result, error) {
	if !c.Connected() {
		return Result{}, ErrNotConnected
	}
	if c.opts.ReceiveTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReceiveTimeout)); err != nil {
			if !c.Connected() || errors.Is(err, net.ErrClosed) {
				return closedResult, nil
			}
			return Result{}, &TransportError{Op: "receive", Peer: c.peer, Err: err}
		}
	}
	buf := make([]byte, ReadQuantum)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return dataResult(buf[:n]), nil
	}
	switch {
	case err == nil:
		return timeoutResult, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.connected.Store(false)
		return closedResult, nil
	case !c.Connected(), errors.Is(err, net.ErrClosed):
		return closedResult, nil
	case transport.IsTimeout(err):
		return timeoutResult, nil
	default:
		return Result{}, &TransportError{Op: "receive", Peer: c.peer, Err: err}
	}
}

// Close shuts the channel down. It is idempotent and best-effort: TLS
// close_notify is attempted under a short deadline and every cleanup error
// is discarded.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeNotifyTimeout))
		_ = c.conn.Close()
	})
	return nil
}
