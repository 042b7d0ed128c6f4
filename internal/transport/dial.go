package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/danmuck/sectun/internal/session"
)

// Dial connects to host:port and completes the TLS handshake. Connect and
// handshake are each bounded by cfg's timeouts and by ctx. On any failure
// the socket is closed before returning.
func Dial(ctx context.Context, host string, port int, cfg session.Config, tlsConfig *tls.Config) (*tls.Conn, error) {
	cfg = cfg.WithDefaults()
	if tlsConfig == nil {
		built, err := ClientTLSConfig(cfg, host)
		if err != nil {
			return nil, err
		}
		tlsConfig = built
	}
	tlsConfig = WholeRecords(tlsConfig)

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	conn := tls.Client(rawConn, tlsConfig)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}
