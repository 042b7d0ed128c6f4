package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/sectun/internal/session"
	"github.com/danmuck/sectun/internal/testutil/testlog"
	"github.com/danmuck/sectun/internal/testutil/tlstest"
)

func TestParseCipherSuites(t *testing.T) {
	testlog.Start(t)

	ids, err := ParseCipherSuites(nil)
	require.NoError(t, err)
	require.Nil(t, ids)

	ids, err = ParseCipherSuites([]string{" tls_ecdhe_ecdsa_with_aes_256_gcm_sha384 ", ""})
	require.NoError(t, err)
	require.Equal(t, []uint16{tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384}, ids)

	_, err = ParseCipherSuites([]string{"ALL:!ADH"})
	require.ErrorIs(t, err, ErrUnknownCipherSuite)
}

func TestServerTLSConfigRequiresClientCertWhenMutual(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	cfg := fx.ServerConfig()
	out, err := ServerTLSConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, tls.NoClientCert, out.ClientAuth)

	cfg.TLS.Mutual = true
	out, err = ServerTLSConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, out.ClientAuth)
	require.NotNil(t, out.ClientCAs)

	cfg.TLS.CertFile = ""
	_, err = ServerTLSConfig(cfg)
	require.ErrorIs(t, err, session.ErrTLSCertFileRequired)
}

func TestClientTLSConfigServerNameFallback(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	cfg := fx.ClientConfig()
	cfg.TLS.ServerName = ""
	out, err := ClientTLSConfig(cfg, "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", out.ServerName)
	require.False(t, out.InsecureSkipVerify)

	cfg.TLS.Verify = session.VerifyRelaxed
	out, err = ClientTLSConfig(cfg, "127.0.0.1")
	require.NoError(t, err)
	require.True(t, out.InsecureSkipVerify)

	cfg.TLS.CAFile = fx.ServerCertFile + ".missing"
	_, err = ClientTLSConfig(cfg, "127.0.0.1")
	require.Error(t, err)
}

func TestListenerAcceptTimeout(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	tlsCfg, err := ServerTLSConfig(fx.ServerConfig())
	require.NoError(t, err)
	ln, err := Listen("127.0.0.1:0", tlsCfg)
	require.NoError(t, err)
	defer ln.Close()

	_, err = ln.Accept(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrAcceptTimeout)
	require.True(t, IsTimeout(err))

	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())
	_, err = ln.Accept(20 * time.Millisecond)
	require.True(t, errors.Is(err, net.ErrClosed), "accept after close: %v", err)
}

func TestDialCompletesHandshake(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	for _, tc := range []struct {
		name   string
		server session.Config
		client session.Config
	}{
		{name: "server-auth", server: fx.ServerConfig(), client: fx.ClientConfig()},
		{name: "mutual", server: mutual(fx.ServerConfig()), client: fx.MutualClientConfig()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ln, port := listen(t, tc.server)
			accepted := make(chan error, 1)
			go func() {
				conn, err := ln.Accept(2 * time.Second)
				if err != nil {
					accepted <- err
					return
				}
				defer conn.Close()
				accepted <- conn.(*tls.Conn).HandshakeContext(context.Background())
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			conn, err := Dial(ctx, "127.0.0.1", port, tc.client, nil)
			require.NoError(t, err)
			defer conn.Close()
			require.True(t, conn.ConnectionState().HandshakeComplete)
			require.NoError(t, <-accepted)
		})
	}
}

func TestDialRejectsUntrustedServer(t *testing.T) {
	testlog.Start(t)
	serverFx := tlstest.NewFixture(t)
	otherFx := tlstest.NewFixture(t)

	ln, port := listen(t, serverFx.ServerConfig())
	go func() {
		conn, err := ln.Accept(2 * time.Second)
		if err != nil {
			return
		}
		_ = conn.(*tls.Conn).HandshakeContext(context.Background())
		_ = conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := Dial(ctx, "127.0.0.1", port, otherFx.ClientConfig(), nil)
	require.Error(t, err)
}

func TestDialRefused(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	hold, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := hold.Addr().(*net.TCPAddr).Port
	require.NoError(t, hold.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = Dial(ctx, "127.0.0.1", port, fx.ClientConfig(), nil)
	require.Error(t, err)
}

func listen(t *testing.T, cfg session.Config) (*Listener, int) {
	t.Helper()
	tlsCfg, err := ServerTLSConfig(cfg)
	require.NoError(t, err)
	ln, err := Listen("127.0.0.1:0", tlsCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	_, portText, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)
	return ln, port
}

func mutual(cfg session.Config) session.Config {
	cfg.TLS.Mutual = true
	return cfg
}

func TestConfigsUseWholeRecords(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	server, err := ServerTLSConfig(fx.ServerConfig())
	require.NoError(t, err)
	require.True(t, server.DynamicRecordSizingDisabled)

	client, err := ClientTLSConfig(fx.ClientConfig(), "127.0.0.1")
	require.NoError(t, err)
	require.True(t, client.DynamicRecordSizingDisabled)

	injected := &tls.Config{ServerName: "localhost"}
	out := WholeRecords(injected)
	require.True(t, out.DynamicRecordSizingDisabled)
	require.Equal(t, "localhost", out.ServerName)
	require.False(t, injected.DynamicRecordSizingDisabled, "caller's config must not be mutated")
	require.Nil(t, WholeRecords(nil))

	ln, err := Listen("127.0.0.1:0", injected)
	require.NoError(t, err)
	defer ln.Close()
	require.True(t, ln.tlsConfig.DynamicRecordSizingDisabled)
}
