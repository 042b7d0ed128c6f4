package channel

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/sectun/internal/session"
	"github.com/danmuck/sectun/internal/testutil/testlog"
	"github.com/danmuck/sectun/internal/testutil/tlstest"
	"github.com/danmuck/sectun/internal/transport"
)

type accepted struct {
	ch  *Channel
	err error
}

func startListener(t *testing.T, cfg session.Config) (*transport.Listener, int) {
	t.Helper()
	tlsCfg, err := transport.ServerTLSConfig(cfg)
	require.NoError(t, err)
	ln, err := transport.Listen("127.0.0.1:0", tlsCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	_, portText, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)
	return ln, port
}

func acceptOne(ln *transport.Listener, cfg session.Config) <-chan accepted {
	out := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept(2 * time.Second)
		if err != nil {
			out <- accepted{err: err}
			return
		}
		ch := Wrap(conn, OptionsFrom(cfg))
		if err := ch.Handshake(context.Background()); err != nil {
			out <- accepted{err: err}
			return
		}
		out <- accepted{ch: ch}
	}()
	return out
}

func pair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	fx := tlstest.NewFixture(t)
	serverCfg := fx.ServerConfig()
	ln, port := startListener(t, serverCfg)
	pending := acceptOne(ln, serverCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := Dial(ctx, "127.0.0.1", port, fx.ClientConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	got := <-pending
	require.NoError(t, got.err)
	t.Cleanup(func() { _ = got.ch.Close() })
	return client, got.ch
}

// receiveN reads until n bytes have arrived or the deadline passes.
func receiveN(t *testing.T, ch *Channel, n int) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var out []byte
	for len(out) < n && time.Now().Before(deadline) {
		res, err := ch.Receive()
		require.NoError(t, err)
		switch res.Kind {
		case KindData:
			require.LessOrEqual(t, len(res.Data), ReadQuantum)
			out = append(out, res.Data...)
		case KindClosed:
			t.Fatalf("channel closed after %d of %d bytes", len(out), n)
		}
	}
	require.Len(t, out, n)
	return out
}

func TestChannelRoundTrip(t *testing.T) {
	testlog.Start(t)
	client, server := pair(t)

	require.True(t, client.Connected())
	require.True(t, server.Connected())
	require.NotEmpty(t, server.PeerAddress())

	state, ok := client.ConnectionState()
	require.True(t, ok)
	require.True(t, state.HandshakeComplete)

	require.NoError(t, client.Send([]byte("hello")))
	require.Equal(t, []byte("hello"), receiveN(t, server, 5))

	require.NoError(t, server.Send([]byte{0x02}))
	require.Equal(t, []byte{0x02}, receiveN(t, client, 1))
}

func TestChannelReceiveTimeoutKeepsChannelUsable(t *testing.T) {
	testlog.Start(t)
	client, server := pair(t)

	res, err := server.Receive()
	require.NoError(t, err)
	require.Equal(t, KindTimeout, res.Kind)
	require.Empty(t, res.Data)
	require.True(t, server.Connected())

	require.NoError(t, client.Send([]byte("after-timeout")))
	require.Equal(t, []byte("after-timeout"), receiveN(t, server, len("after-timeout")))
}

func TestChannelReceiveBoundedByReadQuantum(t *testing.T) {
	testlog.Start(t)
	client, server := pair(t)

	payload := bytes.Repeat([]byte("x"), 3*ReadQuantum+17)
	go func() { _ = client.Send(payload) }()
	require.Equal(t, payload, receiveN(t, server, len(payload)))
}

func TestChannelPeerCloseReportsClosed(t *testing.T) {
	testlog.Start(t)
	client, server := pair(t)

	require.NoError(t, client.Close())
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		res, err := server.Receive()
		require.NoError(t, err)
		if res.Kind == KindClosed {
			require.False(t, server.Connected())
			require.ErrorIs(t, server.Send([]byte("late")), ErrNotConnected)
			_, err = server.Receive()
			require.ErrorIs(t, err, ErrNotConnected)
			require.NoError(t, server.Close())
			return
		}
	}
	t.Fatal("peer close was not observed")
}

func TestChannelLocalCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	client, _ := pair(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	require.False(t, client.Connected())

	require.ErrorIs(t, client.Send([]byte("late")), ErrNotConnected)
	_, err := client.Receive()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestChannelCloseUnblocksReceive(t *testing.T) {
	testlog.Start(t)
	_, server := pair(t)
	server.opts.ReceiveTimeout = 0

	done := make(chan Result, 1)
	go func() {
		res, _ := server.Receive()
		done <- res
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Close())

	select {
	case res := <-done:
		require.Equal(t, KindClosed, res.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("receive did not return after close")
	}
}

func TestChannelConcurrentSendsDoNotInterleave(t *testing.T) {
	testlog.Start(t)
	client, server := pair(t)

	const (
		senders   = 8
		perSender = 20
		block     = 100
	)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(tag byte) {
			defer wg.Done()
			msg := bytes.Repeat([]byte{tag}, block)
			for j := 0; j < perSender; j++ {
				if err := client.Send(msg); err != nil {
					t.Errorf("send: %v", err)
					return
				}
			}
		}(byte('a' + i))
	}

	stream := receiveN(t, server, senders*perSender*block)
	wg.Wait()
	for off := 0; off < len(stream); off += block {
		chunk := stream[off : off+block]
		require.Equal(t, bytes.Repeat(chunk[:1], block), chunk, "interleaved block at offset %d", off)
	}
}

func TestChannelEmptySendIsNoop(t *testing.T) {
	testlog.Start(t)
	client, _ := pair(t)
	require.NoError(t, client.Send(nil))
}

func TestDialFailureIsConnectionError(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)

	hold, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := hold.Addr().(*net.TCPAddr).Port
	require.NoError(t, hold.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = Dial(ctx, "127.0.0.1", port, fx.ClientConfig(), nil)
	require.ErrorIs(t, err, ErrConnection)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), connErr.Addr)
}

func TestServerHandshakeFailureClosesChannel(t *testing.T) {
	testlog.Start(t)
	fx := tlstest.NewFixture(t)
	serverCfg := fx.ServerConfig()
	serverCfg.TLS.Mutual = true
	ln, port := startListener(t, serverCfg)
	pending := acceptOne(ln, serverCfg)

	// Plain TCP client that never speaks TLS.
	raw, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	_, _ = raw.Write([]byte("not a tls client hello\r\n\r\n"))
	defer raw.Close()

	got := <-pending
	require.ErrorIs(t, got.err, ErrConnection)
}
