package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/auth"
	"github.com/danmuck/sectun/internal/channel"
	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/protocol"
	"github.com/danmuck/sectun/internal/session"
)

// ReceiveKind classifies one ReceiveResult.
type ReceiveKind int

const (
	ReceivedPayload ReceiveKind = iota
	ReceivedAck
	ReceivedTimeout
	ReceivedClosed
)

func (k ReceiveKind) String() string {
	switch k {
	case ReceivedPayload:
		return "payload"
	case ReceivedAck:
		return "ack"
	case ReceivedTimeout:
		return "timeout"
	case ReceivedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Received is one decoded receive. Plaintext is set only for payloads.
type Received struct {
	Kind      ReceiveKind
	Plaintext []byte
}

// Client holds at most one live channel to the server.
type Client struct {
	cfg       Config
	logger    zerolog.Logger
	authn     auth.Authenticator
	metrics   *observability.Metrics
	tlsConfig *tls.Config
	cipher    *crypto.PayloadCipher
	key       []byte
	rng       *rand.Rand

	mu         sync.Mutex
	ch         *channel.Channel
	connecting context.CancelCauseFunc
	kaCancel   context.CancelFunc
	kaDone     chan struct{}
	recvMu     sync.Mutex
	lastAck    atomic.Int64
	keepAlives atomic.Uint64
}

// New validates cfg and builds a disconnected client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cipher, err := crypto.NewPayloadCipher(cfg.Cipher)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	key, err := crypto.NormalizeKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("client: payload key: %w", err)
	}
	c := &Client{
		cfg:    cfg,
		logger: zerolog.Nop(),
		authn:  auth.AllowAll{},
		cipher: cipher,
		key:    key,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().
		Str("component", "client").
		Str("server", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))).
		Logger()
	return c, nil
}

func (c *Client) Config() Config { return c.cfg }

// Connect dials the server, retrying per MaxConnectAttempts, and then
// authenticates the established channel within AuthTimeout. On any failure
// the client is left disconnected. The client lock is held only to check
// and publish state, so Connected and Disconnect stay responsive while a
// connect is in flight; Disconnect aborts it with ErrConnectAborted.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting != nil {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	if c.ch != nil && c.ch.Connected() {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.releaseLocked()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.connecting = cancel
	c.mu.Unlock()

	if session.NormalizeVerifyMode(c.cfg.Session.TLS.Verify) == session.VerifyRelaxed {
		c.logger.Warn().Msg("server certificate verification disabled")
	}
	ch, attempt, err := c.establish(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = nil
	if errors.Is(context.Cause(ctx), ErrConnectAborted) {
		if ch != nil {
			_ = ch.Close()
		}
		return ErrConnectAborted
	}
	if err != nil {
		return err
	}
	c.ch = ch
	c.lastAck.Store(0)
	c.logger.Info().Int("attempt", attempt).Msg("connected")
	return nil
}

// establish dials and authenticates without holding the client lock.
func (c *Client) establish(ctx context.Context) (*channel.Channel, int, error) {
	var attempt int
	for {
		attempt++
		ch, err := channel.Dial(ctx, c.cfg.Address, c.cfg.Port, c.cfg.Session, c.tlsConfig)
		if err != nil {
			c.logger.Warn().Int("attempt", attempt).Err(err).Msg("connect failed")
			if !c.shouldRetry(attempt) {
				return nil, attempt, err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return nil, attempt, err
			}
			continue
		}

		if err := c.authenticate(ctx, ch); err != nil {
			_ = ch.Close()
			c.logger.Warn().Err(err).Msg("authentication failed")
			return nil, attempt, err
		}
		return ch, attempt, nil
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// authenticate bounds the authenticator by AuthTimeout even when it
// ignores its context.
func (c *Client) authenticate(ctx context.Context, ch *channel.Channel) error {
	state, _ := ch.ConnectionState()
	peer := auth.Peer{Address: ch.PeerAddress(), State: state}

	authCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- c.authn.Authenticate(authCtx, peer)
	}()

	select {
	case err := <-result:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && authCtx.Err() != nil {
			return &AuthenticationError{Addr: peer.Address, Kind: ErrAuthenticationTimeout, Err: err}
		}
		return &AuthenticationError{Addr: peer.Address, Kind: ErrAuthenticationRejected, Err: err}
	case <-authCtx.Done():
		return &AuthenticationError{Addr: peer.Address, Kind: ErrAuthenticationTimeout, Err: authCtx.Err()}
	}
}

// Connected reports whether a live channel is held.
func (c *Client) Connected() bool {
	ch := c.current()
	return ch != nil && ch.Connected()
}

func (c *Client) current() *channel.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// SendSecureData encrypts p with a fresh nonce and sends it. The ciphertext
// must fit in one channel.ReadQuantum so the server can read it whole;
// larger payloads fail with channel.ErrPayloadTooLarge.
func (c *Client) SendSecureData(p []byte) error {
	ch := c.current()
	if ch == nil {
		return channel.ErrNotConnected
	}
	if limit := c.cipher.MaxPlaintext(channel.ReadQuantum); len(p) > limit {
		return fmt.Errorf("client: send %d bytes (limit %d): %w", len(p), limit, channel.ErrPayloadTooLarge)
	}
	ciphertext, err := c.cipher.Encrypt(p, c.key)
	if err != nil {
		c.metrics.CipherFailure(observability.SideClient)
		return err
	}
	if err := ch.Send(ciphertext); err != nil {
		return err
	}
	c.metrics.Payload(observability.SideClient, observability.DirectionOut, len(p))
	return nil
}

// ReceiveSecureData returns the next decrypted payload. Timeouts, peer
// close and keep-alive acks all yield an empty result with a nil error;
// use ReceiveResult to tell them apart.
func (c *Client) ReceiveSecureData() ([]byte, error) {
	res, err := c.ReceiveResult()
	if err != nil {
		return nil, err
	}
	if res.Kind != ReceivedPayload {
		return []byte{}, nil
	}
	return res.Plaintext, nil
}

// ReceiveResult performs one receive and classifies it.
func (c *Client) ReceiveResult() (Received, error) {
	ch := c.current()
	if ch == nil {
		return Received{}, channel.ErrNotConnected
	}
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return c.receiveLocked(ch)
}

func (c *Client) receiveLocked(ch *channel.Channel) (Received, error) {
	res, err := ch.Receive()
	if err != nil {
		return Received{}, err
	}
	switch res.Kind {
	case channel.KindTimeout:
		return Received{Kind: ReceivedTimeout}, nil
	case channel.KindClosed:
		return Received{Kind: ReceivedClosed}, nil
	}

	switch protocol.Classify(res.Data) {
	case protocol.FrameAck:
		c.lastAck.Store(time.Now().UnixNano())
		c.metrics.KeepAlive(observability.SideClient, observability.DirectionIn)
		return Received{Kind: ReceivedAck}, nil
	case protocol.FrameKeepAlive:
		c.logger.Debug().Msg("unexpected keep-alive marker from server")
		return Received{Kind: ReceivedTimeout}, nil
	}

	plaintext, err := c.cipher.Decrypt(res.Data, c.key)
	if err != nil {
		c.metrics.CipherFailure(observability.SideClient)
		return Received{}, err
	}
	c.metrics.Payload(observability.SideClient, observability.DirectionIn, len(plaintext))
	return Received{Kind: ReceivedPayload, Plaintext: plaintext}, nil
}

// Ping sends one keep-alive marker and waits for its acknowledgement,
// returning the round-trip time. It reads the channel itself, so payloads
// that arrive while it waits are discarded.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ch := c.current()
	if ch == nil {
		return 0, channel.ErrNotConnected
	}
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	start := time.Now()
	if err := c.sendKeepAlive(ch); err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := c.receiveLocked(ch)
		if err != nil {
			var cerr *crypto.CipherError
			if errors.As(err, &cerr) {
				c.logger.Debug().Err(err).Msg("ping discarded undecryptable data")
				continue
			}
			return 0, err
		}
		switch res.Kind {
		case ReceivedAck:
			return time.Since(start), nil
		case ReceivedClosed:
			return 0, channel.ErrNotConnected
		case ReceivedPayload:
			c.logger.Debug().Int("bytes", len(res.Plaintext)).Msg("ping discarded payload")
		}
	}
}

// LastAck returns when the last keep-alive acknowledgement arrived, or the
// zero time if none has since Connect.
func (c *Client) LastAck() time.Time {
	ns := c.lastAck.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// KeepAliveRunning reports whether a keep-alive loop is active.
func (c *Client) KeepAliveRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kaDone == nil {
		return false
	}
	select {
	case <-c.kaDone:
		return false
	default:
		return true
	}
}

// KeepAlivesSent counts markers sent over the client's lifetime.
func (c *Client) KeepAlivesSent() uint64 { return c.keepAlives.Load() }

func (c *Client) sendKeepAlive(ch *channel.Channel) error {
	if err := ch.Send(protocol.KeepAliveFrame()); err != nil {
		return err
	}
	c.keepAlives.Add(1)
	c.metrics.KeepAlive(observability.SideClient, observability.DirectionOut)
	return nil
}

// StartKeepAlive sends a keep-alive marker every Session.KeepAliveInterval
// until ctx ends, Disconnect is called, or a send fails. A failed send ends
// the loop without closing the channel. Calling it while a loop is running
// is a no-op.
func (c *Client) StartKeepAlive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return channel.ErrNotConnected
	}
	if c.kaDone != nil {
		select {
		case <-c.kaDone:
		default:
			return nil
		}
	}
	kaCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.kaCancel, c.kaDone = cancel, done
	go c.keepAliveLoop(kaCtx, c.ch, done)
	return nil
}

func (c *Client) keepAliveLoop(ctx context.Context, ch *channel.Channel, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.Session.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !ch.Connected() {
				return
			}
			if err := c.sendKeepAlive(ch); err != nil {
				c.logger.Warn().Err(err).Msg("keep-alive send failed")
				return
			}
		}
	}
}

// Disconnect aborts an in-flight Connect, stops the keep-alive loop and
// closes the channel. It is idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connecting != nil {
		c.connecting(ErrConnectAborted)
	}
	if c.releaseLocked() {
		c.logger.Info().Msg("disconnected")
	}
	return nil
}

// releaseLocked stops the keep-alive loop and closes any held channel. It
// reports whether a channel was held.
func (c *Client) releaseLocked() bool {
	ch, cancel, done := c.ch, c.kaCancel, c.kaDone
	c.ch, c.kaCancel, c.kaDone = nil, nil, nil
	if cancel != nil {
		cancel()
		<-done
	}
	if ch == nil {
		return false
	}
	_ = ch.Close()
	return true
}
