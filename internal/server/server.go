package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/channel"
	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/pool"
	"github.com/danmuck/sectun/internal/session"
	"github.com/danmuck/sectun/internal/transport"
)

var (
	ErrAlreadyStarted = errors.New("server: already started")
	ErrStopped        = errors.New("server: stopped")
)

// Server runs the accept loop and one handler per tunnel connection.
type Server struct {
	cfg       Config
	logger    zerolog.Logger
	registry  session.Registry
	handler   PayloadHandler
	metrics   *observability.Metrics
	tlsConfig *tls.Config
	cipher    *crypto.PayloadCipher
	key       []byte

	running atomic.Bool

	mu       sync.Mutex
	started  bool
	stopped  bool
	listener *transport.Listener
	workers  *pool.Pool
	ctx      context.Context
	cancel   context.CancelFunc

	acceptDone chan struct{}
	done       chan struct{}

	pendingMu sync.Mutex
	pending   map[*channel.Channel]struct{}
}

// New validates cfg and builds a server. Nothing is bound until Start or
// Serve.
func New(cfg Config, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	cipher, err := crypto.NewPayloadCipher(cfg.Cipher)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	key, err := crypto.NormalizeKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("server: payload key: %w", err)
	}
	s := &Server{
		cfg:        cfg,
		logger:     zerolog.Nop(),
		cipher:     cipher,
		key:        key,
		acceptDone: make(chan struct{}),
		done:       make(chan struct{}),
		pending:    make(map[*channel.Channel]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = session.NewMemoryRegistry()
	}
	if s.handler == nil {
		s.handler = LogPayloads{Logger: s.logger}
	}
	s.logger = s.logger.With().Str("component", "server").Logger()
	return s, nil
}

func (s *Server) Config() Config { return s.cfg }

// Start validates transport policy, binds the configured address and runs
// the accept loop in the background. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	tlsCfg, err := s.serverTLSConfig()
	if err != nil {
		return err
	}
	ln, err := transport.Listen(s.cfg.ListenAddr, tlsCfg)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := s.begin(ctx, ln); err != nil {
		_ = ln.Close()
		return err
	}
	return nil
}

// Serve runs the accept loop on ln and blocks until the server has fully
// stopped, either through Stop or because ctx ended. It returns nil on a
// graceful stop.
func (s *Server) Serve(ctx context.Context, ln *transport.Listener) error {
	if err := s.begin(ctx, ln); err != nil {
		return err
	}
	<-s.done
	return nil
}

func (s *Server) serverTLSConfig() (*tls.Config, error) {
	if s.tlsConfig != nil {
		return s.tlsConfig, nil
	}
	tlsCfg, err := transport.ServerTLSConfig(s.cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("server: tls: %w", err)
	}
	return tlsCfg, nil
}

func (s *Server) begin(ctx context.Context, ln *transport.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.workers = pool.New(pool.Config{
		MinWorkers: s.cfg.MinWorkers,
		MaxWorkers: s.cfg.MaxWorkers,
		QueueSize:  s.cfg.QueueSize,
	}, s.logger)
	s.running.Store(true)

	go s.acceptLoop(ln)
	context.AfterFunc(ctx, func() {
		_ = s.Stop(context.Background())
	})
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("cipher", string(s.cipher.Suite())).
		Int("min_workers", s.cfg.MinWorkers).
		Int("max_workers", s.cfg.MaxWorkers).
		Msg("server listening")
	return nil
}

// Stop shuts the server down and waits, bounded by ctx, for the accept loop
// and every handler to finish. Calling Stop again, or before Start, is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running.Store(false)
	ln, workers := s.listener, s.workers
	s.mu.Unlock()

	s.cancel()
	closed := 0
	for _, sess := range s.registry.Clear() {
		sess.Advance(session.StateClosing)
		_ = sess.Channel().Close()
		closed++
	}
	s.closePending()
	_ = ln.Close()
	s.logger.Info().Int("sessions", closed).Msg("server stopping")

	go func() {
		<-s.acceptDone
		workers.Close()
		close(s.done)
	}()
	select {
	case <-s.done:
		s.logger.Info().Msg("server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server: stop: %w", ctx.Err())
	}
}

// Running reports whether the accept loop is live.
func (s *Server) Running() bool { return s.running.Load() }

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) SessionCount() int { return s.registry.Len() }

// Sessions returns a snapshot of every registered session, sorted by ID.
func (s *Server) Sessions() []session.Info {
	list := s.registry.Snapshot()
	out := make([]session.Info, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.Info())
	}
	return out
}

// PoolStats reports worker pool occupancy. It is zero before Start.
func (s *Server) PoolStats() pool.Stats {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	if workers == nil {
		return pool.Stats{}
	}
	return workers.Stats()
}

// Broadcast encrypts plaintext separately for every active session and
// sends it. It returns the number of sessions that accepted the write.
// Plaintext whose ciphertext would not fit in one channel.ReadQuantum is
// rejected with channel.ErrPayloadTooLarge before anything is sent.
func (s *Server) Broadcast(plaintext []byte) (int, error) {
	if limit := s.cipher.MaxPlaintext(channel.ReadQuantum); len(plaintext) > limit {
		return 0, fmt.Errorf("server: broadcast %d bytes (limit %d): %w", len(plaintext), limit, channel.ErrPayloadTooLarge)
	}
	sent := 0
	for _, sess := range s.registry.Snapshot() {
		if sess.State() != session.StateActive {
			continue
		}
		ciphertext, err := s.cipher.Encrypt(plaintext, s.key)
		if err != nil {
			s.metrics.CipherFailure(observability.SideServer)
			return sent, fmt.Errorf("server: broadcast: %w", err)
		}
		if err := sess.Channel().Send(ciphertext); err != nil {
			s.logger.Warn().Str("session_id", sess.ID()).Err(err).Msg("broadcast send")
			continue
		}
		sess.RecordSent(len(ciphertext))
		s.metrics.Payload(observability.SideServer, observability.DirectionOut, len(plaintext))
		sent++
	}
	return sent, nil
}

func (s *Server) acceptLoop(ln *transport.Listener) {
	defer close(s.acceptDone)
	backoff := session.NewBackoff(s.cfg.AcceptBackoff)
	for s.running.Load() {
		conn, err := ln.Accept(s.cfg.AcceptTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrAcceptTimeout) {
				continue
			}
			if !s.running.Load() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error().Err(err).Msg("listener closed while running")
				go func() { _ = s.Stop(context.Background()) }()
				return
			}
			s.metrics.AcceptError()
			delay := backoff.Next()
			s.logger.Warn().Err(err).Dur("retry_in", delay).Int("attempt", backoff.Attempts()).Msg("accept fault")
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return
			}
			continue
		}
		backoff.Reset()
		if err := s.workers.Submit(s.ctx, func() { s.handle(conn) }); err != nil {
			_ = conn.Close()
			if s.running.Load() {
				s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dispatch failed")
			}
		}
	}
}

func (s *Server) trackPending(ch *channel.Channel) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[ch] = struct{}{}
}

func (s *Server) untrackPending(ch *channel.Channel) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, ch)
}

func (s *Server) closePending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for ch := range s.pending {
		_ = ch.Close()
	}
}
