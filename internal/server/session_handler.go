package server

import (
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/channel"
	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/protocol"
	"github.com/danmuck/sectun/internal/session"
)

// handle owns one accepted connection from handshake to teardown.
func (s *Server) handle(conn net.Conn) {
	ch := channel.Wrap(conn, channel.OptionsFrom(s.cfg.Session))
	if !s.running.Load() {
		_ = ch.Close()
		return
	}

	s.trackPending(ch)
	err := ch.Handshake(s.ctx)
	s.untrackPending(ch)
	if err != nil {
		s.metrics.HandshakeFailed()
		if s.running.Load() {
			s.logger.Warn().Str("remote", ch.PeerAddress()).Err(err).Msg("handshake failed")
		}
		return
	}
	if !s.running.Load() {
		_ = ch.Close()
		return
	}

	sess := session.New(ch.PeerAddress(), ch)
	log := s.logger.With().
		Str("session_id", sess.ID()).
		Str("token", sess.Token()).
		Logger()

	if err := s.registry.Insert(sess); err != nil {
		log.Warn().Err(err).Msg("session rejected")
		s.metrics.SessionRejected(observability.ReasonDuplicate)
		sess.Advance(session.StateClosed)
		_ = ch.Close()
		return
	}
	sess.Advance(session.StateActive)
	s.metrics.SessionOpened()
	state, _ := ch.ConnectionState()
	log.Info().
		Str("tls_version", tls.VersionName(state.Version)).
		Int("peer_certs", len(state.PeerCertificates)).
		Int("active_sessions", s.registry.Len()).
		Msg("session opened")

	reason := observability.ReasonStopped
	defer func() { s.closeSession(sess, reason, log) }()
	if !s.running.Load() {
		return
	}
	reason = s.serveSession(sess, ch, log)
}

// serveSession is the receive loop. It returns the close reason.
func (s *Server) serveSession(sess *session.Session, ch *channel.Channel, log zerolog.Logger) string {
	idleTimeout := s.cfg.Session.IdleTimeout
	for {
		res, err := ch.Receive()
		if err != nil {
			if !s.running.Load() || errors.Is(err, channel.ErrNotConnected) {
				return observability.ReasonStopped
			}
			log.Warn().Err(err).Msg("receive fault")
			return observability.ReasonTransport
		}

		switch res.Kind {
		case channel.KindTimeout:
			if !s.running.Load() {
				return observability.ReasonStopped
			}
			if idleTimeout > 0 && sess.IdleFor(time.Now()) > idleTimeout {
				log.Info().Dur("idle", sess.IdleFor(time.Now())).Msg("session idle")
				return observability.ReasonIdle
			}
		case channel.KindClosed:
			if !s.running.Load() {
				return observability.ReasonStopped
			}
			return observability.ReasonPeerClosed
		case channel.KindData:
			sess.Touch(time.Now())
			if err := s.dispatch(sess, ch, res.Data, log); err != nil {
				if !s.running.Load() {
					return observability.ReasonStopped
				}
				log.Warn().Err(err).Msg("send fault")
				return observability.ReasonTransport
			}
		}
	}
}

// dispatch handles one received chunk. A returned error is a send fault
// that ends the session.
func (s *Server) dispatch(sess *session.Session, ch *channel.Channel, data []byte, log zerolog.Logger) error {
	switch protocol.Classify(data) {
	case protocol.FrameKeepAlive:
		sess.RecordKeepAlive()
		s.metrics.KeepAlive(observability.SideServer, observability.DirectionIn)
		if err := ch.Send(protocol.AckFrame()); err != nil {
			return err
		}
		sess.RecordSent(1)
		s.metrics.KeepAlive(observability.SideServer, observability.DirectionOut)
		log.Debug().Msg("keep-alive acknowledged")
		return nil
	case protocol.FrameAck:
		log.Debug().Msg("stray keep-alive ack ignored")
		return nil
	case protocol.FrameEmpty:
		return nil
	}

	receivedAt := time.Now()
	plaintext, err := s.cipher.Decrypt(data, s.key)
	if err != nil {
		s.metrics.CipherFailure(observability.SideServer)
		var cerr *crypto.CipherError
		if errors.As(err, &cerr) {
			log.Warn().Str("op", cerr.Op).Int("bytes", len(data)).Err(cerr.Err).Msg("payload rejected")
		} else {
			log.Warn().Int("bytes", len(data)).Err(err).Msg("payload rejected")
		}
		return nil
	}
	sess.RecordPayload(len(data))
	s.metrics.Payload(observability.SideServer, observability.DirectionIn, len(plaintext))

	event := PayloadEvent{
		SessionID:  sess.ID(),
		Token:      sess.Token(),
		Plaintext:  plaintext,
		ReceivedAt: receivedAt,
	}
	err = s.handler.HandlePayload(s.ctx, event)
	s.metrics.ObserveHandler(time.Since(receivedAt))
	if err != nil {
		log.Warn().Err(err).Msg("payload handler failed")
	}
	return nil
}

// closeSession runs once per registered session when its handler exits.
func (s *Server) closeSession(sess *session.Session, reason string, log zerolog.Logger) {
	sess.Advance(session.StateClosing)
	if cur, ok := s.registry.Get(sess.ID()); ok && cur == sess {
		s.registry.Remove(sess.ID())
	}
	_ = sess.Channel().Close()
	sess.Advance(session.StateClosed)
	s.metrics.SessionClosed(reason)

	info := sess.Info()
	log.Info().
		Str("reason", reason).
		Dur("lifetime", time.Since(info.CreatedAt)).
		Uint64("payloads", info.Payloads).
		Uint64("keepalives", info.KeepAlives).
		Uint64("bytes_in", info.BytesIn).
		Uint64("bytes_out", info.BytesOut).
		Msg("session closed")
}
