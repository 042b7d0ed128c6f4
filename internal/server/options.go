package server

import (
	"crypto/tls"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/observability"
	"github.com/danmuck/sectun/internal/session"
)

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistry replaces the default in-memory session registry.
func WithRegistry(registry session.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

func WithPayloadHandler(handler PayloadHandler) Option {
	return func(s *Server) { s.handler = handler }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithTLSConfig skips loading certificate files and uses cfg as is.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}
