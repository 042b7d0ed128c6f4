package client

import (
	"crypto/tls"

	"github.com/rs/zerolog"

	"github.com/danmuck/sectun/internal/auth"
	"github.com/danmuck/sectun/internal/observability"
)

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAuthenticator replaces the default auth.AllowAll.
func WithAuthenticator(authn auth.Authenticator) Option {
	return func(c *Client) { c.authn = authn }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithTLSConfig skips building a tls.Config from Session.TLS.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}
