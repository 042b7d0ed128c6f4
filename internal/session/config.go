package session

import "time"

// SecurityMode selects how strictly transport policy is enforced.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// VerifyMode selects peer certificate verification on the dialing side.
type VerifyMode string

const (
	VerifyStrict  VerifyMode = "strict"
	VerifyRelaxed VerifyMode = "relaxed"
)

// TLSConfig is the certificate and trust material for one endpoint.
type TLSConfig struct {
	CertFile     string
	KeyFile      string
	CAFile       string
	ServerName   string
	Mutual       bool
	Verify       VerifyMode
	CipherSuites []string
}

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session reliability defaults shared by both ends
// of a tunnel.
type Config struct {
	SecurityMode      SecurityMode
	TLS               TLSConfig
	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	ReceiveTimeout    time.Duration
	WriteTimeout      time.Duration
	KeepAliveInterval time.Duration
	IdleTimeout       time.Duration
	Backoff           BackoffConfig
}

// DefaultConfig returns the reference configuration: 5s receive quantum,
// 30s keep-alive, sessions reaped after three missed keep-alives.
func DefaultConfig() Config {
	return Config{
		SecurityMode:      SecurityModeDevelopment,
		TLS:               TLSConfig{Verify: VerifyStrict},
		ConnectTimeout:    10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReceiveTimeout:    5 * time.Second,
		WriteTimeout:      10 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		IdleTimeout:       90 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. IdleTimeout is
// left alone: zero disables idle expiry.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.TLS.Verify == "" {
		c.TLS.Verify = def.TLS.Verify
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = def.ReceiveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = def.KeepAliveInterval
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
