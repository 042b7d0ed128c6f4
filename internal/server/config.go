package server

import (
	"strings"
	"time"

	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/pool"
	"github.com/danmuck/sectun/internal/session"
)

// Server listener, pool and session configuration.
type Config struct {
	ListenAddr    string
	MinWorkers    int
	MaxWorkers    int
	QueueSize     int
	AcceptTimeout time.Duration
	AcceptBackoff session.BackoffConfig
	Cipher        crypto.Suite
	Key           []byte
	Session       session.Config
}

// Server defaults: port 8443, 4..32 workers, 1s accept polling.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8443",
		MinWorkers:    pool.DefaultMinWorkers,
		MaxWorkers:    pool.DefaultMaxWorkers,
		QueueSize:     pool.DefaultQueueSize,
		AcceptTimeout: time.Second,
		AcceptBackoff: session.BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     10 * time.Second,
			Jitter:       true,
		},
		Cipher:  crypto.DefaultSuite,
		Session: session.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = def.MinWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = def.AcceptTimeout
	}
	if c.AcceptBackoff.InitialDelay <= 0 {
		c.AcceptBackoff = def.AcceptBackoff
	}
	if c.Cipher == "" {
		c.Cipher = def.Cipher
	}
	c.Session = c.Session.WithDefaults()
	return c
}
