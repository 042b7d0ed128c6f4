package client

import (
	"time"

	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/session"
)

// Client dial, authentication and payload settings. The keep-alive period
// is Session.KeepAliveInterval.
type Config struct {
	Address            string
	Port               int
	Cipher             crypto.Suite
	Key                []byte
	AuthTimeout        time.Duration
	MaxConnectAttempts int
	Session            session.Config
}

// Client defaults: port 8443, 5s authentication bound, a single connect
// attempt.
func DefaultConfig() Config {
	return Config{
		Port:               8443,
		Cipher:             crypto.DefaultSuite,
		AuthTimeout:        5 * time.Second,
		MaxConnectAttempts: 1,
		Session:            session.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.Cipher == "" {
		c.Cipher = def.Cipher
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = def.AuthTimeout
	}
	c.Session = c.Session.WithDefaults()
	return c
}
