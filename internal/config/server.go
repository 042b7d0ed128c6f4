package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/server"
	"github.com/danmuck/sectun/internal/session"
)

// Server is everything tunneld needs to run.
type Server struct {
	Core      server.Config
	AdminAddr string
	LogLevel  string
	LogJSON   bool
}

// tunneld.toml key mapping to server runtime settings.
type serverFile struct {
	ListenAddr       string        `toml:"listen_addr"`
	AdminAddr        string        `toml:"admin_addr"`
	MinWorkers       int           `toml:"min_workers"`
	MaxWorkers       int           `toml:"max_workers"`
	QueueSize        int           `toml:"queue_size"`
	AcceptTimeout    time.Duration `toml:"accept_timeout"`
	IdleTimeout      time.Duration `toml:"idle_timeout"`
	ReceiveTimeout   time.Duration `toml:"receive_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	Cipher           string        `toml:"cipher"`
	PayloadKey       string        `toml:"payload_key"`
	PayloadKeyFile   string        `toml:"payload_key_file"`
	SecurityMode     string        `toml:"security_mode"`
	TLSCertFile      string        `toml:"tls_cert_file"`
	TLSKeyFile       string        `toml:"tls_key_file"`
	TLSCAFile        string        `toml:"tls_ca_file"`
	TLSMutual        bool          `toml:"tls_mutual"`
	TLSCipherSuites  []string      `toml:"tls_cipher_suites"`
	LogLevel         string        `toml:"log_level"`
	LogJSON          bool          `toml:"log_json"`
}

func DefaultServer() Server {
	return Server{
		Core:     server.DefaultConfig(),
		LogLevel: "info",
	}
}

// LoadServer overlays path (if non-empty) and the environment onto the
// defaults and validates the result.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if strings.TrimSpace(path) != "" {
		if err := overlayServerFile(&cfg, path); err != nil {
			return Server{}, err
		}
	}
	if err := applyServerEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := ValidateServer(cfg); err != nil {
		return Server{}, err
	}
	cfg.Core.Session = cfg.Core.Session.WithDefaults()
	return cfg, nil
}

func overlayServerFile(cfg *Server, path string) error {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load tunneld config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.Core.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("min_workers") {
		cfg.Core.MinWorkers = raw.MinWorkers
	}
	if meta.IsDefined("max_workers") {
		cfg.Core.MaxWorkers = raw.MaxWorkers
	}
	if meta.IsDefined("queue_size") {
		cfg.Core.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("accept_timeout") {
		cfg.Core.AcceptTimeout = raw.AcceptTimeout
	}
	if meta.IsDefined("idle_timeout") {
		cfg.Core.Session.IdleTimeout = raw.IdleTimeout
	}
	if meta.IsDefined("receive_timeout") {
		cfg.Core.Session.ReceiveTimeout = raw.ReceiveTimeout
	}
	if meta.IsDefined("write_timeout") {
		cfg.Core.Session.WriteTimeout = raw.WriteTimeout
	}
	if meta.IsDefined("handshake_timeout") {
		cfg.Core.Session.HandshakeTimeout = raw.HandshakeTimeout
	}
	if meta.IsDefined("cipher") {
		suite, err := crypto.ParseSuite(raw.Cipher)
		if err != nil {
			return fmt.Errorf("load tunneld config: %w", err)
		}
		cfg.Core.Cipher = suite
	}
	if meta.IsDefined("payload_key") {
		key, err := crypto.ParseKey(raw.PayloadKey)
		if err != nil {
			return fmt.Errorf("load tunneld config: payload_key: %w", err)
		}
		cfg.Core.Key = key
	}
	if meta.IsDefined("payload_key_file") {
		key, err := readKeyFile(raw.PayloadKeyFile)
		if err != nil {
			return fmt.Errorf("load tunneld config: %w", err)
		}
		cfg.Core.Key = key
	}
	if meta.IsDefined("security_mode") {
		cfg.Core.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Core.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Core.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Core.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Core.Session.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cipher_suites") {
		cfg.Core.Session.TLS.CipherSuites = raw.TLSCipherSuites
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_json") {
		cfg.LogJSON = raw.LogJSON
	}
	return nil
}

func applyServerEnv(cfg *Server) error {
	if v, ok := lookupEnv(EnvListenAddr); ok {
		cfg.Core.ListenAddr = v
	}
	if v, ok := lookupEnv(EnvAdminAddr); ok {
		cfg.AdminAddr = v
	}
	if v, ok := lookupEnv(EnvPayloadKey); ok {
		key, err := crypto.ParseKey(v)
		if err != nil {
			return fmt.Errorf("load tunneld config: %s: %w", EnvPayloadKey, err)
		}
		cfg.Core.Key = key
	}
	return nil
}

// ValidateServer checks what can be checked without touching the network.
func ValidateServer(cfg Server) error {
	if strings.TrimSpace(cfg.Core.ListenAddr) == "" {
		return fmt.Errorf("tunneld config missing listen_addr")
	}
	if len(cfg.Core.Key) == 0 {
		return fmt.Errorf("tunneld config missing payload_key (or %s)", EnvPayloadKey)
	}
	if cfg.Core.MinWorkers < 0 || cfg.Core.MaxWorkers < 0 || cfg.Core.QueueSize < 0 {
		return fmt.Errorf("tunneld config worker counts must not be negative")
	}
	if cfg.Core.MaxWorkers > 0 && cfg.Core.MinWorkers > cfg.Core.MaxWorkers {
		return fmt.Errorf("tunneld config min_workers %d exceeds max_workers %d", cfg.Core.MinWorkers, cfg.Core.MaxWorkers)
	}
	if err := cfg.Core.Session.WithDefaults().ValidateServerTransport(); err != nil {
		return fmt.Errorf("tunneld config: %w", err)
	}
	return nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("payload_key_file: %w", err)
	}
	key, err := crypto.ParseKey(string(data))
	if err != nil {
		return nil, fmt.Errorf("payload_key_file: %w", err)
	}
	return key, nil
}
