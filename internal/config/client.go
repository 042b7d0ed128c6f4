package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/sectun/internal/client"
	"github.com/danmuck/sectun/internal/crypto"
	"github.com/danmuck/sectun/internal/session"
)

// Client is everything tunnelctl needs to connect.
type Client struct {
	Core               client.Config
	PinnedFingerprints []string
	LogLevel           string
}

// tunnelctl.toml key mapping to client runtime settings.
type clientFile struct {
	ServerAddr         string        `toml:"server_addr"`
	ServerPort         int           `toml:"server_port"`
	Cipher             string        `toml:"cipher"`
	PayloadKey         string        `toml:"payload_key"`
	PayloadKeyFile     string        `toml:"payload_key_file"`
	KeepAliveInterval  time.Duration `toml:"keepalive_interval"`
	AuthTimeout        time.Duration `toml:"auth_timeout"`
	ConnectTimeout     time.Duration `toml:"connect_timeout"`
	HandshakeTimeout   time.Duration `toml:"handshake_timeout"`
	ReceiveTimeout     time.Duration `toml:"receive_timeout"`
	MaxConnectAttempts int           `toml:"max_connect_attempts"`
	SecurityMode       string        `toml:"security_mode"`
	TLSVerify          string        `toml:"tls_verify"`
	TLSServerName      string        `toml:"tls_server_name"`
	TLSCAFile          string        `toml:"tls_ca_file"`
	TLSMutual          bool          `toml:"tls_mutual"`
	TLSCertFile        string        `toml:"tls_cert_file"`
	TLSKeyFile         string        `toml:"tls_key_file"`
	TLSCipherSuites    []string      `toml:"tls_cipher_suites"`
	PinnedFingerprints []string      `toml:"pinned_fingerprints"`
	LogLevel           string        `toml:"log_level"`
}

func DefaultClient() Client {
	return Client{
		Core:     client.DefaultConfig(),
		LogLevel: "info",
	}
}

// ClientOverrides carries command-line settings that win over both the
// file and the environment. Zero fields are ignored.
type ClientOverrides struct {
	// ServerAddr is "host" or "host:port".
	ServerAddr string
}

// LoadClient overlays path (if non-empty) and the environment onto the
// defaults and validates the result.
func LoadClient(path string) (Client, error) {
	return LoadClientWithOverrides(path, ClientOverrides{})
}

// LoadClientWithOverrides is LoadClient with o applied last.
func LoadClientWithOverrides(path string, o ClientOverrides) (Client, error) {
	cfg := DefaultClient()
	if strings.TrimSpace(path) != "" {
		if err := overlayClientFile(&cfg, path); err != nil {
			return Client{}, err
		}
	}
	if err := applyClientEnv(&cfg); err != nil {
		return Client{}, err
	}
	if strings.TrimSpace(o.ServerAddr) != "" {
		if err := setServerAddr(&cfg.Core, o.ServerAddr); err != nil {
			return Client{}, fmt.Errorf("server override: %w", err)
		}
	}
	if err := ValidateClient(cfg); err != nil {
		return Client{}, err
	}
	cfg.Core.Session = cfg.Core.Session.WithDefaults()
	return cfg, nil
}

func overlayClientFile(cfg *Client, path string) error {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load tunnelctl config: %w", err)
	}

	if meta.IsDefined("server_addr") {
		if err := setServerAddr(&cfg.Core, raw.ServerAddr); err != nil {
			return fmt.Errorf("load tunnelctl config: %w", err)
		}
	}
	if meta.IsDefined("server_port") {
		cfg.Core.Port = raw.ServerPort
	}
	if meta.IsDefined("cipher") {
		suite, err := crypto.ParseSuite(raw.Cipher)
		if err != nil {
			return fmt.Errorf("load tunnelctl config: %w", err)
		}
		cfg.Core.Cipher = suite
	}
	if meta.IsDefined("payload_key") {
		key, err := crypto.ParseKey(raw.PayloadKey)
		if err != nil {
			return fmt.Errorf("load tunnelctl config: payload_key: %w", err)
		}
		cfg.Core.Key = key
	}
	if meta.IsDefined("payload_key_file") {
		key, err := readKeyFile(raw.PayloadKeyFile)
		if err != nil {
			return fmt.Errorf("load tunnelctl config: %w", err)
		}
		cfg.Core.Key = key
	}
	if meta.IsDefined("keepalive_interval") {
		cfg.Core.Session.KeepAliveInterval = raw.KeepAliveInterval
	}
	if meta.IsDefined("auth_timeout") {
		cfg.Core.AuthTimeout = raw.AuthTimeout
	}
	if meta.IsDefined("connect_timeout") {
		cfg.Core.Session.ConnectTimeout = raw.ConnectTimeout
	}
	if meta.IsDefined("handshake_timeout") {
		cfg.Core.Session.HandshakeTimeout = raw.HandshakeTimeout
	}
	if meta.IsDefined("receive_timeout") {
		cfg.Core.Session.ReceiveTimeout = raw.ReceiveTimeout
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Core.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("security_mode") {
		cfg.Core.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_verify") {
		cfg.Core.Session.TLS.Verify = session.VerifyMode(strings.TrimSpace(raw.TLSVerify))
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Core.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Core.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Core.Session.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Core.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Core.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_cipher_suites") {
		cfg.Core.Session.TLS.CipherSuites = raw.TLSCipherSuites
	}
	if meta.IsDefined("pinned_fingerprints") {
		cfg.PinnedFingerprints = raw.PinnedFingerprints
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func applyClientEnv(cfg *Client) error {
	if v, ok := lookupEnv(EnvServerAddr); ok {
		if err := setServerAddr(&cfg.Core, v); err != nil {
			return fmt.Errorf("load tunnelctl config: %s: %w", EnvServerAddr, err)
		}
	}
	if v, ok := lookupEnv(EnvPayloadKey); ok {
		key, err := crypto.ParseKey(v)
		if err != nil {
			return fmt.Errorf("load tunnelctl config: %s: %w", EnvPayloadKey, err)
		}
		cfg.Core.Key = key
	}
	return nil
}

// setServerAddr accepts "host" or "host:port".
func setServerAddr(cfg *client.Config, raw string) error {
	raw = strings.TrimSpace(raw)
	host, portText, err := net.SplitHostPort(raw)
	if err != nil {
		cfg.Address = raw
		return nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port %q", portText)
	}
	cfg.Address = host
	cfg.Port = port
	return nil
}

// ValidateClient checks what can be checked without touching the network.
func ValidateClient(cfg Client) error {
	if strings.TrimSpace(cfg.Core.Address) == "" {
		return fmt.Errorf("tunnelctl config missing server_addr (or %s)", EnvServerAddr)
	}
	if cfg.Core.Port < 0 || cfg.Core.Port > 65535 {
		return fmt.Errorf("tunnelctl config server_port %d out of range", cfg.Core.Port)
	}
	if len(cfg.Core.Key) == 0 {
		return fmt.Errorf("tunnelctl config missing payload_key (or %s)", EnvPayloadKey)
	}
	if err := cfg.Core.Session.WithDefaults().ValidateClientTransport(); err != nil {
		return fmt.Errorf("tunnelctl config: %w", err)
	}
	return nil
}
