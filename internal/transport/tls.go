package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/sectun/internal/session"
)

var (
	ErrUnknownCipherSuite = errors.New("transport: unknown cipher suite")
	ErrParseCABundle      = errors.New("transport: parse tls ca bundle")
)

// ParseCipherSuites resolves Go TLS suite names into ids. An empty list
// means crypto/tls defaults. TLS 1.3 suites are not configurable and are
// always enabled when negotiated.
func ParseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		known[suite.Name] = suite.ID
	}
	ids := make([]uint16, 0, len(names))
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCipherSuite, raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ServerTLSConfig builds the listener tls.Config from cfg.
func ServerTLSConfig(cfg session.Config) (*tls.Config, error) {
	if err := cfg.ValidateServerTransport(); err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load server key pair: %w", err)
	}
	suites, err := ParseCipherSuites(cfg.TLS.CipherSuites)
	if err != nil {
		return nil, err
	}
	out := &tls.Config{
		MinVersion:                  tls.VersionTLS12,
		Certificates:                []tls.Certificate{cert},
		ClientAuth:                  tls.NoClientCert,
		CipherSuites:                suites,
		DynamicRecordSizingDisabled: true,
	}
	if cfg.TLS.Mutual {
		pool, err := loadCAPool(cfg.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientAuth = tls.RequireAndVerifyClientCert
		out.ClientCAs = pool
	}
	return out, nil
}

// ClientTLSConfig builds the dialer tls.Config from cfg. host is used as
// the verification server name unless cfg.TLS.ServerName is set.
func ClientTLSConfig(cfg session.Config, host string) (*tls.Config, error) {
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	suites, err := ParseCipherSuites(cfg.TLS.CipherSuites)
	if err != nil {
		return nil, err
	}
	out := &tls.Config{
		MinVersion:                  tls.VersionTLS12,
		CipherSuites:                suites,
		InsecureSkipVerify:          session.NormalizeVerifyMode(cfg.TLS.Verify) == session.VerifyRelaxed,
		DynamicRecordSizingDisabled: true,
	}
	serverName := strings.TrimSpace(cfg.TLS.ServerName)
	if serverName == "" {
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.TLS.CAFile); caPath != "" {
		pool, err := loadCAPool(caPath)
		if err != nil {
			return nil, err
		}
		out.RootCAs = pool
	}
	if cfg.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("transport: load client key pair: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

// WholeRecords returns cfg, cloned if needed, with dynamic record sizing
// disabled. crypto/tls otherwise splits the first writes of a connection
// into small records, and a receiver that reads one record per call would
// see a single payload as several chunks.
func WholeRecords(cfg *tls.Config) *tls.Config {
	if cfg == nil || cfg.DynamicRecordSizingDisabled {
		return cfg
	}
	out := cfg.Clone()
	out.DynamicRecordSizingDisabled = true
	return out
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("transport: read tls ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("%w: %s", ErrParseCABundle, path)
	}
	return pool, nil
}
