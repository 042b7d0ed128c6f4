package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSecurityMode    = errors.New("session: invalid security mode")
	ErrInvalidVerifyMode      = errors.New("session: invalid verify mode")
	ErrMTLSRequired           = errors.New("session: mtls required")
	ErrTLSCertFileRequired    = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired     = errors.New("session: tls key file required")
	ErrTLSCAFileRequired      = errors.New("session: tls ca file required")
	ErrRelaxedVerifyNotAllow  = errors.New("session: relaxed verification not allowed")
	ErrInvalidReceiveTimeout  = errors.New("session: receive timeout must be positive")
	ErrInvalidKeepAlivePeriod = errors.New("session: keep-alive interval must be positive")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

func NormalizeVerifyMode(mode VerifyMode) VerifyMode {
	if strings.TrimSpace(string(mode)) == "" {
		return VerifyStrict
	}
	return VerifyMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

func (c Config) validateCommon() (SecurityMode, error) {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return mode, fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}
	switch NormalizeVerifyMode(c.TLS.Verify) {
	case VerifyStrict, VerifyRelaxed:
	default:
		return mode, fmt.Errorf("%w: %q", ErrInvalidVerifyMode, c.TLS.Verify)
	}
	if c.ReceiveTimeout <= 0 {
		return mode, ErrInvalidReceiveTimeout
	}
	return mode, nil
}

// ValidateClientTransport checks the dialing side's TLS policy.
func (c Config) ValidateClientTransport() error {
	mode, err := c.validateCommon()
	if err != nil {
		return err
	}
	relaxed := NormalizeVerifyMode(c.TLS.Verify) == VerifyRelaxed
	if mode == SecurityModeProduction {
		if relaxed {
			return ErrRelaxedVerifyNotAllow
		}
		if !c.TLS.Mutual {
			return ErrMTLSRequired
		}
	}
	if c.KeepAliveInterval <= 0 {
		return ErrInvalidKeepAlivePeriod
	}
	if c.TLS.Mutual {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

// ValidateServerTransport checks the listening side's TLS policy.
func (c Config) ValidateServerTransport() error {
	mode, err := c.validateCommon()
	if err != nil {
		return err
	}
	if mode == SecurityModeProduction && !c.TLS.Mutual {
		return ErrMTLSRequired
	}
	if strings.TrimSpace(c.TLS.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(c.TLS.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	if c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}
