// Package auth provides the post-handshake authentication step of a client
// connection.
//
// It intentionally avoids credential storage and wire protocols: an
// Authenticator only inspects what the TLS handshake already established.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidFingerprint = errors.New("auth: invalid fingerprint")
)

// Peer is the remote end of an established channel.
type Peer struct {
	Address string
	State   tls.ConnectionState
}

// Authenticator decides whether an established channel may be used.
type Authenticator interface {
	Authenticate(ctx context.Context, peer Peer) error
}

// AllowAll accepts every peer the transport already accepted.
type AllowAll struct{}

func (AllowAll) Authenticate(context.Context, Peer) error { return nil }

// Func adapts a function into an Authenticator.
type Func func(ctx context.Context, peer Peer) error

func (f Func) Authenticate(ctx context.Context, peer Peer) error {
	return f(ctx, peer)
}

// PinnedFingerprint accepts a peer whose leaf certificate SHA-256 matches
// one of Fingerprints.
type PinnedFingerprint struct {
	Fingerprints [][sha256.Size]byte
}

// NewPinnedFingerprint parses hex fingerprints (colons allowed).
func NewPinnedFingerprint(fingerprints ...string) (PinnedFingerprint, error) {
	out := PinnedFingerprint{}
	for _, raw := range fingerprints {
		fp, err := ParseFingerprint(raw)
		if err != nil {
			return PinnedFingerprint{}, err
		}
		out.Fingerprints = append(out.Fingerprints, fp)
	}
	return out, nil
}

func (p PinnedFingerprint) Authenticate(_ context.Context, peer Peer) error {
	if len(p.Fingerprints) == 0 || len(peer.State.PeerCertificates) == 0 {
		return ErrUnauthorized
	}
	got := sha256.Sum256(peer.State.PeerCertificates[0].Raw)
	match := 0
	for _, want := range p.Fingerprints {
		match |= subtle.ConstantTimeCompare(got[:], want[:])
	}
	if match != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Fingerprint returns the colon-free lowercase hex SHA-256 of cert.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// ParseFingerprint decodes a hex SHA-256 fingerprint. Colons and
// surrounding whitespace are ignored.
func ParseFingerprint(raw string) ([sha256.Size]byte, error) {
	var out [sha256.Size]byte
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ":", "")
	decoded, err := hex.DecodeString(clean)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	if len(decoded) != sha256.Size {
		return out, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidFingerprint, sha256.Size, len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}
