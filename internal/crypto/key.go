package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the normalised payload key length (256 bits).
	KeySize = 32

	keyInfo   = "sectun payload key v1"
	hexPrefix = "hex:"
)

// NormalizeKey maps an opaque secret to a 256-bit key. A secret that is
// already KeySize bytes is used as-is; anything else is stretched with
// HKDF-SHA256.
func NormalizeKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}
	key := make([]byte, KeySize)
	if len(secret) == KeySize {
		copy(key, secret)
		return key, nil
	}
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a configured key. Values prefixed with "hex:" are hex
// decoded, everything else is taken as raw secret bytes.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyKey
	}
	if strings.HasPrefix(raw, hexPrefix) {
		key, err := hex.DecodeString(strings.TrimPrefix(raw, hexPrefix))
		if err != nil {
			return nil, fmt.Errorf("crypto: parse hex key: %w", err)
		}
		if len(key) == 0 {
			return nil, ErrEmptyKey
		}
		return key, nil
	}
	return []byte(raw), nil
}

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// FormatKey renders a key in the form ParseKey accepts.
func FormatKey(key []byte) string {
	return hexPrefix + hex.EncodeToString(key)
}
