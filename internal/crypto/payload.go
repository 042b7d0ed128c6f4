package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite names one AEAD construction.
type Suite string

const (
	SuiteAES256GCM         Suite = "aes-256-gcm"
	SuiteChaCha20Poly1305  Suite = "chacha20-poly1305"
	SuiteXChaCha20Poly1305 Suite = "xchacha20-poly1305"

	DefaultSuite = SuiteAES256GCM
)

// Suites lists every supported suite.
func Suites() []Suite {
	return []Suite{SuiteAES256GCM, SuiteChaCha20Poly1305, SuiteXChaCha20Poly1305}
}

// ParseSuite resolves a configured suite name. Empty selects DefaultSuite.
func ParseSuite(name string) (Suite, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultSuite, nil
	}
	for _, s := range Suites() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSuite, name)
}

// PayloadCipher encrypts and decrypts opaque payloads. It holds no per-call
// state: each ciphertext carries its own random nonce as a prefix.
//
// Ciphertext layout: nonce || sealed(plaintext) || tag.
type PayloadCipher struct {
	suite Suite
}

// NewPayloadCipher returns a cipher for suite.
func NewPayloadCipher(suite Suite) (*PayloadCipher, error) {
	parsed, err := ParseSuite(string(suite))
	if err != nil {
		return nil, err
	}
	return &PayloadCipher{suite: parsed}, nil
}

func (c *PayloadCipher) Suite() Suite {
	return c.suite
}

// Overhead is the number of bytes Encrypt adds to a plaintext.
func (c *PayloadCipher) Overhead() int {
	aead, err := c.aead(make([]byte, KeySize))
	if err != nil {
		return 0
	}
	return aead.NonceSize() + aead.Overhead()
}

// MaxPlaintext is the largest plaintext whose ciphertext fits in frame
// bytes.
func (c *PayloadCipher) MaxPlaintext(frame int) int {
	if n := frame - c.Overhead(); n > 0 {
		return n
	}
	return 0
}

// Encrypt seals plaintext under key.
func (c *PayloadCipher) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := c.aeadFor(key)
	if err != nil {
		return nil, &CipherError{Op: "encrypt", Suite: c.suite, Err: err}
	}
	nonceSize := aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, &CipherError{Op: "encrypt", Suite: c.suite, Err: err}
	}
	return aead.Seal(out, out[:nonceSize], plaintext, nil), nil
}

// Decrypt opens ciphertext under key. A valid empty plaintext is returned as
// a non-nil empty slice with a nil error.
func (c *PayloadCipher) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := c.aeadFor(key)
	if err != nil {
		return nil, &CipherError{Op: "decrypt", Suite: c.suite, Err: err}
	}
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize+aead.Overhead() {
		return nil, &CipherError{Op: "decrypt", Suite: c.suite, Err: ErrCiphertextTooShort}
	}
	plaintext, err := aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, &CipherError{Op: "decrypt", Suite: c.suite, Err: ErrAuthenticationFault}
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func (c *PayloadCipher) aeadFor(secret []byte) (cipher.AEAD, error) {
	key, err := NormalizeKey(secret)
	if err != nil {
		return nil, err
	}
	return c.aead(key)
}

func (c *PayloadCipher) aead(key []byte) (cipher.AEAD, error) {
	switch c.suite {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case SuiteXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSuite, c.suite)
	}
}
