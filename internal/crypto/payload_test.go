package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/sectun/internal/testutil/testlog"
)

func TestPayloadCipherRoundTripProperty(t *testing.T) {
	testlog.Start(t)

	for _, suite := range Suites() {
		t.Run(string(suite), func(t *testing.T) {
			c, err := NewPayloadCipher(suite)
			require.NoError(t, err)

			params := gopter.DefaultTestParameters()
			params.MinSuccessfulTests = 200
			properties := gopter.NewProperties(params)

			secret := gen.SliceOf(gen.UInt8()).SuchThat(func(v []uint8) bool { return len(v) > 0 })

			properties.Property("decrypt(encrypt(p, k), k) == p", prop.ForAll(
				func(plaintext []uint8, key []uint8) bool {
					ct, err := c.Encrypt(plaintext, key)
					if err != nil {
						return false
					}
					pt, err := c.Decrypt(ct, key)
					if err != nil {
						return false
					}
					return bytes.Equal(pt, plaintext)
				},
				gen.SliceOf(gen.UInt8()),
				secret,
			))

			properties.Property("decrypt under another key never yields p", prop.ForAll(
				func(plaintext []uint8, keyA []uint8, keyB []uint8) bool {
					if bytes.Equal(keyA, keyB) {
						return true
					}
					ct, err := c.Encrypt(plaintext, keyA)
					if err != nil {
						return false
					}
					pt, err := c.Decrypt(ct, keyB)
					return err != nil && errors.Is(err, ErrCipher) && pt == nil
				},
				gen.SliceOf(gen.UInt8()),
				gen.SliceOfN(KeySize, gen.UInt8()),
				gen.SliceOfN(KeySize, gen.UInt8()),
			))

			properties.TestingRun(t)
		})
	}
}

func TestPayloadCipherEmptyPlaintext(t *testing.T) {
	testlog.Start(t)
	c, err := NewPayloadCipher(DefaultSuite)
	require.NoError(t, err)

	key := []byte("shared secret")
	ct, err := c.Encrypt(nil, key)
	require.NoError(t, err)
	require.Len(t, ct, c.Overhead())

	pt, err := c.Decrypt(ct, key)
	require.NoError(t, err)
	require.NotNil(t, pt)
	require.Empty(t, pt)
}

func TestPayloadCipherNonDeterministic(t *testing.T) {
	testlog.Start(t)
	c, err := NewPayloadCipher(SuiteChaCha20Poly1305)
	require.NoError(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	a, err := c.Encrypt([]byte("ping"), key)
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("ping"), key)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestPayloadCipherFailures(t *testing.T) {
	testlog.Start(t)
	c, err := NewPayloadCipher(SuiteAES256GCM)
	require.NoError(t, err)
	key := []byte("k")

	ct, err := c.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = c.Decrypt(tampered, key)
	require.ErrorIs(t, err, ErrCipher)
	require.ErrorIs(t, err, ErrAuthenticationFault)

	_, err = c.Decrypt(ct[:4], key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = c.Encrypt([]byte("x"), nil)
	require.ErrorIs(t, err, ErrEmptyKey)

	var cerr *CipherError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "encrypt", cerr.Op)
	require.Equal(t, SuiteAES256GCM, cerr.Suite)
}

func TestParseSuite(t *testing.T) {
	s, err := ParseSuite("")
	require.NoError(t, err)
	require.Equal(t, DefaultSuite, s)

	s, err = ParseSuite(" XChaCha20-Poly1305 ")
	require.NoError(t, err)
	require.Equal(t, SuiteXChaCha20Poly1305, s)

	_, err = ParseSuite("aes-256-cbc")
	require.ErrorIs(t, err, ErrUnknownSuite)

	_, err = NewPayloadCipher("rot13")
	require.ErrorIs(t, err, ErrUnknownSuite)
}

func TestParseAndNormalizeKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	parsed, err := ParseKey(FormatKey(key))
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	normalized, err := NormalizeKey(parsed)
	require.NoError(t, err)
	require.Equal(t, key, normalized)

	derivedA, err := NormalizeKey([]byte("passphrase"))
	require.NoError(t, err)
	derivedB, err := NormalizeKey([]byte("passphrase"))
	require.NoError(t, err)
	require.Len(t, derivedA, KeySize)
	require.Equal(t, derivedA, derivedB)

	raw, err := ParseKey("  passphrase ")
	require.NoError(t, err)
	require.Equal(t, []byte("passphrase"), raw)

	_, err = ParseKey("hex:zz")
	require.Error(t, err)
	_, err = ParseKey("   ")
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestMaxPlaintextFillsFrame(t *testing.T) {
	testlog.Start(t)
	key := []byte("0123456789abcdef0123456789abcdef")
	for _, suite := range Suites() {
		c, err := NewPayloadCipher(suite)
		require.NoError(t, err)

		limit := c.MaxPlaintext(4096)
		ct, err := c.Encrypt(make([]byte, limit), key)
		require.NoError(t, err)
		require.Len(t, ct, 4096, "suite %s", suite)
		require.Zero(t, c.MaxPlaintext(c.Overhead()-1))
	}
}
