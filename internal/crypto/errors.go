package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrCipher matches every *CipherError via errors.Is.
	ErrCipher              = errors.New("crypto: cipher failure")
	ErrUnknownSuite        = errors.New("crypto: unknown cipher suite")
	ErrEmptyKey            = errors.New("crypto: empty key")
	ErrCiphertextTooShort  = errors.New("crypto: ciphertext too short")
	ErrAuthenticationFault = errors.New("crypto: message authentication failed")
)

// CipherError reports a failed encrypt or decrypt. Retrying with the same
// key and input cannot succeed.
type CipherError struct {
	Op    string
	Suite Suite
	Err   error
}

func (e *CipherError) Error() string {
	return fmt.Sprintf("crypto: %s (%s): %v", e.Op, e.Suite, e.Err)
}

func (e *CipherError) Unwrap() error {
	return e.Err
}

func (e *CipherError) Is(target error) bool {
	return target == ErrCipher
}
