package client

import (
	"errors"
	"fmt"
)

var (
	ErrAddressRequired        = errors.New("client: server address required")
	ErrAlreadyConnected       = errors.New("client: already connected")
	ErrConnectInProgress      = errors.New("client: connect already in progress")
	ErrConnectAborted         = errors.New("client: connect aborted by disconnect")
	ErrAuthenticationRejected = errors.New("client: authentication rejected")
	ErrAuthenticationTimeout  = errors.New("client: authentication timed out")
)

// AuthenticationError reports a failed post-handshake authentication. Kind
// is ErrAuthenticationRejected or ErrAuthenticationTimeout; errors.Is
// matches both Kind and the underlying cause.
type AuthenticationError struct {
	Addr string
	Kind error
	Err  error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Addr)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Addr, e.Err)
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
