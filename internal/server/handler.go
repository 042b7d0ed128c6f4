package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PayloadEvent is one decrypted payload delivered to a PayloadHandler.
type PayloadEvent struct {
	SessionID  string
	Token      string
	Plaintext  []byte
	ReceivedAt time.Time
}

// PayloadHandler consumes decrypted payloads. It runs on the session's
// handler goroutine, so a slow handler delays that session only.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, event PayloadEvent) error
}

// PayloadHandlerFunc adapts a function into a PayloadHandler.
type PayloadHandlerFunc func(ctx context.Context, event PayloadEvent) error

func (f PayloadHandlerFunc) HandlePayload(ctx context.Context, event PayloadEvent) error {
	return f(ctx, event)
}

// LogPayloads records payload arrival at debug level and discards it.
type LogPayloads struct {
	Logger zerolog.Logger
}

func (h LogPayloads) HandlePayload(_ context.Context, event PayloadEvent) error {
	h.Logger.Debug().
		Str("session_id", event.SessionID).
		Str("token", event.Token).
		Int("bytes", len(event.Plaintext)).
		Msg("payload received")
	return nil
}
