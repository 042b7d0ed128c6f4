package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of one session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is the subset of a secure channel a session needs for
// administration. Receive stays with the owning handler.
type Channel interface {
	PeerAddress() string
	Connected() bool
	Send(p []byte) error
	Close() error
}

// Session is the server record of one active tunnel endpoint.
type Session struct {
	id        string
	token     string
	channel   Channel
	createdAt time.Time

	state        atomic.Int32
	lastActivity atomic.Int64

	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64
	payloads   atomic.Uint64
	keepAlives atomic.Uint64
}

// New creates a session in StateConnecting. id is the peer address.
func New(id string, ch Channel) *Session {
	now := time.Now()
	s := &Session{
		id:        id,
		token:     uuid.NewString(),
		channel:   ch,
		createdAt: now,
	}
	s.state.Store(int32(StateConnecting))
	s.lastActivity.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Token() string        { return s.token }
func (s *Session) Channel() Channel     { return s.channel }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) State() State         { return State(s.state.Load()) }

// Advance moves the session forward to next. Transitions never go backwards;
// Advance reports whether the state changed.
func (s *Session) Advance(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur) >= next {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// Touch records receive activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// IdleFor reports how long the session has gone without receive activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

func (s *Session) RecordPayload(n int) {
	s.payloads.Add(1)
	s.bytesIn.Add(uint64(n))
}

func (s *Session) RecordKeepAlive() {
	s.keepAlives.Add(1)
	s.bytesIn.Add(1)
}

func (s *Session) RecordSent(n int) {
	s.bytesOut.Add(uint64(n))
}

// Info is a point-in-time copy of session metadata.
type Info struct {
	ID           string
	Token        string
	PeerAddress  string
	State        State
	CreatedAt    time.Time
	LastActivity time.Time
	BytesIn      uint64
	BytesOut     uint64
	Payloads     uint64
	KeepAlives   uint64
}

func (s *Session) Info() Info {
	info := Info{
		ID:           s.id,
		Token:        s.token,
		State:        s.State(),
		CreatedAt:    s.createdAt,
		LastActivity: s.LastActivity(),
		BytesIn:      s.bytesIn.Load(),
		BytesOut:     s.bytesOut.Load(),
		Payloads:     s.payloads.Load(),
		KeepAlives:   s.keepAlives.Load(),
	}
	if s.channel != nil {
		info.PeerAddress = s.channel.PeerAddress()
	}
	return info
}
