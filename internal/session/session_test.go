package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/danmuck/sectun/internal/testutil/testlog"
)

type stubChannel struct {
	mu     sync.Mutex
	peer   string
	closed bool
	sent   [][]byte
}

func (c *stubChannel) PeerAddress() string { return c.peer }

func (c *stubChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *stubChannel) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	return nil
}

func (c *stubChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestSession(id string) *Session {
	return New(id, &stubChannel{peer: id})
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffResetsStreak(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second})
	if got := b.Next(); got != 10*time.Millisecond {
		t.Fatalf("first delay got=%v", got)
	}
	if got := b.Next(); got != 20*time.Millisecond {
		t.Fatalf("second delay got=%v", got)
	}
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("expected reset streak, got %d", b.Attempts())
	}
	if got := b.Next(); got != 10*time.Millisecond {
		t.Fatalf("delay after reset got=%v", got)
	}
}

func TestSessionStateIsMonotonic(t *testing.T) {
	testlog.Start(t)
	s := newTestSession("127.0.0.1:40000")
	if s.State() != StateConnecting {
		t.Fatalf("unexpected initial state: %s", s.State())
	}
	if !s.Advance(StateActive) {
		t.Fatalf("expected connecting->active")
	}
	if !s.Advance(StateClosed) {
		t.Fatalf("expected active->closed")
	}
	if s.Advance(StateClosing) {
		t.Fatalf("closed->closing must be refused")
	}
	if s.State() != StateClosed {
		t.Fatalf("unexpected final state: %s", s.State())
	}
	if s.Token() == "" || s.Token() == newTestSession("x").Token() {
		t.Fatalf("expected unique session token, got %q", s.Token())
	}
}

func TestSessionActivityAndInfo(t *testing.T) {
	testlog.Start(t)
	s := newTestSession("127.0.0.1:40001")
	past := time.Now().Add(-time.Minute)
	s.Touch(past)
	if idle := s.IdleFor(past.Add(30 * time.Second)); idle != 30*time.Second {
		t.Fatalf("unexpected idle duration: %v", idle)
	}
	s.RecordPayload(40)
	s.RecordKeepAlive()
	s.RecordSent(1)

	info := s.Info()
	if info.PeerAddress != "127.0.0.1:40001" || info.Payloads != 1 || info.KeepAlives != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.BytesIn != 41 || info.BytesOut != 1 {
		t.Fatalf("unexpected byte counters: %+v", info)
	}
}

func TestMemoryRegistryLifecycle(t *testing.T) {
	testlog.Start(t)
	r := NewMemoryRegistry()
	a := newTestSession("10.0.0.1:1000")

	if err := r.Insert(a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.Insert(newTestSession("10.0.0.1:1000")); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if err := r.Insert(nil); !errors.Is(err, ErrNilSession) {
		t.Fatalf("expected ErrNilSession, got %v", err)
	}
	if err := r.Insert(newTestSession("  ")); !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("expected ErrEmptySessionID, got %v", err)
	}
	got, ok := r.Get("10.0.0.1:1000")
	if !ok || got != a {
		t.Fatalf("expected registered session")
	}

	r.Remove("10.0.0.1:1000")
	r.Remove("10.0.0.1:1000")
	r.Remove("never-registered")
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestMemoryRegistrySnapshotAndClear(t *testing.T) {
	testlog.Start(t)
	r := NewMemoryRegistry()
	for _, id := range []string{"c:3", "a:1", "b:2"} {
		if err := r.Insert(newTestSession(id)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].ID() != "a:1" || snap[2].ID() != "c:3" {
		t.Fatalf("unexpected snapshot order")
	}
	cleared := r.Clear()
	if len(cleared) != 3 || r.Len() != 0 {
		t.Fatalf("clear returned %d, registry len=%d", len(cleared), r.Len())
	}
	if len(snap) != 3 {
		t.Fatalf("snapshot must not alias registry storage")
	}
}

func TestMemoryRegistryConcurrentInsertProperty(t *testing.T) {
	testlog.Start(t)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("n concurrent inserts yield n entries, removes yield zero", prop.ForAll(
		func(n int) bool {
			r := NewMemoryRegistry()
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = r.Insert(newTestSession(fmt.Sprintf("127.0.0.1:%d", 20000+i)))
				}(i)
			}
			wg.Wait()
			if r.Len() != n {
				return false
			}
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					r.Remove(fmt.Sprintf("127.0.0.1:%d", 20000+i))
				}(i)
			}
			wg.Wait()
			return r.Len() == 0
		},
		gen.IntRange(0, 64),
	))

	properties.Property("racing inserts of one id admit exactly one", prop.ForAll(
		func(n int) bool {
			r := NewMemoryRegistry()
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if r.Insert(newTestSession("127.0.0.1:9999")) == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			return accepted == 1 && r.Len() == 1
		},
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{IdleTimeout: -1}.WithDefaults()
	def := DefaultConfig()
	if cfg.ReceiveTimeout != def.ReceiveTimeout || cfg.KeepAliveInterval != def.KeepAliveInterval {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.IdleTimeout != 0 {
		t.Fatalf("negative idle timeout should disable expiry, got %v", cfg.IdleTimeout)
	}
	if cfg.SecurityMode != SecurityModeDevelopment || cfg.TLS.Verify != VerifyStrict {
		t.Fatalf("unexpected policy defaults: %+v", cfg)
	}
}

func TestTransportValidation(t *testing.T) {
	testlog.Start(t)

	server := DefaultConfig()
	if err := server.ValidateServerTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}
	server.TLS.CertFile = "server.crt"
	server.TLS.KeyFile = "server.key"
	if err := server.ValidateServerTransport(); err != nil {
		t.Fatalf("development server: %v", err)
	}
	server.SecurityMode = SecurityModeProduction
	if err := server.ValidateServerTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
	server.TLS.Mutual = true
	if err := server.ValidateServerTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}

	client := DefaultConfig()
	client.TLS.Verify = VerifyRelaxed
	if err := client.ValidateClientTransport(); err != nil {
		t.Fatalf("development relaxed client: %v", err)
	}
	client.SecurityMode = SecurityModeProduction
	if err := client.ValidateClientTransport(); !errors.Is(err, ErrRelaxedVerifyNotAllow) {
		t.Fatalf("expected ErrRelaxedVerifyNotAllow, got %v", err)
	}
	client.SecurityMode = "staging"
	if err := client.ValidateClientTransport(); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
	client.SecurityMode = SecurityModeDevelopment
	client.TLS.Verify = "lenient"
	if err := client.ValidateClientTransport(); !errors.Is(err, ErrInvalidVerifyMode) {
		t.Fatalf("expected ErrInvalidVerifyMode, got %v", err)
	}
}
