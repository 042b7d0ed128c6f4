package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNilSession     = errors.New("session: nil session")
	ErrEmptySessionID = errors.New("session: empty session id")
	ErrSessionExists  = errors.New("session: session id already registered")
)

// Registry is the thread-safe session store shared by concurrent handlers
// and the shutdown path. Implementations hold their lock only for the map
// operation itself.
type Registry interface {
	Insert(s *Session) error
	Remove(id string)
	Get(id string) (*Session, bool)
	Snapshot() []*Session
	Len() int
	Clear() []*Session
}

// MemoryRegistry stores sessions by id in process memory.
type MemoryRegistry struct {
	mu    sync.RWMutex
	items map[string]*Session
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		items: make(map[string]*Session),
	}
}

// Insert adds s. Ids are unique among registered sessions.
func (r *MemoryRegistry) Insert(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	key := strings.TrimSpace(s.ID())
	if key == "" {
		return ErrEmptySessionID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return ErrSessionExists
	}
	r.items[key] = s
	return nil
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *MemoryRegistry) Remove(id string) {
	key := strings.TrimSpace(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *MemoryRegistry) Get(id string) (*Session, bool) {
	key := strings.TrimSpace(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[key]
	return s, ok
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Snapshot returns registered sessions ordered by id.
func (r *MemoryRegistry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sortByID(out)
	return out
}

// Clear empties the registry and returns what it held.
func (r *MemoryRegistry) Clear() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.items))
	for key, s := range r.items {
		out = append(out, s)
		delete(r.items, key)
	}
	r.mu.Unlock()
	sortByID(out)
	return out
}

func sortByID(list []*Session) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID() < list[j].ID()
	})
}
