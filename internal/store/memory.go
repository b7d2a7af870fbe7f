package store

import (
	"context"
	"sync"
	"time"

	"github.com/hseong/llmchess/internal/game"
)

type memEntry struct {
	state   game.State
	expires time.Time
}

// MemoryStore keeps snapshots in a map with per-entry expiry checked on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, st *game.State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memEntry{state: *st}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	s.entries[st.ID] = entry
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, id string) (*game.State, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, game.ErrNoSnapshot
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, game.ErrNoSnapshot
	}
	st := entry.state
	return &st, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
