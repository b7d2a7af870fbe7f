package archive

import (
	"context"
	"sort"
	"sync"
)

// memrepo is the development repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	byID   map[int64]*Record
	byUUID map[string]*Record
	order  []*Record
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:   make(map[int64]*Record),
		byUUID: make(map[string]*Record),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, rec *Record) (int64, error) {
	if rec == nil {
		return 0, ErrDuplicateGame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUUID[rec.GameUUID]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := *rec
	stored.ID = m.nextID

	m.byID[stored.ID] = &stored
	m.byUUID[stored.GameUUID] = &stored
	m.order = append(m.order, &stored)
	return stored.ID, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok || rec == nil {
		return nil, ErrGameNotArchived
	}
	out := *rec
	return &out, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := append([]*Record(nil), m.order...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*Record, len(items))
	for i, rec := range items {
		copied := *rec
		out[i] = &copied
	}
	return out, nil
}
