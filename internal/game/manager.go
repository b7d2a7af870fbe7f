package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/llm"
	"github.com/hseong/llmchess/internal/obslog"
)

var ErrGameNotFound = errors.New("game not found")

// CompleterFactory builds a completion client bound to one credential. The
// manager never holds raw keys beyond handing them to the factory.
type CompleterFactory func(apiKey, model string) llm.Completer

// ManagerConfig carries the per-game defaults every new session starts with.
type ManagerConfig struct {
	KeyPrefix      string
	DefaultModel   string
	ClockSeconds   int
	HistoryWindow  int
	Temperature    float64
	RequestTimeout time.Duration
	TickInterval   time.Duration
	SnapshotTTL    time.Duration
}

// Manager is the registry of live sessions, keyed by game id.
type Manager struct {
	cfg     ManagerConfig
	factory CompleterFactory
	store   SnapshotStore
	repo    archive.Repository
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig, factory CompleterFactory, store SnapshotStore, repo archive.Repository) *Manager {
	return &Manager{
		cfg:      cfg,
		factory:  factory,
		store:    store,
		repo:     repo,
		logger:   obslog.L(),
		sessions: make(map[string]*Session),
	}
}

// ValidateKey checks a credential's shape without spending a request.
func (m *Manager) ValidateKey(apiKey string) error {
	return llm.ValidateKey(apiKey, m.cfg.KeyPrefix)
}

// CreateGame validates the credential, builds a session and starts it. A
// clockSeconds of zero takes the configured default.
func (m *Manager) CreateGame(ctx context.Context, apiKey, model string, clockSeconds int) (*Session, error) {
	if err := m.ValidateKey(apiKey); err != nil {
		return nil, err
	}
	if model == "" {
		model = m.cfg.DefaultModel
	}

	id := uuid.NewString()
	cfg := m.sessionConfig(id, model)
	if clockSeconds > 0 {
		cfg.ClockSeconds = clockSeconds
	}
	s := NewSession(cfg, m.factory(apiKey, model), m.store, m.repo)
	s.Start(ctx)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("game created", zap.String("game_id", id), zap.String("model", model))
	return s, nil
}

// ResumeGame rehydrates a session from a stored snapshot. Used when a game id
// is requested that the registry no longer holds.
func (m *Manager) ResumeGame(ctx context.Context, id, apiKey string) (*Session, error) {
	if m.store == nil {
		return nil, ErrGameNotFound
	}
	if err := m.ValidateKey(apiKey); err != nil {
		return nil, err
	}

	st, err := m.store.LoadSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	s, err := Resume(m.sessionConfig(id, st.Model), st, m.factory(apiKey, st.Model), m.store, m.repo)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.Close()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("game resumed", zap.String("game_id", id))
	return s, nil
}

// Get returns the live session for a game id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return s, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) sessionConfig(id, model string) SessionConfig {
	return SessionConfig{
		ID:             id,
		Model:          model,
		ClockSeconds:   m.cfg.ClockSeconds,
		HistoryWindow:  m.cfg.HistoryWindow,
		Temperature:    m.cfg.Temperature,
		RequestTimeout: m.cfg.RequestTimeout,
		TickInterval:   m.cfg.TickInterval,
		SnapshotTTL:    m.cfg.SnapshotTTL,
	}
}
