package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/llm"
	"github.com/hseong/llmchess/internal/obslog"
	"github.com/hseong/llmchess/internal/prompt"
	"github.com/hseong/llmchess/internal/rules"
)

var (
	ErrGameNotActive = errors.New("game is not active")
	ErrNotPlayerTurn = errors.New("not the player's turn")
	ErrSessionClosed = errors.New("session closed")

	// ErrNoSnapshot is returned by SnapshotStore implementations when no
	// snapshot exists for the requested game.
	ErrNoSnapshot = errors.New("snapshot not found")
)

// SnapshotStore persists live game state across restarts. Implementations
// live in internal/store.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, st *State, ttl time.Duration) error
	LoadSnapshot(ctx context.Context, id string) (*State, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

type SessionConfig struct {
	ID    string
	Model string

	ClockSeconds  int
	HistoryWindow int
	Temperature   float64

	RequestTimeout time.Duration

	// TickInterval of zero disables the internal clock goroutine; ticks are
	// then driven externally.
	TickInterval time.Duration

	SnapshotTTL time.Duration

	// Seed of zero selects a time-based seed for the fallback picker.
	Seed int64
}

func (c *SessionConfig) fill() {
	if c.ClockSeconds <= 0 {
		c.ClockSeconds = 600
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 7
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = time.Hour
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Session drives one game. All state transitions happen under mu; the only
// work done outside the lock is the completion request itself.
type Session struct {
	cfg       SessionConfig
	completer llm.Completer
	store     SnapshotStore
	repo      archive.Repository
	logger    *zap.Logger

	mu    sync.Mutex
	state State
	rng   *rand.Rand

	cancelRequest context.CancelFunc

	// epoch advances whenever pending work is cancelled, so a completion
	// launched before a restart can never land in the game that follows it.
	epoch int

	subscribers map[int]chan State
	nextSub     int

	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

// NewSession builds a session around an existing or fresh state. store and
// repo may be nil; the session then runs purely in memory.
func NewSession(cfg SessionConfig, completer llm.Completer, store SnapshotStore, repo archive.Repository) *Session {
	cfg.fill()
	s := &Session{
		cfg:         cfg,
		completer:   completer,
		store:       store,
		repo:        repo,
		logger:      obslog.L().With(zap.String("game_id", cfg.ID)),
		state:       newState(cfg.ID, cfg.Model, cfg.ClockSeconds, time.Now()),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		subscribers: make(map[int]chan State),
		done:        make(chan struct{}),
	}
	if cfg.TickInterval > 0 {
		s.ticker = time.NewTicker(cfg.TickInterval)
		go s.runClock()
	}
	return s
}

// Resume rebuilds a session from a stored snapshot. A snapshot whose move
// list no longer replays cleanly is discarded and the error returned. A
// snapshot taken while the opponent's reply was pending re-issues the request.
func Resume(cfg SessionConfig, st *State, completer llm.Completer, store SnapshotStore, repo archive.Repository) (*Session, error) {
	if _, err := rules.Rebuild(st.Moves); err != nil {
		return nil, fmt.Errorf("replay snapshot: %w", err)
	}
	s := NewSession(cfg, completer, store, repo)
	s.mu.Lock()
	s.state = st.clone()
	if s.state.Phase == PhasePlaying && s.state.Turn == SideOpponent {
		flags, err := rules.Status(s.state.Moves)
		if err != nil {
			s.mu.Unlock()
			s.Close()
			return nil, fmt.Errorf("status from snapshot: %w", err)
		}
		s.scheduleOpponentMove(flags)
	}
	s.mu.Unlock()
	return s, nil
}

// Start moves the game from waiting to playing. Idempotent.
func (s *Session) Start(ctx context.Context) State {
	s.mu.Lock()
	s.state = reduceStart(s.state, time.Now())
	st := s.state.clone()
	s.mu.Unlock()
	s.persist(ctx, st)
	s.broadcast(st)
	return st
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// PlayMove applies the human's move and, when the game continues, kicks off
// the opponent's reply. An illegal candidate leaves the state untouched.
func (s *Session) PlayMove(ctx context.Context, cand rules.Candidate) (State, error) {
	s.mu.Lock()
	if s.state.Phase != PhasePlaying {
		st := s.state.clone()
		s.mu.Unlock()
		return st, ErrGameNotActive
	}
	if s.state.Turn != SidePlayer {
		st := s.state.clone()
		s.mu.Unlock()
		return st, ErrNotPlayerTurn
	}

	applied, err := rules.Apply(s.state.Moves, cand)
	if err != nil {
		st := s.state.clone()
		s.mu.Unlock()
		return st, err
	}
	flags, err := rules.Status(applied.Moves)
	if err != nil {
		st := s.state.clone()
		s.mu.Unlock()
		return st, err
	}

	s.state = reduceMove(s.state, applied, SidePlayer, flags, "", false, time.Now())
	st := s.state.clone()

	if st.Phase == PhasePlaying {
		s.scheduleOpponentMove(flags)
	}
	s.mu.Unlock()

	s.persist(ctx, st)
	s.broadcast(st)
	if st.Phase == PhaseEnded {
		s.archiveGame(st)
	}
	return st, nil
}

// Resign ends the game in the opponent's favor.
func (s *Session) Resign(ctx context.Context) State {
	s.mu.Lock()
	s.state = reduceResign(s.state, SidePlayer, time.Now())
	st := s.state.clone()
	s.stopPendingLocked()
	s.mu.Unlock()

	s.persist(ctx, st)
	s.broadcast(st)
	if st.Phase == PhaseEnded && st.Reason == ReasonResignation {
		s.archiveGame(st)
	}
	return st
}

// Restart abandons the current game and begins a fresh one under the same id.
// Any in-flight opponent request is cancelled and its result discarded.
func (s *Session) Restart(ctx context.Context) State {
	s.mu.Lock()
	s.stopPendingLocked()
	fresh := newState(s.cfg.ID, s.cfg.Model, s.cfg.ClockSeconds, time.Now())
	s.state = reduceStart(fresh, time.Now())
	st := s.state.clone()
	s.mu.Unlock()

	s.persist(ctx, st)
	s.broadcast(st)
	return st
}

// Subscribe registers a state listener. Slow listeners drop frames rather
// than block the game loop. The returned func unregisters.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 16)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// Close stops the clock, cancels pending work and closes all subscriber
// channels. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPendingLocked()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Session) runClock() {
	for {
		select {
		case <-s.done:
			return
		case now := <-s.ticker.C:
			s.tick(now)
		}
	}
}

// tick advances the active clock by one second.
func (s *Session) tick(now time.Time) {
	s.mu.Lock()
	before := s.state.Phase
	s.state = reduceTick(s.state, now)
	st := s.state.clone()
	expired := before == PhasePlaying && st.Phase == PhaseEnded
	if expired {
		s.stopPendingLocked()
	}
	s.mu.Unlock()

	if before != PhasePlaying {
		return
	}
	s.broadcast(st)
	if expired {
		s.persist(context.Background(), st)
		s.archiveGame(st)
	}
}

// scheduleOpponentMove snapshots everything the request needs and launches
// the completion call. Caller holds mu.
func (s *Session) scheduleOpponentMove(flags rules.StatusFlags) {
	epoch := s.epoch
	seq := s.state.TurnSeq
	moves := append([]string(nil), s.state.Moves...)

	legal, err := rules.LegalMoves(moves)
	if err != nil {
		s.logger.Error("legal move enumeration failed", zap.Error(err))
		return
	}

	input := prompt.ComposeInput{
		FEN:          s.state.FEN,
		History:      s.historyWindowLocked(),
		Legal:        legal,
		InCheck:      flags.InCheck,
		MatePossible: flags.MatePossible,
		CaptureCount: s.playerCapturesLocked(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	s.cancelRequest = cancel

	go s.runOpponentMove(ctx, epoch, seq, prompt.Compose(input))
}

func (s *Session) runOpponentMove(ctx context.Context, epoch, seq int, text string) {
	raw, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Model:       s.cfg.Model,
		Prompt:      text,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		authFailed := errors.Is(err, llm.ErrAuthentication)
		s.logger.Warn("completion failed, falling back",
			zap.Int("turn_seq", seq), zap.Bool("auth", authFailed), zap.Error(err))
		s.resolveOpponentMove(epoch, seq, rules.Candidate{}, "", true, authFailed)
		return
	}

	cand, reasoning, err := prompt.ParseMoveResponse(raw)
	if err != nil {
		s.logger.Warn("unparseable completion, falling back",
			zap.Int("turn_seq", seq), zap.Error(err))
		s.resolveOpponentMove(epoch, seq, rules.Candidate{}, "", true, false)
		return
	}
	s.resolveOpponentMove(epoch, seq, cand, reasoning, false, false)
}

// resolveOpponentMove re-checks the gate and applies the opponent's move. A
// result arriving after the game moved on, or from before a restart, is
// discarded without effect.
func (s *Session) resolveOpponentMove(epoch, seq int, cand rules.Candidate, reasoning string, useFallback, authFailed bool) {
	s.mu.Lock()
	if s.epoch != epoch || s.state.Phase != PhasePlaying || s.state.Turn != SideOpponent || s.state.TurnSeq != seq {
		s.mu.Unlock()
		s.logger.Debug("stale opponent move discarded", zap.Int("turn_seq", seq))
		return
	}
	if s.cancelRequest != nil {
		s.cancelRequest()
		s.cancelRequest = nil
	}

	if authFailed {
		s.state = reduceAuthRequired(s.state, true, time.Now())
	}

	var applied *rules.Applied
	var err error
	fallback := useFallback
	if !useFallback {
		applied, err = rules.Apply(s.state.Moves, cand)
		if err != nil {
			s.logger.Warn("model proposed an illegal move, falling back",
				zap.String("from", cand.From), zap.String("to", cand.To), zap.Error(err))
			fallback = true
		}
	}
	if fallback {
		applied, err = s.applyFallbackLocked()
		if err != nil {
			s.mu.Unlock()
			s.logger.Error("fallback selection failed", zap.Error(err))
			return
		}
		reasoning = fallbackReasoning
	}

	flags, err := rules.Status(applied.Moves)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("status after opponent move failed", zap.Error(err))
		return
	}

	s.state = reduceMove(s.state, applied, SideOpponent, flags, reasoning, fallback, time.Now())
	st := s.state.clone()
	s.mu.Unlock()

	s.persist(context.Background(), st)
	s.broadcast(st)
	if st.Phase == PhaseEnded {
		s.archiveGame(st)
	}
}

func (s *Session) applyFallbackLocked() (*rules.Applied, error) {
	legal, err := rules.LegalMoves(s.state.Moves)
	if err != nil {
		return nil, err
	}
	cand, err := chooseFallback(s.rng, legal)
	if err != nil {
		return nil, err
	}
	return rules.Apply(s.state.Moves, cand)
}

func (s *Session) stopPendingLocked() {
	s.epoch++
	if s.cancelRequest != nil {
		s.cancelRequest()
		s.cancelRequest = nil
	}
}

// historyWindowLocked converts the trailing half-moves to prompt items.
func (s *Session) historyWindowLocked() []prompt.HistoryItem {
	hist := s.state.History
	start := len(hist) - s.cfg.HistoryWindow
	if start < 0 {
		start = 0
	}
	out := make([]prompt.HistoryItem, 0, len(hist)-start)
	for _, h := range hist[start:] {
		out = append(out, prompt.HistoryItem{
			Number:    (h.Ply + 1) / 2,
			Mover:     string(h.Mover),
			SAN:       h.SAN,
			Piece:     h.Piece,
			Captured:  h.Captured,
			Reasoning: h.Reasoning,
		})
	}
	return out
}

func (s *Session) playerCapturesLocked() int {
	n := 0
	for _, h := range s.state.History {
		if h.Mover == SidePlayer && h.Captured != "" {
			n++
		}
	}
	return n
}

func (s *Session) persist(ctx context.Context, st State) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(ctx, &st, s.cfg.SnapshotTTL); err != nil {
		s.logger.Warn("snapshot save failed", zap.Error(err))
	}
}

func (s *Session) broadcast(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Session) archiveGame(st State) {
	if s.repo == nil {
		return
	}
	rec := buildRecord(st)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.repo.InsertGame(ctx, rec); err != nil && !errors.Is(err, archive.ErrDuplicateGame) {
			s.logger.Warn("archive insert failed", zap.Error(err))
		}
	}()
}

func buildRecord(st State) *archive.Record {
	sanLine, err := rules.SANLine(st.Moves)
	if err != nil {
		sanLine = nil
	}
	pgn, err := rules.PGN(st.Moves)
	if err != nil {
		pgn = ""
	}
	fallbacks := 0
	for _, h := range st.History {
		if h.Fallback {
			fallbacks++
		}
	}
	return &archive.Record{
		GameUUID:      st.ID,
		Model:         st.Model,
		Result:        string(st.Result),
		Reason:        string(st.Reason),
		MovesUCI:      st.Moves,
		MovesSAN:      sanLine,
		PGN:           pgn,
		FallbackMoves: fallbacks,
		StartedAt:     st.CreatedAt,
		EndedAt:       st.UpdatedAt,
		Duration:      st.UpdatedAt.Sub(st.CreatedAt),
	}
}
