// Package server exposes the game over HTTP and pushes live state frames
// over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/game"
	"github.com/hseong/llmchess/internal/llm"
	"github.com/hseong/llmchess/internal/obslog"
	"github.com/hseong/llmchess/internal/render"
	"github.com/hseong/llmchess/internal/rules"
	"github.com/hseong/llmchess/pkg/gamedto"
)

const maxJSONBodyBytes int64 = 1 << 20

type Server struct {
	manager  *game.Manager
	renderer render.BoardRenderer
	repo     archive.Repository
	logger   *zap.Logger

	srvMu sync.Mutex
	srv   *http.Server
}

func New(manager *game.Manager, renderer render.BoardRenderer, repo archive.Repository) *Server {
	return &Server{
		manager:  manager,
		renderer: renderer,
		repo:     repo,
		logger:   obslog.L(),
	}
}

// Listen starts the HTTP server and blocks until it stops.
func (s *Server) Listen(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()
	defer func() {
		s.srvMu.Lock()
		s.srv = nil
		s.srvMu.Unlock()
	}()

	s.logger.Info("http listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Routes builds the handler. Exposed so tests can mount it on httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/credentials/validate", s.withJSON(s.handleValidateKey))
	mux.HandleFunc("POST /api/games", s.withJSON(s.handleCreateGame))
	mux.HandleFunc("GET /api/games/{id}", s.withJSON(s.handleGetGame))
	mux.HandleFunc("POST /api/games/{id}/moves", s.withJSON(s.handleMove))
	mux.HandleFunc("POST /api/games/{id}/resign", s.withJSON(s.handleResign))
	mux.HandleFunc("POST /api/games/{id}/restart", s.withJSON(s.handleRestart))
	mux.HandleFunc("POST /api/games/{id}/resume", s.withJSON(s.handleResume))
	mux.HandleFunc("GET /api/games/{id}/board.png", s.handleBoardPNG)
	mux.HandleFunc("GET /api/games/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/archive/games", s.withJSON(s.handleRecentArchive))
	mux.HandleFunc("GET /api/archive/games/{id}", s.withJSON(s.handleArchivedGame))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) withJSON(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	id := r.PathValue("id")
	sess, err := s.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	var body gamedto.ValidateKeyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.manager.ValidateKey(body.APIKey); err != nil {
		writeJSON(w, gamedto.ValidateKeyResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, gamedto.ValidateKeyResponse{Valid: true})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var body gamedto.StartRequest
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.manager.CreateGame(r.Context(), body.APIKey, body.Model, body.ClockSeconds)
	if err != nil {
		if errors.Is(err, llm.ErrInvalidKey) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error("create game failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create game")
		return
	}
	writeJSON(w, gamedto.FrameFromState(sess.State()))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, gamedto.FrameFromState(sess.State()))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body gamedto.MoveRequest
	if !decodeBody(w, r, &body) {
		return
	}

	cand := rules.Candidate{
		From:      strings.ToLower(strings.TrimSpace(body.From)),
		To:        strings.ToLower(strings.TrimSpace(body.To)),
		Promotion: strings.ToLower(strings.TrimSpace(body.Promotion)),
	}
	st, err := sess.PlayMove(r.Context(), cand)
	switch {
	case errors.Is(err, rules.ErrIllegalMove):
		writeError(w, http.StatusUnprocessableEntity, "illegal move")
		return
	case errors.Is(err, game.ErrNotPlayerTurn):
		writeError(w, http.StatusConflict, "not your turn")
		return
	case errors.Is(err, game.ErrGameNotActive):
		writeError(w, http.StatusConflict, "game is not active")
		return
	case err != nil:
		s.logger.Error("move failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "move failed")
		return
	}
	writeJSON(w, gamedto.FrameFromState(st))
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, gamedto.FrameFromState(sess.Resign(r.Context())))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, gamedto.FrameFromState(sess.Restart(r.Context())))
}

// handleResume rehydrates a game from its snapshot after a server restart.
// A fresh credential is required since keys are never persisted.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var body gamedto.StartRequest
	if !decodeBody(w, r, &body) {
		return
	}
	id := r.PathValue("id")
	if sess, err := s.manager.Get(id); err == nil {
		writeJSON(w, gamedto.FrameFromState(sess.State()))
		return
	}
	sess, err := s.manager.ResumeGame(r.Context(), id, body.APIKey)
	switch {
	case errors.Is(err, llm.ErrInvalidKey):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, game.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "game not found")
		return
	case err != nil:
		s.logger.Error("resume failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not resume game")
		return
	}
	writeJSON(w, gamedto.FrameFromState(sess.State()))
}

func (s *Server) handleBoardPNG(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	st := sess.State()

	board, err := rules.Board(st.Moves)
	if err != nil {
		s.logger.Error("board rebuild failed", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	opts := render.Options{CheckSquare: st.CheckSquare}
	if last := lastMoveHighlight(st); last != nil {
		opts.Highlight = last
	}

	data, err := s.renderer.RenderPNG(r.Context(), board, opts)
	if err != nil {
		s.logger.Error("render failed", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleRecentArchive(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	records, err := s.repo.GetRecentGames(r.Context(), limit)
	if err != nil {
		s.logger.Error("archive query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	out := make([]gamedto.ArchivedGame, 0, len(records))
	for _, rec := range records {
		out = append(out, gamedto.ArchivedGameFromRecord(rec))
	}
	writeJSON(w, out)
}

func (s *Server) handleArchivedGame(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid archive id")
		return
	}
	rec, err := s.repo.GetGame(r.Context(), id)
	if errors.Is(err, archive.ErrGameNotArchived) {
		writeError(w, http.StatusNotFound, "archived game not found")
		return
	}
	if err != nil {
		s.logger.Error("archive query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, gamedto.ArchivedGameFromRecord(rec))
}

func lastMoveHighlight(st game.State) *render.MoveHighlight {
	if len(st.History) == 0 {
		return nil
	}
	last := st.History[len(st.History)-1]
	if len(last.UCI) < 4 {
		return nil
	}
	from, ok := parseSquare(last.UCI[:2])
	if !ok {
		return nil
	}
	to, ok := parseSquare(last.UCI[2:4])
	if !ok {
		return nil
	}
	return &render.MoveHighlight{From: from, To: to}
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 {
		return 0, false
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank)), true
}
