// Package gamedto holds the JSON shapes exchanged with the browser client.
package gamedto

import (
	"time"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/game"
)

type StartRequest struct {
	APIKey       string `json:"api_key"`
	Model        string `json:"model,omitempty"`
	ClockSeconds int    `json:"clock_seconds,omitempty"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type ValidateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type ValidateKeyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type HistoryEntry struct {
	Ply       int    `json:"ply"`
	Mover     string `json:"mover"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Piece     string `json:"piece"`
	Captured  string `json:"captured,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// StateFrame is the full game view. The same shape serves REST responses and
// websocket pushes.
type StateFrame struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	FEN    string `json:"fen"`
	Turn   string `json:"turn"`
	Phase  string `json:"phase"`
	Result string `json:"result"`
	Reason string `json:"reason"`

	InCheck     bool   `json:"in_check"`
	CheckSquare string `json:"check_square,omitempty"`

	PlayerRemaining   int `json:"player_remaining"`
	OpponentRemaining int `json:"opponent_remaining"`

	History []HistoryEntry `json:"history"`

	AuthRequired bool `json:"auth_required,omitempty"`
}

// ArchivedGame is the read-side view of a finished game.
type ArchivedGame struct {
	ID            int64     `json:"id"`
	GameUUID      string    `json:"game_uuid"`
	Model         string    `json:"model"`
	Result        string    `json:"result"`
	Reason        string    `json:"reason"`
	MovesUCI      []string  `json:"moves_uci"`
	MovesSAN      []string  `json:"moves_san"`
	PGN           string    `json:"pgn"`
	FallbackMoves int       `json:"fallback_moves"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	DurationMS    int64     `json:"duration_ms"`
}

func ArchivedGameFromRecord(rec *archive.Record) ArchivedGame {
	return ArchivedGame{
		ID:            rec.ID,
		GameUUID:      rec.GameUUID,
		Model:         rec.Model,
		Result:        rec.Result,
		Reason:        rec.Reason,
		MovesUCI:      rec.MovesUCI,
		MovesSAN:      rec.MovesSAN,
		PGN:           rec.PGN,
		FallbackMoves: rec.FallbackMoves,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
		DurationMS:    rec.Duration.Milliseconds(),
	}
}

func FrameFromState(st game.State) StateFrame {
	frame := StateFrame{
		ID:                st.ID,
		Model:             st.Model,
		FEN:               st.FEN,
		Turn:              string(st.Turn),
		Phase:             string(st.Phase),
		Result:            string(st.Result),
		Reason:            string(st.Reason),
		InCheck:           st.InCheck,
		CheckSquare:       st.CheckSquare,
		PlayerRemaining:   st.PlayerRemaining,
		OpponentRemaining: st.OpponentRemaining,
		History:           make([]HistoryEntry, 0, len(st.History)),
		AuthRequired:      st.AuthRequired,
	}
	for _, h := range st.History {
		frame.History = append(frame.History, HistoryEntry{
			Ply:       h.Ply,
			Mover:     string(h.Mover),
			UCI:       h.UCI,
			SAN:       h.SAN,
			Piece:     h.Piece,
			Captured:  h.Captured,
			Reasoning: h.Reasoning,
			Fallback:  h.Fallback,
		})
	}
	return frame
}
