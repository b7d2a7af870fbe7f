// Package game owns the authoritative state of one chess game against the
// language model and the orchestration around it. All mutation goes through
// pure reducers; the Session serializes access and drives side effects.
package game

import (
	"time"

	"github.com/hseong/llmchess/internal/rules"
)

type Side string

const (
	SidePlayer   Side = "player"
	SideOpponent Side = "opponent"
)

func (s Side) Other() Side {
	if s == SidePlayer {
		return SideOpponent
	}
	return SidePlayer
}

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

type Result string

const (
	ResultNone     Result = "none"
	ResultPlayer   Result = "player"
	ResultOpponent Result = "opponent"
	ResultDraw     Result = "draw"
)

type EndReason string

const (
	ReasonNone                 EndReason = "none"
	ReasonCheckmate            EndReason = "checkmate"
	ReasonStalemate            EndReason = "stalemate"
	ReasonTime                 EndReason = "time"
	ReasonInsufficientMaterial EndReason = "insufficientMaterial"
	ReasonRepetition           EndReason = "repetition"
	ReasonFiftyMove            EndReason = "fiftyMove"
	ReasonResignation          EndReason = "resignation"
)

// HistoryEntry is one applied half-move. Entries are append-only.
type HistoryEntry struct {
	Ply       int    `json:"ply"` // 1-based half-move index
	Mover     Side   `json:"mover"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Piece     string `json:"piece"`
	Captured  string `json:"captured,omitempty"`
	FEN       string `json:"fen"`
	Reasoning string `json:"reasoning,omitempty"` // model moves only
	Fallback  bool   `json:"fallback,omitempty"`
}

// State is the single authoritative game state. Invariants:
// Result != none iff Phase == ended; CheckSquare non-empty iff InCheck;
// TurnSeq increments exactly once per applied half-move.
type State struct {
	ID    string `json:"id"`
	Model string `json:"model"`

	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`

	Turn   Side      `json:"turn"`
	Phase  Phase     `json:"phase"`
	Result Result    `json:"result"`
	Reason EndReason `json:"reason"`

	InCheck     bool   `json:"in_check"`
	CheckSquare string `json:"check_square,omitempty"`

	PlayerRemaining   int `json:"player_remaining"`
	OpponentRemaining int `json:"opponent_remaining"`

	TurnSeq int            `json:"turn_seq"`
	History []HistoryEntry `json:"history"`

	AuthRequired bool `json:"auth_required,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newState(id, model string, clockSeconds int, now time.Time) State {
	return State{
		ID:                id,
		Model:             model,
		FEN:               startFEN,
		Moves:             []string{},
		Turn:              SidePlayer,
		Phase:             PhaseWaiting,
		Result:            ResultNone,
		Reason:            ReasonNone,
		PlayerRemaining:   clockSeconds,
		OpponentRemaining: clockSeconds,
		History:           []HistoryEntry{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s State) clone() State {
	out := s
	out.Moves = append([]string(nil), s.Moves...)
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}

func reduceStart(s State, now time.Time) State {
	if s.Phase != PhaseWaiting {
		return s
	}
	out := s.clone()
	out.Phase = PhasePlaying
	out.UpdatedAt = now
	return out
}

// reduceMove applies an already-validated move. The winner of a mating move
// is the side that just moved, never re-derived from whose turn it becomes.
func reduceMove(s State, applied *rules.Applied, mover Side, flags rules.StatusFlags, reasoning string, fallback bool, now time.Time) State {
	out := s.clone()
	out.Moves = append([]string(nil), applied.Moves...)
	out.FEN = applied.FEN
	out.TurnSeq++
	out.Turn = mover.Other()
	out.UpdatedAt = now

	out.InCheck = flags.InCheck
	out.CheckSquare = flags.CheckSquare
	if !flags.InCheck {
		out.CheckSquare = ""
	}

	entry := HistoryEntry{
		Ply:      len(out.Moves),
		Mover:    mover,
		UCI:      applied.UCI,
		SAN:      applied.SAN,
		Piece:    applied.Piece,
		Captured: applied.Captured,
		FEN:      applied.FEN,
		Fallback: fallback,
	}
	if mover == SideOpponent {
		entry.Reasoning = reasoning
	}
	out.History = append(out.History, entry)

	switch {
	case flags.Checkmate:
		out.Phase = PhaseEnded
		out.Reason = ReasonCheckmate
		if mover == SidePlayer {
			out.Result = ResultPlayer
		} else {
			out.Result = ResultOpponent
		}
	case flags.Stalemate:
		out.endDraw(ReasonStalemate)
	case flags.InsufficientMaterial:
		out.endDraw(ReasonInsufficientMaterial)
	case flags.ThreefoldRepetition:
		out.endDraw(ReasonRepetition)
	case flags.FiftyMoveRule:
		out.endDraw(ReasonFiftyMove)
	}
	return out
}

func (s *State) endDraw(reason EndReason) {
	s.Phase = PhaseEnded
	s.Result = ResultDraw
	s.Reason = reason
}

// reduceTick burns one second off the side to move. Expiry ends the game in
// favor of the other side immediately.
func reduceTick(s State, now time.Time) State {
	if s.Phase != PhasePlaying {
		return s
	}
	out := s.clone()
	out.UpdatedAt = now
	if out.Turn == SidePlayer {
		if out.PlayerRemaining > 0 {
			out.PlayerRemaining--
		}
		if out.PlayerRemaining == 0 {
			out.Phase = PhaseEnded
			out.Result = ResultOpponent
			out.Reason = ReasonTime
		}
		return out
	}
	if out.OpponentRemaining > 0 {
		out.OpponentRemaining--
	}
	if out.OpponentRemaining == 0 {
		out.Phase = PhaseEnded
		out.Result = ResultPlayer
		out.Reason = ReasonTime
	}
	return out
}

func reduceResign(s State, resigner Side, now time.Time) State {
	if s.Phase != PhasePlaying {
		return s
	}
	out := s.clone()
	out.Phase = PhaseEnded
	out.Reason = ReasonResignation
	if resigner == SidePlayer {
		out.Result = ResultOpponent
	} else {
		out.Result = ResultPlayer
	}
	out.UpdatedAt = now
	return out
}

func reduceAuthRequired(s State, required bool, now time.Time) State {
	out := s.clone()
	out.AuthRequired = required
	out.UpdatedAt = now
	return out
}
