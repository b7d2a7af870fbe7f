package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal chess move")

// Candidate is a proposed move before validation against the legal set.
type Candidate struct {
	From      string
	To        string
	Promotion string // "q","r","b","n" or empty
}

// MoveDescriptor is one entry of the legal-move vocabulary for the current
// position, carrying the display fields the prompt composer needs.
type MoveDescriptor struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Piece     string `json:"piece"`
	Captured  string `json:"captured,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Mate      bool   `json:"-"`
}

// StatusFlags is the terminal/check classification of a position.
type StatusFlags struct {
	Checkmate            bool
	Stalemate            bool
	InsufficientMaterial bool
	ThreefoldRepetition  bool
	FiftyMoveRule        bool
	InCheck              bool
	CheckSquare          string // empty unless InCheck
	MatePossible         bool   // some legal move delivers mate
	Turn                 string // "white" or "black"
}

func (f StatusFlags) Terminal() bool {
	return f.Checkmate || f.Stalemate || f.InsufficientMaterial || f.ThreefoldRepetition || f.FiftyMoveRule
}

// Draw reports whether the terminal status is a draw rather than a mate.
func (f StatusFlags) Draw() bool {
	return f.Stalemate || f.InsufficientMaterial || f.ThreefoldRepetition || f.FiftyMoveRule
}

// Applied is the result of pushing a validated move.
type Applied struct {
	UCI      string
	SAN      string
	Piece    string
	Captured string
	FEN      string
	Moves    []string // full move list including the applied move
}

// Rebuild replays the UCI move list from the start position. The move list is
// the authoritative serialized form; rebuilding on every query keeps the
// engine in sync and preserves repetition and half-move state that a bare FEN
// cannot carry.
func Rebuild(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(strings.ToLower(strings.TrimSpace(mv)), nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}

// RebuildFromFEN loads a bare position. Used where no move history exists;
// repetition state starts empty.
func RebuildFromFEN(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(option), nil
}

// FEN returns the serialized form of the position reached by the move list.
func FEN(moves []string) (string, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// LegalMoves enumerates the legal-move vocabulary for the position reached by
// the move list. Empty only in terminal positions.
func LegalMoves(moves []string) ([]MoveDescriptor, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return nil, err
	}
	return describeMoves(game), nil
}

func describeMoves(game *nchess.Game) []MoveDescriptor {
	pos := game.Position()
	board := pos.Board()
	san := nchess.AlgebraicNotation{}

	valid := game.ValidMoves()
	out := make([]MoveDescriptor, 0, len(valid))
	for _, mv := range valid {
		d := MoveDescriptor{
			From:  mv.S1().String(),
			To:    mv.S2().String(),
			Piece: pieceKindName(board.Piece(mv.S1()).Type()),
			UCI:   strings.ToLower(mv.String()),
			SAN:   san.Encode(pos, &mv),
		}
		if p := mv.Promo(); p != nchess.NoPieceType {
			d.Promotion = promotionLetter(p)
		}
		if mv.HasTag(nchess.EnPassant) {
			d.Captured = "pawn"
		} else if cap := board.Piece(mv.S2()); cap != nchess.NoPiece {
			d.Captured = pieceKindName(cap.Type())
		}
		d.Mate = strings.Contains(d.SAN, "#")
		out = append(out, d)
	}
	return out
}

// Apply validates the candidate against the legal set and pushes it. A
// candidate without a promotion matches a promoting move by defaulting to
// queen. Returns ErrIllegalMove when nothing in the legal set matches.
func Apply(moves []string, cand Candidate) (*Applied, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return nil, err
	}
	legal := describeMoves(game)
	desc, ok := matchCandidate(legal, cand)
	if !ok {
		return nil, fmt.Errorf("%w: %s%s%s", ErrIllegalMove, cand.From, cand.To, cand.Promotion)
	}

	if err := game.PushNotationMove(desc.UCI, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("push %q: %w", desc.UCI, err)
	}

	next := make([]string, 0, len(moves)+1)
	next = append(next, moves...)
	next = append(next, desc.UCI)

	return &Applied{
		UCI:      desc.UCI,
		SAN:      desc.SAN,
		Piece:    desc.Piece,
		Captured: desc.Captured,
		FEN:      game.FEN(),
		Moves:    next,
	}, nil
}

func matchCandidate(legal []MoveDescriptor, cand Candidate) (MoveDescriptor, bool) {
	from := strings.ToLower(strings.TrimSpace(cand.From))
	to := strings.ToLower(strings.TrimSpace(cand.To))
	promo := strings.ToLower(strings.TrimSpace(cand.Promotion))

	var fallback *MoveDescriptor
	for i := range legal {
		d := legal[i]
		if d.From != from || d.To != to {
			continue
		}
		if d.Promotion == promo {
			return d, true
		}
		// promotion omitted: remember the queen promotion as the default
		if promo == "" && d.Promotion == "q" {
			fallback = &legal[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return MoveDescriptor{}, false
}

// Status classifies the position reached by the move list.
func Status(moves []string) (StatusFlags, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return StatusFlags{}, err
	}
	return statusOf(game), nil
}

func statusOf(game *nchess.Game) StatusFlags {
	pos := game.Position()
	flags := StatusFlags{Turn: colorName(pos.Turn())}

	switch game.Method() {
	case nchess.Checkmate:
		flags.Checkmate = true
	case nchess.Stalemate:
		flags.Stalemate = true
	case nchess.InsufficientMaterial:
		flags.InsufficientMaterial = true
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		flags.ThreefoldRepetition = true
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		flags.FiftyMoveRule = true
	}

	// Threefold and fifty-move are claimable draws; the game ends as soon as
	// either becomes available rather than waiting for a claim.
	if game.Outcome() == nchess.NoOutcome {
		for _, method := range game.EligibleDraws() {
			switch method {
			case nchess.ThreefoldRepetition:
				flags.ThreefoldRepetition = true
			case nchess.FiftyMoveRule:
				flags.FiftyMoveRule = true
			}
		}
	}

	if last := lastMove(game); last != nil && last.HasTag(nchess.Check) {
		flags.InCheck = true
		flags.CheckSquare = kingSquare(pos, pos.Turn())
	}

	if !flags.Terminal() {
		for _, d := range describeMoves(game) {
			if d.Mate {
				flags.MatePossible = true
				break
			}
		}
	}
	return flags
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func kingSquare(pos *nchess.Position, side nchess.Color) string {
	board := pos.Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := board.Piece(sq)
			if piece != nchess.NoPiece && piece.Type() == nchess.King && piece.Color() == side {
				return sq.String()
			}
		}
	}
	return ""
}

// Board returns the piece placement reached by the move list, for rendering.
func Board(moves []string) (*nchess.Board, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return nil, err
	}
	return game.Position().Board(), nil
}

// PGN renders the move list as a PGN movetext document.
func PGN(moves []string) (string, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return "", err
	}
	return game.String(), nil
}

// SANLine converts the UCI move list to SAN, one entry per half-move.
func SANLine(moves []string) ([]string, error) {
	game, err := Rebuild(moves)
	if err != nil {
		return nil, err
	}
	positions := game.Positions()
	applied := game.Moves()
	san := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(applied))
	for i, mv := range applied {
		if i < len(positions) {
			out = append(out, san.Encode(positions[i], mv))
		}
	}
	return out, nil
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func pieceKindName(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "king"
	case nchess.Queen:
		return "queen"
	case nchess.Rook:
		return "rook"
	case nchess.Bishop:
		return "bishop"
	case nchess.Knight:
		return "knight"
	case nchess.Pawn:
		return "pawn"
	default:
		return ""
	}
}

func promotionLetter(t nchess.PieceType) string {
	switch t {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}
