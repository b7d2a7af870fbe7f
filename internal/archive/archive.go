// Package archive persists finished games. Live game state never touches the
// database; only terminal results land here.
package archive

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateGame   = errors.New("game already archived")
	ErrGameNotArchived = errors.New("game not archived")
)

// Record is one finished game.
type Record struct {
	ID            int64
	GameUUID      string
	Model         string
	Result        string // "player", "opponent", "draw"
	Reason        string // "checkmate", "time", ...
	MovesUCI      []string
	MovesSAN      []string
	PGN           string
	FallbackMoves int
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
}

type Repository interface {
	InsertGame(ctx context.Context, rec *Record) (int64, error)
	GetGame(ctx context.Context, id int64) (*Record, error)
	GetRecentGames(ctx context.Context, limit int) ([]*Record, error)
}
