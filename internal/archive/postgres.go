package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Open connects to Postgres with conservative pool settings and verifies the
// connection before handing the repository back.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewRepository(db), nil
}

func (r *repository) InsertGame(ctx context.Context, rec *Record) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("nil archive record")
	}
	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO llmchess_games (
			game_uuid,
			model,
			result,
			reason,
			moves_uci,
			moves_san,
			pgn,
			fallback_moves,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		rec.GameUUID,
		rec.Model,
		rec.Result,
		rec.Reason,
		movesUCI,
		movesSAN,
		rec.PGN,
		rec.FallbackMoves,
		rec.StartedAt,
		rec.EndedAt,
		rec.Duration.Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert archived game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*Record, error) {
	const query = `
		SELECT id, game_uuid, model, result, reason, moves_uci, moves_san, pgn,
		       fallback_moves, started_at, ended_at, duration_ms
		FROM llmchess_games
		WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrGameNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("get archived game: %w", err)
	}
	return rec, nil
}

func (r *repository) GetRecentGames(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, game_uuid, model, result, reason, moves_uci, moves_san, pgn,
		       fallback_moves, started_at, ended_at, duration_ms
		FROM llmchess_games
		ORDER BY ended_at DESC, id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived games: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived game: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived games: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		movesUCI   []byte
		movesSAN   []byte
		durationMS int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.GameUUID,
		&rec.Model,
		&rec.Result,
		&rec.Reason,
		&movesUCI,
		&movesSAN,
		&rec.PGN,
		&rec.FallbackMoves,
		&rec.StartedAt,
		&rec.EndedAt,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}
	if len(movesUCI) > 0 {
		if err := json.Unmarshal(movesUCI, &rec.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
	}
	if len(movesSAN) > 0 {
		if err := json.Unmarshal(movesSAN, &rec.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}
