package archive

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryInsertAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec := &Record{
		GameUUID:  "uuid-1",
		Model:     "gpt-4o-mini",
		Result:    "player",
		Reason:    "checkmate",
		MovesUCI:  []string{"e2e4", "e7e5"},
		MovesSAN:  []string{"e4", "e5"},
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
	id, err := repo.InsertGame(ctx, rec)
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := repo.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got == nil || got.GameUUID != "uuid-1" || got.Result != "player" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.GetGame(ctx, id+1); !errors.Is(err, ErrGameNotArchived) {
		t.Fatalf("expected ErrGameNotArchived, got %v", err)
	}
}

func TestMemoryRepositoryDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec := &Record{GameUUID: "uuid-dup", Result: "draw", Reason: "stalemate"}
	if _, err := repo.InsertGame(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := repo.InsertGame(ctx, rec); !errors.Is(err, ErrDuplicateGame) {
		t.Fatalf("expected ErrDuplicateGame, got %v", err)
	}
}

func TestMemoryRepositoryRecentOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		_, err := repo.InsertGame(ctx, &Record{
			GameUUID: string(rune('a' + i)),
			EndedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	recent, err := repo.GetRecentGames(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if !recent[0].EndedAt.After(recent[1].EndedAt) {
		t.Fatalf("expected newest first, got %v then %v", recent[0].EndedAt, recent[1].EndedAt)
	}
}
