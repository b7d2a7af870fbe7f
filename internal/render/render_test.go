package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/hseong/llmchess/internal/rules"
)

func startingBoard(t *testing.T) *nchess.Board {
	t.Helper()
	board, err := rules.Board(nil)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	return board
}

func TestRenderPNGDimensions(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(context.Background(), startingBoard(t), Options{})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	want := squareSize*8 + margin*2
	if img.Bounds().Dx() != want || img.Bounds().Dy() != want {
		t.Fatalf("bounds = %v, want %dx%d", img.Bounds(), want, want)
	}
}

func TestRenderPNGNilBoard(t *testing.T) {
	r := NewRenderer()
	if _, err := r.RenderPNG(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil board")
	}
}

func TestRenderPNGCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRenderer()
	if _, err := r.RenderPNG(ctx, startingBoard(t), Options{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRenderPNGHighlightChangesOutput(t *testing.T) {
	r := NewRenderer()
	board := startingBoard(t)

	plain, err := r.RenderPNG(context.Background(), board, Options{})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	highlighted, err := r.RenderPNG(context.Background(), board, Options{
		Highlight: &MoveHighlight{From: nchess.E2, To: nchess.E4},
	})
	if err != nil {
		t.Fatalf("RenderPNG with highlight: %v", err)
	}
	if bytes.Equal(plain, highlighted) {
		t.Fatal("highlight produced identical output")
	}
}

func TestRenderPNGCheckOverlay(t *testing.T) {
	r := NewRenderer()
	board := startingBoard(t)

	plain, err := r.RenderPNG(context.Background(), board, Options{})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	checked, err := r.RenderPNG(context.Background(), board, Options{CheckSquare: "e1"})
	if err != nil {
		t.Fatalf("RenderPNG with check: %v", err)
	}
	if bytes.Equal(plain, checked) {
		t.Fatal("check overlay produced identical output")
	}
}

func TestPieceGlyphCacheStable(t *testing.T) {
	a, err := pieceGlyph(nchess.WhiteKnight, squareSize)
	if err != nil {
		t.Fatalf("pieceGlyph: %v", err)
	}
	b, err := pieceGlyph(nchess.WhiteKnight, squareSize)
	if err != nil {
		t.Fatalf("pieceGlyph (cached): %v", err)
	}
	if a != b {
		t.Fatal("cache returned a different image")
	}
}
