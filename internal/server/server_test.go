package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/game"
	"github.com/hseong/llmchess/internal/llm"
	"github.com/hseong/llmchess/internal/render"
	"github.com/hseong/llmchess/internal/store"
	"github.com/hseong/llmchess/pkg/gamedto"
)

type stubCompleter struct {
	replies chan string
}

func (c *stubCompleter) Complete(ctx context.Context, _ llm.CompletionRequest) (string, error) {
	select {
	case reply := <-c.replies:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *stubCompleter) {
	t.Helper()
	comp := &stubCompleter{replies: make(chan string, 8)}
	repo := archive.NewMemoryRepository()
	manager := game.NewManager(game.ManagerConfig{
		KeyPrefix:    "sk-",
		DefaultModel: "test-model",
		ClockSeconds: 600,
	}, func(_, _ string) llm.Completer { return comp }, nil, repo)
	t.Cleanup(manager.Close)

	srv := httptest.NewServer(New(manager, render.NewRenderer(), repo).Routes())
	t.Cleanup(srv.Close)
	return srv, comp
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeFrame(t *testing.T, resp *http.Response) gamedto.StateFrame {
	t.Helper()
	defer resp.Body.Close()
	var frame gamedto.StateFrame
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func createGame(t *testing.T, srv *httptest.Server) gamedto.StateFrame {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/games", gamedto.StartRequest{APIKey: "sk-test"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create game status = %d", resp.StatusCode)
	}
	return decodeFrame(t, resp)
}

func moveReply(from, to string) string {
	return fmt.Sprintf(`{"move": {"from": %q, "to": %q}, "reasoning": "reply"}`, from, to)
}

func TestValidateKey(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/credentials/validate", gamedto.ValidateKeyRequest{APIKey: "sk-good"})
	var out gamedto.ValidateKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !out.Valid {
		t.Fatalf("expected valid key, got %+v", out)
	}

	resp = postJSON(t, srv.URL+"/api/credentials/validate", gamedto.ValidateKeyRequest{APIKey: "bad"})
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if out.Valid || out.Error == "" {
		t.Fatalf("expected invalid key, got %+v", out)
	}
}

func TestCreateGameRejectsBadKey(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/games", gamedto.StartRequest{APIKey: "wrong-prefix"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateAndGetGame(t *testing.T) {
	srv, _ := newTestServer(t)
	frame := createGame(t, srv)
	if frame.ID == "" || frame.Phase != "playing" || frame.Turn != "player" {
		t.Fatalf("unexpected create frame: %+v", frame)
	}
	if frame.PlayerRemaining != 600 || frame.OpponentRemaining != 600 {
		t.Fatalf("clocks = %d/%d, want 600/600", frame.PlayerRemaining, frame.OpponentRemaining)
	}

	resp, err := http.Get(srv.URL + "/api/games/" + frame.ID)
	if err != nil {
		t.Fatalf("GET game: %v", err)
	}
	got := decodeFrame(t, resp)
	if got.ID != frame.ID {
		t.Fatalf("id mismatch: %q vs %q", got.ID, frame.ID)
	}
}

func TestCreateGameCustomClock(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/games", gamedto.StartRequest{APIKey: "sk-test", ClockSeconds: 120})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	frame := decodeFrame(t, resp)
	if frame.PlayerRemaining != 120 || frame.OpponentRemaining != 120 {
		t.Fatalf("clocks = %d/%d, want 120/120", frame.PlayerRemaining, frame.OpponentRemaining)
	}
}

func TestGetUnknownGame(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/games/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMoveFlow(t *testing.T) {
	srv, comp := newTestServer(t)
	frame := createGame(t, srv)
	comp.replies <- moveReply("e7", "e5")

	resp := postJSON(t, srv.URL+"/api/games/"+frame.ID+"/moves", gamedto.MoveRequest{From: "e2", To: "e4"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move status = %d", resp.StatusCode)
	}
	got := decodeFrame(t, resp)
	if len(got.History) < 1 || got.History[0].SAN != "e4" {
		t.Fatalf("unexpected history: %+v", got.History)
	}
}

func TestMoveRejectsIllegal(t *testing.T) {
	srv, _ := newTestServer(t)
	frame := createGame(t, srv)

	resp := postJSON(t, srv.URL+"/api/games/"+frame.ID+"/moves", gamedto.MoveRequest{From: "e2", To: "e5"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestResignAndRestart(t *testing.T) {
	srv, _ := newTestServer(t)
	frame := createGame(t, srv)

	resp := postJSON(t, srv.URL+"/api/games/"+frame.ID+"/resign", struct{}{})
	got := decodeFrame(t, resp)
	if got.Phase != "ended" || got.Result != "opponent" || got.Reason != "resignation" {
		t.Fatalf("after resign: %+v", got)
	}

	resp = postJSON(t, srv.URL+"/api/games/"+frame.ID+"/restart", struct{}{})
	got = decodeFrame(t, resp)
	if got.Phase != "playing" || len(got.History) != 0 {
		t.Fatalf("after restart: %+v", got)
	}
}

func TestBoardPNG(t *testing.T) {
	srv, _ := newTestServer(t)
	frame := createGame(t, srv)

	resp, err := http.Get(srv.URL + "/api/games/" + frame.ID + "/board.png")
	if err != nil {
		t.Fatalf("GET board: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}

func TestArchiveListsFinishedGames(t *testing.T) {
	srv, _ := newTestServer(t)
	frame := createGame(t, srv)

	resp := postJSON(t, srv.URL+"/api/games/"+frame.ID+"/resign", struct{}{})
	resp.Body.Close()

	// the archive insert runs off the request path
	deadline := time.Now().Add(2 * time.Second)
	var records []gamedto.ArchivedGame
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/archive/games?limit=5")
		if err != nil {
			t.Fatalf("GET archive: %v", err)
		}
		records = nil
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			t.Fatalf("decode archive: %v", err)
		}
		resp.Body.Close()
		if len(records) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(records) != 1 {
		t.Fatalf("archive records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.GameUUID != frame.ID || rec.Result != "opponent" || rec.Reason != "resignation" {
		t.Fatalf("unexpected archive record: %+v", rec)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/archive/games/%d", srv.URL, rec.ID))
	if err != nil {
		t.Fatalf("GET archived game: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archived game status = %d", resp.StatusCode)
	}
}

func TestArchivedGameUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/archive/games/999")
	if err != nil {
		t.Fatalf("GET archived game: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown archived game status = %d, want 404", resp.StatusCode)
	}
}

func TestResumeRecoversFromSnapshot(t *testing.T) {
	comp := &stubCompleter{replies: make(chan string, 8)}
	snapshots := store.NewMemoryStore()
	factory := func(_, _ string) llm.Completer { return comp }
	cfg := game.ManagerConfig{KeyPrefix: "sk-", DefaultModel: "test-model", ClockSeconds: 600}

	first := game.NewManager(cfg, factory, snapshots, nil)
	srv := httptest.NewServer(New(first, render.NewRenderer(), nil).Routes())
	frame := createGame(t, srv)
	srv.Close()
	first.Close()

	// a new manager simulates a restarted process sharing the store
	second := game.NewManager(cfg, factory, snapshots, nil)
	t.Cleanup(second.Close)
	srv2 := httptest.NewServer(New(second, render.NewRenderer(), nil).Routes())
	t.Cleanup(srv2.Close)

	resp := postJSON(t, srv2.URL+"/api/games/"+frame.ID+"/resume", gamedto.StartRequest{APIKey: "sk-test"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	got := decodeFrame(t, resp)
	if got.ID != frame.ID {
		t.Fatalf("resumed id = %q, want %q", got.ID, frame.ID)
	}

	resp = postJSON(t, srv2.URL+"/api/games/unknown/resume", gamedto.StartRequest{APIKey: "sk-test"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown resume status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketStreamsFrames(t *testing.T) {
	srv, comp := newTestServer(t)
	frame := createGame(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/games/" + frame.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first gamedto.StateFrame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.ID != frame.ID {
		t.Fatalf("initial frame id = %q", first.ID)
	}

	comp.replies <- moveReply("e7", "e5")
	resp := postJSON(t, srv.URL+"/api/games/"+frame.ID+"/moves", gamedto.MoveRequest{From: "e2", To: "e4"})
	resp.Body.Close()

	var next gamedto.StateFrame
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read move frame: %v", err)
	}
	if len(next.History) == 0 {
		t.Fatalf("move frame carries no history: %+v", next)
	}
}
