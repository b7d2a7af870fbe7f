package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hseong/llmchess/internal/rules"
)

func composeFixture() ComposeInput {
	return ComposeInput{
		FEN: "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
		History: []HistoryItem{
			{Number: 1, Mover: "player", SAN: "e4", Piece: "pawn"},
		},
		Legal: []rules.MoveDescriptor{
			{From: "e7", To: "e5", Piece: "pawn", SAN: "e5", UCI: "e7e5"},
			{From: "g8", To: "f6", Piece: "knight", SAN: "Nf6", UCI: "g8f6"},
		},
		CaptureCount: 0,
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	in := composeFixture()
	first := Compose(in)
	second := Compose(in)
	require.Equal(t, first, second, "same inputs must render the same prompt")
}

func TestComposeContainsVocabularyAndContract(t *testing.T) {
	out := Compose(composeFixture())
	require.Contains(t, out, "rnbqkbnr/pppppppp")
	require.Contains(t, out, "from=e7 to=e5")
	require.Contains(t, out, "from=g8 to=f6")
	require.Contains(t, out, `{"move": {"from"`)
	require.Contains(t, out, "1. White (human): e4")
	require.NotContains(t, out, "URGENT")
}

func TestComposeUrgencyDirectives(t *testing.T) {
	in := composeFixture()
	in.InCheck = true
	out := Compose(in)
	require.Contains(t, out, "in check")

	in.InCheck = false
	in.MatePossible = true
	out = Compose(in)
	require.Contains(t, out, "checkmating move")
}

func TestComposeCarriesPriorReasoning(t *testing.T) {
	in := composeFixture()
	in.History = append(in.History, HistoryItem{
		Number: 1, Mover: "opponent", SAN: "e5", Piece: "pawn",
		Reasoning: "contest the center",
	})
	out := Compose(in)
	require.Contains(t, out, "contest the center")
}

func TestDescribeTendency(t *testing.T) {
	cases := []struct {
		name    string
		history []HistoryItem
		want    string
	}{
		{
			"two pawn moves",
			[]HistoryItem{
				{Mover: "player", Piece: "pawn"},
				{Mover: "player", Piece: "pawn"},
			},
			"favors pawn moves",
		},
		{
			"pawn outranks knight",
			[]HistoryItem{
				{Mover: "player", Piece: "pawn"},
				{Mover: "player", Piece: "pawn"},
				{Mover: "player", Piece: "knight"},
				{Mover: "player", Piece: "knight"},
			},
			"favors pawn moves",
		},
		{
			"knight outranks bishop",
			[]HistoryItem{
				{Mover: "player", Piece: "knight"},
				{Mover: "player", Piece: "knight"},
				{Mover: "player", Piece: "bishop"},
				{Mover: "player", Piece: "bishop"},
			},
			"favors knight maneuvers",
		},
		{
			"mixed single moves",
			[]HistoryItem{
				{Mover: "player", Piece: "pawn"},
				{Mover: "player", Piece: "queen"},
			},
			"favors piece development",
		},
		{
			"opponent moves ignored",
			[]HistoryItem{
				{Mover: "opponent", Piece: "pawn"},
				{Mover: "opponent", Piece: "pawn"},
			},
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, describeTendency(tc.history))
		})
	}
}

func TestComposeLinesEndCleanly(t *testing.T) {
	out := Compose(composeFixture())
	require.True(t, strings.HasSuffix(out, "\n"))
}
