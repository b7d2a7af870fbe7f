// Package prompt builds the move-negotiation request sent to the language
// model and parses the move out of its reply. The composer is a pure function
// of its inputs so prompts are reproducible in tests.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hseong/llmchess/internal/rules"
)

// HistoryItem is one half-move of the trailing window shown to the model.
type HistoryItem struct {
	Number    int    // full-move number
	Mover     string // "player" or "opponent"
	SAN       string
	Piece     string
	Captured  string
	Reasoning string // opponent moves only
}

// ComposeInput carries everything the request is built from. No clocks and no
// timestamps: the same position and history always produce the same prompt.
type ComposeInput struct {
	FEN          string
	History      []HistoryItem
	Legal        []rules.MoveDescriptor
	InCheck      bool
	MatePossible bool
	CaptureCount int // captures made by the human so far
}

// Compose renders the move request. The legal-move list is the vocabulary the
// responder must choose from; the trailing instruction pins the reply to a
// fixed JSON shape.
func Compose(in ComposeInput) string {
	var b strings.Builder

	b.WriteString("You are playing black in a chess game against a human opponent.\n")
	b.WriteString("Current position (FEN): " + in.FEN + "\n\n")

	if len(in.History) > 0 {
		b.WriteString("Recent moves:\n")
		for _, h := range in.History {
			who := "White (human)"
			if h.Mover == "opponent" {
				who = "Black (you)"
			}
			line := fmt.Sprintf("%d. %s: %s", h.Number, who, h.SAN)
			if h.Reasoning != "" {
				line += " (your reasoning then: " + h.Reasoning + ")"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if tendency := describeTendency(in.History); tendency != "" {
		b.WriteString("Opponent tendency: " + tendency + "\n")
	}
	b.WriteString(fmt.Sprintf("The human has captured %d of your pieces so far.\n\n", in.CaptureCount))

	if in.InCheck {
		b.WriteString("URGENT: your king is in check. You must escape the check this move.\n")
	}
	if in.MatePossible {
		b.WriteString("URGENT: a checkmating move is available. Find it and play it.\n")
	}

	b.WriteString("Your legal moves (choose exactly one):\n")
	for _, d := range in.Legal {
		line := fmt.Sprintf("- from=%s to=%s piece=%s san=%s", d.From, d.To, d.Piece, d.SAN)
		if d.Promotion != "" {
			line += " promotion=" + d.Promotion
		}
		if d.Captured != "" {
			line += " captures=" + d.Captured
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\nRespond with only a JSON object of this exact shape:\n")
	b.WriteString(`{"move": {"from": "e7", "to": "e5", "promotion": "q"}, "reasoning": "short explanation"}` + "\n")
	b.WriteString("The promotion field is only for pawn promotions. Do not add any other text.\n")

	return b.String()
}

// describeTendency summarizes the human's recent piece preferences. Two or
// more moves of a kind in the window counts as a tendency; pawn outranks
// knight outranks bishop when several qualify.
func describeTendency(history []HistoryItem) string {
	counts := map[string]int{}
	for _, h := range history {
		if h.Mover != "player" {
			continue
		}
		counts[h.Piece]++
	}
	switch {
	case counts["pawn"] >= 2:
		return "favors pawn moves"
	case counts["knight"] >= 2:
		return "favors knight maneuvers"
	case counts["bishop"] >= 2:
		return "favors bishop play"
	case len(counts) > 0:
		return "favors piece development"
	default:
		return ""
	}
}
