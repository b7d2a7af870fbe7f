package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hseong/llmchess/internal/rules"
)

// ErrMalformedResponse marks completion output that could not be parsed into
// the expected JSON shape. The caller recovers through the fallback selector.
var ErrMalformedResponse = errors.New("malformed completion response")

type moveEnvelope struct {
	Move struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Promotion string `json:"promotion"`
	} `json:"move"`
	Reasoning string `json:"reasoning"`
}

// ParseMoveResponse extracts the candidate move and reasoning from the raw
// completion text. Fenced code blocks around the JSON are tolerated; anything
// else that fails to decode or misses move.from/move.to is malformed. Legality
// is the rules adapter's call, not ours.
func ParseMoveResponse(raw string) (rules.Candidate, string, error) {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return rules.Candidate{}, "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var env moveEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return rules.Candidate{}, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	from := strings.ToLower(strings.TrimSpace(env.Move.From))
	to := strings.ToLower(strings.TrimSpace(env.Move.To))
	if from == "" || to == "" {
		return rules.Candidate{}, "", fmt.Errorf("%w: missing move.from or move.to", ErrMalformedResponse)
	}

	cand := rules.Candidate{
		From:      from,
		To:        to,
		Promotion: strings.ToLower(strings.TrimSpace(env.Move.Promotion)),
	}
	return cand, strings.TrimSpace(env.Reasoning), nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
