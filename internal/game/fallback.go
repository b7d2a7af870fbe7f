package game

import (
	"errors"
	"math/rand"

	"github.com/hseong/llmchess/internal/rules"
)

var errNoLegalMoves = errors.New("no legal moves available")

const fallbackReasoning = "fallback move: prior generation failed"

// chooseFallback picks a uniformly random legal move. The rng is owned by the
// session and is never shared across goroutines.
func chooseFallback(rng *rand.Rand, legal []rules.MoveDescriptor) (rules.Candidate, error) {
	if len(legal) == 0 {
		return rules.Candidate{}, errNoLegalMoves
	}
	pick := legal[rng.Intn(len(legal))]
	return rules.Candidate{From: pick.From, To: pick.To, Promotion: pick.Promotion}, nil
}
