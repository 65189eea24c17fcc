package pvpremote

import (
	"context"

	"github.com/park285/skate-duel/internal/skate"
)

// Match is the document stored under skate:remote:match:<id>. The shared
// record is embedded; rounds are appended, never rewritten once confirmed.
type Match struct {
	skate.Match
	TurnHolder string        `json:"turn_holder,omitempty"`
	Rounds     []skate.Round `json:"rounds"`
}

// Current returns the latest round, or nil before the match starts.
func (m *Match) Current() *skate.Round {
	if len(m.Rounds) == 0 {
		return nil
	}
	return &m.Rounds[len(m.Rounds)-1]
}

func (m *Match) round(id string) *skate.Round {
	for i := range m.Rounds {
		if m.Rounds[i].ID == id {
			return &m.Rounds[i]
		}
	}
	return nil
}

// Result is returned by every state-changing call.
type Result struct {
	Match   Match          `json:"match"`
	Intents []skate.Intent `json:"intents,omitempty"`
}

// FindResult tells how FindOrCreate satisfied the request.
type FindResult struct {
	Result
	Joined  bool `json:"joined"`
	Created bool `json:"created"`
}

// RoundDisputeHook is invoked after a defense disagreement commits. How the
// disputed round is resolved is up to the hook; the engine only records it.
type RoundDisputeHook func(ctx context.Context, m Match, r skate.Round)
