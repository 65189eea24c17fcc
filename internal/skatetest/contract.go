// Package skatetest holds the rules contract both storage engines must meet.
package skatetest

import (
	"context"
	"testing"

	"github.com/park285/skate-duel/internal/skate"
	"github.com/stretchr/testify/require"
)

// Harness drives one engine through the shared scenarios.
type Harness interface {
	// Start returns the id of an active match with offense setting first.
	Start(t *testing.T, offense, defense skate.Participant) string
	// PlayRound runs one full exchange that the offense judges as ruling.
	PlayRound(t *testing.T, matchID string, ruling skate.Ruling) skate.Outcome
	// SetAs tries to open the next exchange as playerID.
	SetAs(ctx context.Context, matchID, playerID string) error
	Get(t *testing.T, matchID string) skate.Match
}

var (
	alice = skate.Participant{ID: "alice", Name: "Alice"}
	bob   = skate.Participant{ID: "bob", Name: "Bob"}
)

// Run executes the contract against a fresh harness per case.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Run("MissGivesDefenseALetter", func(t *testing.T) {
		h := newHarness(t)
		id := h.Start(t, alice, bob)
		out := h.PlayRound(t, id, skate.RulingMissed)
		require.Equal(t, skate.StatusActive, out.Match.Status)
		require.Equal(t, skate.Letters("S"), *out.Match.LettersOf(bob.ID))
		require.Equal(t, skate.Letters(""), *out.Match.LettersOf(alice.ID))
		require.Equal(t, alice.ID, out.Match.Offense, "offense keeps the turn after a miss")
		require.Equal(t, bob.ID, out.Match.Defense)
		requireYourTurn(t, out.Intents, alice.ID)
	})

	t.Run("LandedMovesNoLetters", func(t *testing.T) {
		h := newHarness(t)
		id := h.Start(t, alice, bob)
		out := h.PlayRound(t, id, skate.RulingLanded)
		require.Equal(t, skate.Letters(""), out.Match.LettersA)
		require.Equal(t, skate.Letters(""), out.Match.LettersB)
		require.Equal(t, alice.ID, out.Match.Offense)
		stored := h.Get(t, id)
		require.Equal(t, out.Match.Version, stored.Version)
	})

	t.Run("FifthMissCompletesMatch", func(t *testing.T) {
		h := newHarness(t)
		id := h.Start(t, alice, bob)
		var out skate.Outcome
		for i := 0; i < len(skate.Word); i++ {
			before := h.Get(t, id)
			out = h.PlayRound(t, id, skate.RulingMissed)
			require.GreaterOrEqual(t, out.Match.LettersOf(bob.ID).Len(), before.LettersOf(bob.ID).Len())
		}
		m := h.Get(t, id)
		require.Equal(t, skate.StatusCompleted, m.Status)
		require.Equal(t, alice.ID, m.Winner)
		require.True(t, m.LettersOf(bob.ID).Complete())
		require.False(t, m.LettersOf(alice.ID).Complete())
		require.NoError(t, m.Validate())

		won := map[string]bool{}
		for _, in := range out.Intents {
			require.Equal(t, skate.IntentGameOver, in.Type)
			won[in.TargetPlayerID] = in.Data[skate.KeyYouWon].(bool)
		}
		require.Equal(t, map[string]bool{alice.ID: true, bob.ID: false}, won)

		err := h.SetAs(context.Background(), id, alice.ID)
		require.Error(t, err)
		require.Equal(t, skate.KindInvalidState, skate.CodeOf(err).Kind())
	})

	t.Run("WrongRoleIsForbidden", func(t *testing.T) {
		h := newHarness(t)
		id := h.Start(t, alice, bob)
		before := h.Get(t, id)
		err := h.SetAs(context.Background(), id, bob.ID)
		require.Error(t, err)
		require.Equal(t, skate.KindForbidden, skate.CodeOf(err).Kind())
		require.Equal(t, before.Version, h.Get(t, id).Version, "rejected action must not write")
	})

	t.Run("UnknownMatch", func(t *testing.T) {
		h := newHarness(t)
		err := h.SetAs(context.Background(), "no-such-match", alice.ID)
		require.ErrorIs(t, err, skate.ErrGameNotFound)
	})
}

func requireYourTurn(t *testing.T, intents []skate.Intent, target string) {
	t.Helper()
	for _, in := range intents {
		if in.Type == skate.IntentYourTurn && in.TargetPlayerID == target {
			return
		}
	}
	require.Failf(t, "missing your_turn", "no your_turn for %s in %+v", target, intents)
}
