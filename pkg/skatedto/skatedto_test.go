package skatedto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/park285/skate-duel/internal/pvpremote"
	"github.com/park285/skate-duel/internal/skate"
)

func TestFailureFrom(t *testing.T) {
	f := FailureFrom(skate.ErrWrongPlayer)
	if f.Error != "WRONG_PLAYER" || f.Message != "not your turn" || f.Status != http.StatusForbidden {
		t.Fatalf("wrong player = %+v", f)
	}
	f = FailureFrom(fmt.Errorf("file dispute: %w", skate.Errorf(skate.CodeGameNotFound, "game m1 not found")))
	if f.Error != "GAME_NOT_FOUND" || f.Status != http.StatusNotFound {
		t.Fatalf("wrapped = %+v", f)
	}
	f = FailureFrom(errors.New("pq: connection refused"))
	if f.Error != CodeInternal || f.Message != "internal error" || f.Status != http.StatusInternalServerError {
		t.Fatalf("infra = %+v", f)
	}
	if FailureFrom(nil) != (Failure{}) {
		t.Fatalf("nil error should be empty")
	}
}

func TestFromRemoteUsesTurnHolder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := pvpremote.Match{
		Match: skate.Match{
			ID:       "m1",
			PlayerA:  skate.Participant{ID: "a", Name: "Ann"},
			PlayerB:  skate.Participant{ID: "b", Name: "Bob"},
			Status:   skate.StatusActive,
			LettersB: "SK",
			Offense:  "a", Defense: "b",
			CreatedAt: now,
		},
		TurnHolder: "b",
		Rounds:     []skate.Round{{ID: "r1", Seq: 1, OffenseUID: "a", DefenseUID: "b", Status: skate.RoundAwaitingReply, CreatedAt: now}},
	}
	d := FromRemote(m)
	if d.OnTurn != "b" || d.TurnHolder != "b" || len(d.Rounds) != 1 || d.Rounds[0].Status != "awaiting_reply" {
		t.Fatalf("dto = %+v", d)
	}
	if d.PlayerB.Letters != "SK" || d.CreatedAt != "2026-03-01T12:00:00Z" || d.ResponseDeadline != "" {
		t.Fatalf("dto = %+v", d)
	}
}
