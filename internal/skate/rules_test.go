package skate

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeMatch() Match {
	return Match{
		ID:        "m1",
		PlayerA:   Participant{ID: "a", Name: "Alice"},
		PlayerB:   Participant{ID: "b", Name: "Bob"},
		Status:    StatusActive,
		Phase:     PhaseSetTrick,
		Offense:   "a",
		Defense:   "b",
		CreatedBy: "a",
	}
}

func TestBailSwapsRolesAndNamesBailer(t *testing.T) {
	r := Rules{ResponseWindow: time.Hour}
	tr, err := r.Step(activeMatch(), Action{Kind: ActionBail, Actor: "a"}, t0)
	if err != nil {
		t.Fatalf("Step bail: %v", err)
	}
	m := tr.Match
	if m.LettersA != "S" || m.LettersB != "" {
		t.Fatalf("letters = %q/%q, want S/''", m.LettersA, m.LettersB)
	}
	if m.Offense != "b" || m.Defense != "a" || m.Phase != PhaseSetTrick {
		t.Fatalf("roles not swapped: off=%s def=%s phase=%s", m.Offense, m.Defense, m.Phase)
	}
	if !m.ResponseDeadline.Equal(t0.Add(time.Hour)) {
		t.Fatalf("deadline = %v", m.ResponseDeadline)
	}
	if len(tr.Intents) != 1 {
		t.Fatalf("intents = %d, want 1", len(tr.Intents))
	}
	in := tr.Intents[0]
	if in.Type != IntentYourTurn || in.TargetPlayerID != "b" || in.Data[KeyOpponentID] != "a" || in.Data[KeyOpponentName] != "Alice" {
		t.Fatalf("unexpected intent: %+v", in)
	}
}

func TestBailOnFinalLetterCompletes(t *testing.T) {
	m := activeMatch()
	m.LettersA = "SKAT"
	tr, err := Rules{}.Step(m, Action{Kind: ActionBail, Actor: "a"}, t0)
	if err != nil {
		t.Fatalf("Step bail: %v", err)
	}
	got := tr.Match
	if got.Status != StatusCompleted || got.Winner != "b" || got.LettersA != "SKATE" {
		t.Fatalf("status=%s winner=%s letters=%s", got.Status, got.Winner, got.LettersA)
	}
	if got.Phase != PhaseNone || !got.ResponseDeadline.IsZero() {
		t.Fatalf("phase/deadline not cleared: %q %v", got.Phase, got.ResponseDeadline)
	}
	if len(tr.Intents) != 2 {
		t.Fatalf("intents = %d, want 2", len(tr.Intents))
	}
	for _, in := range tr.Intents {
		if in.Type != IntentGameOver {
			t.Fatalf("type = %s", in.Type)
		}
		if won := in.Data[KeyYouWon].(bool); won != (in.TargetPlayerID == "b") {
			t.Fatalf("youWon for %s = %v", in.TargetPlayerID, won)
		}
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBailPreconditions(t *testing.T) {
	m := activeMatch()
	if _, err := (Rules{}).Step(m, Action{Kind: ActionBail, Actor: "b"}, t0); !errors.Is(err, ErrWrongPlayer) {
		t.Fatalf("defense bail err = %v", err)
	}
	m.Phase = PhaseJudge
	if _, err := (Rules{}).Step(m, Action{Kind: ActionBail, Actor: "a"}, t0); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("wrong phase err = %v", err)
	}
	m.Status = StatusCompleted
	if _, err := (Rules{}).Step(m, Action{Kind: ActionBail, Actor: "a"}, t0); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("inactive err = %v", err)
	}
}

func TestJudgeMissedKeepsOffense(t *testing.T) {
	m := activeMatch()
	m.Phase = PhaseJudge
	tr, err := Rules{}.Step(m, Action{Kind: ActionJudge, Actor: "a", Ruling: RulingMissed}, t0)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if tr.Match.LettersB != "S" || tr.Match.Offense != "a" || tr.Match.Phase != PhaseSetTrick {
		t.Fatalf("unexpected state: %+v", tr.Match)
	}
	if tr.Intents[0].TargetPlayerID != "a" || tr.Intents[0].Data[KeyRuling] != "missed" {
		t.Fatalf("unexpected intent: %+v", tr.Intents[0])
	}
}

func TestJudgeLandedMovesNoLetters(t *testing.T) {
	m := activeMatch()
	m.Phase = PhaseRespondTrick
	tr, err := Rules{}.Step(m, Action{Kind: ActionJudge, Actor: "a", Ruling: RulingLanded}, t0)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if tr.Match.LettersA != "" || tr.Match.LettersB != "" || tr.Match.Offense != "a" {
		t.Fatalf("unexpected state: %+v", tr.Match)
	}
	if _, err := (Rules{}).Step(m, Action{Kind: ActionJudge, Actor: "b", Ruling: RulingLanded}, t0); !errors.Is(err, ErrWrongPlayer) {
		t.Fatalf("defense judging err = %v", err)
	}
	if _, err := (Rules{}).Step(m, Action{Kind: ActionJudge, Actor: "a", Ruling: RulingPending}, t0); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("pending ruling err = %v", err)
	}
}

func TestForfeitNamesPlayerNotOnTurn(t *testing.T) {
	m := activeMatch()
	m.Phase = PhaseRespondTrick // defense "b" on turn
	tr, err := Rules{}.Step(m, Action{Kind: ActionForfeit}, t0)
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if tr.Match.Winner != "a" || tr.Match.LettersB != "SKATE" || tr.Match.ForfeitReason != "deadline_expired" {
		t.Fatalf("unexpected: %+v", tr.Match)
	}
	if err := tr.Match.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestAcceptAndCancel(t *testing.T) {
	m := Match{ID: "m", PlayerA: Participant{ID: "a"}, PlayerB: Participant{ID: "b"}, Status: StatusWaiting, CreatedBy: "a"}
	if _, err := (Rules{}).Step(m, Action{Kind: ActionAccept, Actor: "a"}, t0); !errors.Is(err, ErrWrongPlayer) {
		t.Fatalf("self accept err = %v", err)
	}
	tr, err := Rules{}.Step(m, Action{Kind: ActionAccept, Actor: "b"}, t0)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if tr.Match.Status != StatusActive || tr.Match.Offense != "a" || tr.Match.Version != 1 {
		t.Fatalf("unexpected: %+v", tr.Match)
	}
	if _, err := (Rules{}).Step(tr.Match, Action{Kind: ActionAccept, Actor: "b"}, t0); CodeOf(err) != CodeInvalidState {
		t.Fatalf("second accept err = %v", err)
	}
	noop, err := Rules{}.Step(tr.Match, Action{Kind: ActionCancel, Actor: "a"}, t0)
	if err != nil || noop.Changed {
		t.Fatalf("cancel after start: changed=%v err=%v", noop.Changed, err)
	}
	if _, err := (Rules{}).Step(m, Action{Kind: ActionCancel, Actor: "b"}, t0); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("non-creator cancel err = %v", err)
	}
}

// Random walks over valid actions must never break the record invariants.
func TestRandomPlayKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := Rules{ResponseWindow: time.Minute}
	for game := 0; game < 200; game++ {
		m := activeMatch()
		now := t0
		for step := 0; step < 200 && m.Status == StatusActive; step++ {
			prevA, prevB := m.LettersA.Len(), m.LettersB.Len()
			var a Action
			switch m.Phase {
			case PhaseSetTrick:
				if rng.Intn(4) == 0 {
					a = Action{Kind: ActionBail, Actor: m.Offense}
				} else {
					a = Action{Kind: ActionSubmitSet, Actor: m.Offense}
				}
			case PhaseRespondTrick:
				a = Action{Kind: ActionSubmitResponse, Actor: m.Defense}
			case PhaseJudge:
				ruling := RulingLanded
				if rng.Intn(2) == 0 {
					ruling = RulingMissed
				}
				a = Action{Kind: ActionJudge, Actor: m.Offense, Ruling: ruling}
			}
			now = now.Add(time.Second)
			tr, err := r.Step(m, a, now)
			if err != nil {
				t.Fatalf("game %d step %d %s: %v", game, step, a.Kind, err)
			}
			m = tr.Match
			if err := m.Validate(); err != nil {
				t.Fatalf("game %d step %d: %v", game, step, err)
			}
			if m.LettersA.Len() < prevA || m.LettersB.Len() < prevB {
				t.Fatalf("letters shrank: %q/%q", m.LettersA, m.LettersB)
			}
		}
		if m.Status == StatusCompleted {
			full := 0
			for _, l := range []Letters{m.LettersA, m.LettersB} {
				if l.Complete() {
					full++
				}
			}
			if full != 1 {
				t.Fatalf("game %d completed with %d full words", game, full)
			}
		}
	}
}

func TestLetters(t *testing.T) {
	var l Letters
	for i := 0; i < 7; i++ {
		l = l.Add()
	}
	if !l.Complete() || l.Drop() != "SKAT" {
		t.Fatalf("l=%q drop=%q", l, l.Drop())
	}
	if _, err := ParseLetters("skx"); err == nil {
		t.Fatalf("expected error for invalid letters")
	}
	if got, _ := ParseLetters(" ska "); got != "SKA" {
		t.Fatalf("ParseLetters = %q", got)
	}
}

func TestDeadlineIsUTCMilliseconds(t *testing.T) {
	now := time.Date(2026, 3, 1, 21, 0, 0, 987654321, time.FixedZone("KST", 9*3600))
	got := Rules{ResponseWindow: time.Hour}.Deadline(now)
	if got.Location() != time.UTC || got.Nanosecond() != 987000000 {
		t.Fatalf("deadline = %s", got)
	}
	if !got.Equal(time.Date(2026, 3, 1, 13, 0, 0, 987000000, time.UTC)) {
		t.Fatalf("deadline = %s", got)
	}
}
