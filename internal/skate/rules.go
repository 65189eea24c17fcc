package skate

import (
	"fmt"
	"time"
)

// DefaultResponseWindow is how long the player on turn has to act.
const DefaultResponseWindow = 48 * time.Hour

// DefaultWarningLead is how long before the deadline the reminder goes out.
const DefaultWarningLead = 6 * time.Hour

// ReasonDeadlineExpired is stored on matches forfeited by a sweep.
const ReasonDeadlineExpired = "deadline_expired"

// ActionKind enumerates every state-changing action. Step switches on it
// exhaustively; adding a kind means adding a case there.
type ActionKind int

const (
	ActionAccept ActionKind = iota + 1
	ActionCancel
	ActionSubmitSet
	ActionSubmitResponse
	ActionBail
	ActionJudge
	ActionForfeit
)

func (k ActionKind) String() string {
	switch k {
	case ActionAccept:
		return "accept"
	case ActionCancel:
		return "cancel"
	case ActionSubmitSet:
		return "submit_set"
	case ActionSubmitResponse:
		return "submit_response"
	case ActionBail:
		return "bail"
	case ActionJudge:
		return "judge"
	case ActionForfeit:
		return "forfeit"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is one request against a match.
type Action struct {
	Kind   ActionKind
	Actor  string
	Ruling Ruling // ActionJudge
	Reason string // ActionForfeit
}

// Transition is the computed next state.
type Transition struct {
	Match   Match
	Intents []Intent
	// Changed is false for accepted no-ops (e.g. cancelling a started match).
	Changed bool
}

// Rules carries the tunables of the rule function.
type Rules struct {
	ResponseWindow time.Duration
}

func (r Rules) window() time.Duration {
	if r.ResponseWindow <= 0 {
		return DefaultResponseWindow
	}
	return r.ResponseWindow
}

// Step validates a against m and returns the next state. m is never mutated.
func (r Rules) Step(m Match, a Action, now time.Time) (Transition, error) {
	switch a.Kind {
	case ActionAccept:
		return r.accept(m, a, now)
	case ActionCancel:
		return cancel(m, a, now)
	case ActionSubmitSet, ActionSubmitResponse, ActionBail, ActionJudge, ActionForfeit:
		if m.Status != StatusActive {
			return Transition{}, ErrGameNotActive
		}
	default:
		return Transition{}, Errorf(CodeInvalidArgument, "unknown action %s", a.Kind)
	}

	switch a.Kind {
	case ActionSubmitSet:
		if err := expect(&m, a.Actor, m.Offense, PhaseSetTrick); err != nil {
			return Transition{}, err
		}
		m.Phase = PhaseRespondTrick
		r.resetDeadline(&m, now)
		return changed(m, now, YourTurn(&m, m.Defense, m.Offense, "respond")), nil

	case ActionSubmitResponse:
		if err := expect(&m, a.Actor, m.Defense, PhaseRespondTrick); err != nil {
			return Transition{}, err
		}
		m.Phase = PhaseJudge
		r.resetDeadline(&m, now)
		return changed(m, now, YourTurn(&m, m.Offense, m.Defense, "judge")), nil

	case ActionBail:
		if err := expect(&m, a.Actor, m.Offense, PhaseSetTrick); err != nil {
			return Transition{}, err
		}
		return r.Bail(m, a.Actor, now), nil

	case ActionJudge:
		if m.Phase != PhaseRespondTrick && m.Phase != PhaseJudge {
			return Transition{}, ErrWrongPhase
		}
		if a.Actor != m.Offense {
			return Transition{}, ErrWrongPlayer
		}
		if !a.Ruling.Final() {
			return Transition{}, Errorf(CodeInvalidArgument, "ruling must be landed or missed, got %q", a.Ruling)
		}
		return r.Settle(m, a.Ruling, now), nil

	case ActionForfeit:
		loser := m.OnTurn()
		if loser == "" {
			return Transition{}, Errorf(CodeInvalidState, "no player on turn in phase %q", m.Phase)
		}
		reason := a.Reason
		if reason == "" {
			reason = ReasonDeadlineExpired
		}
		return Forfeit(m, loser, reason, now), nil
	}
	return Transition{}, Errorf(CodeInvalidArgument, "unknown action %s", a.Kind)
}

func (r Rules) accept(m Match, a Action, now time.Time) (Transition, error) {
	if !m.IsParticipant(a.Actor) {
		return Transition{}, ErrAccessDenied
	}
	if m.Status != StatusWaiting {
		return Transition{}, Errorf(CodeInvalidState, "match is %s", m.Status)
	}
	if a.Actor == m.CreatedBy {
		return Transition{}, Errorf(CodeWrongPlayer, "cannot accept your own challenge")
	}
	m.Status = StatusActive
	m.Offense = m.CreatedBy
	m.Defense = a.Actor
	m.Phase = PhaseSetTrick
	r.resetDeadline(&m, now)
	return changed(m, now, YourTurn(&m, m.Offense, m.Defense, "set")), nil
}

func cancel(m Match, a Action, now time.Time) (Transition, error) {
	if a.Actor != m.CreatedBy {
		return Transition{}, Errorf(CodeAccessDenied, "only the creator can cancel")
	}
	if m.Status != StatusWaiting {
		return Transition{Match: m}, nil
	}
	m.Status = StatusCancelled
	m.Phase = PhaseNone
	m.ResponseDeadline = time.Time{}
	return changed(m, now), nil
}

// Bail penalizes the offense for abandoning its own set. Roles swap unless
// the bail completes the word.
func (r Rules) Bail(m Match, actor string, now time.Time) Transition {
	letters := m.LettersOf(actor)
	*letters = letters.Add()
	opp := m.Opponent(actor)
	if letters.Complete() {
		finish(&m, opp.ID)
		return changed(m, now, GameOver(&m)...)
	}
	m.Offense, m.Defense = opp.ID, actor
	m.Phase = PhaseSetTrick
	r.resetDeadline(&m, now)
	return changed(m, now, YourTurn(&m, m.Offense, actor, "set"))
}

// Settle applies the offense's final ruling on the defense's response.
// Offense keeps the turn either way.
func (r Rules) Settle(m Match, ruling Ruling, now time.Time) Transition {
	if ruling == RulingMissed {
		letters := m.LettersOf(m.Defense)
		*letters = letters.Add()
		if letters.Complete() {
			finish(&m, m.Offense)
			return changed(m, now, GameOver(&m)...)
		}
	}
	m.Phase = PhaseSetTrick
	r.resetDeadline(&m, now)
	turn := YourTurn(&m, m.Offense, m.Defense, "set")
	turn.Data[KeyRuling] = string(ruling)
	return changed(m, now, turn)
}

// Forfeit completes the match against loser. The loser's letters are filled
// so the completed record still names exactly one full word.
func Forfeit(m Match, loser, reason string, now time.Time) Transition {
	if l := m.LettersOf(loser); l != nil {
		*l = Letters(Word)
	}
	m.ForfeitReason = reason
	finish(&m, m.Opponent(loser).ID)
	return changed(m, now, GameOver(&m)...)
}

// Overturn removes the letter an overturned ruling gave to holder.
func Overturn(m Match, holder string, now time.Time) Transition {
	l := m.LettersOf(holder)
	if l == nil || l.Len() == 0 {
		return Transition{Match: m}
	}
	*l = l.Drop()
	return changed(m, now)
}

func finish(m *Match, winner string) {
	m.Status = StatusCompleted
	m.Winner = winner
	m.Phase = PhaseNone
	m.ResponseDeadline = time.Time{}
}

// Deadline is when the player on turn loses by forfeit if they act at now.
// Stored deadlines have millisecond precision on every substrate.
func (r Rules) Deadline(now time.Time) time.Time {
	return now.Add(r.window()).UTC().Truncate(time.Millisecond)
}

func (r Rules) resetDeadline(m *Match, now time.Time) {
	m.ResponseDeadline = r.Deadline(now)
}

func expect(m *Match, actor, role string, phase Phase) error {
	if m.Phase != phase {
		return ErrWrongPhase
	}
	if actor == "" || actor != role {
		return ErrWrongPlayer
	}
	return nil
}

func changed(m Match, now time.Time, intents ...Intent) Transition {
	m.UpdatedAt = now.UTC()
	m.Version++
	return Transition{Match: m, Intents: intents, Changed: true}
}

// Validate checks the record invariants. Storage calls it before writing.
func (m *Match) Validate() error {
	if !m.LettersA.Valid() || !m.LettersB.Valid() {
		return fmt.Errorf("letters out of range: %q/%q", m.LettersA, m.LettersB)
	}
	switch m.Status {
	case StatusActive:
		if m.Offense == m.Defense || !m.IsParticipant(m.Offense) || !m.IsParticipant(m.Defense) {
			return fmt.Errorf("roles %q/%q are not the two participants", m.Offense, m.Defense)
		}
		if m.Winner != "" {
			return fmt.Errorf("active match has winner %q", m.Winner)
		}
	case StatusCompleted:
		if !m.IsParticipant(m.Winner) {
			return fmt.Errorf("completed match without a participant winner")
		}
		loser := m.Opponent(m.Winner).ID
		if m.LettersOf(m.Winner).Complete() || !m.LettersOf(loser).Complete() {
			return fmt.Errorf("winner %q does not match letters %q/%q", m.Winner, m.LettersA, m.LettersB)
		}
	case StatusWaiting, StatusCancelled:
		if m.Winner != "" {
			return fmt.Errorf("%s match has winner %q", m.Status, m.Winner)
		}
	default:
		return fmt.Errorf("unknown status %q", m.Status)
	}
	return nil
}
