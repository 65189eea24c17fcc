package skate

import (
	"time"
)

// Status represents a match lifecycle state. It only moves forward.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted, StatusCancelled:
		return 2
	default:
		return -1
	}
}

// CanMoveTo reports whether next is a forward (or identical) status.
func (s Status) CanMoveTo(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Phase is the relational turn phase, valid while the match is active.
type Phase string

const (
	PhaseNone         Phase = ""
	PhaseSetTrick     Phase = "set_trick"
	PhaseRespondTrick Phase = "respond_trick"
	PhaseJudge        Phase = "judge"
)

// Ruling is the call on a trick attempt.
type Ruling string

const (
	RulingPending Ruling = "pending"
	RulingLanded  Ruling = "landed"
	RulingMissed  Ruling = "missed"
)

// Final reports whether the ruling is a judged outcome.
func (r Ruling) Final() bool { return r == RulingLanded || r == RulingMissed }

// Participant is one side of a match.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is the single source of truth for one duel.
type Match struct {
	ID               string      `json:"id"`
	PlayerA          Participant `json:"player_a"`
	PlayerB          Participant `json:"player_b"`
	Status           Status      `json:"status"`
	Phase            Phase       `json:"phase,omitempty"`
	Offense          string      `json:"offense,omitempty"`
	Defense          string      `json:"defense,omitempty"`
	LettersA         Letters     `json:"letters_a"`
	LettersB         Letters     `json:"letters_b"`
	Winner           string      `json:"winner,omitempty"`
	ResponseDeadline time.Time   `json:"response_deadline,omitempty"`
	WarnedDeadline   time.Time   `json:"warned_deadline,omitempty"`
	ForfeitReason    string      `json:"forfeit_reason,omitempty"`
	CreatedBy        string      `json:"created_by"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// IsParticipant reports whether id is one of the two players.
func (m *Match) IsParticipant(id string) bool {
	return id != "" && (m.PlayerA.ID == id || m.PlayerB.ID == id)
}

// Opponent returns the other participant, or a zero value for strangers.
func (m *Match) Opponent(id string) Participant {
	switch id {
	case m.PlayerA.ID:
		return m.PlayerB
	case m.PlayerB.ID:
		return m.PlayerA
	}
	return Participant{}
}

// Participant returns the participant record for id.
func (m *Match) Participant(id string) Participant {
	switch id {
	case m.PlayerA.ID:
		return m.PlayerA
	case m.PlayerB.ID:
		return m.PlayerB
	}
	return Participant{}
}

// LettersOf returns a pointer to the letters field owned by id.
func (m *Match) LettersOf(id string) *Letters {
	switch id {
	case m.PlayerA.ID:
		return &m.LettersA
	case m.PlayerB.ID:
		return &m.LettersB
	}
	return nil
}

// OnTurn returns the player expected to act in the current phase.
func (m *Match) OnTurn() string {
	switch m.Phase {
	case PhaseRespondTrick:
		return m.Defense
	case PhaseSetTrick, PhaseJudge:
		return m.Offense
	}
	return ""
}

// AttemptKind distinguishes the set from the response.
type AttemptKind string

const (
	AttemptSet      AttemptKind = "set"
	AttemptResponse AttemptKind = "response"
)

// Attempt is one recorded trick clip.
type Attempt struct {
	ID        string      `json:"id"`
	MatchID   string      `json:"match_id"`
	AuthorID  string      `json:"author_id"`
	Kind      AttemptKind `json:"kind"`
	MediaRef  string      `json:"media_ref,omitempty"`
	Ruling    Ruling      `json:"ruling"`
	CreatedAt time.Time   `json:"created_at"`
}

// DisputeStatus is the dispute lifecycle.
type DisputeStatus string

const (
	DisputePending  DisputeStatus = "pending"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute contests the ruling on one attempt.
type Dispute struct {
	ID             string        `json:"id"`
	MatchID        string        `json:"match_id"`
	AttemptID      string        `json:"attempt_id"`
	FiledBy        string        `json:"filed_by"`
	Against        string        `json:"against"`
	OriginalRuling Ruling        `json:"original_ruling"`
	FinalRuling    Ruling        `json:"final_ruling,omitempty"`
	Status         DisputeStatus `json:"status"`
	PenaltyTarget  string        `json:"penalty_target,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     time.Time     `json:"resolved_at,omitempty"`
}

// RoundStatus is the document-store exchange state.
type RoundStatus string

const (
	RoundAwaitingSet          RoundStatus = "awaiting_set"
	RoundAwaitingReply        RoundStatus = "awaiting_reply"
	RoundAwaitingConfirmation RoundStatus = "awaiting_confirmation"
)

// Round is one set→reply→judge→confirm exchange. Append-only: once
// confirmed it is superseded by a new round.
type Round struct {
	ID           string      `json:"id"`
	Seq          int         `json:"seq"`
	OffenseUID   string      `json:"offense_uid"`
	DefenseUID   string      `json:"defense_uid"`
	Status       RoundStatus `json:"status"`
	SetMedia     string      `json:"set_media,omitempty"`
	ReplyMedia   string      `json:"reply_media,omitempty"`
	OffenseClaim Ruling      `json:"offense_claim,omitempty"`
	Disputed     bool        `json:"disputed,omitempty"`
	Confirmed    bool        `json:"confirmed,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Open reports whether the round can still change.
func (r *Round) Open() bool { return !r.Confirmed && !r.Disputed }
