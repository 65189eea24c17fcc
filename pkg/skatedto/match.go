package skatedto

import (
	"time"

	"github.com/park285/skate-duel/internal/pvpremote"
	"github.com/park285/skate-duel/internal/skate"
)

type PlayerDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Letters string `json:"letters"`
}

type MatchDTO struct {
	ID               string     `json:"id"`
	PlayerA          PlayerDTO  `json:"playerA"`
	PlayerB          PlayerDTO  `json:"playerB"`
	Status           string     `json:"status"`
	Phase            string     `json:"phase,omitempty"`
	Offense          string     `json:"offense,omitempty"`
	Defense          string     `json:"defense,omitempty"`
	OnTurn           string     `json:"onTurn,omitempty"`
	Winner           string     `json:"winner,omitempty"`
	ForfeitReason    string     `json:"forfeitReason,omitempty"`
	ResponseDeadline string     `json:"responseDeadline,omitempty"`
	CreatedBy        string     `json:"createdBy"`
	Version          int64      `json:"version"`
	CreatedAt        string     `json:"createdAt"`
	UpdatedAt        string     `json:"updatedAt"`
	TurnHolder       string     `json:"turnHolder,omitempty"`
	Rounds           []RoundDTO `json:"rounds,omitempty"`
}

type RoundDTO struct {
	ID           string `json:"id"`
	Seq          int    `json:"seq"`
	Offense      string `json:"offense"`
	Defense      string `json:"defense"`
	Status       string `json:"status"`
	SetMedia     string `json:"setMedia,omitempty"`
	ReplyMedia   string `json:"replyMedia,omitempty"`
	OffenseClaim string `json:"offenseClaim,omitempty"`
	Disputed     bool   `json:"disputed"`
	Confirmed    bool   `json:"confirmed"`
	CreatedAt    string `json:"createdAt"`
}

type AttemptDTO struct {
	ID        string `json:"id"`
	MatchID   string `json:"matchId"`
	AuthorID  string `json:"authorId"`
	Kind      string `json:"kind"`
	MediaRef  string `json:"mediaRef,omitempty"`
	Ruling    string `json:"ruling"`
	CreatedAt string `json:"createdAt"`
}

type DisputeDTO struct {
	ID             string `json:"id"`
	MatchID        string `json:"matchId"`
	AttemptID      string `json:"attemptId"`
	FiledBy        string `json:"filedBy"`
	Against        string `json:"against"`
	OriginalRuling string `json:"originalRuling"`
	FinalRuling    string `json:"finalRuling,omitempty"`
	Status         string `json:"status"`
	PenaltyTarget  string `json:"penaltyTarget,omitempty"`
	CreatedAt      string `json:"createdAt"`
	ResolvedAt     string `json:"resolvedAt,omitempty"`
}

type IntentDTO struct {
	TargetPlayerID string         `json:"targetPlayerId"`
	Type           string         `json:"type"`
	Data           map[string]any `json:"data,omitempty"`
}

// OutcomeDTO is a state change plus the notifications it produced.
type OutcomeDTO struct {
	Match   MatchDTO    `json:"match"`
	Intents []IntentDTO `json:"intents,omitempty"`
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func FromMatch(m skate.Match) MatchDTO {
	return MatchDTO{
		ID:               m.ID,
		PlayerA:          PlayerDTO{ID: m.PlayerA.ID, Name: m.PlayerA.Name, Letters: string(m.LettersA)},
		PlayerB:          PlayerDTO{ID: m.PlayerB.ID, Name: m.PlayerB.Name, Letters: string(m.LettersB)},
		Status:           string(m.Status),
		Phase:            string(m.Phase),
		Offense:          m.Offense,
		Defense:          m.Defense,
		OnTurn:           m.OnTurn(),
		Winner:           m.Winner,
		ForfeitReason:    m.ForfeitReason,
		ResponseDeadline: stamp(m.ResponseDeadline),
		CreatedBy:        m.CreatedBy,
		Version:          m.Version,
		CreatedAt:        stamp(m.CreatedAt),
		UpdatedAt:        stamp(m.UpdatedAt),
	}
}

// FromRemote renders a document-store match; the turn comes from TurnHolder.
func FromRemote(m pvpremote.Match) MatchDTO {
	out := FromMatch(m.Match)
	out.TurnHolder = m.TurnHolder
	out.OnTurn = m.TurnHolder
	out.Rounds = make([]RoundDTO, 0, len(m.Rounds))
	for _, r := range m.Rounds {
		out.Rounds = append(out.Rounds, FromRound(r))
	}
	return out
}

func FromRound(r skate.Round) RoundDTO {
	return RoundDTO{
		ID:           r.ID,
		Seq:          r.Seq,
		Offense:      r.OffenseUID,
		Defense:      r.DefenseUID,
		Status:       string(r.Status),
		SetMedia:     r.SetMedia,
		ReplyMedia:   r.ReplyMedia,
		OffenseClaim: string(r.OffenseClaim),
		Disputed:     r.Disputed,
		Confirmed:    r.Confirmed,
		CreatedAt:    stamp(r.CreatedAt),
	}
}

func FromAttempt(a skate.Attempt) AttemptDTO {
	return AttemptDTO{
		ID:        a.ID,
		MatchID:   a.MatchID,
		AuthorID:  a.AuthorID,
		Kind:      string(a.Kind),
		MediaRef:  a.MediaRef,
		Ruling:    string(a.Ruling),
		CreatedAt: stamp(a.CreatedAt),
	}
}

func FromDispute(d skate.Dispute) DisputeDTO {
	return DisputeDTO{
		ID:             d.ID,
		MatchID:        d.MatchID,
		AttemptID:      d.AttemptID,
		FiledBy:        d.FiledBy,
		Against:        d.Against,
		OriginalRuling: string(d.OriginalRuling),
		FinalRuling:    string(d.FinalRuling),
		Status:         string(d.Status),
		PenaltyTarget:  d.PenaltyTarget,
		CreatedAt:      stamp(d.CreatedAt),
		ResolvedAt:     stamp(d.ResolvedAt),
	}
}

func FromIntents(in []skate.Intent) []IntentDTO {
	if len(in) == 0 {
		return nil
	}
	out := make([]IntentDTO, 0, len(in))
	for _, i := range in {
		out = append(out, IntentDTO{TargetPlayerID: i.TargetPlayerID, Type: string(i.Type), Data: i.Data})
	}
	return out
}

func FromOutcome(o skate.Outcome) OutcomeDTO {
	return OutcomeDTO{Match: FromMatch(o.Match), Intents: FromIntents(o.Intents)}
}

func FromResult(r pvpremote.Result) OutcomeDTO {
	return OutcomeDTO{Match: FromRemote(r.Match), Intents: FromIntents(r.Intents)}
}
