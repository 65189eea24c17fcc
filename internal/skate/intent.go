package skate

import (
	"context"
	"time"
)

// IntentType is the kind of notification the engine asks to be delivered.
type IntentType string

const (
	IntentYourTurn        IntentType = "your_turn"
	IntentGameOver        IntentType = "game_over"
	IntentDisputeFiled    IntentType = "dispute_filed"
	IntentDeadlineWarning IntentType = "deadline_warning"
)

// Intent is a notification request produced inside a transaction and
// delivered after commit.
type Intent struct {
	TargetPlayerID string         `json:"target_player_id"`
	Type           IntentType     `json:"type"`
	Data           map[string]any `json:"data,omitempty"`
}

// Payload keys shared by every producer.
const (
	KeyMatchID      = "matchId"
	KeyOpponentID   = "opponentId"
	KeyOpponentName = "opponentName"
	KeyAction       = "action"
	KeyYouWon       = "youWon"
	KeyWinnerID     = "winnerId"
	KeyReason       = "reason"
	KeyDeadline     = "deadline"
	KeyDisputeID    = "disputeId"
	KeyAttemptID    = "attemptId"
	KeyRoundID      = "roundId"
	KeyRuling       = "ruling"
)

// Outcome is what every successful state change returns: the committed
// record and the intents to deliver after commit.
type Outcome struct {
	Match   Match    `json:"match"`
	Intents []Intent `json:"intents,omitempty"`
}

// Publisher delivers intents after a transaction commits. Implementations
// must not block the caller and must never report failures back.
type Publisher interface {
	Publish(ctx context.Context, intents []Intent)
}

// YourTurn builds a your_turn intent for target, naming opponent.
func YourTurn(m *Match, target, opponent, action string) Intent {
	opp := m.Participant(opponent)
	data := map[string]any{
		KeyMatchID:      m.ID,
		KeyOpponentID:   opp.ID,
		KeyOpponentName: opp.Name,
		KeyAction:       action,
	}
	if !m.ResponseDeadline.IsZero() {
		data[KeyDeadline] = m.ResponseDeadline.UTC().Format(time.RFC3339)
	}
	return Intent{TargetPlayerID: target, Type: IntentYourTurn, Data: data}
}

// GameOver builds one game_over intent per participant with its own youWon.
func GameOver(m *Match) []Intent {
	out := make([]Intent, 0, 2)
	for _, p := range []Participant{m.PlayerA, m.PlayerB} {
		if p.ID == "" {
			continue
		}
		opp := m.Opponent(p.ID)
		data := map[string]any{
			KeyMatchID:      m.ID,
			KeyOpponentID:   opp.ID,
			KeyOpponentName: opp.Name,
			KeyYouWon:       p.ID == m.Winner,
			KeyWinnerID:     m.Winner,
		}
		if m.ForfeitReason != "" {
			data[KeyReason] = m.ForfeitReason
		}
		out = append(out, Intent{TargetPlayerID: p.ID, Type: IntentGameOver, Data: data})
	}
	return out
}

// DeadlineWarning builds the reminder for the player on turn.
func DeadlineWarning(m *Match, target string) Intent {
	opp := m.Opponent(target)
	return Intent{
		TargetPlayerID: target,
		Type:           IntentDeadlineWarning,
		Data: map[string]any{
			KeyMatchID:      m.ID,
			KeyOpponentID:   opp.ID,
			KeyOpponentName: opp.Name,
			KeyDeadline:     m.ResponseDeadline.UTC().Format(time.RFC3339),
		},
	}
}

// DisputeFiled builds the notice sent to the player asked to judge a dispute.
func DisputeFiled(m *Match, d *Dispute) Intent {
	filer := m.Participant(d.FiledBy)
	return Intent{
		TargetPlayerID: d.Against,
		Type:           IntentDisputeFiled,
		Data: map[string]any{
			KeyMatchID:      m.ID,
			KeyDisputeID:    d.ID,
			KeyAttemptID:    d.AttemptID,
			KeyOpponentID:   filer.ID,
			KeyOpponentName: filer.Name,
			KeyRuling:       string(d.OriginalRuling),
		},
	}
}
