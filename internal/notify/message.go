package notify

import (
	"context"
	"time"

	"github.com/park285/skate-duel/internal/skate"
)

// Message is the rendered notification handed to a Dispatcher.
type Message struct {
	ID             string           `json:"id"`
	TargetPlayerID string           `json:"target_player_id"`
	Type           skate.IntentType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Data           map[string]any   `json:"data,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Dispatcher delivers one message. Errors are reported to the Outbox, which
// logs them; they never reach game state.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) error { return f(ctx, msg) }
