package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/skate-duel/internal/identity"
	"github.com/park285/skate-duel/internal/msgcat"
	"github.com/park285/skate-duel/internal/skate"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	gate chan struct{}
}

func (r *recorder) Dispatch(ctx context.Context, msg Message) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) all() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func catalog(t *testing.T) *msgcat.Catalog {
	t.Helper()
	c, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestBuildUsesDirectoryThenPlaceholder(t *testing.T) {
	o := NewOutbox(&recorder{}, WithCatalog(catalog(t)), WithDirectory(identity.Static{"u2": "Bob"}), WithPlaceholderName("Rider"))
	ctx := context.Background()

	msg := o.Build(ctx, skate.Intent{TargetPlayerID: "u1", Type: skate.IntentYourTurn, Data: map[string]any{
		skate.KeyOpponentID: "u2", skate.KeyAction: "set",
	}})
	if msg.Title != "Your turn vs Bob" {
		t.Fatalf("title = %q", msg.Title)
	}
	if !strings.HasPrefix(msg.Body, "Set a trick for Bob.") {
		t.Fatalf("body = %q", msg.Body)
	}

	msg = o.Build(ctx, skate.Intent{TargetPlayerID: "u1", Type: skate.IntentDeadlineWarning, Data: map[string]any{
		skate.KeyOpponentID: "ghost", skate.KeyDeadline: "2026-01-01T00:00:00Z",
	}})
	if msg.Title != "Time is running out vs Rider" {
		t.Fatalf("placeholder title = %q", msg.Title)
	}

	msg = o.Build(ctx, skate.Intent{TargetPlayerID: "u1", Type: skate.IntentDisputeFiled, Data: map[string]any{
		skate.KeyOpponentID: "ghost", skate.KeyOpponentName: "Carl", skate.KeyRuling: "missed",
	}})
	if msg.Title != "Carl disputed a call" {
		t.Fatalf("carried name title = %q", msg.Title)
	}
	if msg.ID == "" || msg.TargetPlayerID != "u1" || msg.Type != skate.IntentDisputeFiled {
		t.Fatalf("message = %+v", msg)
	}
}

func TestBuildDoesNotMutateIntent(t *testing.T) {
	o := NewOutbox(&recorder{}, WithCatalog(catalog(t)))
	data := map[string]any{skate.KeyOpponentID: "u2", skate.KeyAction: "judge"}
	o.Build(context.Background(), skate.Intent{TargetPlayerID: "u1", Type: skate.IntentYourTurn, Data: data})
	if _, ok := data[skate.KeyOpponentName]; ok {
		t.Fatalf("intent data was modified")
	}
}

func TestRenderFailureFallsBackToType(t *testing.T) {
	o := NewOutbox(&recorder{}, WithCatalog(catalog(t)))
	// dispute_filed needs a ruling
	msg := o.Build(context.Background(), skate.Intent{TargetPlayerID: "u1", Type: skate.IntentDisputeFiled})
	if msg.Body != "dispute_filed" {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestPublishDoesNotBlock(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	o := NewOutbox(rec, WithCatalog(catalog(t)), WithDispatchTimeout(5*time.Second))
	m := &skate.Match{ID: "m1", PlayerA: skate.Participant{ID: "a"}, PlayerB: skate.Participant{ID: "b"}, Status: skate.StatusCompleted, Winner: "a"}

	done := make(chan struct{})
	go func() {
		o.Publish(context.Background(), skate.GameOver(m))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on the dispatcher")
	}
	if got := len(rec.all()); got != 0 {
		t.Fatalf("dispatched %d before release", got)
	}

	close(rec.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	msgs := rec.all()
	if len(msgs) != 2 {
		t.Fatalf("dispatched %d, want 2", len(msgs))
	}
	for _, msg := range msgs {
		won := msg.Data[skate.KeyYouWon].(bool)
		if won != (msg.TargetPlayerID == "a") {
			t.Fatalf("youWon wrong for %s", msg.TargetPlayerID)
		}
	}
}

func TestDispatchFailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("gateway down")}
	o := NewOutbox(rec)
	o.Publish(context.Background(), []skate.Intent{{TargetPlayerID: "u1", Type: skate.IntentYourTurn}})
	if err := o.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(rec.all()) != 1 {
		t.Fatalf("dispatcher not called")
	}
}

func TestPublishAfterCloseDrops(t *testing.T) {
	rec := &recorder{}
	o := NewOutbox(rec)
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	o.Publish(context.Background(), []skate.Intent{{TargetPlayerID: "u1", Type: skate.IntentYourTurn}})
	_ = o.Wait(context.Background())
	if len(rec.all()) != 0 {
		t.Fatalf("closed outbox dispatched")
	}
}

func TestDispatchTimeout(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	o := NewOutbox(rec, WithDispatchTimeout(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	o.Publish(ctx, []skate.Intent{{TargetPlayerID: "u1", Type: skate.IntentYourTurn}})
	cancel() // caller cancellation does not abort delivery, only the timeout does
	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	if err := o.Wait(wctx); err != nil {
		t.Fatalf("dispatch was not bounded by its timeout: %v", err)
	}
}
