package pvpskate

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/park285/skate-duel/internal/skate"
	"github.com/park285/skate-duel/internal/sqldb"
)

var (
	alice = skate.Participant{ID: "alice", Name: "Alice"}
	bob   = skate.Participant{ID: "bob", Name: "Bob"}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	intents []skate.Intent
}

func (r *recorder) Publish(_ context.Context, in []skate.Intent) {
	r.mu.Lock()
	r.intents = append(r.intents, in...)
	r.mu.Unlock()
}

func (r *recorder) all() []skate.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]skate.Intent(nil), r.intents...)
}

type fixture struct {
	db     *sqldb.DB
	engine *Engine
	clock  *fakeClock
	pub    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqldb.Open(context.Background(), sqldb.SQLite, filepath.Join(t.TempDir(), "skate.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	pub := &recorder{}
	e := NewEngine(db, WithClock(clock.Now))
	e.AttachPublisher(pub)
	return &fixture{db: db, engine: e, clock: clock, pub: pub}
}

// active returns a started match with alice on offense.
func (f *fixture) active(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	out, err := f.engine.Challenge(ctx, alice, bob)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if _, err := f.engine.Accept(ctx, out.Match.ID, bob.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return out.Match.ID
}

func (f *fixture) setLetters(t *testing.T, id string, a, b skate.Letters) {
	t.Helper()
	q := f.db.Rebind(`UPDATE matches SET letters_a = $1, letters_b = $2 WHERE id = $3`)
	if _, err := f.db.ExecContext(context.Background(), q, string(a), string(b), id); err != nil {
		t.Fatalf("set letters: %v", err)
	}
}

func TestChallengeAcceptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Challenge(ctx, alice, alice); skate.CodeOf(err) != skate.CodeInvalidArgument {
		t.Fatalf("self challenge err = %v", err)
	}
	out, err := f.engine.Challenge(ctx, alice, bob)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if out.Match.Status != skate.StatusWaiting {
		t.Fatalf("status = %s", out.Match.Status)
	}
	if len(out.Intents) != 1 || out.Intents[0].TargetPlayerID != bob.ID {
		t.Fatalf("challenge should invite bob, got %+v", out.Intents)
	}
	if _, err := f.engine.Accept(ctx, out.Match.ID, alice.ID); skate.CodeOf(err) != skate.CodeWrongPlayer {
		t.Fatalf("creator accept err = %v", err)
	}
	if _, err := f.engine.Accept(ctx, out.Match.ID, "mallory"); !errors.Is(err, skate.ErrAccessDenied) {
		t.Fatalf("stranger accept err = %v", err)
	}
	acc, err := f.engine.Accept(ctx, out.Match.ID, bob.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	m := acc.Match
	if m.Status != skate.StatusActive || m.Phase != skate.PhaseSetTrick || m.Offense != alice.ID || m.Defense != bob.ID {
		t.Fatalf("unexpected active match: %+v", m)
	}
	want := f.clock.Now().Add(skate.DefaultResponseWindow)
	if !m.ResponseDeadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", m.ResponseDeadline, want)
	}
	got, err := f.engine.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != m.Version || got.Phase != m.Phase {
		t.Fatalf("stored %+v != returned %+v", got, m)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, _ := f.engine.Challenge(ctx, alice, bob)
	if _, err := f.engine.Cancel(ctx, out.Match.ID, bob.ID); skate.CodeOf(err) != skate.CodeAccessDenied {
		t.Fatalf("non-creator cancel err = %v", err)
	}
	c, err := f.engine.Cancel(ctx, out.Match.ID, alice.ID)
	if err != nil || c.Match.Status != skate.StatusCancelled {
		t.Fatalf("cancel: %+v %v", c.Match, err)
	}
	again, err := f.engine.Cancel(ctx, out.Match.ID, alice.ID)
	if err != nil || again.Match.Version != c.Match.Version {
		t.Fatalf("second cancel should be a no-op: %+v %v", again.Match, err)
	}
	if _, err := f.engine.Accept(ctx, out.Match.ID, bob.ID); skate.CodeOf(err) != skate.CodeInvalidState {
		t.Fatalf("accept after cancel err = %v", err)
	}
}

func TestSetterBailSwapsRoles(t *testing.T) {
	f := newFixture(t)
	id := f.active(t)
	out, err := f.engine.SetterBail(context.Background(), id, alice.ID)
	if err != nil {
		t.Fatalf("bail: %v", err)
	}
	m := out.Match
	if m.LettersA != "S" || m.LettersB != "" {
		t.Fatalf("letters = %q/%q", m.LettersA, m.LettersB)
	}
	if m.Offense != bob.ID || m.Defense != alice.ID || m.Phase != skate.PhaseSetTrick {
		t.Fatalf("roles not swapped: %+v", m)
	}
	if len(out.Intents) != 1 {
		t.Fatalf("intents = %+v", out.Intents)
	}
	in := out.Intents[0]
	if in.Type != skate.IntentYourTurn || in.TargetPlayerID != bob.ID || in.Data[skate.KeyOpponentID] != alice.ID {
		t.Fatalf("unexpected intent %+v", in)
	}
	atts, err := f.engine.Attempts(context.Background(), id)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(atts) != 1 || atts[0].AuthorID != alice.ID || atts[0].Ruling != skate.RulingMissed {
		t.Fatalf("bail attempt not recorded: %+v", atts)
	}
}

func TestSetterBailCompletesMatch(t *testing.T) {
	f := newFixture(t)
	id := f.active(t)
	f.setLetters(t, id, "SKAT", "SK")
	out, err := f.engine.SetterBail(context.Background(), id, alice.ID)
	if err != nil {
		t.Fatalf("bail: %v", err)
	}
	m := out.Match
	if m.Status != skate.StatusCompleted || m.Winner != bob.ID || m.LettersA != "SKATE" {
		t.Fatalf("unexpected final state: %+v", m)
	}
	if len(out.Intents) != 2 {
		t.Fatalf("want game_over for both, got %+v", out.Intents)
	}
	for _, in := range out.Intents {
		if in.Type != skate.IntentGameOver {
			t.Fatalf("intent type %s", in.Type)
		}
		if won := in.Data[skate.KeyYouWon].(bool); won != (in.TargetPlayerID == bob.ID) {
			t.Fatalf("youWon wrong for %s", in.TargetPlayerID)
		}
	}
	if _, err := f.engine.SetterBail(context.Background(), id, bob.ID); !errors.Is(err, skate.ErrGameNotActive) {
		t.Fatalf("bail after completion err = %v", err)
	}
}

func TestTurnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.active(t)

	if _, err := f.engine.SetterBail(ctx, "missing", alice.ID); !errors.Is(err, skate.ErrGameNotFound) {
		t.Fatalf("missing match err = %v", err)
	}
	if _, err := f.engine.SetterBail(ctx, id, bob.ID); !errors.Is(err, skate.ErrWrongPlayer) {
		t.Fatalf("defense bail err = %v", err)
	}
	if _, err := f.engine.JudgeResponse(ctx, id, alice.ID, skate.RulingMissed); !errors.Is(err, skate.ErrWrongPhase) {
		t.Fatalf("judge in set phase err = %v", err)
	}
	if _, err := f.engine.SubmitSet(ctx, id, alice.ID, ""); skate.CodeOf(err) != skate.CodeInvalidArgument {
		t.Fatalf("empty media err = %v", err)
	}
	if _, err := f.engine.SubmitSet(ctx, id, alice.ID, "clips/kickflip.mp4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := f.engine.SetterBail(ctx, id, alice.ID); !errors.Is(err, skate.ErrWrongPhase) {
		t.Fatalf("bail after set err = %v", err)
	}
	if _, err := f.engine.JudgeResponse(ctx, id, bob.ID, skate.RulingMissed); !errors.Is(err, skate.ErrWrongPlayer) {
		t.Fatalf("defense judging err = %v", err)
	}
	if _, err := f.engine.JudgeResponse(ctx, id, alice.ID, skate.RulingPending); skate.CodeOf(err) != skate.CodeInvalidArgument {
		t.Fatalf("pending ruling err = %v", err)
	}
}

func TestJudgeResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.active(t)

	if _, err := f.engine.SubmitSet(ctx, id, alice.ID, "clips/set.mp4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.engine.SubmitResponse(ctx, id, bob.ID, "clips/reply.mp4"); err != nil {
		t.Fatalf("response: %v", err)
	}
	f.clock.Advance(time.Minute)
	out, err := f.engine.JudgeResponse(ctx, id, alice.ID, skate.RulingMissed)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if out.Match.LettersB != "S" || out.Match.Offense != alice.ID || out.Match.Phase != skate.PhaseSetTrick {
		t.Fatalf("unexpected state after miss: %+v", out.Match)
	}
	atts, _ := f.engine.Attempts(ctx, id)
	if len(atts) != 2 || atts[1].Kind != skate.AttemptResponse || atts[1].Ruling != skate.RulingMissed {
		t.Fatalf("attempts = %+v", atts)
	}

	// judged straight from respond_trick: the response attempt is synthesized
	f.clock.Advance(time.Minute)
	if _, err := f.engine.SubmitSet(ctx, id, alice.ID, "clips/set2.mp4"); err != nil {
		t.Fatalf("set 2: %v", err)
	}
	f.clock.Advance(time.Minute)
	out, err = f.engine.JudgeResponse(ctx, id, alice.ID, skate.RulingLanded)
	if err != nil {
		t.Fatalf("judge landed: %v", err)
	}
	if out.Match.LettersB != "S" || out.Match.LettersA != "" {
		t.Fatalf("landed must not move letters: %+v", out.Match)
	}
	atts, _ = f.engine.Attempts(ctx, id)
	if len(atts) != 4 || atts[3].Ruling != skate.RulingLanded || atts[3].AuthorID != bob.ID {
		t.Fatalf("attempts = %+v", atts)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.engine.Challenge(ctx, alice, bob)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}

	const n = 2
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Accept(ctx, out.Match.ID, bob.ID)
		}(i)
	}
	wg.Wait()

	ok, invalid := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case skate.CodeOf(err) == skate.CodeInvalidState:
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Fatalf("want one success and one INVALID_STATE, got ok=%d invalid=%d", ok, invalid)
	}
	m, _ := f.engine.Get(ctx, out.Match.ID)
	if m.Version != 2 {
		t.Fatalf("match written %d times", m.Version-1)
	}
}

func TestPublisherGetsCommittedIntentsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.active(t)
	before := len(f.pub.all())
	_, _ = f.engine.SetterBail(ctx, id, bob.ID)
	if len(f.pub.all()) != before {
		t.Fatalf("rejected action published intents")
	}
	if _, err := f.engine.SetterBail(ctx, id, alice.ID); err != nil {
		t.Fatalf("bail: %v", err)
	}
	if len(f.pub.all()) != before+1 {
		t.Fatalf("expected exactly one new intent")
	}
}

func TestMatchesOf(t *testing.T) {
	f := newFixture(t)
	f.active(t)
	f.clock.Advance(time.Second)
	f.active(t)
	list, err := f.engine.MatchesOf(context.Background(), bob.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 matches, got %d", len(list))
	}
	if !list[0].UpdatedAt.After(list[1].UpdatedAt) {
		t.Fatalf("not ordered by recency")
	}
}
