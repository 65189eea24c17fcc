package pvpskate

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/skate-duel/internal/media"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
	"github.com/park285/skate-duel/internal/sqldb"
	"go.uber.org/zap"
)

// Engine is the turn engine on the relational store. Every action runs in
// one transaction that locks the match row before validating.
type Engine struct {
	repo     *Repository
	rules    skate.Rules
	now      func() time.Time
	verifier media.Verifier
	pub      skate.Publisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithResponseWindow sets how long the player on turn has to act.
func WithResponseWindow(d time.Duration) Option {
	return func(e *Engine) { e.rules.ResponseWindow = d }
}

// WithVerifier checks media references before submissions.
func WithVerifier(v media.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func NewEngine(db *sqldb.DB, opts ...Option) *Engine {
	e := &Engine{
		repo:     NewRepository(db),
		rules:    skate.Rules{ResponseWindow: skate.DefaultResponseWindow},
		now:      time.Now,
		verifier: media.PresenceVerifier{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AttachPublisher wires post-commit intent delivery.
func (e *Engine) AttachPublisher(p skate.Publisher) {
	if e != nil {
		e.pub = p
	}
}

func (e *Engine) clock() time.Time { return e.now().UTC().Truncate(time.Millisecond) }

func (e *Engine) publish(ctx context.Context, intents []skate.Intent) {
	if e.pub == nil || len(intents) == 0 {
		return
	}
	e.pub.Publish(ctx, intents)
}

// afterFunc runs inside the transaction once the match row is written.
type afterFunc func(ctx context.Context, tx *sql.Tx, before, after *skate.Match, now time.Time) error

// apply is the single transactional wrapper: lock, Step, conditional write,
// side records, commit, then publish.
func (e *Engine) apply(ctx context.Context, matchID string, a skate.Action, after afterFunc) (skate.Outcome, error) {
	var out skate.Outcome
	err := e.repo.db.Tx(ctx, func(tx *sql.Tx) error {
		m, err := e.repo.lockMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		now := e.clock()
		tr, err := e.rules.Step(*m, a, now)
		if err != nil {
			return err
		}
		out = skate.Outcome{Match: tr.Match}
		if !tr.Changed {
			return nil
		}
		if err := e.repo.updateMatch(ctx, tx, &tr.Match, m.Version); err != nil {
			return err
		}
		if after != nil {
			if err := after(ctx, tx, m, &tr.Match, now); err != nil {
				return err
			}
		}
		out.Intents = tr.Intents
		return nil
	})
	if err != nil {
		obslog.L().Debug("skate_action_rejected",
			zap.String("match_id", matchID),
			zap.String("action", a.Kind.String()),
			zap.String("actor", a.Actor),
			zap.Error(err),
		)
		return skate.Outcome{}, err
	}
	obslog.L().Info("skate_"+a.Kind.String(),
		zap.String("match_id", matchID),
		zap.String("actor", a.Actor),
		zap.String("status", string(out.Match.Status)),
		zap.String("letters_a", string(out.Match.LettersA)),
		zap.String("letters_b", string(out.Match.LettersB)),
	)
	e.publish(ctx, out.Intents)
	return out, nil
}

// Challenge opens a waiting match. The challenger sets first once accepted.
func (e *Engine) Challenge(ctx context.Context, challenger, target skate.Participant) (skate.Outcome, error) {
	challenger.ID = strings.TrimSpace(challenger.ID)
	target.ID = strings.TrimSpace(target.ID)
	if challenger.ID == "" || target.ID == "" {
		return skate.Outcome{}, skate.Errorf(skate.CodeInvalidArgument, "both participants are required")
	}
	if challenger.ID == target.ID {
		return skate.Outcome{}, skate.Errorf(skate.CodeInvalidArgument, "cannot challenge yourself")
	}
	now := e.clock()
	m := skate.Match{
		ID:        uuid.NewString(),
		PlayerA:   challenger,
		PlayerB:   target,
		Status:    skate.StatusWaiting,
		CreatedBy: challenger.ID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.insertMatch(ctx, e.repo.db, &m); err != nil {
		return skate.Outcome{}, err
	}
	invite := skate.YourTurn(&m, target.ID, challenger.ID, "accept")
	obslog.L().Info("skate_challenge",
		zap.String("match_id", m.ID),
		zap.String("challenger", challenger.ID),
		zap.String("target", target.ID),
	)
	out := skate.Outcome{Match: m, Intents: []skate.Intent{invite}}
	e.publish(ctx, out.Intents)
	return out, nil
}

// Accept starts a waiting match. Only the challenged player may accept.
func (e *Engine) Accept(ctx context.Context, matchID, playerID string) (skate.Outcome, error) {
	return e.apply(ctx, matchID, skate.Action{Kind: skate.ActionAccept, Actor: playerID}, nil)
}

// Cancel withdraws a waiting challenge. Past waiting it is a no-op.
func (e *Engine) Cancel(ctx context.Context, matchID, playerID string) (skate.Outcome, error) {
	return e.apply(ctx, matchID, skate.Action{Kind: skate.ActionCancel, Actor: playerID}, nil)
}

// SubmitSet records the offense's trick and hands the turn to the defense.
func (e *Engine) SubmitSet(ctx context.Context, matchID, actorID, mediaRef string) (skate.Outcome, error) {
	if err := media.Check(ctx, e.verifier, mediaRef); err != nil {
		return skate.Outcome{}, err
	}
	return e.apply(ctx, matchID, skate.Action{Kind: skate.ActionSubmitSet, Actor: actorID},
		e.recordAttempt(actorID, skate.AttemptSet, mediaRef, skate.RulingLanded))
}

// SubmitResponse records the defense's attempt; the offense judges next.
func (e *Engine) SubmitResponse(ctx context.Context, matchID, actorID, mediaRef string) (skate.Outcome, error) {
	if err := media.Check(ctx, e.verifier, mediaRef); err != nil {
		return skate.Outcome{}, err
	}
	return e.apply(ctx, matchID, skate.Action{Kind: skate.ActionSubmitResponse, Actor: actorID},
		e.recordAttempt(actorID, skate.AttemptResponse, mediaRef, skate.RulingPending))
}

// SetterBail gives the offense a letter for abandoning its own trick. The
// bail is recorded as a missed set so it can be disputed.
func (e *Engine) SetterBail(ctx context.Context, matchID, actorID string) (skate.Outcome, error) {
	return e.apply(ctx, matchID, skate.Action{Kind: skate.ActionBail, Actor: actorID},
		e.recordAttempt(actorID, skate.AttemptSet, "", skate.RulingMissed))
}

// JudgeResponse applies the offense's ruling on the defense's attempt.
func (e *Engine) JudgeResponse(ctx context.Context, matchID, judgeID string, ruling skate.Ruling) (skate.Outcome, error) {
	a := skate.Action{Kind: skate.ActionJudge, Actor: judgeID, Ruling: ruling}
	return e.apply(ctx, matchID, a, func(ctx context.Context, tx *sql.Tx, before, _ *skate.Match, now time.Time) error {
		pending, err := e.repo.pendingResponse(ctx, tx, before.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return e.repo.setAttemptRuling(ctx, tx, pending.ID, ruling)
		}
		// Judged before the clip was submitted in-app.
		return e.repo.insertAttempt(ctx, tx, &skate.Attempt{
			ID:        uuid.NewString(),
			MatchID:   before.ID,
			AuthorID:  before.Defense,
			Kind:      skate.AttemptResponse,
			Ruling:    ruling,
			CreatedAt: now,
		})
	})
}

func (e *Engine) recordAttempt(author string, kind skate.AttemptKind, ref string, ruling skate.Ruling) afterFunc {
	return func(ctx context.Context, tx *sql.Tx, before, _ *skate.Match, now time.Time) error {
		return e.repo.insertAttempt(ctx, tx, &skate.Attempt{
			ID:        uuid.NewString(),
			MatchID:   before.ID,
			AuthorID:  author,
			Kind:      kind,
			MediaRef:  strings.TrimSpace(ref),
			Ruling:    ruling,
			CreatedAt: now,
		})
	}
}

// Get loads a match without locking.
func (e *Engine) Get(ctx context.Context, matchID string) (*skate.Match, error) {
	return e.repo.getMatch(ctx, e.repo.db, matchID)
}

// Attempts lists a match's trick history, oldest first.
func (e *Engine) Attempts(ctx context.Context, matchID string) ([]skate.Attempt, error) {
	if _, err := e.repo.getMatch(ctx, e.repo.db, matchID); err != nil {
		return nil, err
	}
	return e.repo.listAttempts(ctx, e.repo.db, matchID)
}

// MatchesOf lists a player's most recently updated matches.
func (e *Engine) MatchesOf(ctx context.Context, playerID string, limit int) ([]skate.Match, error) {
	return e.repo.listMatchesByPlayer(ctx, playerID, limit)
}
