package pvpremote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/skate-duel/internal/media"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultMaxRetries bounds optimistic retries per operation.
const DefaultMaxRetries = 8

var errConcurrentUpdate = skate.Errorf(skate.CodeInvalidState, "concurrent update, retry")

// Engine runs the rules on Redis documents with WATCH/MULTI transactions.
type Engine struct {
	rdb        *redis.Client
	store      *Store
	rules      skate.Rules
	now        func() time.Time
	maxRetries int
	lead       time.Duration
	verifier   media.Verifier
	pub        skate.Publisher
	onDispute  RoundDisputeHook
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithResponseWindow(d time.Duration) Option {
	return func(e *Engine) { e.rules.ResponseWindow = d }
}

// WithWarningLead sets how long before a deadline the reminder goes out.
func WithWarningLead(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lead = d
		}
	}
}

func WithVerifier(v media.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithDisputeHook replaces the default (log only) disagreement hook.
func WithDisputeHook(h RoundDisputeHook) Option {
	return func(e *Engine) {
		if h != nil {
			e.onDispute = h
		}
	}
}

func NewEngine(rdb *redis.Client, opts ...Option) *Engine {
	e := &Engine{
		rdb:        rdb,
		store:      NewStore(rdb),
		rules:      skate.Rules{ResponseWindow: skate.DefaultResponseWindow},
		now:        time.Now,
		maxRetries: DefaultMaxRetries,
		lead:       skate.DefaultWarningLead,
		verifier:   media.PresenceVerifier{},
		onDispute:  logDisputedRound,
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

func (e *Engine) Close() error {
	if e == nil || e.rdb == nil {
		return nil
	}
	return e.rdb.Close()
}

func (e *Engine) clock() time.Time { return e.now().UTC().Truncate(time.Millisecond) }

func logDisputedRound(_ context.Context, m Match, r skate.Round) {
	obslog.L().Info("remote_round_disputed",
		zap.String("match_id", m.ID),
		zap.String("round_id", r.ID),
		zap.String("offense", r.OffenseUID),
		zap.String("claim", string(r.OffenseClaim)),
	)
}

// mutateFunc edits m in place and returns the intents to deliver. Returning
// changed=false skips the write.
type mutateFunc func(m *Match, now time.Time) (intents []skate.Intent, changed bool, err error)

// update is the read-modify-write loop: WATCH the document, run fn, queue
// the write in MULTI, retry when another writer got there first.
func (e *Engine) update(ctx context.Context, op, matchID string, fn mutateFunc) (Result, error) {
	key := e.store.keyMatch(matchID)
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		var res Result
		err := e.rdb.Watch(ctx, func(tx *redis.Tx) error {
			m, err := e.store.load(ctx, tx, matchID)
			if err != nil {
				return err
			}
			now := e.clock()
			intents, changed, err := fn(m, now)
			if err != nil {
				return err
			}
			res = Result{Match: *m}
			if !changed {
				return nil
			}
			m.UpdatedAt = now
			m.Version++
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return e.store.write(ctx, pipe, m)
			})
			if err != nil {
				return err
			}
			res = Result{Match: *m, Intents: intents}
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			obslog.L().Debug("remote_tx_retry", zap.String("op", op), zap.String("match_id", matchID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return Result{}, err
		}
		obslog.L().Info("remote_"+op,
			zap.String("match_id", matchID),
			zap.String("status", string(res.Match.Status)),
			zap.Int("rounds", len(res.Match.Rounds)),
		)
		e.publish(ctx, res.Intents)
		return res, nil
	}
	obslog.L().Warn("remote_tx_exhausted", zap.String("op", op), zap.String("match_id", matchID))
	return Result{}, errConcurrentUpdate
}

func (e *Engine) publish(ctx context.Context, intents []skate.Intent) {
	if e.pub == nil || len(intents) == 0 {
		return
	}
	e.pub.Publish(ctx, intents)
}

// FindOrCreate joins another player's waiting match if there is one, else
// returns the caller's own waiting match, else opens a new one.
func (e *Engine) FindOrCreate(ctx context.Context, player skate.Participant) (FindResult, error) {
	player.ID = strings.TrimSpace(player.ID)
	if player.ID == "" {
		return FindResult{}, skate.Errorf(skate.CodeInvalidArgument, "player id required")
	}
	ids, err := e.store.Lobby(ctx)
	if err != nil {
		return FindResult{}, err
	}
	var candidates []*Match
	var own *Match
	for _, id := range ids {
		m, err := e.store.Load(ctx, id)
		if errors.Is(err, skate.ErrGameNotFound) {
			continue
		}
		if err != nil {
			return FindResult{}, err
		}
		if m.Status != skate.StatusWaiting {
			continue
		}
		if m.CreatedBy == player.ID {
			own = m
			continue
		}
		candidates = append(candidates, m)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	for _, c := range candidates {
		res, err := e.Join(ctx, c.ID, player)
		if skate.CodeOf(err) == skate.CodeInvalidState {
			// taken by someone else meanwhile
			continue
		}
		if err != nil {
			return FindResult{}, err
		}
		if own != nil {
			if _, err := e.Cancel(ctx, own.ID, player.ID); err != nil {
				obslog.L().Warn("remote_cancel_own_lobby_error", zap.String("match_id", own.ID), zap.Error(err))
			}
		}
		return FindResult{Result: res, Joined: true}, nil
	}
	if own != nil {
		return FindResult{Result: Result{Match: *own}}, nil
	}

	now := e.clock()
	m := &Match{Match: skate.Match{
		ID:        uuid.NewString(),
		PlayerA:   player,
		Status:    skate.StatusWaiting,
		CreatedBy: player.ID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if _, err := e.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return e.store.write(ctx, pipe, m)
	}); err != nil {
		return FindResult{}, fmt.Errorf("create remote match: %w", err)
	}
	obslog.L().Info("remote_create", zap.String("match_id", m.ID), zap.String("creator", player.ID))
	return FindResult{Result: Result{Match: *m}, Created: true}, nil
}

// Join takes the second seat. The creator sets first.
func (e *Engine) Join(ctx context.Context, matchID string, player skate.Participant) (Result, error) {
	player.ID = strings.TrimSpace(player.ID)
	return e.update(ctx, "join", matchID, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
		if player.ID == "" || player.ID == m.CreatedBy {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "cannot join your own match")
		}
		if m.Status != skate.StatusWaiting || m.PlayerB.ID != "" {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "match is %s", m.Status)
		}
		m.PlayerB = player
		m.Status = skate.StatusActive
		m.Offense, m.Defense = m.CreatedBy, player.ID
		m.TurnHolder = m.Offense
		m.ResponseDeadline = e.rules.Deadline(now)
		e.appendRound(m, now)
		turn := skate.YourTurn(&m.Match, m.Offense, m.Defense, "set")
		turn.Data[skate.KeyRoundID] = m.Current().ID
		return []skate.Intent{turn}, true, nil
	})
}

func (e *Engine) appendRound(m *Match, now time.Time) {
	seq := 1
	if cur := m.Current(); cur != nil {
		seq = cur.Seq + 1
	}
	m.Rounds = append(m.Rounds, skate.Round{
		ID:         uuid.NewString(),
		Seq:        seq,
		OffenseUID: m.Offense,
		DefenseUID: m.Defense,
		Status:     skate.RoundAwaitingSet,
		CreatedAt:  now,
	})
}

// Cancel withdraws a waiting match. Once started it is a no-op.
func (e *Engine) Cancel(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.update(ctx, "cancel", matchID, func(m *Match, _ time.Time) ([]skate.Intent, bool, error) {
		if playerID != m.CreatedBy {
			return nil, false, skate.Errorf(skate.CodeAccessDenied, "only the creator can cancel")
		}
		if m.Status != skate.StatusWaiting {
			return nil, false, nil
		}
		m.Status = skate.StatusCancelled
		return nil, true, nil
	})
}

// openRound resolves roundID on an active match and checks the actor's role.
func openRound(m *Match, roundID, actor string, wantOffense bool) (*skate.Round, error) {
	if m.Status != skate.StatusActive {
		return nil, skate.Errorf(skate.CodeInvalidState, "match is %s", m.Status)
	}
	r := m.round(roundID)
	if r == nil {
		return nil, skate.ErrRoundNotFound
	}
	role := r.DefenseUID
	if wantOffense {
		role = r.OffenseUID
	}
	if actor == "" || actor != role {
		return nil, skate.ErrAccessDenied
	}
	if r.Confirmed {
		return nil, skate.ErrAlreadyResolved
	}
	if r.Disputed {
		return nil, skate.Errorf(skate.CodeInvalidState, "round is disputed")
	}
	return r, nil
}

// SetComplete records the offense's clip; the defense replies next.
func (e *Engine) SetComplete(ctx context.Context, matchID, roundID, playerID, mediaRef string) (Result, error) {
	if err := media.Check(ctx, e.verifier, mediaRef); err != nil {
		return Result{}, err
	}
	return e.update(ctx, "set_complete", matchID, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
		r, err := openRound(m, roundID, playerID, true)
		if err != nil {
			return nil, false, err
		}
		if r.Status != skate.RoundAwaitingSet {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "round is %s", r.Status)
		}
		r.SetMedia = strings.TrimSpace(mediaRef)
		r.Status = skate.RoundAwaitingReply
		m.TurnHolder = r.DefenseUID
		m.ResponseDeadline = e.rules.Deadline(now)
		turn := skate.YourTurn(&m.Match, r.DefenseUID, r.OffenseUID, "reply")
		turn.Data[skate.KeyRoundID] = r.ID
		return []skate.Intent{turn}, true, nil
	})
}

// ReplyComplete records the defense's clip and hands the call to the offense.
func (e *Engine) ReplyComplete(ctx context.Context, matchID, roundID, playerID, mediaRef string) (Result, error) {
	if err := media.Check(ctx, e.verifier, mediaRef); err != nil {
		return Result{}, err
	}
	return e.update(ctx, "reply_complete", matchID, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
		r, err := openRound(m, roundID, playerID, false)
		if err != nil {
			return nil, false, err
		}
		if r.Status != skate.RoundAwaitingReply || m.TurnHolder != r.DefenseUID {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "round is %s", r.Status)
		}
		r.ReplyMedia = strings.TrimSpace(mediaRef)
		m.TurnHolder = r.OffenseUID
		m.ResponseDeadline = e.rules.Deadline(now)
		turn := skate.YourTurn(&m.Match, r.OffenseUID, r.DefenseUID, "judge")
		turn.Data[skate.KeyRoundID] = r.ID
		return []skate.Intent{turn}, true, nil
	})
}

// Resolve records the offense's claim; the defense must confirm it.
func (e *Engine) Resolve(ctx context.Context, matchID, roundID, offenseID string, claim skate.Ruling) (Result, error) {
	if !claim.Final() {
		return Result{}, skate.Errorf(skate.CodeInvalidArgument, "claim must be landed or missed, got %q", claim)
	}
	return e.update(ctx, "resolve", matchID, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
		r, err := openRound(m, roundID, offenseID, true)
		if err != nil {
			return nil, false, err
		}
		if r.Status != skate.RoundAwaitingReply || r.SetMedia == "" || r.ReplyMedia == "" || m.TurnHolder != r.OffenseUID {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "round is not ready to be judged")
		}
		r.OffenseClaim = claim
		r.Status = skate.RoundAwaitingConfirmation
		m.TurnHolder = r.DefenseUID
		m.ResponseDeadline = e.rules.Deadline(now)
		turn := skate.YourTurn(&m.Match, r.DefenseUID, r.OffenseUID, "confirm")
		turn.Data[skate.KeyRoundID] = r.ID
		turn.Data[skate.KeyRuling] = string(claim)
		return []skate.Intent{turn}, true, nil
	})
}

// Confirm lets the defense accept or contest the claim. Agreement applies the
// same letter rules as a relational judge call; disagreement only flags the
// round, stops its deadline clock and hands it to the dispute hook.
func (e *Engine) Confirm(ctx context.Context, matchID, roundID, defenseID string, agree bool) (Result, error) {
	var disputed *skate.Round
	res, err := e.update(ctx, "confirm", matchID, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
		disputed = nil
		r, err := openRound(m, roundID, defenseID, false)
		if err != nil {
			return nil, false, err
		}
		if r.Status != skate.RoundAwaitingConfirmation {
			return nil, false, skate.Errorf(skate.CodeInvalidState, "round is %s", r.Status)
		}
		if !agree {
			// 분쟁 라운드는 hook 이 처리할 때까지 기한 없음
			r.Disputed = true
			m.ResponseDeadline = time.Time{}
			cp := *r
			disputed = &cp
			return nil, true, nil
		}

		r.Confirmed = true
		tr := e.rules.Settle(m.Match, r.OffenseClaim, now)
		tr.Match.Version = m.Version
		tr.Match.Phase = skate.PhaseNone
		m.Match = tr.Match
		if m.Status == skate.StatusCompleted {
			m.TurnHolder = ""
			return tr.Intents, true, nil
		}
		e.appendRound(m, now)
		m.TurnHolder = m.Offense
		for i := range tr.Intents {
			if tr.Intents[i].Type == skate.IntentYourTurn {
				tr.Intents[i].Data[skate.KeyRoundID] = m.Current().ID
			}
		}
		return tr.Intents, true, nil
	})
	if err != nil {
		return Result{}, err
	}
	if disputed != nil {
		e.onDispute(ctx, res.Match, *disputed)
	}
	return res, nil
}

// Get loads a match document.
func (e *Engine) Get(ctx context.Context, matchID string) (*Match, error) {
	return e.store.Load(ctx, matchID)
}

// Round loads one round of a match.
func (e *Engine) Round(ctx context.Context, matchID, roundID string) (*skate.Round, error) {
	m, err := e.store.Load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	r := m.round(roundID)
	if r == nil {
		return nil, skate.ErrRoundNotFound
	}
	return r, nil
}

// DisputedRounds lists rounds the defense refused to confirm.
func (e *Engine) DisputedRounds(ctx context.Context, matchID string) ([]skate.Round, error) {
	m, err := e.store.Load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var out []skate.Round
	for _, r := range m.Rounds {
		if r.Disputed {
			out = append(out, r)
		}
	}
	return out, nil
}

// MatchesOf lists a player's matches, most recently updated first.
func (e *Engine) MatchesOf(ctx context.Context, playerID string) ([]*Match, error) {
	list, err := e.store.MatchesByUser(ctx, playerID)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}
