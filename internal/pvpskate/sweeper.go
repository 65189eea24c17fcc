package pvpskate

import (
	"context"
	"database/sql"
	"time"

	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
	"go.uber.org/zap"
)

const (
	DefaultWarningLead    = skate.DefaultWarningLead
	ReasonDeadlineExpired = skate.ReasonDeadlineExpired
)

// Sweeper enforces response deadlines. Both entry points are safe to run
// concurrently with player actions and with each other.
type Sweeper struct {
	engine *Engine
	lead   time.Duration
}

func NewSweeper(engine *Engine, warningLead time.Duration) *Sweeper {
	if warningLead <= 0 {
		warningLead = DefaultWarningLead
	}
	return &Sweeper{engine: engine, lead: warningLead}
}

// ForfeitExpiredGames completes every active match whose deadline passed,
// naming the player not on turn as winner. Failures are logged per match.
func (s *Sweeper) ForfeitExpiredGames(ctx context.Context) (int, error) {
	e := s.engine
	now := e.clock()
	ids, err := e.repo.matchIDsDue(ctx, 1, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		var intents []skate.Intent
		forfeited := false
		err := e.repo.db.Tx(ctx, func(tx *sql.Tx) error {
			m, err := e.repo.lockMatch(ctx, tx, id)
			if err != nil {
				return err
			}
			now := e.clock()
			// A player may have acted since the scan.
			if m.Status != skate.StatusActive || m.ResponseDeadline.IsZero() || !m.ResponseDeadline.Before(now) {
				return nil
			}
			tr, err := e.rules.Step(*m, skate.Action{Kind: skate.ActionForfeit, Reason: ReasonDeadlineExpired}, now)
			if err != nil {
				return err
			}
			if err := e.repo.updateMatch(ctx, tx, &tr.Match, m.Version); err != nil {
				return err
			}
			intents = tr.Intents
			forfeited = true
			obslog.L().Info("sweep_forfeit",
				zap.String("match_id", id),
				zap.String("loser", m.OnTurn()),
				zap.String("winner", tr.Match.Winner),
			)
			return nil
		})
		if err != nil {
			obslog.L().Warn("sweep_forfeit_error", zap.String("match_id", id), zap.Error(err))
			continue
		}
		if forfeited {
			count++
			e.publish(ctx, intents)
		}
	}
	return count, nil
}

// NotifyDeadlineWarnings reminds the player on turn once per deadline when
// it falls within the warning lead.
func (s *Sweeper) NotifyDeadlineWarnings(ctx context.Context) (int, error) {
	e := s.engine
	now := e.clock()
	ids, err := e.repo.matchIDsDue(ctx, now.UnixMilli(), now.Add(s.lead).UnixMilli())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		var warning *skate.Intent
		err := e.repo.db.Tx(ctx, func(tx *sql.Tx) error {
			m, err := e.repo.lockMatch(ctx, tx, id)
			if err != nil {
				return err
			}
			now := e.clock()
			if m.Status != skate.StatusActive || m.ResponseDeadline.IsZero() {
				return nil
			}
			if !m.ResponseDeadline.After(now) || m.ResponseDeadline.Sub(now) > s.lead {
				return nil
			}
			if m.WarnedDeadline.Equal(m.ResponseDeadline) {
				return nil
			}
			target := m.OnTurn()
			if target == "" {
				return nil
			}
			next := *m
			next.WarnedDeadline = m.ResponseDeadline
			next.Version++
			if err := e.repo.updateMatch(ctx, tx, &next, m.Version); err != nil {
				return err
			}
			in := skate.DeadlineWarning(&next, target)
			warning = &in
			return nil
		})
		if err != nil {
			obslog.L().Warn("sweep_warn_error", zap.String("match_id", id), zap.Error(err))
			continue
		}
		if warning != nil {
			count++
			obslog.L().Info("sweep_warn", zap.String("match_id", id), zap.String("target", warning.TargetPlayerID))
			e.publish(ctx, []skate.Intent{*warning})
		}
	}
	return count, nil
}
