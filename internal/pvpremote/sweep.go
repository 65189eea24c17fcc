package pvpremote

import (
	"context"
	"errors"
	"time"

	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
	"go.uber.org/zap"
)

// ForfeitExpiredGames completes every active document whose deadline passed,
// against the turn holder. Failures are logged per match and skipped.
func (e *Engine) ForfeitExpiredGames(ctx context.Context) (int, error) {
	ids, err := e.store.Due(ctx, time.Unix(0, 0), e.clock())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		forfeited := false
		res, err := e.update(ctx, "forfeit", id, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
			forfeited = false
			// 스캔 이후에 플레이어가 움직였을 수 있음
			if m.Status != skate.StatusActive || m.ResponseDeadline.IsZero() || !m.ResponseDeadline.Before(now) {
				return nil, false, nil
			}
			loser := m.TurnHolder
			if !m.IsParticipant(loser) {
				return nil, false, skate.Errorf(skate.CodeInvalidState, "no player on turn")
			}
			tr := skate.Forfeit(m.Match, loser, skate.ReasonDeadlineExpired, now)
			tr.Match.Version = m.Version
			m.Match = tr.Match
			m.TurnHolder = ""
			forfeited = true
			return tr.Intents, true, nil
		})
		if errors.Is(err, skate.ErrGameNotFound) {
			e.store.dropDeadline(ctx, id)
			continue
		}
		if err != nil {
			obslog.L().Warn("remote_sweep_forfeit_error", zap.String("match_id", id), zap.Error(err))
			continue
		}
		if forfeited {
			count++
			obslog.L().Info("remote_sweep_forfeit", zap.String("match_id", id), zap.String("winner", res.Match.Winner))
		}
	}
	return count, nil
}

// NotifyDeadlineWarnings reminds the turn holder once per deadline when it
// falls within the warning lead.
func (e *Engine) NotifyDeadlineWarnings(ctx context.Context) (int, error) {
	now := e.clock()
	ids, err := e.store.Due(ctx, now, now.Add(e.lead))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		warned := false
		_, err := e.update(ctx, "warn", id, func(m *Match, now time.Time) ([]skate.Intent, bool, error) {
			warned = false
			if m.Status != skate.StatusActive || m.ResponseDeadline.IsZero() {
				return nil, false, nil
			}
			if !m.ResponseDeadline.After(now) || m.ResponseDeadline.Sub(now) > e.lead {
				return nil, false, nil
			}
			if m.WarnedDeadline.Equal(m.ResponseDeadline) || !m.IsParticipant(m.TurnHolder) {
				return nil, false, nil
			}
			m.WarnedDeadline = m.ResponseDeadline
			in := skate.DeadlineWarning(&m.Match, m.TurnHolder)
			if cur := m.Current(); cur != nil {
				in.Data[skate.KeyRoundID] = cur.ID
			}
			warned = true
			return []skate.Intent{in}, true, nil
		})
		if errors.Is(err, skate.ErrGameNotFound) {
			e.store.dropDeadline(ctx, id)
			continue
		}
		if err != nil {
			obslog.L().Warn("remote_sweep_warn_error", zap.String("match_id", id), zap.Error(err))
			continue
		}
		if warned {
			count++
		}
	}
	return count, nil
}
