package pvpskate

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/reputation"
	"github.com/park285/skate-duel/internal/skate"
	"go.uber.org/zap"
)

// Arbiter files and resolves disputes. A player gets one dispute per match.
type Arbiter struct {
	engine *Engine
	sink   reputation.Sink
}

func NewArbiter(engine *Engine, sink reputation.Sink) *Arbiter {
	if sink == nil {
		sink = reputation.LogSink{}
	}
	return &Arbiter{engine: engine, sink: sink}
}

// FileResult reports the dispute and whether it already existed.
type FileResult struct {
	Dispute       skate.Dispute  `json:"dispute"`
	AlreadyExists bool           `json:"alreadyExists"`
	Intents       []skate.Intent `json:"intents,omitempty"`
}

// ResolveResult carries the resolved dispute, the match after any overturn
// and who is penalized for the incorrect call (empty when the call stands).
type ResolveResult struct {
	Dispute       skate.Dispute `json:"dispute"`
	Match         skate.Match   `json:"match"`
	PenaltyTarget string        `json:"penaltyTarget,omitempty"`
}

// File contests a missed ruling on one attempt.
func (a *Arbiter) File(ctx context.Context, matchID, filerID, attemptID string) (FileResult, error) {
	e := a.engine
	filerID = strings.TrimSpace(filerID)
	var res FileResult
	err := e.repo.db.Tx(ctx, func(tx *sql.Tx) error {
		m, err := e.repo.lockMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if !m.IsParticipant(filerID) {
			return skate.ErrAccessDenied
		}
		existing, err := e.repo.disputeByFiler(ctx, tx, matchID, filerID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == skate.DisputeResolved {
				return skate.ErrDisputeUsed
			}
			res = FileResult{Dispute: *existing, AlreadyExists: true}
			return nil
		}
		if m.Status != skate.StatusActive {
			return skate.ErrGameNotActive
		}
		att, err := e.repo.getAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if att.MatchID != m.ID {
			return skate.ErrAttemptNotFound
		}
		// 판정으로 손해 본 쪽만 이의 제기 가능
		if att.AuthorID != filerID {
			return skate.Errorf(skate.CodeAccessDenied, "only the attempt's author can dispute its ruling")
		}
		if att.Ruling != skate.RulingMissed {
			return skate.Errorf(skate.CodeInvalidState, "only a missed ruling can be disputed, attempt is %s", att.Ruling)
		}
		d := skate.Dispute{
			ID:             uuid.NewString(),
			MatchID:        m.ID,
			AttemptID:      att.ID,
			FiledBy:        filerID,
			Against:        m.Opponent(filerID).ID,
			OriginalRuling: att.Ruling,
			Status:         skate.DisputePending,
			CreatedAt:      e.clock(),
		}
		if err := e.repo.insertDispute(ctx, tx, &d); err != nil {
			return err
		}
		res = FileResult{Dispute: d}
		if d.Against != "" {
			res.Intents = []skate.Intent{skate.DisputeFiled(m, &d)}
		}
		return nil
	})
	if err != nil {
		return FileResult{}, err
	}
	if !res.AlreadyExists {
		obslog.L().Info("skate_dispute_file",
			zap.String("match_id", matchID),
			zap.String("dispute_id", res.Dispute.ID),
			zap.String("filed_by", filerID),
			zap.String("attempt_id", attemptID),
		)
	}
	e.publish(ctx, res.Intents)
	return res, nil
}

// Resolve settles a pending dispute. Only the non-filer may resolve it.
// landed overturns the ruling and removes the letter it gave; missed
// leaves everything as it was. An attempt that is no longer missed is not
// overturned again. A bail is self-declared, so overturning one penalizes
// nobody.
func (a *Arbiter) Resolve(ctx context.Context, disputeID, judgeID string, final skate.Ruling) (ResolveResult, error) {
	if !final.Final() {
		return ResolveResult{}, skate.Errorf(skate.CodeInvalidArgument, "final ruling must be landed or missed, got %q", final)
	}
	e := a.engine
	judgeID = strings.TrimSpace(judgeID)
	var res ResolveResult
	err := e.repo.db.Tx(ctx, func(tx *sql.Tx) error {
		d, err := e.repo.getDispute(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		m, err := e.repo.lockMatch(ctx, tx, d.MatchID)
		if err != nil {
			return err
		}
		if !m.IsParticipant(judgeID) || judgeID == d.FiledBy {
			return skate.Errorf(skate.CodeAccessDenied, "only the opposing player can resolve this dispute")
		}
		if d.Status == skate.DisputeResolved {
			return skate.ErrAlreadyResolved
		}
		if m.Status != skate.StatusActive {
			return skate.ErrGameNotActive
		}

		now := e.clock()
		next := *m
		d.FinalRuling = final
		d.Status = skate.DisputeResolved
		d.ResolvedAt = now
		if final == skate.RulingLanded {
			att, err := e.repo.getAttempt(ctx, tx, d.AttemptID)
			if err != nil {
				return err
			}
			if att.Ruling == skate.RulingMissed {
				tr := skate.Overturn(*m, att.AuthorID, now)
				if tr.Changed {
					if err := e.repo.updateMatch(ctx, tx, &tr.Match, m.Version); err != nil {
						return err
					}
					next = tr.Match
				}
				if err := e.repo.setAttemptRuling(ctx, tx, att.ID, skate.RulingLanded); err != nil {
					return err
				}
				if att.Kind == skate.AttemptResponse {
					d.PenaltyTarget = d.Against
				}
			}
		}
		if err := e.repo.resolveDispute(ctx, tx, d); err != nil {
			return err
		}
		res = ResolveResult{Dispute: *d, Match: next, PenaltyTarget: d.PenaltyTarget}
		return nil
	})
	if err != nil {
		return ResolveResult{}, err
	}
	obslog.L().Info("skate_dispute_resolve",
		zap.String("dispute_id", disputeID),
		zap.String("match_id", res.Dispute.MatchID),
		zap.String("final_ruling", string(final)),
		zap.String("penalty_target", res.PenaltyTarget),
	)
	if res.PenaltyTarget != "" {
		p := reputation.Penalty{
			PlayerID:  res.PenaltyTarget,
			MatchID:   res.Dispute.MatchID,
			DisputeID: res.Dispute.ID,
			Reason:    reputation.ReasonOverturnedRuling,
			At:        res.Dispute.ResolvedAt,
		}
		if err := a.sink.Penalize(ctx, p); err != nil {
			obslog.L().Warn("reputation_penalize_error", zap.String("dispute_id", disputeID), zap.Error(err))
		}
	}
	return res, nil
}

// Dispute loads one dispute.
func (a *Arbiter) Dispute(ctx context.Context, disputeID string) (*skate.Dispute, error) {
	return a.engine.repo.getDispute(ctx, a.engine.repo.db, disputeID)
}
