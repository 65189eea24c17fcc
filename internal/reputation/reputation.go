package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/sqldb"
	"go.uber.org/zap"
)

// ReasonOverturnedRuling is recorded when a dispute overturns a call.
const ReasonOverturnedRuling = "overturned_ruling"

// Penalty is one strike against a player's standing.
type Penalty struct {
	PlayerID  string
	MatchID   string
	DisputeID string
	Reason    string
	At        time.Time
}

// Sink consumes penalties produced by dispute resolution.
type Sink interface {
	Penalize(ctx context.Context, p Penalty) error
}

// LogSink only logs.
type LogSink struct{}

func (LogSink) Penalize(_ context.Context, p Penalty) error {
	obslog.L().Info("reputation_penalty",
		zap.String("player_id", p.PlayerID),
		zap.String("match_id", p.MatchID),
		zap.String("dispute_id", p.DisputeID),
		zap.String("reason", p.Reason),
	)
	return nil
}

// SQLSink appends to reputation_penalties. One row per dispute.
type SQLSink struct {
	db *sqldb.DB
}

func NewSQLSink(db *sqldb.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) Penalize(ctx context.Context, p Penalty) error {
	if s == nil || s.db == nil {
		return nil
	}
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	q := s.db.Rebind(`INSERT INTO reputation_penalties (id, player_id, match_id, dispute_id, reason, created_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (dispute_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, uuid.NewString(), p.PlayerID, p.MatchID, p.DisputeID, p.Reason, at.UnixMilli()); err != nil {
		return fmt.Errorf("record penalty for %s: %w", p.PlayerID, err)
	}
	return nil
}

// Count returns how many penalties a player has collected.
func (s *SQLSink) Count(ctx context.Context, playerID string) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM reputation_penalties WHERE player_id = $1`)
	if err := s.db.QueryRowContext(ctx, q, playerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count penalties for %s: %w", playerID, err)
	}
	return n, nil
}
