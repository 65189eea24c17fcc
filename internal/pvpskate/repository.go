package pvpskate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/park285/skate-duel/internal/skate"
	"github.com/park285/skate-duel/internal/sqldb"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository owns every SQL statement of the relational engine.
type Repository struct {
	db *sqldb.DB
}

func NewRepository(db *sqldb.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the handle for transactions spanning several statements.
func (r *Repository) DB() *sqldb.DB { return r.db }

var errConcurrentUpdate = skate.Errorf(skate.CodeInvalidState, "concurrent update, retry")

const matchColumns = `id, player_a_id, player_a_name, player_b_id, player_b_name, status, phase,
	offense_id, defense_id, letters_a, letters_b, winner_id, response_deadline_ms,
	warned_deadline_ms, forfeit_reason, created_by, version, created_at_ms, updated_at_ms`

func scanMatch(s rowScanner) (*skate.Match, error) {
	var (
		m                                    skate.Match
		status, phase, lettersA, lettersB    string
		deadlineMs, warnedMs, createdMs, upMs int64
	)
	err := s.Scan(
		&m.ID, &m.PlayerA.ID, &m.PlayerA.Name, &m.PlayerB.ID, &m.PlayerB.Name, &status, &phase,
		&m.Offense, &m.Defense, &lettersA, &lettersB, &m.Winner, &deadlineMs,
		&warnedMs, &m.ForfeitReason, &m.CreatedBy, &m.Version, &createdMs, &upMs,
	)
	if err != nil {
		return nil, err
	}
	m.Status = skate.Status(status)
	m.Phase = skate.Phase(phase)
	if m.LettersA, err = skate.ParseLetters(lettersA); err != nil {
		return nil, fmt.Errorf("match %s: %w", m.ID, err)
	}
	if m.LettersB, err = skate.ParseLetters(lettersB); err != nil {
		return nil, fmt.Errorf("match %s: %w", m.ID, err)
	}
	m.ResponseDeadline = sqldb.MillisToTime(deadlineMs)
	m.WarnedDeadline = sqldb.MillisToTime(warnedMs)
	m.CreatedAt = sqldb.MillisToTime(createdMs)
	m.UpdatedAt = sqldb.MillisToTime(upMs)
	return &m, nil
}

func (r *Repository) insertMatch(ctx context.Context, q queryer, m *skate.Match) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	stmt := r.db.Rebind(`INSERT INTO matches (` + matchColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`)
	_, err := q.ExecContext(ctx, stmt,
		m.ID, m.PlayerA.ID, m.PlayerA.Name, m.PlayerB.ID, m.PlayerB.Name, string(m.Status), string(m.Phase),
		m.Offense, m.Defense, string(m.LettersA), string(m.LettersB), m.Winner,
		sqldb.TimeToMillis(m.ResponseDeadline), sqldb.TimeToMillis(m.WarnedDeadline),
		m.ForfeitReason, m.CreatedBy, m.Version,
		sqldb.TimeToMillis(m.CreatedAt), sqldb.TimeToMillis(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

func (r *Repository) getMatch(ctx context.Context, q queryer, id string) (*skate.Match, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+matchColumns+` FROM matches WHERE id = $1`), id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skate.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}
	return m, nil
}

// lockMatch reads the match holding its row lock until tx ends.
func (r *Repository) lockMatch(ctx context.Context, tx *sql.Tx, id string) (*skate.Match, error) {
	stmt := r.db.Rebind(`SELECT ` + matchColumns + ` FROM matches WHERE id = $1` + r.db.ForUpdate())
	m, err := scanMatch(tx.QueryRowContext(ctx, stmt, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skate.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock match %s: %w", id, err)
	}
	return m, nil
}

// updateMatch writes m only if the stored version is still prev.
func (r *Repository) updateMatch(ctx context.Context, tx *sql.Tx, m *skate.Match, prev int64) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	stmt := r.db.Rebind(`UPDATE matches SET
		player_b_id = $1, player_b_name = $2, status = $3, phase = $4, offense_id = $5,
		defense_id = $6, letters_a = $7, letters_b = $8, winner_id = $9,
		response_deadline_ms = $10, warned_deadline_ms = $11, forfeit_reason = $12,
		version = $13, updated_at_ms = $14
		WHERE id = $15 AND version = $16`)
	res, err := tx.ExecContext(ctx, stmt,
		m.PlayerB.ID, m.PlayerB.Name, string(m.Status), string(m.Phase), m.Offense,
		m.Defense, string(m.LettersA), string(m.LettersB), m.Winner,
		sqldb.TimeToMillis(m.ResponseDeadline), sqldb.TimeToMillis(m.WarnedDeadline), m.ForfeitReason,
		m.Version, sqldb.TimeToMillis(m.UpdatedAt),
		m.ID, prev,
	)
	if err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	if n != 1 {
		return errConcurrentUpdate
	}
	return nil
}

// matchIDsDue lists active matches whose deadline lies in [from, until).
func (r *Repository) matchIDsDue(ctx context.Context, fromMs, untilMs int64) ([]string, error) {
	stmt := r.db.Rebind(`SELECT id FROM matches
		WHERE status = 'active' AND response_deadline_ms >= $1 AND response_deadline_ms < $2
		ORDER BY response_deadline_ms`)
	rows, err := r.db.QueryContext(ctx, stmt, fromMs, untilMs)
	if err != nil {
		return nil, fmt.Errorf("query due matches: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due match: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) listMatchesByPlayer(ctx context.Context, playerID string, limit int) ([]skate.Match, error) {
	if limit <= 0 {
		limit = 20
	}
	stmt := r.db.Rebind(`SELECT ` + matchColumns + ` FROM matches
		WHERE player_a_id = $1 OR player_b_id = $2
		ORDER BY updated_at_ms DESC LIMIT $3`)
	rows, err := r.db.QueryContext(ctx, stmt, playerID, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches for %s: %w", playerID, err)
	}
	defer rows.Close()
	var out []skate.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

const attemptColumns = `id, match_id, author_id, kind, media_ref, ruling, created_at_ms`

func scanAttempt(s rowScanner) (*skate.Attempt, error) {
	var (
		a            skate.Attempt
		kind, ruling string
		createdMs    int64
	)
	if err := s.Scan(&a.ID, &a.MatchID, &a.AuthorID, &kind, &a.MediaRef, &ruling, &createdMs); err != nil {
		return nil, err
	}
	a.Kind = skate.AttemptKind(kind)
	a.Ruling = skate.Ruling(ruling)
	a.CreatedAt = sqldb.MillisToTime(createdMs)
	return &a, nil
}

func (r *Repository) insertAttempt(ctx context.Context, q queryer, a *skate.Attempt) error {
	stmt := r.db.Rebind(`INSERT INTO trick_attempts (` + attemptColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	_, err := q.ExecContext(ctx, stmt,
		a.ID, a.MatchID, a.AuthorID, string(a.Kind), a.MediaRef, string(a.Ruling), sqldb.TimeToMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", a.ID, err)
	}
	return nil
}

func (r *Repository) getAttempt(ctx context.Context, q queryer, id string) (*skate.Attempt, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+attemptColumns+` FROM trick_attempts WHERE id = $1`), id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skate.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt %s: %w", id, err)
	}
	return a, nil
}

// pendingResponse returns the response awaiting a ruling, or nil.
func (r *Repository) pendingResponse(ctx context.Context, q queryer, matchID string) (*skate.Attempt, error) {
	stmt := r.db.Rebind(`SELECT ` + attemptColumns + ` FROM trick_attempts
		WHERE match_id = $1 AND kind = 'response' AND ruling = 'pending'
		ORDER BY created_at_ms DESC LIMIT 1`)
	a, err := scanAttempt(q.QueryRowContext(ctx, stmt, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending response for %s: %w", matchID, err)
	}
	return a, nil
}

func (r *Repository) setAttemptRuling(ctx context.Context, q queryer, id string, ruling skate.Ruling) error {
	stmt := r.db.Rebind(`UPDATE trick_attempts SET ruling = $1 WHERE id = $2`)
	if _, err := q.ExecContext(ctx, stmt, string(ruling), id); err != nil {
		return fmt.Errorf("update attempt %s: %w", id, err)
	}
	return nil
}

func (r *Repository) listAttempts(ctx context.Context, q queryer, matchID string) ([]skate.Attempt, error) {
	stmt := r.db.Rebind(`SELECT ` + attemptColumns + ` FROM trick_attempts
		WHERE match_id = $1 ORDER BY created_at_ms, id`)
	rows, err := q.QueryContext(ctx, stmt, matchID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for %s: %w", matchID, err)
	}
	defer rows.Close()
	var out []skate.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const disputeColumns = `id, match_id, attempt_id, filed_by, against, original_ruling, final_ruling,
	status, penalty_target, created_at_ms, resolved_at_ms`

func scanDispute(s rowScanner) (*skate.Dispute, error) {
	var (
		d                        skate.Dispute
		original, final, status  string
		createdMs, resolvedMs    int64
	)
	err := s.Scan(&d.ID, &d.MatchID, &d.AttemptID, &d.FiledBy, &d.Against, &original, &final,
		&status, &d.PenaltyTarget, &createdMs, &resolvedMs)
	if err != nil {
		return nil, err
	}
	d.OriginalRuling = skate.Ruling(original)
	d.FinalRuling = skate.Ruling(final)
	d.Status = skate.DisputeStatus(status)
	d.CreatedAt = sqldb.MillisToTime(createdMs)
	d.ResolvedAt = sqldb.MillisToTime(resolvedMs)
	return &d, nil
}

func (r *Repository) insertDispute(ctx context.Context, q queryer, d *skate.Dispute) error {
	stmt := r.db.Rebind(`INSERT INTO disputes (` + disputeColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	_, err := q.ExecContext(ctx, stmt,
		d.ID, d.MatchID, d.AttemptID, d.FiledBy, d.Against, string(d.OriginalRuling), string(d.FinalRuling),
		string(d.Status), d.PenaltyTarget, sqldb.TimeToMillis(d.CreatedAt), sqldb.TimeToMillis(d.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert dispute %s: %w", d.ID, err)
	}
	return nil
}

func (r *Repository) getDispute(ctx context.Context, q queryer, id string) (*skate.Dispute, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`), id)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skate.ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dispute %s: %w", id, err)
	}
	return d, nil
}

// disputeByFiler returns the filer's dispute on the match, or nil.
func (r *Repository) disputeByFiler(ctx context.Context, q queryer, matchID, filer string) (*skate.Dispute, error) {
	stmt := r.db.Rebind(`SELECT ` + disputeColumns + ` FROM disputes WHERE match_id = $1 AND filed_by = $2`)
	d, err := scanDispute(q.QueryRowContext(ctx, stmt, matchID, filer))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dispute for %s/%s: %w", matchID, filer, err)
	}
	return d, nil
}

// resolveDispute flips a pending dispute; a lost race reports ALREADY_RESOLVED.
func (r *Repository) resolveDispute(ctx context.Context, q queryer, d *skate.Dispute) error {
	stmt := r.db.Rebind(`UPDATE disputes SET final_ruling = $1, status = $2, penalty_target = $3, resolved_at_ms = $4
		WHERE id = $5 AND status = 'pending'`)
	res, err := q.ExecContext(ctx, stmt,
		string(d.FinalRuling), string(d.Status), d.PenaltyTarget, sqldb.TimeToMillis(d.ResolvedAt), d.ID)
	if err != nil {
		return fmt.Errorf("resolve dispute %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve dispute %s: %w", d.ID, err)
	}
	if n != 1 {
		return skate.ErrAlreadyResolved
	}
	return nil
}
