package pvpremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/skate-duel/internal/skate"
	"github.com/redis/go-redis/v9"
)

// Finished documents are kept for a month, then expire.
const ttlFinished = 30 * 24 * time.Hour

type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyMatch(id string) string   { return "skate:remote:match:" + strings.TrimSpace(id) }
func (s *Store) keyUserIdx(uid string) string { return "skate:remote:user:" + strings.TrimSpace(uid) }
func (s *Store) keyLobby() string            { return "skate:remote:lobby" }
func (s *Store) keyDeadlines() string        { return "skate:remote:deadlines" }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// load reads a document through c, which may be a *redis.Tx under WATCH.
func (s *Store) load(ctx context.Context, c getter, id string) (*Match, error) {
	raw, err := c.Get(ctx, s.keyMatch(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, skate.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load remote match %s: %w", id, err)
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode remote match %s: %w", id, err)
	}
	return &m, nil
}

func (s *Store) Load(ctx context.Context, id string) (*Match, error) {
	return s.load(ctx, s.rdb, id)
}

// write queues the document and its index maintenance on pipe.
func (s *Store) write(ctx context.Context, pipe redis.Pipeliner, m *Match) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("remote match %s: %w", m.ID, err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode remote match %s: %w", m.ID, err)
	}
	key := s.keyMatch(m.ID)
	if m.Status.Terminal() {
		pipe.Set(ctx, key, raw, ttlFinished)
	} else {
		pipe.Set(ctx, key, raw, 0)
	}
	if m.Status == skate.StatusWaiting {
		pipe.SAdd(ctx, s.keyLobby(), m.ID)
	} else {
		pipe.SRem(ctx, s.keyLobby(), m.ID)
	}
	if m.Status == skate.StatusActive && !m.ResponseDeadline.IsZero() {
		pipe.ZAdd(ctx, s.keyDeadlines(), redis.Z{Score: float64(m.ResponseDeadline.UnixMilli()), Member: m.ID})
	} else {
		pipe.ZRem(ctx, s.keyDeadlines(), m.ID)
	}
	for _, p := range []skate.Participant{m.PlayerA, m.PlayerB} {
		if p.ID != "" {
			pipe.SAdd(ctx, s.keyUserIdx(p.ID), m.ID)
		}
	}
	return nil
}

// Due lists ids of active matches whose deadline lies in [from, until),
// earliest first. Entries may be stale; callers re-check under WATCH.
func (s *Store) Due(ctx context.Context, from, until time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.keyDeadlines(), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(until.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read deadlines: %w", err)
	}
	return ids, nil
}

func (s *Store) dropDeadline(ctx context.Context, id string) {
	_ = s.rdb.ZRem(ctx, s.keyDeadlines(), id).Err()
}

// Lobby lists ids of waiting matches. Entries may be stale; callers re-check.
func (s *Store) Lobby(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyLobby()).Result()
	if err != nil {
		return nil, fmt.Errorf("read lobby: %w", err)
	}
	return ids, nil
}

// MatchesByUser loads every indexed match of a player, skipping expired ones.
func (s *Store) MatchesByUser(ctx context.Context, uid string) ([]*Match, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyUserIdx(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("read user index: %w", err)
	}
	var out []*Match
	for _, id := range ids {
		m, err := s.Load(ctx, id)
		if errors.Is(err, skate.ErrGameNotFound) {
			_ = s.rdb.SRem(ctx, s.keyUserIdx(uid), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
