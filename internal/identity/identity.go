package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/sqldb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnknown is returned when a directory has no name for the id.
var ErrUnknown = errors.New("identity: unknown player")

// Directory resolves display names for participant ids.
type Directory interface {
	DisplayName(ctx context.Context, id string) (string, error)
}

// Static is an in-memory directory, mostly for tests and the CLI.
type Static map[string]string

func (s Static) DisplayName(_ context.Context, id string) (string, error) {
	if n, ok := s[id]; ok && strings.TrimSpace(n) != "" {
		return n, nil
	}
	return "", ErrUnknown
}

// SQLDirectory reads the players table.
type SQLDirectory struct {
	db *sqldb.DB
}

func NewSQLDirectory(db *sqldb.DB) *SQLDirectory { return &SQLDirectory{db: db} }

func (d *SQLDirectory) DisplayName(ctx context.Context, id string) (string, error) {
	var name string
	q := d.db.Rebind(`SELECT display_name FROM players WHERE id = $1`)
	err := d.db.QueryRowContext(ctx, q, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnknown
	}
	if err != nil {
		return "", fmt.Errorf("lookup player %s: %w", id, err)
	}
	return name, nil
}

// Upsert records the latest display name of a player.
func (d *SQLDirectory) Upsert(ctx context.Context, id, name string) error {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil
	}
	q := d.db.Rebind(`INSERT INTO players (id, display_name, updated_at_ms) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, updated_at_ms = excluded.updated_at_ms`)
	if _, err := d.db.ExecContext(ctx, q, id, name, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert player %s: %w", id, err)
	}
	return nil
}

// RedisCache memoizes another directory's answers for ttl. Cache failures
// fall through to the backing directory.
type RedisCache struct {
	rdb  *redis.Client
	next Directory
	ttl  time.Duration
}

func NewRedisCache(rdb *redis.Client, next Directory, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{rdb: rdb, next: next, ttl: ttl}
}

func (c *RedisCache) key(id string) string { return "skate:name:" + strings.TrimSpace(id) }

func (c *RedisCache) DisplayName(ctx context.Context, id string) (string, error) {
	name, err := c.rdb.Get(ctx, c.key(id)).Result()
	if err == nil && name != "" {
		return name, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		obslog.L().Debug("name_cache_get_error", zap.String("id", id), zap.Error(err))
	}
	name, err = c.next.DisplayName(ctx, id)
	if err != nil {
		return "", err
	}
	if serr := c.rdb.Set(ctx, c.key(id), name, c.ttl).Err(); serr != nil {
		obslog.L().Debug("name_cache_set_error", zap.String("id", id), zap.Error(serr))
	}
	return name, nil
}

// Resolve returns the directory's name for id, or fallback when the id is
// empty, unknown or the lookup fails.
func Resolve(ctx context.Context, d Directory, id, fallback string) string {
	if d == nil || strings.TrimSpace(id) == "" {
		return fallback
	}
	name, err := d.DisplayName(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUnknown) {
			obslog.L().Warn("identity_lookup_error", zap.String("id", id), zap.Error(err))
		}
		return fallback
	}
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
