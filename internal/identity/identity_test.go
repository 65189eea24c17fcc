package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/skate-duel/internal/sqldb"
	"github.com/redis/go-redis/v9"
)

type countingDir struct {
	Static
	calls int
}

func (c *countingDir) DisplayName(ctx context.Context, id string) (string, error) {
	c.calls++
	return c.Static.DisplayName(ctx, id)
}

func TestResolveFallsBack(t *testing.T) {
	ctx := context.Background()
	d := Static{"u1": "Ann"}
	if got := Resolve(ctx, d, "u1", "Skater"); got != "Ann" {
		t.Fatalf("known = %q", got)
	}
	if got := Resolve(ctx, d, "u2", "Skater"); got != "Skater" {
		t.Fatalf("unknown = %q", got)
	}
	if got := Resolve(ctx, d, "", "Skater"); got != "Skater" {
		t.Fatalf("empty id = %q", got)
	}
	if got := Resolve(ctx, nil, "u1", "Skater"); got != "Skater" {
		t.Fatalf("nil directory = %q", got)
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	backing := &countingDir{Static: Static{"u1": "Ann"}}
	c := NewRedisCache(rdb, backing, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		name, err := c.DisplayName(ctx, "u1")
		if err != nil || name != "Ann" {
			t.Fatalf("lookup #%d: %q %v", i, name, err)
		}
	}
	if backing.calls != 1 {
		t.Fatalf("backing directory called %d times", backing.calls)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := c.DisplayName(ctx, "u1"); err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if backing.calls != 2 {
		t.Fatalf("expired entry not refreshed")
	}
	if _, err := c.DisplayName(ctx, "ghost"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("unknown err = %v", err)
	}
}

func TestSQLDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.SQLite, filepath.Join(t.TempDir(), "players.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	d := NewSQLDirectory(db)
	if _, err := d.DisplayName(ctx, "u1"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("missing err = %v", err)
	}
	if err := d.Upsert(ctx, "u1", "Ann"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := d.Upsert(ctx, "u1", "Annie"); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if name, err := d.DisplayName(ctx, "u1"); err != nil || name != "Annie" {
		t.Fatalf("name = %q %v", name, err)
	}
}
