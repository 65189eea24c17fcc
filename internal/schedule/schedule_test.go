package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeps struct {
	forfeit atomic.Int32
	warn    atomic.Int32
	mu      sync.Mutex
	order   []string
	failFor error
}

func (c *countingSweeps) ForfeitExpiredGames(context.Context) (int, error) {
	c.forfeit.Add(1)
	c.record("forfeit")
	return 1, c.failFor
}

func (c *countingSweeps) NotifyDeadlineWarnings(context.Context) (int, error) {
	c.warn.Add(1)
	c.record("warn")
	return 2, nil
}

func (c *countingSweeps) record(name string) {
	c.mu.Lock()
	c.order = append(c.order, name)
	c.mu.Unlock()
}

func TestSchedulerTicksBothSweeps(t *testing.T) {
	sw := &countingSweeps{}
	s, err := New(sw, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sw.forfeit.Load() >= 2 && sw.warn.Load() >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sw.forfeit.Load() < 2 || sw.warn.Load() < 2 {
		t.Fatalf("forfeit=%d warn=%d", sw.forfeit.Load(), sw.warn.Load())
	}
}

func TestRunOnce(t *testing.T) {
	sw := &countingSweeps{}
	f, w, err := RunOnce(context.Background(), sw)
	if err != nil || f != 1 || w != 2 {
		t.Fatalf("RunOnce = %d %d %v", f, w, err)
	}
	if len(sw.order) != 2 || sw.order[0] != "forfeit" {
		t.Fatalf("order = %v", sw.order)
	}

	boom := errors.New("db down")
	sw = &countingSweeps{failFor: boom}
	if _, _, err := RunOnce(context.Background(), sw); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if sw.warn.Load() != 0 {
		t.Fatalf("warnings ran after forfeit failure")
	}
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, time.Second); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAllSumsAndContinuesPastFailure(t *testing.T) {
	boom := errors.New("redis down")
	broken := &countingSweeps{failFor: boom}
	healthy := &countingSweeps{}
	all := All(broken, healthy)

	n, err := all.ForfeitExpiredGames(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if n != 2 || healthy.forfeit.Load() != 1 {
		t.Fatalf("n=%d healthy forfeit=%d", n, healthy.forfeit.Load())
	}
	n, err = all.NotifyDeadlineWarnings(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("warn n=%d err=%v", n, err)
	}
}
