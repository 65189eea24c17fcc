package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/park285/skate-duel/internal/obslog"
	"go.uber.org/zap"
)

// Sweeps is the deadline work run on every tick.
type Sweeps interface {
	ForfeitExpiredGames(ctx context.Context) (int, error)
	NotifyDeadlineWarnings(ctx context.Context) (int, error)
}

// All runs several Sweeps in order. A failing one is logged and does not
// stop the rest; counts are summed and errors joined.
func All(sweeps ...Sweeps) Sweeps { return multi(sweeps) }

type multi []Sweeps

func (m multi) ForfeitExpiredGames(ctx context.Context) (int, error) {
	return m.each(ctx, "sweep_forfeit", Sweeps.ForfeitExpiredGames)
}

func (m multi) NotifyDeadlineWarnings(ctx context.Context) (int, error) {
	return m.each(ctx, "sweep_warn", Sweeps.NotifyDeadlineWarnings)
}

func (m multi) each(ctx context.Context, name string, fn func(Sweeps, context.Context) (int, error)) (int, error) {
	total := 0
	var errs []error
	for i, s := range m {
		n, err := fn(s, ctx)
		total += n
		if err != nil {
			obslog.L().Warn(name+"_error", zap.Int("sweep", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Scheduler runs Sweeps on a fixed cadence. A tick that is still running
// when the next one is due is skipped, not stacked.
type Scheduler struct {
	sched    gocron.Scheduler
	sweeps   Sweeps
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func New(sweeps Sweeps, interval time.Duration) (*Scheduler, error) {
	if sweeps == nil {
		return nil, errors.New("schedule: sweeps is nil")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{sched: sched, sweeps: sweeps, interval: interval, timeout: interval, ctx: ctx, cancel: cancel}

	jobs := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"sweep_forfeit", sweeps.ForfeitExpiredGames},
		{"sweep_warn", sweeps.NotifyDeadlineWarnings},
	}
	for _, j := range jobs {
		j := j
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { s.run(j.name, j.run) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		obslog.L().Warn(name+"_tick_error", zap.Int("count", n), zap.Error(err))
		return
	}
	obslog.L().Debug(name+"_tick", zap.Int("count", n), zap.Duration("took", time.Since(start)))
}

// Start begins ticking. It does not block.
func (s *Scheduler) Start() {
	s.sched.Start()
	obslog.L().Info("schedule_started", zap.Duration("interval", s.interval))
}

// Stop cancels running sweeps and waits for the scheduler to shut down.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}

// RunOnce runs both sweeps immediately, forfeits first.
func RunOnce(ctx context.Context, sweeps Sweeps) (forfeited, warned int, err error) {
	forfeited, err = sweeps.ForfeitExpiredGames(ctx)
	if err != nil {
		return forfeited, 0, err
	}
	warned, err = sweeps.NotifyDeadlineWarnings(ctx)
	return forfeited, warned, err
}
