// Package scheduler runs the periodic expiration sweep.
package scheduler

import (
	"context"
	"fmt"
	"licensebot/internal/entitlement"
	"licensebot/lib/sl"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
)

type Sweeper interface {
	Sweep(ctx context.Context) (*entitlement.SweepReport, error)
}

type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(sweeper Sweeper, interval time.Duration, log *slog.Logger) *Scheduler {
	log = log.With(sl.Module("scheduler"))
	cl := &cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// a slow sweep delays the next tick instead of overlapping it
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.DelayIfStillRunning(cl)),
		),
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.log.With(slog.Duration("interval", s.interval)).Info("sweep scheduled")
	return nil
}

// Stop cancels a running sweep and waits for it to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("sweep still running at shutdown")
	}
}

// Run performs one sweep. Errors and panics are logged and never escape, so
// the schedule keeps ticking.
func (s *Scheduler) Run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.With(
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			).Error("sweep panicked")
		}
	}()

	started := time.Now()
	report, err := s.sweeper.Sweep(s.ctx)
	if err != nil {
		s.log.Error("sweep failed", sl.Err(err))
		return
	}
	log := s.log.With(
		slog.Int("checked", report.Checked),
		slog.Int("expired", report.Expired),
		slog.Int("removed", report.Removed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("took", time.Since(started)),
	)
	if report.Expired == 0 {
		log.Debug("sweep complete")
		return
	}
	log.With(slog.Any("purged_groups", report.PurgedGroups)).Info("sweep complete")
}

// cronLogger adapts slog to cron.Logger. Cron reports every wake-up at
// info level, which is debug noise here.
type cronLogger struct {
	log *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, sl.Err(err))...)
}
