// Package scheduler drives the fixed-interval detection tick.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// TickFunc runs one full detect -> correlate -> match -> analyze -> incident
// cycle. A TickFunc that overruns the interval simply delays the next
// scheduled run; the scheduler never starts a second tick concurrently.
type TickFunc func(ctx context.Context, now time.Time)

// Config parameterizes the Scheduler.
type Config struct {
	Interval        time.Duration
	HardStopTimeout time.Duration
}

// Scheduler runs tick at a fixed interval, one at a time. Because the tick
// runs synchronously inside the select loop, an interval tick that arrives
// while a tick is still running is drained and logged as skipped once the
// tick returns rather than queued — a slow tick delays the next one, it
// never piles up.
type Scheduler struct {
	cfg    Config
	tick   TickFunc
	logger *slog.Logger
	stopCh chan struct{}
}

// New constructs a Scheduler.
func New(cfg Config, tick TickFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HardStopTimeout <= 0 {
		cfg.HardStopTimeout = 30 * time.Second
	}
	return &Scheduler{cfg: cfg, tick: tick, logger: logger, stopCh: make(chan struct{})}
}

// Run starts the tick loop and blocks until ctx is cancelled or Stop is
// called. The first tick fires immediately rather than waiting a full
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.cfg.Interval)

	s.runTick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", "context cancelled")
			return
		case <-s.stopCh:
			s.logger.Info("scheduler stopping", "reason", "stop signal")
			return
		case <-ticker.C:
			s.runTick(ctx)
			// A firing that landed while the tick ran is still pending on the
			// ticker; discard it so it is skipped rather than run late.
			select {
			case <-ticker.C:
				s.logger.Info("tick skipped", "reason", "previous tick still running")
			default:
			}
		}
	}
}

// Stop signals the run loop to exit. It does not wait for an in-flight tick
// to finish; callers that need a hard deadline should race Stop with a
// context carrying HardStopTimeout.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runTick(ctx context.Context) {
	start := time.Now()
	tickCtx, cancel := context.WithTimeout(ctx, s.cfg.HardStopTimeout)
	defer cancel()

	s.tick(tickCtx, start.UTC())

	s.logger.Debug("tick complete", "duration", time.Since(start))
}
