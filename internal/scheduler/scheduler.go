// Package scheduler runs the sweep loop on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = 5 * time.Minute

// Scheduler invokes a function on a fixed interval, starting with an
// immediate run. Overlapping runs cannot happen: the next tick waits for
// the previous invocation to return.
type Scheduler struct {
	interval time.Duration
	fn       func(context.Context)
	logger   *slog.Logger
}

func New(interval time.Duration, fn func(context.Context), logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, fn: fn, logger: logger}
}

// Run blocks until ctx is canceled. The first invocation happens
// immediately, then once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.fn(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.fn(ctx)
		}
	}
}
