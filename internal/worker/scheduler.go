// Package worker runs the background automation loop: a distributed-lock
// guarded ticker that evaluates all active rules on an interval, plus the
// cross-instance rate budget for Shopee API actions.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/iklanku/adpilot/internal/pkg/distlock"
)

// TickRunner is the engine entry point the scheduler drives.
type TickRunner interface {
	RunTick(ctx context.Context) error
}

// Scheduler fires rule evaluation ticks on a fixed interval. The distributed
// lock guarantees one tick at a time across all instances; an instance that
// loses the race skips the cycle instead of queueing behind it.
type Scheduler struct {
	runner      TickRunner
	lock        distlock.DistLock
	interval    time.Duration
	tickTimeout time.Duration
}

// NewScheduler creates a scheduler. Interval defaults to 5 minutes, tick
// timeout to 80% of the interval so a slow tick cannot overlap the next one.
func NewScheduler(runner TickRunner, lock distlock.DistLock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:      runner,
		lock:        lock,
		interval:    interval,
		tickTimeout: interval * 8 / 10,
	}
}

// Run blocks until ctx is cancelled, executing one tick per interval. The
// first tick fires immediately on startup.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[scheduler] starting, interval=%s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		log.Printf("[scheduler] lock acquire failed, skipping tick: %v", err)
		return
	}
	if !acquired {
		log.Printf("[scheduler] tick already running elsewhere, skipping")
		return
	}
	defer func() {
		if err := s.lock.Release(context.Background()); err != nil {
			log.Printf("[scheduler] lock release failed: %v", err)
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	start := time.Now()
	if err := s.runner.RunTick(tickCtx); err != nil {
		log.Printf("[scheduler] tick failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[scheduler] tick completed in %s", time.Since(start).Round(time.Millisecond))
}
