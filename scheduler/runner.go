package scheduler

import (
	"context"
	"time"
)

// Authority reports whether this process currently drives scheduling. In a raft
// cluster only the leader does.
type Authority interface {
	Leader() bool
}

// RunOptions configures Run
type RunOptions struct {
	Interval  time.Duration
	Authority Authority
	// AfterTick runs after every tick and queue drain, outside the scheduler lock.
	AfterTick func()
}

// Run ticks the scheduler and drains the queue on a fixed period until ctx is done
func (s *Scheduler) Run(ctx context.Context, opts RunOptions) {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler running", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if opts.Authority != nil && !opts.Authority.Leader() {
				continue
			}
			s.Tick()
			s.DrainQueue()
			if opts.AfterTick != nil {
				opts.AfterTick()
			}
		}
	}
}
