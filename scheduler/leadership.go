package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/hashicorp/go-hclog"
)

// Elector is a consensus node whose leadership terms can be told apart
type Elector interface {
	Leader() bool
	Term() uint64
}

// Loader reads the replicated jobs once every committed write is visible
type Loader func(ctx context.Context) ([]models.PrintJob, error)

// Leadership drives a scheduler from a consensus node. The scheduler runs only
// while the node leads and has rebuilt its state from the replicated jobs of the
// current term; losing leadership wipes the local state so a later term starts
// from the replicated jobs again.
type Leadership struct {
	sched  *Scheduler
	node   Elector
	load   Loader
	logger hclog.Logger

	mu    sync.Mutex
	ready atomic.Bool
	term  uint64
}

// NewLeadership creates a Leadership. Call Watch, or Sync directly, to follow the node.
func NewLeadership(sched *Scheduler, node Elector, load Loader, logger hclog.Logger) *Leadership {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Leadership{sched: sched, node: node, load: load, logger: logger}
}

// Leader reports whether the node leads and its scheduler holds the replicated state
func (l *Leadership) Leader() bool {
	return l.ready.Load() && l.node.Leader()
}

// Sync compares the node's leadership with the scheduler state and recovers or
// resets as needed. A failed recovery keeps the scheduler disabled and is retried
// on the next call.
func (l *Leadership) Sync(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	leading := l.node.Leader()
	term := l.node.Term()

	if l.ready.Load() && (!leading || term != l.term) {
		l.ready.Store(false)
		l.logger.Info("leadership lost, clearing scheduler state", "term", l.term)
		l.sched.Reset()
	}
	if !leading || l.ready.Load() {
		return nil
	}

	jobs, err := l.load(ctx)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	l.logger.Info("elected leader, recovering jobs", "term", term, "jobs", len(jobs))
	RecoverAndDrain(l.sched, jobs, l.logger)
	l.term = term
	l.ready.Store(true)
	return nil
}

// Watch calls Sync every interval until ctx is done
func (l *Leadership) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := l.Sync(ctx); err != nil {
			l.logger.Error("recovery after election failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RecoverAndDrain rebuilds the scheduler from persisted jobs and starts whatever
// the recovered queue can start.
func RecoverAndDrain(sched *Scheduler, jobs []models.PrintJob, logger hclog.Logger) RecoveryReport {
	report := sched.Recover(jobs)
	if report.Requeued > 0 {
		logger.Warn("jobs requeued during recovery", "requeued", report.Requeued)
	}
	if queued := len(sched.Jobs(models.JobQueued)); queued > 0 {
		logger.Info("draining recovered queue", "queued", queued, "started", sched.DrainQueue())
	}
	return report
}
