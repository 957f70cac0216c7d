package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

type fakeElector struct {
	leader bool
	term   uint64
}

func (e *fakeElector) Leader() bool { return e.leader }
func (e *fakeElector) Term() uint64 { return e.term }

func TestLeadershipRecoversFromReplicatedJobsEachTerm(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 100))
	now := f.clock.Now()
	replicated := newMemStore()
	replicated.jobs[5] = persistedPrinting(5, 1, now, -10*time.Minute, 50*time.Minute, 10)

	node := &fakeElector{leader: true, term: 1}
	l := NewLeadership(f.s, node, replicated.FindAll, nil)
	ctx := context.Background()

	if l.Leader() {
		t.Fatal("scheduler must not run before recovery")
	}
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !l.Leader() || f.job(t, 5).Status != models.JobPrinting {
		t.Fatalf("expected job 5 printing after recovery, got %+v", f.job(t, 5))
	}

	node.leader = false
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if l.Leader() || len(f.s.Jobs("")) != 0 {
		t.Fatal("a follower must drop its local jobs")
	}
	if p, _ := f.reg.Get(1); p.Status != models.PrinterIdle || p.CurrentJobID != 0 {
		t.Fatalf("printer still bound after reset: %+v", p)
	}

	// Another leader finishes job 5 meanwhile.
	done := replicated.jobs[5]
	done.Status, done.PrinterID, done.Progress, done.PrintedOn = models.JobCompleted, 0, 100, 1
	done.CompletedAt = ptime(now.Add(time.Minute))
	replicated.jobs[5] = done

	node.leader, node.term = true, 3
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	f.clock.Advance(time.Hour)
	f.s.Tick()

	if got := f.job(t, 5); got.Status != models.JobCompleted || !got.CompletedAt.Equal(*done.CompletedAt) {
		t.Fatalf("replicated completion lost: %+v", got)
	}
	if n := f.sink.count(models.EventCompleted); n != 0 {
		t.Fatalf("job completed again on re-election, %d completed events", n)
	}
	if p, _ := f.reg.Get(1); p.Status != models.PrinterIdle || p.CompletedCount != 0 {
		t.Fatalf("printer should be idle with no local completions: %+v", p)
	}
	f.checkInvariants(t)
}

func TestLeadershipResetsOnNewTerm(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 100))
	replicated := newMemStore()
	node := &fakeElector{leader: true, term: 1}
	l := NewLeadership(f.s, node, replicated.FindAll, nil)
	ctx := context.Background()

	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	f.mustOrder(t, order(item("benchy", 1)))

	// Lost and won again between two syncs; the local order never replicated.
	node.term = 2
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(f.s.Jobs("")) != 0 || len(f.s.Orders()) != 0 {
		t.Fatal("state from the previous term survived")
	}
	if !l.Leader() {
		t.Fatal("expected leadership to be ready for the new term")
	}
	_, jobs := f.mustOrder(t, order(item("benchy", 1)))
	if jobs[0].ID != 1 || jobs[0].PrinterID != 1 {
		t.Fatalf("printer not freed by the reset: %+v", jobs[0])
	}
}

func TestLeadershipRetriesFailedLoad(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 100))
	node := &fakeElector{leader: true, term: 1}
	calls := 0
	load := func(context.Context) ([]models.PrintJob, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}
	l := NewLeadership(f.s, node, load, nil)

	err := l.Sync(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "load" {
		t.Fatalf("expected a load PersistenceError, got %v", err)
	}
	if l.Leader() {
		t.Fatal("scheduler enabled without recovered state")
	}
	if err := l.Sync(context.Background()); err != nil || !l.Leader() {
		t.Fatalf("second sync: err=%v leader=%v", err, l.Leader())
	}
}
