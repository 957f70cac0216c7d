package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

func ptime(t time.Time) *time.Time { return &t }

func persistedPrinting(id int64, printer int, now time.Time, start, end time.Duration, progress float64) models.PrintJob {
	return models.PrintJob{
		ID:                 id,
		OrderID:            "order-1",
		OrderItemID:        1,
		PrinterID:          printer,
		ModelRef:           "benchy",
		Status:             models.JobPrinting,
		Progress:           progress,
		CreatedAt:          now.Add(-3 * time.Hour),
		StartedAt:          ptime(now.Add(start)),
		EstimatedEnd:       ptime(now.Add(end)),
		ConsumableKind:     "PLA",
		EstimatedDuration:  time.Hour,
		ConsumableRequired: 10,
	}
}

func TestRecoverExtendsStaleWindow(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 80))
	now := f.clock.Now()
	job := persistedPrinting(5, 1, now, -120*time.Minute, -60*time.Minute, 40)

	report := f.s.Recover([]models.PrintJob{job})
	if report.Resumed != 1 || report.Completed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	got := f.job(t, 5)
	if got.Status != models.JobPrinting || got.PrinterID != 1 || got.Progress != 40 {
		t.Fatalf("expected job still printing at 40%%, got %+v", got)
	}
	if got.EstimatedEnd.Before(now.Add(MinWindowExtension)) || got.EstimatedEnd.After(now.Add(MaxWindowExtension)) {
		t.Fatalf("estimated_end %v not pushed 30-60 minutes out", got.EstimatedEnd)
	}

	p, _ := f.reg.Get(1)
	if p.Status != models.PrinterPrinting || p.CurrentJobID != 5 || p.CurrentJob == "" {
		t.Fatalf("printer not re-attached: %+v", p)
	}
	if p.Progress != 40 || p.LevelAtJobStart == nil || *p.LevelAtJobStart != 80 {
		t.Fatalf("printer progress/snapshot not restored: %+v", p)
	}

	f.clock.Advance(time.Second)
	f.s.Tick()
	if next := f.job(t, 5); next.Progress < 40 || next.Progress > 40.1 || next.Status != models.JobPrinting {
		t.Fatalf("unexpected progress after first tick: %s at %v", next.Status, next.Progress)
	}
	f.checkInvariants(t)
}

func TestRecoverCompletesElapsedJobAboveThreshold(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 80))
	now := f.clock.Now()
	job := persistedPrinting(5, 1, now, -70*time.Minute, -10*time.Minute, 96)

	report := f.s.Recover([]models.PrintJob{job})
	if report.Completed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := f.job(t, 5); got.Status != models.JobCompleted || got.Progress != 100 {
		t.Fatalf("expected completed job, got %+v", got)
	}
	if p, _ := f.reg.Get(1); p.Status != models.PrinterIdle || p.CompletedCount != 1 {
		t.Fatalf("printer not released: %+v", p)
	}
	if f.sink.count(models.EventOrderCompleted) != 1 {
		t.Fatal("expected the single-job order to complete")
	}
}

func TestRecoverRecomputesProgressInsideWindow(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 80))
	now := f.clock.Now()
	job := persistedPrinting(5, 1, now, -30*time.Minute, 30*time.Minute, 20)

	f.s.Recover([]models.PrintJob{job})
	got := f.job(t, 5)
	if math.Abs(got.Progress-50) > 1e-9 || !got.EstimatedEnd.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("expected 50%% with the original window, got %v until %v", got.Progress, got.EstimatedEnd)
	}
}

func TestRecoverNeverDoubleBooksOrLosesJobs(t *testing.T) {
	f := newFixture(t, idle(1, "PLA", 100), withStatus(idle(2, "PLA", 100), models.PrinterMaintenance))
	now := f.clock.Now()
	a := persistedPrinting(1, 1, now, -10*time.Minute, 50*time.Minute, 10)
	b := persistedPrinting(2, 1, now, -30*time.Minute, 30*time.Minute, 30)
	c := persistedPrinting(3, 2, now, -30*time.Minute, 30*time.Minute, 30)
	d := persistedPrinting(4, 9, now, -30*time.Minute, 30*time.Minute, 30)
	queued := models.PrintJob{ID: 7, OrderID: "order-2", OrderItemID: 1, ModelRef: "vase", Status: models.JobQueued,
		PrinterID: 1, CreatedAt: now.Add(-time.Hour), ConsumableKind: "PLA", EstimatedDuration: time.Hour, ConsumableRequired: 3}
	done := models.PrintJob{ID: 6, OrderID: "order-3", OrderItemID: 1, ModelRef: "cube", Status: models.JobCompleted,
		Progress: 100, CreatedAt: now.Add(-5 * time.Hour), StartedAt: ptime(now.Add(-4 * time.Hour)), CompletedAt: ptime(now.Add(-3 * time.Hour)), PrintedOn: 2}

	report := f.s.Recover([]models.PrintJob{a, b, c, d, queued, done, a})
	want := RecoveryReport{Resumed: 1, Requeued: 3, Queued: 1, Untouched: 1, Skipped: 1}
	if report != want {
		t.Fatalf("report %+v, want %+v", report, want)
	}
	if len(f.s.Jobs("")) != 6 {
		t.Fatalf("expected 6 jobs, got %d", len(f.s.Jobs("")))
	}
	if j := f.job(t, 1); j.Status != models.JobPrinting || j.PrinterID != 1 {
		t.Fatalf("job 1 should keep printer 1: %+v", j)
	}
	for _, id := range []int64{2, 3, 4} {
		j := f.job(t, id)
		if j.Status != models.JobQueued || j.PrinterID != 0 || math.Abs(j.Progress-50) > 1e-9 {
			t.Fatalf("job %d should be queued with its progress, got %+v", id, j)
		}
	}
	if j := f.job(t, 7); j.PrinterID != 0 || j.Status != models.JobQueued {
		t.Fatalf("queued job not normalized: %+v", j)
	}
	if j := f.job(t, 6); j.Status != models.JobCompleted || !j.CompletedAt.Equal(*done.CompletedAt) {
		t.Fatalf("completed job changed: %+v", j)
	}
	if o, _ := f.s.Order("order-3"); o.Status != models.OrderCompleted {
		t.Fatalf("fully completed order should be restored as completed, got %s", o.Status)
	}
	if o, _ := f.s.Order("order-1"); o.Status != models.OrderProcessing || len(o.JobIDs) != 4 || len(o.Items) != 1 || o.Items[0].Quantity != 4 {
		t.Fatalf("unexpected rebuilt order %+v", o)
	}
	if f.sink.count(models.EventOrderCompleted) != 0 {
		t.Fatal("recovery must not re-announce orders completed before the restart")
	}
	f.checkInvariants(t)

	_, jobs := f.mustOrder(t, order(item("benchy", 1)))
	if jobs[0].ID != 8 {
		t.Fatalf("expected job ids to continue after recovered ones, got %d", jobs[0].ID)
	}
}
