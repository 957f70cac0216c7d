package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/scheduler"
)

var (
	_ scheduler.JobStore = (*SQLiteStore)(nil)
	_ scheduler.JobStore = (*PostgresStore)(nil)
)

func sampleJob(id int64) models.PrintJob {
	return models.PrintJob{
		ID:                 id,
		OrderID:            "order-7",
		OrderItemID:        2,
		ModelRef:           "phone case",
		Status:             models.JobQueued,
		CreatedAt:          time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ConsumableKind:     "TPU",
		EstimatedDuration:  45 * time.Minute,
		ConsumableRequired: 2.5,
	}
}

// exerciseStore runs the job store contract against s
func exerciseStore(t *testing.T, s scheduler.JobStore) {
	t.Helper()
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if err := s.Insert(ctx, sampleJob(id)); err != nil {
			t.Fatalf("insert %d: %v", id, err)
		}
	}

	// Re-inserting overwrites.
	again := sampleJob(3)
	again.ModelRef = "gasket"
	if err := s.Insert(ctx, again); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	start := time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	printing := models.JobFields{Status: models.JobPrinting, PrinterID: 5, Progress: 33.5, StartedAt: &start, EstimatedEnd: &end}
	if err := s.UpdateFields(ctx, 1, printing); err != nil {
		t.Fatalf("update 1: %v", err)
	}
	done := end
	completed := models.JobFields{Status: models.JobCompleted, Progress: 100, StartedAt: &start, EstimatedEnd: &end, CompletedAt: &done, PrintedOn: 5}
	if err := s.UpdateFields(ctx, 2, completed); err != nil {
		t.Fatalf("update 2: %v", err)
	}

	if err := s.UpdateFields(ctx, 99, printing); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing job: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing job: err = %v, want ErrNotFound", err)
	}

	jobs, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("found %d jobs, want 3", len(jobs))
	}

	first := jobs[0]
	if first.ID != 1 || first.Status != models.JobPrinting || first.PrinterID != 5 || first.Progress != 33.5 {
		t.Errorf("job 1 = %+v", first)
	}
	if first.StartedAt == nil || !first.StartedAt.Equal(start) || first.EstimatedEnd == nil || !first.EstimatedEnd.Equal(end) {
		t.Errorf("job 1 window = %v..%v, want %v..%v", first.StartedAt, first.EstimatedEnd, start, end)
	}
	if first.CompletedAt != nil {
		t.Errorf("job 1 completed_at = %v, want nil", first.CompletedAt)
	}
	if first.EstimatedDuration != 45*time.Minute || first.ConsumableRequired != 2.5 || first.ConsumableKind != "TPU" {
		t.Errorf("job 1 lost immutable fields: %+v", first)
	}
	if !first.CreatedAt.Equal(sampleJob(1).CreatedAt) {
		t.Errorf("created_at = %v", first.CreatedAt)
	}

	if jobs[1].Status != models.JobCompleted || jobs[1].CompletedAt == nil || jobs[1].PrintedOn != 5 {
		t.Errorf("job 2 = %+v", jobs[1])
	}
	if jobs[2].ModelRef != "gasket" {
		t.Errorf("job 3 model = %q, want overwritten gasket", jobs[2].ModelRef)
	}

	if err := s.Delete(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	jobs, err = s.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != 1 || jobs[1].ID != 3 {
		t.Errorf("after delete jobs = %+v", jobs)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Insert(context.Background(), sampleJob(1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	jobs, err := s.FindAll(context.Background())
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(jobs) != 1 || jobs[0].OrderID != "order-7" {
		t.Errorf("jobs after reopen = %+v", jobs)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PRINTFARM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PRINTFARM_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	if _, err := s.pool.Exec(ctx, `TRUNCATE print_jobs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	exerciseStore(t, s)
}
