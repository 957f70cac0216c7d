package raft

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/hashicorp/raft"
)

func applyCommand(t *testing.T, f *FSM, cmd *models.Command) interface{} {
	t.Helper()
	data, err := cmd.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return f.Apply(&raft.Log{Data: data})
}

func testJob(id int64) models.PrintJob {
	return models.PrintJob{
		ID:                 id,
		OrderID:            "order-1",
		OrderItemID:        1,
		ModelRef:           "benchy",
		Status:             models.JobQueued,
		CreatedAt:          time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ConsumableKind:     "PLA",
		EstimatedDuration:  time.Hour,
		ConsumableRequired: 3,
	}
}

func TestFSMInsertUpdateDelete(t *testing.T) {
	f := NewFSM()

	job := testJob(1)
	if resp := applyCommand(t, f, &models.Command{Type: models.InsertJob, PrintJob: &job}); resp != nil {
		t.Fatalf("insert returned %v", resp)
	}

	start := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	fields := models.JobFields{Status: models.JobPrinting, PrinterID: 4, Progress: 12.5, StartedAt: &start}
	if resp := applyCommand(t, f, &models.Command{Type: models.UpdateJobFields, JobID: 1, Fields: &fields}); resp != nil {
		t.Fatalf("update returned %v", resp)
	}

	got, ok := f.GetPrintJob(1)
	if !ok {
		t.Fatal("job 1 missing")
	}
	if got.Status != models.JobPrinting || got.PrinterID != 4 || got.Progress != 12.5 {
		t.Errorf("unexpected job after update: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(start) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, start)
	}
	if got.ModelRef != "benchy" || got.ConsumableRequired != 3 {
		t.Errorf("immutable fields changed: %+v", got)
	}

	if resp := applyCommand(t, f, &models.Command{Type: models.DeleteJob, JobID: 1}); resp != nil {
		t.Fatalf("delete returned %v", resp)
	}
	if _, ok := f.GetPrintJob(1); ok {
		t.Error("job 1 still present after delete")
	}
}

func TestFSMRejectsInvalidCommands(t *testing.T) {
	f := NewFSM()
	job := testJob(1)
	job.Status = models.JobCompleted
	applyCommand(t, f, &models.Command{Type: models.InsertJob, PrintJob: &job})

	tests := []struct {
		name string
		cmd  *models.Command
	}{
		{"update missing job", &models.Command{Type: models.UpdateJobFields, JobID: 9, Fields: &models.JobFields{Status: models.JobQueued}}},
		{"update without fields", &models.Command{Type: models.UpdateJobFields, JobID: 1}},
		{"leave terminal status", &models.Command{Type: models.UpdateJobFields, JobID: 1, Fields: &models.JobFields{Status: models.JobQueued}}},
		{"delete missing job", &models.Command{Type: models.DeleteJob, JobID: 9}},
		{"insert without job", &models.Command{Type: models.InsertJob}},
		{"unknown type", &models.Command{Type: "RESET"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := applyCommand(t, f, tt.cmd)
			if _, ok := resp.(error); !ok {
				t.Errorf("expected an error response, got %v", resp)
			}
		})
	}

	if resp := f.Apply(&raft.Log{Data: []byte("not json")}); resp == nil {
		t.Error("expected an error for malformed data")
	}
}

type memorySink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memorySink) ID() string    { return "test" }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }
func (s *memorySink) Close() error  { return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	f := NewFSM()
	for id := int64(1); id <= 3; id++ {
		job := testJob(id)
		applyCommand(t, f, &models.Command{Type: models.InsertJob, PrintJob: &job})
	}

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sink := &memorySink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if sink.cancelled {
		t.Fatal("sink was cancelled")
	}

	restored := NewFSM()
	if err := restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))); err != nil {
		t.Fatalf("restore: %v", err)
	}

	jobs := restored.GetPrintJobs()
	if len(jobs) != 3 {
		t.Fatalf("restored %d jobs, want 3", len(jobs))
	}
	for i, job := range jobs {
		if job.ID != int64(i+1) {
			t.Errorf("jobs[%d].ID = %d, want %d", i, job.ID, i+1)
		}
		if job.EstimatedDuration != time.Hour || job.ConsumableKind != "PLA" {
			t.Errorf("jobs[%d] lost fields: %+v", i, job)
		}
	}
}
