package raft

import (
	"context"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
)

// newInmemNode starts a single voter cluster on in-memory stores
func newInmemNode(t *testing.T) *Node {
	t.Helper()

	cfg := raft.DefaultConfig()
	cfg.LocalID = "node1"
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	cfg.ElectionTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 50 * time.Millisecond
	cfg.CommitTimeout = 5 * time.Millisecond
	cfg.Logger = hclog.NewNullLogger()

	addr, transport := raft.NewInmemTransport("")
	store := raft.NewInmemStore()
	fsm := NewFSM()

	r, err := raft.NewRaft(cfg, fsm, store, store, raft.NewInmemSnapshotStore(), transport)
	if err != nil {
		t.Fatalf("new raft: %v", err)
	}
	bootstrap := raft.Configuration{Servers: []raft.Server{{ID: cfg.LocalID, Address: addr}}}
	if err := r.BootstrapCluster(bootstrap).Error(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	node := &Node{raft: r, fsm: fsm, transport: transport}
	t.Cleanup(func() { node.Shutdown() })

	if err := node.WaitForLeader(5 * time.Second); err != nil {
		t.Fatalf("wait for leader: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !node.Leader() {
		if time.Now().After(deadline) {
			t.Fatal("node never became leader")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return node
}

func TestJobStoreThroughRaft(t *testing.T) {
	node := newInmemNode(t)
	store := NewJobStore(node)
	ctx := context.Background()

	for id := int64(1); id <= 2; id++ {
		if err := store.Insert(ctx, testJob(id)); err != nil {
			t.Fatalf("insert %d: %v", id, err)
		}
	}

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	fields := models.JobFields{Status: models.JobPrinting, PrinterID: 2, Progress: 40, StartedAt: &start, EstimatedEnd: &end}
	if err := store.UpdateFields(ctx, 2, fields); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	jobs, err := store.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 2 {
		t.Fatalf("jobs = %+v, want only job 2", jobs)
	}
	if jobs[0].Status != models.JobPrinting || jobs[0].PrinterID != 2 || jobs[0].Progress != 40 {
		t.Errorf("unexpected fields: %+v", jobs[0])
	}

	// The state machine rejects the write; the error must reach the caller.
	if err := store.Delete(ctx, 42); err == nil {
		t.Error("expected an error deleting a missing job")
	}

	if err := node.Barrier(time.Second); err != nil {
		t.Errorf("barrier: %v", err)
	}
}

func TestJobStoreHonoursCancelledContext(t *testing.T) {
	node := newInmemNode(t)
	store := NewJobStore(node)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Insert(ctx, testJob(1)); err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if _, ok := node.GetFSM().GetPrintJob(1); ok {
		t.Error("job applied despite cancelled context")
	}
}

func TestLeaderReportsTerm(t *testing.T) {
	node := newInmemNode(t)
	if node.Term() == 0 {
		t.Fatal("an elected leader must report a non-zero term")
	}
}
