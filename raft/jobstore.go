package raft

import (
	"context"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

const defaultApplyTimeout = 5 * time.Second

// JobStore keeps print jobs in the replicated log. Writes must happen on the leader.
type JobStore struct {
	node *Node
}

// NewJobStore creates a JobStore over node
func NewJobStore(node *Node) *JobStore {
	return &JobStore{node: node}
}

func (s *JobStore) apply(ctx context.Context, cmd *models.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := defaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return s.node.Apply(cmd, timeout)
}

// Insert adds a job, overwriting any job with the same id
func (s *JobStore) Insert(ctx context.Context, job models.PrintJob) error {
	return s.apply(ctx, &models.Command{Type: models.InsertJob, PrintJob: &job})
}

// FindAll returns every job applied to this node's state machine
func (s *JobStore) FindAll(ctx context.Context) ([]models.PrintJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.node.GetFSM().GetPrintJobs(), nil
}

// UpdateFields replaces the mutable fields of a job
func (s *JobStore) UpdateFields(ctx context.Context, id int64, fields models.JobFields) error {
	return s.apply(ctx, &models.Command{Type: models.UpdateJobFields, JobID: id, Fields: &fields})
}

// Delete removes a job
func (s *JobStore) Delete(ctx context.Context, id int64) error {
	return s.apply(ctx, &models.Command{Type: models.DeleteJob, JobID: id})
}
