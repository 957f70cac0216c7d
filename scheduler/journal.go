package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/hashicorp/go-hclog"
)

// JobStore is the persisted collection of print jobs. The scheduler treats it as
// a write-behind copy of its in-memory state.
type JobStore interface {
	Insert(ctx context.Context, job models.PrintJob) error
	FindAll(ctx context.Context) ([]models.PrintJob, error)
	UpdateFields(ctx context.Context, id int64, fields models.JobFields) error
	Delete(ctx context.Context, id int64) error
}

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type journalOp struct {
	kind   opKind
	id     int64
	job    models.PrintJob
	fields models.JobFields
	// barrier is closed once every earlier op has been applied
	barrier chan struct{}
}

// Journal applies job store writes on its own goroutine, in the order they were
// queued. Enqueueing never blocks and never drops a write: while the store lags,
// updates of a job that keep its status replace the job's pending update, so the
// store only skips intermediate progress and still sees every status change.
// A nil *Journal discards everything.
type Journal struct {
	store   JobStore
	timeout time.Duration
	limit   int
	logger  hclog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*journalOp
	pending map[int64]*journalOp
	closed  bool
	done    chan struct{}
}

// NewJournal starts a journal writing to store. A backlog longer than buffer is
// logged as the store falling behind.
func NewJournal(store JobStore, buffer int, timeout time.Duration, logger hclog.Logger) *Journal {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	j := &Journal{
		store:   store,
		timeout: timeout,
		limit:   buffer,
		logger:  logger,
		pending: make(map[int64]*journalOp),
		done:    make(chan struct{}),
	}
	j.cond = sync.NewCond(&j.mu)
	go j.loop()
	return j
}

func (j *Journal) loop() {
	defer close(j.done)
	for {
		op, ok := j.next()
		if !ok {
			return
		}
		if op.kind == opBarrier {
			close(op.barrier)
			continue
		}
		j.apply(op)
	}
}

// next takes the oldest op off the queue, waiting for one. It reports false once
// the journal is closed and drained.
func (j *Journal) next() (*journalOp, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for len(j.queue) == 0 {
		if j.closed {
			return nil, false
		}
		j.cond.Wait()
	}
	op := j.queue[0]
	j.queue[0] = nil
	j.queue = j.queue[1:]
	if j.pending[op.id] == op {
		delete(j.pending, op.id)
	}
	return op, true
}

func (j *Journal) apply(op *journalOp) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var err error
	switch op.kind {
	case opInsert:
		err = j.store.Insert(ctx, op.job)
	case opUpdate:
		err = j.store.UpdateFields(ctx, op.id, op.fields)
	case opDelete:
		err = j.store.Delete(ctx, op.id)
	}
	if err != nil {
		perr := &PersistenceError{Op: op.kind.String(), JobID: op.id, Err: err}
		j.logger.Error("job store write failed", "job", op.id, "op", perr.Op, "error", perr)
	}
}

func (j *Journal) enqueue(op *journalOp) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	if op.kind == opUpdate {
		if p, ok := j.pending[op.id]; ok && p.fields.Status == op.fields.Status {
			p.fields = op.fields
			return
		}
		j.pending[op.id] = op
	} else {
		delete(j.pending, op.id)
	}
	j.queue = append(j.queue, op)
	if len(j.queue) == j.limit {
		j.logger.Warn("job store falling behind", "queued", len(j.queue))
	}
	j.cond.Signal()
}

// Insert queues a new job
func (j *Journal) Insert(job models.PrintJob) {
	j.enqueue(&journalOp{kind: opInsert, id: job.ID, job: job})
}

// Update queues a write of the job's mutable fields
func (j *Journal) Update(job *models.PrintJob) {
	j.enqueue(&journalOp{kind: opUpdate, id: job.ID, fields: job.Clone().Fields()})
}

// Delete queues a job removal
func (j *Journal) Delete(id int64) {
	j.enqueue(&journalOp{kind: opDelete, id: id})
}

// Discard drops every write not yet handed to the store
func (j *Journal) Discard() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.queue[:0]
	dropped := 0
	for _, op := range j.queue {
		if op.kind == opBarrier {
			kept = append(kept, op)
			continue
		}
		dropped++
	}
	for i := len(kept); i < len(j.queue); i++ {
		j.queue[i] = nil
	}
	j.queue = kept
	j.pending = make(map[int64]*journalOp)
	if dropped > 0 {
		j.logger.Warn("discarded queued job store writes", "dropped", dropped)
	}
}

// Flush waits until every queued write has been applied
func (j *Journal) Flush() {
	if j == nil {
		return
	}
	barrier := make(chan struct{})
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.queue = append(j.queue, &journalOp{kind: opBarrier, barrier: barrier})
	j.cond.Signal()
	j.mu.Unlock()
	<-barrier
}

// Close flushes the journal and stops its goroutine
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.closed = true
	j.cond.Broadcast()
	j.mu.Unlock()
	<-j.done
}
