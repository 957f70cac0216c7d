package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/registry"
	"github.com/hashicorp/go-hclog"
)

// Printers is the device registry surface the scheduler drives
type Printers interface {
	ListAvailable() []models.Printer
	Get(id int) (models.Printer, bool)
	Assign(id int, req registry.AssignRequest) bool
	Reattach(id int, req registry.AssignRequest) bool
	UpdateProgress(id int, progress float64) bool
	Complete(id int) bool
	Release(id int, jobID int64) bool
	ChangeConsumable(id int, kind string) bool
}

// EventSink receives lifecycle notifications. It is called synchronously while
// the scheduler holds its lock, so implementations must not block.
type EventSink interface {
	OnAssigned(job models.PrintJob)
	OnCompleted(job models.PrintJob)
	OnDepleted(printer models.Printer, job models.PrintJob)
	OnRequeued(job models.PrintJob, reason models.RequeueReason)
	OnOrderCompleted(order models.Order)
}

type nopSink struct{}

func (nopSink) OnAssigned(models.PrintJob)                       {}
func (nopSink) OnCompleted(models.PrintJob)                      {}
func (nopSink) OnDepleted(models.Printer, models.PrintJob)       {}
func (nopSink) OnRequeued(models.PrintJob, models.RequeueReason) {}
func (nopSink) OnOrderCompleted(models.Order)                    {}

// Config holds the collaborators of a Scheduler. Only Printers is required.
type Config struct {
	Printers  Printers
	Journal   *Journal
	Sink      EventSink
	Estimator Estimator
	Now       func() time.Time
	Logger    hclog.Logger
}

// Scheduler owns every print job and order and decides which printer runs what.
// All state changes happen under one mutex, so ticks, queue drains, order intake
// and recovery never interleave.
type Scheduler struct {
	mu sync.Mutex

	printers  Printers
	journal   *Journal
	sink      EventSink
	estimator Estimator
	now       func() time.Time
	logger    hclog.Logger

	jobs   map[int64]*models.PrintJob
	orders map[string]*models.Order
	nextID int64
}

// New creates a scheduler
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		printers:  cfg.Printers,
		journal:   cfg.Journal,
		sink:      cfg.Sink,
		estimator: cfg.Estimator,
		now:       cfg.Now,
		logger:    cfg.Logger,
		jobs:      make(map[int64]*models.PrintJob),
		orders:    make(map[string]*models.Order),
		nextID:    1,
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	return s
}

// Jobs returns the jobs with the given status, or all jobs when status is empty,
// ordered by id.
func (s *Scheduler) Jobs(status models.PrintJobStatus) []models.PrintJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.PrintJob, 0, len(s.jobs))
	for _, job := range s.sortedJobs() {
		if status == "" || job.Status == status {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Job returns a job by id
func (s *Scheduler) Job(id int64) (models.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.PrintJob{}, fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	return job.Clone(), nil
}

// Orders returns every order ordered by creation time
func (s *Scheduler) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Order returns an order by id
func (s *Scheduler) Order(id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
	}
	return cloneOrder(o), nil
}

// DeleteJob removes a completed job from memory and from the job store
func (s *Scheduler) DeleteJob(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %d: %w", id, ErrJobNotFound)
	}
	if job.Status != models.JobCompleted {
		return fmt.Errorf("job %d is %s: %w", id, job.Status, ErrJobNotDeletable)
	}
	delete(s.jobs, id)
	s.journal.Delete(id)
	s.logger.Info("deleted completed job", "job", id, "order", job.OrderID)
	return nil
}

// Reset forgets every job and order and frees the printers they held. Writes still
// queued for the job store are dropped, nothing is emitted.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Status == models.JobPrinting && job.PrinterID != 0 {
			s.printers.Release(job.PrinterID, job.ID)
		}
	}
	s.jobs = make(map[int64]*models.PrintJob)
	s.orders = make(map[string]*models.Order)
	s.nextID = 1
	s.journal.Discard()
	s.logger.Info("scheduler state reset")
}

// Summary counts jobs per status
type Summary struct {
	Jobs   map[models.PrintJobStatus]int `json:"jobs"`
	Orders map[models.OrderStatus]int    `json:"orders"`
}

// Summary returns job and order counts by status
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Jobs:   make(map[models.PrintJobStatus]int),
		Orders: make(map[models.OrderStatus]int),
	}
	for _, job := range s.jobs {
		sum.Jobs[job.Status]++
	}
	for _, o := range s.orders {
		sum.Orders[o.Status]++
	}
	return sum
}

// sortedJobs returns the live job records ordered by id. Caller holds s.mu.
func (s *Scheduler) sortedJobs() []*models.PrintJob {
	out := make([]*models.PrintJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// queuedJobs returns queued jobs in creation order. Caller holds s.mu.
func (s *Scheduler) queuedJobs() []*models.PrintJob {
	var out []*models.PrintJob
	for _, job := range s.jobs {
		if job.Status == models.JobQueued {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneOrder(o *models.Order) models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	c.JobIDs = append([]int64(nil), o.JobIDs...)
	return c
}

func jobLabel(job *models.PrintJob) string {
	return fmt.Sprintf("#%d %s", job.ID, job.ModelRef)
}
