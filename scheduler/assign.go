package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/registry"
	"github.com/google/uuid"
)

// ProcessNewOrder turns every unit of every item of the order into a print job and
// tries to start each one right away. Jobs that find no printer stay Queued.
func (s *Scheduler) ProcessNewOrder(order models.Order) (models.Order, []models.PrintJob, error) {
	if err := validateOrder(&order); err != nil {
		return models.Order{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := s.orders[order.ID]; exists {
		return models.Order{}, nil, fmt.Errorf("order %s: %w", order.ID, ErrDuplicateOrderID)
	}

	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.Status = models.OrderPending
	order.JobIDs = nil
	rec := cloneOrder(&order)
	s.orders[rec.ID] = &rec

	var created []*models.PrintJob
	for i := range rec.Items {
		item := &rec.Items[i]
		if item.ID == 0 {
			item.ID = i + 1
		}
		kind := consumableForItem(*item)
		est := estimateFor(s.estimator, *item)

		for n := 0; n < item.Quantity; n++ {
			job := &models.PrintJob{
				ID:                 s.nextID,
				OrderID:            rec.ID,
				OrderItemID:        item.ID,
				ModelRef:           item.ModelRef,
				Status:             models.JobQueued,
				CreatedAt:          now,
				ConsumableKind:     kind,
				EstimatedDuration:  est.EstimatedDuration,
				ConsumableRequired: est.ConsumableRequired,
			}
			s.nextID++
			s.jobs[job.ID] = job
			rec.JobIDs = append(rec.JobIDs, job.ID)
			s.journal.Insert(job.Clone())

			if !s.place(job, now) {
				s.logger.Debug("no printer for job, queued", "job", job.ID, "order", rec.ID, "kind", kind)
			}
			created = append(created, job)
		}
	}
	rec.Status = models.OrderProcessing

	jobs := make([]models.PrintJob, 0, len(created))
	for _, job := range created {
		jobs = append(jobs, job.Clone())
	}
	s.logger.Info("order accepted", "order", rec.ID, "jobs", len(jobs))
	return cloneOrder(&rec), jobs, nil
}

func validateOrder(order *models.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.ModelRef = strings.TrimSpace(item.ModelRef)
		if item.ModelRef == "" {
			return fmt.Errorf("%w: item %d has no model reference", ErrInvalidOrder, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrInvalidOrder, i+1, item.Quantity)
		}
		if item.ConsumableKind != "" {
			kind, ok := models.NormalizeConsumableKind(item.ConsumableKind)
			if !ok {
				return fmt.Errorf("%w: item %d has unknown consumable kind %q", ErrInvalidOrder, i+1, item.ConsumableKind)
			}
			item.ConsumableKind = kind
		}
		if item.EstimatedDuration < 0 {
			return fmt.Errorf("%w: item %d has a negative duration", ErrInvalidOrder, i+1)
		}
	}
	return nil
}

// DrainQueue assigns queued jobs to free printers in creation order and returns
// how many started. With no idle printer it changes nothing.
func (s *Scheduler) DrainQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainLocked(s.now())
}

func (s *Scheduler) drainLocked(now time.Time) int {
	started := 0
	for _, job := range s.queuedJobs() {
		if len(s.printers.ListAvailable()) == 0 {
			break
		}
		if s.place(job, now) {
			started++
		}
	}
	if started > 0 {
		s.logger.Debug("queue drained", "started", started)
	}
	return started
}

// place binds a queued job to a printer. Idle printers already loaded with the
// job's filament are tried first, in id order. Failing those, the other idle
// printers are tried in id order and the first one whose spool can cover the job
// is switched to the job's filament. A job that already made progress resumes
// with its window shifted so that the elapsed fraction matches that progress.
func (s *Scheduler) place(job *models.PrintJob, now time.Time) bool {
	available := s.printers.ListAvailable()
	if len(available) == 0 {
		return false
	}

	start, end := resumeWindow(job, now)
	req := registry.AssignRequest{
		JobID:              job.ID,
		JobLabel:           jobLabel(job),
		EstimatedDuration:  job.EstimatedDuration,
		ConsumableRequired: job.ConsumableRequired,
		Start:              start,
		End:                end,
		StartProgress:      job.Progress,
	}

	for _, p := range available {
		if p.ConsumableKind != job.ConsumableKind {
			continue
		}
		if s.printers.Assign(p.ID, req) {
			s.bind(job, p.ID, req)
			return true
		}
	}

	needed := job.ConsumableRequired * (100 - job.Progress) / 100
	for _, p := range available {
		if p.ConsumableKind == job.ConsumableKind || p.ConsumableLevel < needed {
			continue
		}
		if !s.printers.ChangeConsumable(p.ID, job.ConsumableKind) {
			continue
		}
		s.logger.Info("switched printer filament for job", "printer", p.ID, "from", p.ConsumableKind, "to", job.ConsumableKind, "job", job.ID)
		if s.printers.Assign(p.ID, req) {
			s.bind(job, p.ID, req)
			return true
		}
	}
	return false
}

func (s *Scheduler) bind(job *models.PrintJob, printerID int, req registry.AssignRequest) {
	start, end := req.Start, req.End
	job.Status = models.JobPrinting
	job.PrinterID = printerID
	job.StartedAt = &start
	job.EstimatedEnd = &end
	s.journal.Update(job)
	s.logger.Info("job assigned", "job", job.ID, "printer", printerID, "order", job.OrderID, "progress", job.Progress)
	s.sink.OnAssigned(job.Clone())
}
