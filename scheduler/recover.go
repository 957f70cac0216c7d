package scheduler

import (
	"sort"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/registry"
)

// RecoveryReport counts what Recover did with each persisted job
type RecoveryReport struct {
	Resumed   int `json:"resumed"`
	Completed int `json:"completed"`
	Requeued  int `json:"requeued"`
	Queued    int `json:"queued"`
	Untouched int `json:"untouched"`
	Skipped   int `json:"skipped"`
}

// Recover rebuilds the scheduler from persisted jobs at startup.
//
// Printing jobs have their progress recomputed exactly as a tick would, including
// the window extension when the window ran out below CompletionThreshold, and are
// re-attached to their printer. A printing job whose printer is missing, not idle
// or already claimed by another recovered job goes back to the queue with its
// progress. Queued jobs are restored as they are and left for the next queue
// drain. Everything else is kept untouched. Jobs already known are skipped.
func (s *Scheduler) Recover(persisted []models.PrintJob) RecoveryReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var report RecoveryReport

	jobs := make([]*models.PrintJob, 0, len(persisted))
	for i := range persisted {
		job := persisted[i].Clone()
		if _, dup := s.jobs[job.ID]; dup || job.ID <= 0 {
			report.Skipped++
			continue
		}
		s.jobs[job.ID] = &job
		jobs = append(jobs, &job)
		if job.ID >= s.nextID {
			s.nextID = job.ID + 1
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	// Orders first, so completions during this pass see every sibling job.
	for _, job := range jobs {
		s.restoreOrder(job)
	}
	for _, o := range s.orders {
		if o.Status != models.OrderCompleted {
			s.settleOrderStatus(o)
		}
	}

	for _, job := range jobs {
		switch job.Status {
		case models.JobPrinting:
			s.recoverPrinting(job, now, &report)
		case models.JobQueued:
			if job.PrinterID != 0 || job.StartedAt != nil || job.EstimatedEnd != nil {
				job.PrinterID = 0
				job.StartedAt = nil
				job.EstimatedEnd = nil
				s.journal.Update(job)
			}
			report.Queued++
		default:
			report.Untouched++
		}
	}

	s.logger.Info("recovered jobs from store",
		"resumed", report.Resumed, "completed", report.Completed, "requeued", report.Requeued,
		"queued", report.Queued, "untouched", report.Untouched, "skipped", report.Skipped)
	return report
}

func (s *Scheduler) recoverPrinting(job *models.PrintJob, now time.Time, report *RecoveryReport) {
	if job.StartedAt == nil || job.EstimatedEnd == nil {
		start, end := resumeWindow(job, now)
		job.StartedAt, job.EstimatedEnd = &start, &end
	}
	result := advanceWindow(job, now)

	req := registry.AssignRequest{
		JobID:              job.ID,
		JobLabel:           jobLabel(job),
		EstimatedDuration:  job.EstimatedDuration,
		ConsumableRequired: job.ConsumableRequired,
		Start:              *job.StartedAt,
		End:                *job.EstimatedEnd,
		StartProgress:      job.Progress,
	}
	if job.PrinterID == 0 || !s.printers.Reattach(job.PrinterID, req) {
		s.logger.Warn("printer unavailable for recovered job, requeueing", "job", job.ID, "printer", job.PrinterID, "progress", job.Progress)
		s.demote(job)
		s.sink.OnRequeued(job.Clone(), models.ReasonUnavailable)
		report.Requeued++
		return
	}

	if result == finished {
		s.completeJob(job, now)
		report.Completed++
		return
	}
	s.journal.Update(job)
	report.Resumed++
}

// restoreOrder makes sure the job's order exists and lists the job
func (s *Scheduler) restoreOrder(job *models.PrintJob) {
	order, ok := s.orders[job.OrderID]
	if !ok {
		order = &models.Order{
			ID:        job.OrderID,
			Status:    models.OrderProcessing,
			CreatedAt: job.CreatedAt,
		}
		s.orders[job.OrderID] = order
	}
	if job.CreatedAt.Before(order.CreatedAt) {
		order.CreatedAt = job.CreatedAt
	}
	order.JobIDs = append(order.JobIDs, job.ID)

	for i := range order.Items {
		if order.Items[i].ID == job.OrderItemID {
			order.Items[i].Quantity++
			return
		}
	}
	order.Items = append(order.Items, models.OrderItem{
		ID:                job.OrderItemID,
		ModelRef:          job.ModelRef,
		Quantity:          1,
		ConsumableKind:    job.ConsumableKind,
		EstimatedDuration: job.EstimatedDuration,
	})
}

// settleOrderStatus marks a recovered order completed without an event when all of
// its jobs were already completed before the restart.
func (s *Scheduler) settleOrderStatus(order *models.Order) {
	for _, id := range order.JobIDs {
		if job, ok := s.jobs[id]; ok && job.Status != models.JobCompleted {
			return
		}
	}
	order.Status = models.OrderCompleted
}
