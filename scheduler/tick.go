package scheduler

import (
	"math"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

// Tick advances every printing job to the current time: progress and filament use
// are recomputed, jobs whose printer ran dry or went away go back to the queue and
// finished jobs complete.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, job := range s.sortedJobs() {
		if job.Status != models.JobPrinting {
			continue
		}
		s.advance(job, now)
	}
}

func (s *Scheduler) advance(job *models.PrintJob, now time.Time) {
	printer, ok := s.printers.Get(job.PrinterID)
	if !ok || printer.Status != models.PrinterPrinting || printer.CurrentJobID != job.ID {
		s.logger.Warn("printer no longer running job, requeueing", "job", job.ID, "printer", job.PrinterID)
		s.demote(job)
		s.sink.OnRequeued(job.Clone(), models.ReasonUnavailable)
		return
	}
	if job.StartedAt == nil || job.EstimatedEnd == nil {
		start, end := resumeWindow(job, now)
		job.StartedAt, job.EstimatedEnd = &start, &end
	}

	before := job.Progress
	result := advanceWindow(job, now)

	if !s.printers.UpdateProgress(job.PrinterID, job.Progress) {
		drained, _ := s.printers.Get(job.PrinterID)
		s.logger.Warn("filament depleted, requeueing job", "job", job.ID, "printer", job.PrinterID, "progress", job.Progress)
		s.printers.Release(job.PrinterID, job.ID)
		s.demote(job)
		s.sink.OnDepleted(drained, job.Clone())
		return
	}

	switch {
	case result == finished:
		s.complete(job, now)
	case result == extended:
		s.logger.Debug("job window elapsed below threshold, extended", "job", job.ID, "progress", job.Progress, "estimated_end", *job.EstimatedEnd)
		s.journal.Update(job)
	case math.Floor(job.Progress) > math.Floor(before):
		s.journal.Update(job)
	}
}

// demote sends a printing job back to the queue, keeping its progress
func (s *Scheduler) demote(job *models.PrintJob) {
	job.Status = models.JobQueued
	job.PrinterID = 0
	job.StartedAt = nil
	job.EstimatedEnd = nil
	s.journal.Update(job)
}

// complete finishes a job, frees its printer, completes the order once all of the
// order's jobs are done and backfills the freed printer from the queue.
func (s *Scheduler) complete(job *models.PrintJob, now time.Time) {
	s.completeJob(job, now)
	s.drainLocked(now)
}

func (s *Scheduler) completeJob(job *models.PrintJob, now time.Time) {
	printerID := job.PrinterID
	completed := now
	job.Status = models.JobCompleted
	job.Progress = 100
	job.CompletedAt = &completed
	job.PrintedOn = printerID
	job.PrinterID = 0
	s.printers.Complete(printerID)
	s.journal.Update(job)

	s.logger.Info("job completed", "job", job.ID, "printer", printerID, "order", job.OrderID)
	s.sink.OnCompleted(job.Clone())
	s.checkOrder(job.OrderID)
}

// checkOrder marks an order completed the first time all of its jobs are completed
func (s *Scheduler) checkOrder(orderID string) {
	order, ok := s.orders[orderID]
	if !ok || order.Status == models.OrderCompleted || order.Status == models.OrderCancelled {
		return
	}
	for _, id := range order.JobIDs {
		// Deleted jobs were completed.
		if job, ok := s.jobs[id]; ok && job.Status != models.JobCompleted {
			return
		}
	}
	order.Status = models.OrderCompleted
	s.logger.Info("order completed", "order", orderID)
	s.sink.OnOrderCompleted(cloneOrder(order))
}
