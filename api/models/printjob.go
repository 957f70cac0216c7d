package models

import "time"

// PrintJobStatus is the lifecycle state of a print job
type PrintJobStatus string

const (
	JobQueued    PrintJobStatus = "Queued"
	JobPrinting  PrintJobStatus = "Printing"
	JobCompleted PrintJobStatus = "Completed"
	JobFailed    PrintJobStatus = "Failed"
	JobCancelled PrintJobStatus = "Cancelled"
)

// PrintJob represents one unit of print work derived from one unit of an order item.
// PrinterID is 0 unless the job is Printing.
type PrintJob struct {
	ID          int64          `json:"id"`
	OrderID     string         `json:"order_id"`
	OrderItemID int            `json:"order_item_id"`
	PrinterID   int            `json:"printer_id"`
	ModelRef    string         `json:"model_reference"`
	Status      PrintJobStatus `json:"status"`
	Progress    float64        `json:"progress"`

	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EstimatedEnd *time.Time `json:"estimated_end,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	ConsumableKind     string        `json:"consumable_kind"`
	EstimatedDuration  time.Duration `json:"estimated_duration"`
	ConsumableRequired float64       `json:"consumable_required"`

	// PrintedOn keeps the printer a completed job ran on.
	PrintedOn int `json:"printed_on,omitempty"`
}

// JobFields holds the mutable columns of a print job as written to a job store
type JobFields struct {
	Status       PrintJobStatus `json:"status"`
	PrinterID    int            `json:"printer_id"`
	Progress     float64        `json:"progress"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EstimatedEnd *time.Time     `json:"estimated_end,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	PrintedOn    int            `json:"printed_on,omitempty"`
}

// Fields returns the mutable columns of the job
func (j PrintJob) Fields() JobFields {
	return JobFields{
		Status:       j.Status,
		PrinterID:    j.PrinterID,
		Progress:     j.Progress,
		StartedAt:    j.StartedAt,
		EstimatedEnd: j.EstimatedEnd,
		CompletedAt:  j.CompletedAt,
		PrintedOn:    j.PrintedOn,
	}
}

// Apply copies the mutable columns onto the job
func (j *PrintJob) Apply(f JobFields) {
	j.Status = f.Status
	j.PrinterID = f.PrinterID
	j.Progress = f.Progress
	j.StartedAt = f.StartedAt
	j.EstimatedEnd = f.EstimatedEnd
	j.CompletedAt = f.CompletedAt
	j.PrintedOn = f.PrintedOn
}

// Clone returns a deep copy of the job
func (j *PrintJob) Clone() PrintJob {
	c := *j
	c.StartedAt = cloneTime(j.StartedAt)
	c.EstimatedEnd = cloneTime(j.EstimatedEnd)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return c
}

// Terminal reports whether the job can no longer change state
func (j *PrintJob) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
