package models

import "time"

// PrinterStatus is the operational state of a printer
type PrinterStatus string

const (
	PrinterIdle        PrinterStatus = "Idle"
	PrinterPrinting    PrinterStatus = "Printing"
	PrinterPaused      PrinterStatus = "Paused"
	PrinterError       PrinterStatus = "Error"
	PrinterMaintenance PrinterStatus = "Maintenance"
)

// Printer represents a 3D printer in the farm together with the spool it has loaded.
// CurrentJobID and CurrentJob are only meaningful while Status is Printing.
type Printer struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Status PrinterStatus `json:"status"`

	CurrentJobID int64  `json:"current_job_id,omitempty"`
	CurrentJob   string `json:"current_job,omitempty"`

	ConsumableKind  string  `json:"consumable_kind"`  // PLA, PETG, ABS, TPU
	ConsumableLevel float64 `json:"consumable_level"` // percent, 0..100

	Progress           float64    `json:"progress"`
	JobStart           *time.Time `json:"job_start,omitempty"`
	JobEnd             *time.Time `json:"job_end,omitempty"`
	LevelAtJobStart    *float64   `json:"level_at_job_start,omitempty"`
	ProgressAtJobStart float64    `json:"progress_at_job_start,omitempty"`
	ConsumableRequired float64    `json:"consumable_required,omitempty"`

	CompletedCount int           `json:"completed_count"`
	Runtime        time.Duration `json:"runtime"`
}

// Available reports whether the printer can accept a job
func (p *Printer) Available() bool {
	return p.Status == PrinterIdle
}

// Clone returns a deep copy of the printer
func (p *Printer) Clone() Printer {
	c := *p
	c.JobStart = cloneTime(p.JobStart)
	c.JobEnd = cloneTime(p.JobEnd)
	if p.LevelAtJobStart != nil {
		v := *p.LevelAtJobStart
		c.LevelAtJobStart = &v
	}
	return c
}
