package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandType represents the type of command to be executed
type CommandType string

const (
	InsertJob       CommandType = "INSERT_JOB"
	UpdateJobFields CommandType = "UPDATE_JOB_FIELDS"
	DeleteJob       CommandType = "DELETE_JOB"
)

// Command represents a command to be applied to the FSM
type Command struct {
	Type     CommandType `json:"type"`
	PrintJob *PrintJob   `json:"print_job,omitempty"`
	JobID    int64       `json:"job_id,omitempty"`
	Fields   *JobFields  `json:"fields,omitempty"`
}

// Marshal serializes a command to JSON
func (c *Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a command from JSON
func UnmarshalCommand(data []byte) (*Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return &c, err
}

// ValidateStatusChange checks if a job status transition is valid
func ValidateStatusChange(current, next PrintJobStatus) error {
	if current == next {
		return nil
	}
	switch current {
	case JobQueued:
		if next != JobPrinting && next != JobCancelled && next != JobFailed {
			return fmt.Errorf("a job can only transition from Queued to Printing, Cancelled or Failed, not %s", next)
		}
	case JobPrinting:
		if next != JobCompleted && next != JobQueued && next != JobFailed {
			return fmt.Errorf("a job can only transition from Printing to Completed, Queued or Failed, not %s", next)
		}
	default:
		return fmt.Errorf("%s is a terminal status", current)
	}
	return nil
}

// ConsumableKinds lists the filament types the farm stocks
var ConsumableKinds = []string{"PLA", "PETG", "ABS", "TPU"}

// NormalizeConsumableKind returns the canonical spelling of a filament type
// and whether it is one the farm stocks.
func NormalizeConsumableKind(kind string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(kind))
	for _, k := range ConsumableKinds {
		if upper == k {
			return k, true
		}
	}
	return "", false
}

// IsValidPrintJobStatus checks if a print job status is valid
func IsValidPrintJobStatus(status string) bool {
	switch PrintJobStatus(status) {
	case JobQueued, JobPrinting, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsValidPrinterStatus checks if a printer status is valid
func IsValidPrinterStatus(status string) bool {
	switch PrinterStatus(status) {
	case PrinterIdle, PrinterPrinting, PrinterPaused, PrinterError, PrinterMaintenance:
		return true
	}
	return false
}
