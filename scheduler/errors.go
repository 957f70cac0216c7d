package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound      = errors.New("print job not found")
	ErrJobNotDeletable  = errors.New("only completed print jobs can be deleted")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrDuplicateOrderID = errors.New("order already exists")
)

// PersistenceError reports a job store operation that failed. Scheduling never
// waits on or rolls back because of one; it is only logged. JobID is zero for
// operations on the whole store.
type PersistenceError struct {
	Op    string
	JobID int64
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.JobID == 0 {
		return fmt.Sprintf("job store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("job store %s for job %d: %v", e.Op, e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
