package scheduler

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

const (
	// CompletionThreshold is the progress at or above which a job whose time
	// window has run out is trusted to be finished.
	CompletionThreshold = 95.0

	// MinWindowExtension and MaxWindowExtension bound how far an elapsed window is
	// pushed out when the job is below CompletionThreshold.
	MinWindowExtension = 30 * time.Minute
	MaxWindowExtension = 60 * time.Minute

	// Used when no estimate exists for a model.
	DefaultEstimatedDuration  = 60 * time.Minute
	DefaultConsumableRequired = 3.0
)

// windowExtension picks a per-job offset in [MinWindowExtension, MaxWindowExtension].
// The same job always gets the same offset.
func windowExtension(jobID int64) time.Duration {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(jobID, 10)))
	span := int64((MaxWindowExtension - MinWindowExtension) / time.Second)
	return MinWindowExtension + time.Duration(int64(h.Sum32())%(span+1))*time.Second
}

type outcome int

const (
	advanced outcome = iota
	extended
	finished
)

// advanceWindow recomputes the progress of a printing job at now.
//
// Inside the window progress is the elapsed fraction, never lower than what was
// already recorded. Once the window has run out a job at CompletionThreshold or
// above is finished; below it the window is not trusted, so the end is pushed out
// by windowExtension and the start is moved back until the elapsed fraction equals
// the recorded progress.
func advanceWindow(job *models.PrintJob, now time.Time) outcome {
	start, end := *job.StartedAt, *job.EstimatedEnd

	if !now.Before(end) || !end.After(start) {
		if job.Progress >= CompletionThreshold {
			job.Progress = 100
			return finished
		}
		ext := windowExtension(job.ID)
		newEnd := now.Add(ext)
		newStart := now.Add(-time.Duration(float64(ext) * job.Progress / (100 - job.Progress)))
		job.StartedAt = &newStart
		job.EstimatedEnd = &newEnd
		return extended
	}

	p := float64(now.Sub(start)) / float64(end.Sub(start)) * 100
	if p > job.Progress {
		job.Progress = p
	}
	if job.Progress >= 100 {
		job.Progress = 100
		return finished
	}
	return advanced
}

// resumeWindow places a window ending one estimated duration after its start so
// that the elapsed fraction at now equals the job's retained progress.
func resumeWindow(job *models.PrintJob, now time.Time) (time.Time, time.Time) {
	d := job.EstimatedDuration
	if d <= 0 {
		d = DefaultEstimatedDuration
	}
	start := now.Add(-time.Duration(float64(d) * job.Progress / 100))
	return start, start.Add(d)
}
