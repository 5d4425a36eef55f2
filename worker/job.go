package worker

import (
	"github.com/gofhir/hl7v2/pkg/issue"
)

// Job is one encoded message to be processed by a worker.
type Job struct {
	// ID identifies the job in its JobResult.
	ID string

	// Index is the position of the message in its batch or stream.
	Index int

	// Message is the encoded message text (ER7 or XML).
	Message string
}

// JobResult is the outcome of a Job.
type JobResult struct {
	// ID and Index match the Job that produced this result.
	ID    string
	Index int

	// Result contains the validation issues.
	Result *issue.Result

	// Error is set when the message could not be processed.
	Error error

	// Duration is the processing time in nanoseconds.
	Duration int64
}

// BatchResult aggregates results from multiple jobs.
type BatchResult struct {
	// Results are ordered like the submitted messages when produced by a
	// BatchProcessor, and in completion order when collected from a Pool.
	Results []*JobResult

	TotalJobs     int
	CompletedJobs int
	FailedJobs    int

	// TotalDuration is the sum of job durations in nanoseconds.
	TotalDuration int64
}

// HasErrors returns true if any job failed or reported error issues.
func (br *BatchResult) HasErrors() bool {
	for _, r := range br.Results {
		if r == nil {
			continue
		}
		if r.Error != nil {
			return true
		}
		if r.Result != nil && r.Result.HasErrors() {
			return true
		}
	}
	return false
}

// ErrorCount returns the total number of error issues across all results.
func (br *BatchResult) ErrorCount() int {
	count := 0
	for _, r := range br.Results {
		if r != nil && r.Result != nil {
			count += r.Result.ErrorCount()
		}
	}
	return count
}
