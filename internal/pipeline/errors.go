package pipeline

import "errors"

// Errors returned from job submission and lookup. Validation failures
// are reported synchronously at submit time; everything that happens
// after a job is accepted surfaces through the job's own state.
var (
	// ErrValidation indicates a request rejected before a job was created.
	ErrValidation = errors.New("invalid request")

	// ErrSizeLimit indicates an upload larger than the configured cap for
	// its format.
	ErrSizeLimit = errors.New("upload exceeds size limit")

	// ErrQueueFull indicates the job queue is at capacity.
	ErrQueueFull = errors.New("job queue is full")

	// ErrParseTimeout indicates a parse stage exceeded its time budget.
	ErrParseTimeout = errors.New("parsing exceeded time budget")

	// ErrJobNotFound indicates an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotFailed indicates a resubmit of a job that is not in the
	// failed state.
	ErrNotFailed = errors.New("only failed jobs can be resubmitted")
)
