package pipeline

import "time"

// State is a job lifecycle state.
type State string

// Job states. A job moves pending -> running -> completed or failed.
// Failed jobs may be resubmitted, which returns them to pending.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Kind identifies what a job does.
type Kind string

const (
	KindSearch Kind = "search"
	KindImport Kind = "import"
)

// Progress checkpoints reported while a job runs. Each checkpoint is
// persisted before the job advances past it, so a restarted process can
// tell how far a job got.
const (
	StepPlanning   = "planning"
	StepFetching   = "fetching"
	StepParsing    = "parsing"
	StepResolving  = "resolving"
	StepPersisting = "persisting"
	StepDone       = "done"
)

// ProviderFailure records one provider's error during a multi-provider
// search. A job with some failures can still complete if at least one
// provider returned results.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// Outcome is the result payload of a completed job.
type Outcome struct {
	Imported       int               `json:"imported"`
	Duplicates     int               `json:"duplicates"`
	Confidence     string            `json:"confidence,omitempty"`
	Warning        string            `json:"warning,omitempty"`
	ProviderErrors []ProviderFailure `json:"provider_errors,omitempty"`
}

// JobSnapshot is the externally visible state of a job at one moment.
// Snapshots are values: mutating one never affects the live job.
type JobSnapshot struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	State        State     `json:"state"`
	ProgressStep string    `json:"progress_step,omitempty"`
	ProgressPct  int       `json:"progress_pct"`
	Result       *Outcome  `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the job has finished.
func (s JobSnapshot) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}
