// Package pipeline runs ingestion jobs: provider searches and document
// imports, each moving through durable checkpoints from submission to a
// terminal state.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/litsift/litsift/internal/cache"
	"github.com/litsift/litsift/internal/config"
	"github.com/litsift/litsift/internal/extract"
	"github.com/litsift/litsift/internal/provider"
	"github.com/litsift/litsift/internal/reference"
)

// Store is the persistence the pipeline needs. Implemented by the
// storage package.
type Store interface {
	SaveJob(ctx context.Context, snap JobSnapshot) error
	DeleteJob(ctx context.Context, id string) error
	UpsertCandidates(ctx context.Context, projectID string, records []reference.Record) error
	IncrementCounter(ctx context.Context, projectID, name string, delta int) error
	AppendAudit(ctx context.Context, projectID, action, detail string) error
}

// SearchRequest asks the pipeline to query literature providers.
type SearchRequest struct {
	ProjectID string           `json:"project_id"`
	Query     string           `json:"query"`
	Limit     int              `json:"limit"`
	Filters   provider.Filters `json:"filters"`

	// Providers restricts the search to named providers. Empty means all
	// registered providers.
	Providers []string `json:"providers,omitempty"`
}

// ImportRequest asks the pipeline to ingest an uploaded document. The
// format is taken from the filename extension.
type ImportRequest struct {
	ProjectID string `json:"project_id"`
	Filename  string `json:"filename"`
	Data      []byte `json:"-"`
}

type job struct {
	snap      JobSnapshot
	search    *SearchRequest
	importReq *ImportRequest
}

// Service owns the job queue, the worker pool and the in-memory job
// table. One Service runs per process.
type Service struct {
	cfg       config.Config
	log       zerolog.Logger
	store     Store
	cache     cache.Cache
	providers *provider.Registry
	extractor *extract.Extractor

	mu    sync.RWMutex
	jobs  map[string]*job
	queue chan string
	wg    sync.WaitGroup
}

// NewService wires the pipeline together.
func NewService(cfg config.Config, log zerolog.Logger, store Store, c cache.Cache, reg *provider.Registry, ex *extract.Extractor) *Service {
	return &Service{
		cfg:       cfg,
		log:       log.With().Str("component", "pipeline").Logger(),
		store:     store,
		cache:     c,
		providers: reg,
		extractor: ex,
		jobs:      make(map[string]*job),
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop
// closes it or ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-s.queue:
					if !ok {
						return
					}
					s.run(ctx, id)
				}
			}
		}()
	}
	s.log.Info().Int("workers", s.cfg.Workers).Msg("pipeline started")
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	close(s.queue)
	s.wg.Wait()
}

// SubmitSearch validates a search request and enqueues a job. Validation
// failures are returned immediately; nothing is enqueued for them.
func (s *Service) SubmitSearch(ctx context.Context, req SearchRequest) (JobSnapshot, error) {
	if strings.TrimSpace(req.Query) == "" {
		return JobSnapshot{}, fmt.Errorf("%w: empty query", ErrValidation)
	}
	if req.ProjectID == "" {
		return JobSnapshot{}, fmt.Errorf("%w: missing project id", ErrValidation)
	}
	for _, name := range req.Providers {
		if _, ok := s.providers.Get(name); !ok {
			return JobSnapshot{}, fmt.Errorf("%w: unknown provider %q", ErrValidation, name)
		}
	}

	j := &job{search: &req}
	return s.enqueue(ctx, j, KindSearch)
}

// SubmitImport validates an upload and enqueues an import job.
func (s *Service) SubmitImport(ctx context.Context, req ImportRequest) (JobSnapshot, error) {
	if req.ProjectID == "" {
		return JobSnapshot{}, fmt.Errorf("%w: missing project id", ErrValidation)
	}
	format := uploadFormat(req.Filename)
	if format == "" {
		return JobSnapshot{}, fmt.Errorf("%w: unsupported file type %q", ErrValidation, filepath.Ext(req.Filename))
	}
	if limit := s.cfg.MaxUploadBytes(format); limit > 0 && int64(len(req.Data)) > limit {
		return JobSnapshot{}, fmt.Errorf("%w: %s upload is %d bytes, limit %d", ErrSizeLimit, format, len(req.Data), limit)
	}

	j := &job{importReq: &req}
	return s.enqueue(ctx, j, KindImport)
}

// uploadFormat maps a filename to a supported format, empty if none.
func uploadFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ris":
		return "ris"
	case ".bib", ".bibtex":
		return "bib"
	case ".pdf":
		return "pdf"
	case ".txt":
		return "txt"
	case ".docx":
		return "docx"
	}
	return ""
}

func (s *Service) enqueue(ctx context.Context, j *job, kind Kind) (JobSnapshot, error) {
	now := time.Now().UTC()
	j.snap = JobSnapshot{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveJob(ctx, j.snap); err != nil {
		return JobSnapshot{}, fmt.Errorf("persisting job: %w", err)
	}

	s.mu.Lock()
	s.jobs[j.snap.ID] = j
	s.mu.Unlock()

	select {
	case s.queue <- j.snap.ID:
	default:
		// A rejected submit must leave no trace: the snapshot persisted
		// above would otherwise sit pending forever with no worker coming.
		s.mu.Lock()
		delete(s.jobs, j.snap.ID)
		s.mu.Unlock()
		if err := s.store.DeleteJob(ctx, j.snap.ID); err != nil {
			s.log.Error().Err(err).Str("job_id", j.snap.ID).Msg("removing rejected job")
		}
		return JobSnapshot{}, ErrQueueFull
	}

	s.log.Info().Str("job_id", j.snap.ID).Str("kind", string(kind)).Msg("job accepted")
	return j.snap, nil
}

// Job returns the current snapshot of a job.
func (s *Service) Job(id string) (JobSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return j.snap, nil
}

// Resubmit returns a failed job to the queue. Its error, result and
// progress are cleared; the job ID is kept.
func (s *Service) Resubmit(ctx context.Context, id string) (JobSnapshot, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return JobSnapshot{}, ErrJobNotFound
	}
	if j.snap.State != StateFailed {
		s.mu.Unlock()
		return JobSnapshot{}, fmt.Errorf("%w: job %s is %s", ErrNotFailed, id, j.snap.State)
	}
	prev := j.snap
	j.snap.State = StatePending
	j.snap.Error = ""
	j.snap.Result = nil
	j.snap.ProgressStep = ""
	j.snap.ProgressPct = 0
	j.snap.UpdatedAt = time.Now().UTC()
	snap := j.snap
	s.mu.Unlock()

	// Persist before enqueueing so a worker's own writes always land
	// after this one.
	if err := s.store.SaveJob(ctx, snap); err != nil {
		s.mu.Lock()
		j.snap = prev
		s.mu.Unlock()
		return JobSnapshot{}, fmt.Errorf("persisting job: %w", err)
	}

	select {
	case s.queue <- id:
	default:
		// Roll the reset back; a pending job that was never enqueued
		// would be stuck forever and blocked from further resubmits.
		s.mu.Lock()
		j.snap = prev
		s.mu.Unlock()
		if err := s.store.SaveJob(ctx, prev); err != nil {
			s.log.Error().Err(err).Str("job_id", id).Msg("restoring failed snapshot")
		}
		return JobSnapshot{}, ErrQueueFull
	}

	s.log.Info().Str("job_id", id).Msg("job resubmitted")
	return snap, nil
}

func (s *Service) run(ctx context.Context, id string) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.setState(ctx, j, StateRunning)
	s.checkpoint(ctx, j, StepPlanning, 10)

	var (
		outcome *Outcome
		err     error
	)
	switch j.snap.Kind {
	case KindSearch:
		outcome, err = s.runSearch(ctx, j)
	case KindImport:
		outcome, err = s.runImport(ctx, j)
	default:
		err = fmt.Errorf("unknown job kind %q", j.snap.Kind)
	}

	if err != nil {
		s.fail(ctx, j, err)
		return
	}
	s.complete(ctx, j, outcome)
}

// checkpoint records progress and persists the snapshot before the job
// advances. A crash between checkpoints loses at most one step.
func (s *Service) checkpoint(ctx context.Context, j *job, step string, pct int) {
	s.mu.Lock()
	j.snap.ProgressStep = step
	j.snap.ProgressPct = pct
	j.snap.UpdatedAt = time.Now().UTC()
	snap := j.snap
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("job_id", snap.ID).Msg("persisting checkpoint")
	}
}

func (s *Service) setState(ctx context.Context, j *job, state State) {
	s.mu.Lock()
	j.snap.State = state
	j.snap.UpdatedAt = time.Now().UTC()
	snap := j.snap
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("job_id", snap.ID).Msg("persisting state")
	}
}

func (s *Service) fail(ctx context.Context, j *job, cause error) {
	s.mu.Lock()
	j.snap.State = StateFailed
	j.snap.Error = cause.Error()
	j.snap.UpdatedAt = time.Now().UTC()
	snap := j.snap
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("job_id", snap.ID).Msg("persisting failure")
	}
	s.log.Error().Err(cause).Str("job_id", snap.ID).Msg("job failed")
}

func (s *Service) complete(ctx context.Context, j *job, outcome *Outcome) {
	s.mu.Lock()
	j.snap.State = StateCompleted
	j.snap.ProgressStep = StepDone
	j.snap.ProgressPct = 100
	j.snap.Result = outcome
	j.snap.UpdatedAt = time.Now().UTC()
	snap := j.snap
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, snap); err != nil {
		s.log.Error().Err(err).Str("job_id", snap.ID).Msg("persisting completion")
	}
	s.log.Info().
		Str("job_id", snap.ID).
		Int("imported", outcome.Imported).
		Int("duplicates", outcome.Duplicates).
		Msg("job completed")
}

// withRetry runs fn up to the configured attempt count, doubling the
// backoff between tries. Only retryable provider errors are retried.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !provider.IsRetryable(err) || attempt == s.cfg.RetryAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
