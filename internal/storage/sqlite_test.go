package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/litsift/litsift/internal/pipeline"
	"github.com/litsift/litsift/internal/reference"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertCandidatesKeepsRicher(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	sparse := reference.Record{Title: "Sleep and memory", DOI: "10.1000/sleep"}
	rich := sparse
	rich.Abstract = "Consolidation during slow-wave sleep."
	rich.Journal = "Sleep"

	if err := s.UpsertCandidates(ctx, "p1", []reference.Record{sparse}); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}
	if err := s.UpsertCandidates(ctx, "p1", []reference.Record{rich}); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}

	got, err := s.Candidates(ctx, "p1")
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Abstract == "" {
		t.Error("richer record did not replace the sparse one")
	}

	// A sparse re-ingest must not clobber the rich row.
	if err := s.UpsertCandidates(ctx, "p1", []reference.Record{sparse}); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}
	got, err = s.Candidates(ctx, "p1")
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if got[0].Abstract == "" {
		t.Error("sparse re-ingest replaced the richer record")
	}
}

func TestUpsertCandidatesProjectIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	rec := reference.Record{Title: "Shared title", DOI: "10.1000/shared"}
	if err := s.UpsertCandidates(ctx, "p1", []reference.Record{rec}); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}
	if err := s.UpsertCandidates(ctx, "p2", []reference.Record{rec}); err != nil {
		t.Fatalf("UpsertCandidates: %v", err)
	}

	for _, project := range []string{"p1", "p2"} {
		got, err := s.Candidates(ctx, project)
		if err != nil {
			t.Fatalf("Candidates(%s): %v", project, err)
		}
		if len(got) != 1 {
			t.Errorf("project %s: %d candidates, want 1", project, len(got))
		}
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	v, err := s.GetCounter(ctx, "p1", "records_identified")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if v != 0 {
		t.Errorf("fresh counter = %d, want 0", v)
	}

	for _, delta := range []int{3, 4} {
		if err := s.IncrementCounter(ctx, "p1", "records_identified", delta); err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
	}
	v, err = s.GetCounter(ctx, "p1", "records_identified")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if v != 7 {
		t.Errorf("counter = %d, want 7", v)
	}
}

func TestAppendAudit(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if err := s.AppendAudit(ctx, "p1", "import", "ris upload, 12 records"); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := s.AppendAudit(ctx, "p1", "search", "pubmed query"); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	snap := pipeline.JobSnapshot{
		ID:           "job-1",
		Kind:         pipeline.KindSearch,
		State:        pipeline.StateRunning,
		ProgressStep: pipeline.StepFetching,
		ProgressPct:  40,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.SaveJob(ctx, snap); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	snap.State = pipeline.StateCompleted
	snap.ProgressStep = pipeline.StepDone
	snap.ProgressPct = 100
	snap.Result = &pipeline.Outcome{Imported: 9, Duplicates: 3}
	if err := s.SaveJob(ctx, snap); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, err := s.LoadJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if got.State != pipeline.StateCompleted || got.ProgressPct != 100 {
		t.Errorf("state = %s pct = %d", got.State, got.ProgressPct)
	}
	if got.Result == nil || got.Result.Imported != 9 || got.Result.Duplicates != 3 {
		t.Errorf("result = %+v", got.Result)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}
}

func TestDeleteJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	now := time.Now().UTC()
	snap := pipeline.JobSnapshot{
		ID: "job-2", Kind: pipeline.KindImport, State: pipeline.StatePending,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveJob(ctx, snap); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if err := s.DeleteJob(ctx, "job-2"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.LoadJob(ctx, "job-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}

	if err := s.DeleteJob(ctx, "never-existed"); err != nil {
		t.Errorf("deleting an unknown id must be a no-op, got %v", err)
	}
}

func TestLoadJobNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.LoadJob(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
