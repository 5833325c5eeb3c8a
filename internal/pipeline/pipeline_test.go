package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/litsift/litsift/internal/cache"
	"github.com/litsift/litsift/internal/config"
	"github.com/litsift/litsift/internal/extract"
	"github.com/litsift/litsift/internal/provider"
	"github.com/litsift/litsift/internal/reference"
)

// fakeStore records everything the pipeline persists.
type fakeStore struct {
	mu         sync.Mutex
	snapshots  []JobSnapshot
	jobRows    map[string]JobSnapshot
	candidates map[string][]reference.Record
	counters   map[string]int
	audits     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobRows:    make(map[string]JobSnapshot),
		candidates: make(map[string][]reference.Record),
		counters:   make(map[string]int),
	}
}

func (f *fakeStore) SaveJob(_ context.Context, snap JobSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	f.jobRows[snap.ID] = snap
	return nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobRows, id)
	return nil
}

func (f *fakeStore) jobRowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobRows)
}

func (f *fakeStore) jobRow(id string) (JobSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.jobRows[id]
	return snap, ok
}

func (f *fakeStore) UpsertCandidates(_ context.Context, projectID string, records []reference.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[projectID] = append(f.candidates[projectID], records...)
	return nil
}

func (f *fakeStore) IncrementCounter(_ context.Context, projectID, name string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[projectID+"/"+name] += delta
	return nil
}

func (f *fakeStore) AppendAudit(_ context.Context, projectID, action, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, projectID+"/"+action)
	return nil
}

func (f *fakeStore) candidateCount(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates[projectID])
}

func (f *fakeStore) counter(projectID, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[projectID+"/"+name]
}

func (f *fakeStore) progressForJob(id string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pcts []int
	for _, snap := range f.snapshots {
		if snap.ID == id {
			pcts = append(pcts, snap.ProgressPct)
		}
	}
	return pcts
}

// fakeProvider is a scriptable Searcher.
type fakeProvider struct {
	name      string
	ids       []string
	records   []reference.Record
	searchErr error

	mu           sync.Mutex
	failuresLeft int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) SearchIDs(context.Context, string, int, provider.Filters) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return nil, p.searchErr
	}
	if p.searchErr != nil && p.failuresLeft == 0 && p.ids == nil {
		return nil, p.searchErr
	}
	return p.ids, nil
}

func (p *fakeProvider) FetchDetails(context.Context, []string) ([]reference.Record, error) {
	return p.records, nil
}

func testConfig() config.Config {
	return config.Config{
		Workers:       2,
		QueueSize:     8,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
		ParseBudget:   5 * time.Second,
		CacheTTL:      time.Minute,
		MaxRISBytes:   1 << 20,
		MaxTextBytes:  1 << 20,
		MaxPDFBytes:   1 << 20,
	}
}

func newTestService(t *testing.T, providers ...provider.Searcher) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	s := NewService(testConfig(), zerolog.Nop(), store, cache.NewMemory(), provider.NewRegistry(providers...), extract.New())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s, store
}

func waitTerminal(t *testing.T, s *Service, id string) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.Job(id)
		if err != nil {
			t.Fatalf("Job: %v", err)
		}
		if snap.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return JobSnapshot{}
}

func TestSearchJobCompletes(t *testing.T) {
	p := &fakeProvider{
		name: "pubmed",
		ids:  []string{"1", "2", "3"},
		records: []reference.Record{
			{Title: "Alpha study", DOI: "10.1000/alpha", PMID: "1", Source: reference.SourcePubMed},
			{Title: "Alpha study preprint", DOI: "10.1000/alpha", PMID: "2", Source: reference.SourcePubMed},
			{Title: "Beta study", DOI: "10.1000/beta", PMID: "3", Source: reference.SourcePubMed},
		},
	}
	s, store := newTestService(t, p)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "alpha", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s", final.State, final.Error)
	}
	if final.Result.Imported != 2 || final.Result.Duplicates != 1 {
		t.Errorf("result = %+v", final.Result)
	}
	if got := store.counter("p1", CounterIdentified); got != 2 {
		t.Errorf("identified counter = %d, want 2", got)
	}
	if got := store.counter("p1", CounterDuplicates); got != 1 {
		t.Errorf("duplicates counter = %d, want 1", got)
	}
	if got := store.candidateCount("p1"); got != 2 {
		t.Errorf("persisted %d candidates, want 2", got)
	}
}

func TestSearchPartialProviderFailure(t *testing.T) {
	good := &fakeProvider{
		name:    "pubmed",
		ids:     []string{"1"},
		records: []reference.Record{{Title: "Only result", DOI: "10.1000/only", PMID: "1"}},
	}
	bad := &fakeProvider{name: "broken", searchErr: errors.New("boom")}
	s, _ := newTestService(t, good, bad)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s", final.State, final.Error)
	}
	if len(final.Result.ProviderErrors) != 1 || final.Result.ProviderErrors[0].Provider != "broken" {
		t.Errorf("provider errors = %+v", final.Result.ProviderErrors)
	}
	if final.Result.Imported != 1 {
		t.Errorf("imported = %d, want 1", final.Result.Imported)
	}
}

func TestSearchAllProvidersFail(t *testing.T) {
	bad := &fakeProvider{name: "pubmed", searchErr: errors.New("boom")}
	s, _ := newTestService(t, bad)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateFailed {
		t.Fatalf("state = %s, want failed", final.State)
	}
	if !strings.Contains(final.Error, "pubmed") {
		t.Errorf("failure message must name the provider: %q", final.Error)
	}
}

func TestSearchRetriesRetryableErrors(t *testing.T) {
	p := &fakeProvider{
		name:         "pubmed",
		ids:          []string{"1"},
		records:      []reference.Record{{Title: "Recovered", DOI: "10.1000/r", PMID: "1"}},
		searchErr:    provider.ErrRateLimited,
		failuresLeft: 2,
	}
	s, _ := newTestService(t, p)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s (rate limits within the attempt budget must be retried)", final.State, final.Error)
	}
}

func TestSubmitSearchValidation(t *testing.T) {
	s, _ := newTestService(t, &fakeProvider{name: "pubmed"})

	_, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("empty query: err = %v, want ErrValidation", err)
	}

	_, err = s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Providers: []string{"nope"}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown provider: err = %v, want ErrValidation", err)
	}

	_, err = s.SubmitSearch(context.Background(), SearchRequest{Query: "q"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing project: err = %v, want ErrValidation", err)
	}
}

func TestSubmitImportValidation(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.SubmitImport(context.Background(), ImportRequest{ProjectID: "p1", Filename: "refs.exe", Data: []byte("x")})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("bad extension: err = %v, want ErrValidation", err)
	}

	big := make([]byte, (1<<20)+1)
	_, err = s.SubmitImport(context.Background(), ImportRequest{ProjectID: "p1", Filename: "refs.ris", Data: big})
	if !errors.Is(err, ErrSizeLimit) {
		t.Errorf("oversized upload: err = %v, want ErrSizeLimit", err)
	}
}

func TestImportRIS(t *testing.T) {
	s, store := newTestService(t)

	ris := strings.Join([]string{
		"TY  - JOUR",
		"TI  - Exercise and cognition",
		"AU  - Smith, Jane",
		"JO  - Brain Research",
		"PY  - 2020",
		"DO  - 10.1000/exercise",
		"ER  - ",
		"TY  - JOUR",
		"TI  - Exercise and cognition",
		"DO  - 10.1000/exercise",
		"ER  - ",
	}, "\n")

	snap, err := s.SubmitImport(context.Background(), ImportRequest{ProjectID: "p1", Filename: "refs.ris", Data: []byte(ris)})
	if err != nil {
		t.Fatalf("SubmitImport: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s", final.State, final.Error)
	}
	if final.Result.Imported != 1 || final.Result.Duplicates != 1 {
		t.Errorf("result = %+v", final.Result)
	}
	if final.Result.Confidence != string(extract.ConfidenceHigh) {
		t.Errorf("confidence = %q, want high for structured formats", final.Result.Confidence)
	}
	if got := store.counter("p1", CounterIdentified); got != 1 {
		t.Errorf("identified counter = %d, want 1", got)
	}
}

func TestImportTextWithoutReferences(t *testing.T) {
	s, _ := newTestService(t)

	snap, err := s.SubmitImport(context.Background(), ImportRequest{
		ProjectID: "p1",
		Filename:  "notes.txt",
		Data:      []byte("Meeting notes.\nNothing citable here.\n"),
	})
	if err != nil {
		t.Fatalf("SubmitImport: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s (no references is a normal outcome)", final.State, final.Error)
	}
	if final.Result.Imported != 0 {
		t.Errorf("imported = %d, want 0", final.Result.Imported)
	}
	if final.Result.Confidence != string(extract.ConfidenceLow) {
		t.Errorf("confidence = %q, want low when nothing was extracted", final.Result.Confidence)
	}
	if final.Result.Warning == "" {
		t.Error("expected a warning about the missing reference section")
	}
}

func TestImportTextExtraction(t *testing.T) {
	s, _ := newTestService(t)

	doc := strings.Join([]string{
		"Introduction text.",
		"",
		"References",
		"1. Smith J. A study. J Res. 2020. doi:10.1000/a1",
		"2. Jones K. Another study. J Res. 2021. doi:10.1000/a2",
	}, "\n")

	snap, err := s.SubmitImport(context.Background(), ImportRequest{ProjectID: "p1", Filename: "paper.txt", Data: []byte(doc)})
	if err != nil {
		t.Fatalf("SubmitImport: %v", err)
	}

	final := waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, error = %s", final.State, final.Error)
	}
	if final.Result.Imported != 2 {
		t.Errorf("imported = %d, want 2", final.Result.Imported)
	}
	if final.Result.Confidence != string(extract.ConfidenceHigh) {
		t.Errorf("confidence = %q, want high", final.Result.Confidence)
	}
}

func TestResubmitFailedJob(t *testing.T) {
	p := &fakeProvider{
		name:         "pubmed",
		ids:          []string{"1"},
		records:      []reference.Record{{Title: "Eventually", DOI: "10.1000/e", PMID: "1"}},
		searchErr:    errors.New("hard failure"),
		failuresLeft: 1,
	}
	s, _ := newTestService(t, p)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}
	final := waitTerminal(t, s, snap.ID)
	if final.State != StateFailed {
		t.Fatalf("first run: state = %s, want failed", final.State)
	}

	resubmitted, err := s.Resubmit(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resubmitted.Error != "" || resubmitted.ProgressPct != 0 {
		t.Errorf("resubmit did not reset the job: %+v", resubmitted)
	}

	final = waitTerminal(t, s, snap.ID)
	if final.State != StateCompleted {
		t.Fatalf("second run: state = %s, error = %s", final.State, final.Error)
	}

	// Completed jobs cannot be resubmitted.
	if _, err := s.Resubmit(context.Background(), snap.ID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("resubmit of completed job: err = %v, want ErrNotFailed", err)
	}
}

func TestCheckpointsAreMonotonic(t *testing.T) {
	p := &fakeProvider{
		name:    "pubmed",
		ids:     []string{"1"},
		records: []reference.Record{{Title: "One", DOI: "10.1000/one", PMID: "1"}},
	}
	s, store := newTestService(t, p)

	snap, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q", Limit: 10})
	if err != nil {
		t.Fatalf("SubmitSearch: %v", err)
	}
	waitTerminal(t, s, snap.ID)

	pcts := store.progressForJob(snap.ID)
	if len(pcts) < 3 {
		t.Fatalf("expected several persisted checkpoints, got %v", pcts)
	}
	for i := 1; i < len(pcts); i++ {
		if pcts[i] < pcts[i-1] {
			t.Fatalf("progress went backwards: %v", pcts)
		}
	}
	if pcts[len(pcts)-1] != 100 {
		t.Errorf("final progress = %d, want 100", pcts[len(pcts)-1])
	}
}

func TestSubmitQueueFullLeavesNoJob(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	store := newFakeStore()
	// No workers started: the single queue slot stays occupied.
	s := NewService(cfg, zerolog.Nop(), store, cache.NewMemory(), provider.NewRegistry(), extract.New())
	s.queue <- "occupant"

	_, err := s.SubmitSearch(context.Background(), SearchRequest{ProjectID: "p1", Query: "q"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if n := store.jobRowCount(); n != 0 {
		t.Errorf("rejected submit left %d persisted job rows, want 0", n)
	}
}

func TestResubmitQueueFullRollsBack(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	store := newFakeStore()
	s := NewService(cfg, zerolog.Nop(), store, cache.NewMemory(), provider.NewRegistry(), extract.New())
	s.queue <- "occupant"

	now := time.Now().UTC()
	failed := JobSnapshot{
		ID: "stalled", Kind: KindSearch, State: StateFailed,
		Error: "provider down", ProgressStep: StepFetching, ProgressPct: 40,
		CreatedAt: now, UpdatedAt: now,
	}
	s.jobs["stalled"] = &job{snap: failed}
	if err := store.SaveJob(context.Background(), failed); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	_, err := s.Resubmit(context.Background(), "stalled")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	snap, err := s.Job("stalled")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if snap.State != StateFailed || snap.Error != "provider down" || snap.ProgressPct != 40 {
		t.Errorf("rejected resubmit must not touch the job: %+v", snap)
	}
	if row, ok := store.jobRow("stalled"); !ok || row.State != StateFailed || row.Error != "provider down" {
		t.Errorf("persisted snapshot must stay failed: %+v", row)
	}

	// Once capacity frees up the same job must still be resubmittable.
	<-s.queue
	snap, err = s.Resubmit(context.Background(), "stalled")
	if err != nil {
		t.Fatalf("Resubmit after drain: %v", err)
	}
	if snap.State != StatePending || snap.Error != "" || snap.ProgressPct != 0 {
		t.Errorf("resubmit did not reset the job: %+v", snap)
	}
}

func TestJobNotFound(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.Job("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
	if _, err := s.Resubmit(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("resubmit err = %v, want ErrJobNotFound", err)
	}
}
