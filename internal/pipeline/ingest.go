package pipeline

import (
	"context"
	"fmt"

	"github.com/litsift/litsift/internal/dedupe"
	"github.com/litsift/litsift/internal/reference"
)

// Counter names tracked per project.
const (
	CounterIdentified = "records_identified"
	CounterDuplicates = "duplicates_removed"
)

// finalize deduplicates the gathered records and persists the outcome:
// candidates, counters and an audit entry. Returns the dedupe result so
// callers can report unique and duplicate counts.
func (s *Service) finalize(ctx context.Context, projectID, action string, records []reference.Record) (dedupe.Result, error) {
	result := dedupe.Dedupe(records)
	if err := dedupe.Validate(result); err != nil {
		// A violated dedupe invariant means corrupted results; fail the
		// job rather than persist them.
		return dedupe.Result{}, fmt.Errorf("deduplication produced inconsistent results: %w", err)
	}

	if err := s.store.UpsertCandidates(ctx, projectID, result.Unique); err != nil {
		return dedupe.Result{}, fmt.Errorf("persisting candidates: %w", err)
	}
	if err := s.store.IncrementCounter(ctx, projectID, CounterIdentified, result.Stats.Unique); err != nil {
		return dedupe.Result{}, fmt.Errorf("updating counters: %w", err)
	}
	if err := s.store.IncrementCounter(ctx, projectID, CounterDuplicates, result.Stats.Duplicates); err != nil {
		return dedupe.Result{}, fmt.Errorf("updating counters: %w", err)
	}

	detail := fmt.Sprintf("%d records, %d unique, %d duplicates removed",
		result.Stats.Total, result.Stats.Unique, result.Stats.Duplicates)
	if err := s.store.AppendAudit(ctx, projectID, action, detail); err != nil {
		return dedupe.Result{}, fmt.Errorf("writing audit entry: %w", err)
	}
	return result, nil
}
