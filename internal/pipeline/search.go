package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/litsift/litsift/internal/cache"
	"github.com/litsift/litsift/internal/provider"
	"github.com/litsift/litsift/internal/reference"
)

// runSearch executes a provider search job. Each selected provider is
// queried independently; the job completes as long as at least one
// provider returns results, recording the others' failures in the
// outcome.
func (s *Service) runSearch(ctx context.Context, j *job) (*Outcome, error) {
	req := j.search

	selected := s.providers.All()
	if len(req.Providers) > 0 {
		selected = selected[:0]
		for _, name := range req.Providers {
			if p, ok := s.providers.Get(name); ok {
				selected = append(selected, p)
			}
		}
	}
	if len(selected) == 0 {
		return nil, errors.New("no providers configured")
	}

	var (
		records  []reference.Record
		failures []ProviderFailure
	)
	for _, p := range selected {
		recs, err := s.searchProvider(ctx, p, req)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", p.Name()).Str("job_id", j.snap.ID).Msg("provider search failed")
			failures = append(failures, ProviderFailure{Provider: p.Name(), Message: err.Error()})
			continue
		}
		records = append(records, recs...)
	}
	s.checkpoint(ctx, j, StepFetching, 50)

	if len(failures) == len(selected) {
		msgs := make([]string, len(failures))
		for i, f := range failures {
			msgs[i] = f.Provider + ": " + f.Message
		}
		return nil, fmt.Errorf("all providers failed: %s", strings.Join(msgs, "; "))
	}

	s.checkpoint(ctx, j, StepResolving, 80)

	result, err := s.finalize(ctx, req.ProjectID, "search", records)
	if err != nil {
		return nil, err
	}
	s.checkpoint(ctx, j, StepPersisting, 90)

	return &Outcome{
		Imported:       result.Stats.Unique,
		Duplicates:     result.Stats.Duplicates,
		ProviderErrors: failures,
	}, nil
}

// searchProvider runs the two-phase search against one provider: an ID
// search, then a cache-assisted detail resolution.
func (s *Service) searchProvider(ctx context.Context, p provider.Searcher, req *SearchRequest) ([]reference.Record, error) {
	var ids []string
	err := s.withRetry(ctx, func() error {
		var serr error
		ids, serr = p.SearchIDs(ctx, req.Query, req.Limit, req.Filters)
		return serr
	})
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cached, missing := s.lookupCached(ctx, p.Name(), ids)

	var fetched []reference.Record
	if len(missing) > 0 {
		err := s.withRetry(ctx, func() error {
			var ferr error
			fetched, ferr = p.FetchDetails(ctx, missing)
			return ferr
		})
		if err != nil {
			return nil, fmt.Errorf("fetching details: %w", err)
		}
		s.fillCache(ctx, p.Name(), fetched)
	}

	return append(cached, fetched...), nil
}

// lookupCached resolves IDs from the cache, returning hits and the IDs
// still to fetch. Cache trouble degrades to a full fetch.
func (s *Service) lookupCached(ctx context.Context, providerName string, ids []string) ([]reference.Record, []string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cache.Key(providerName, id)
	}

	hits, err := s.cache.GetMany(ctx, keys)
	if err != nil {
		s.log.Warn().Err(err).Msg("cache lookup failed, fetching all")
		return nil, ids
	}

	var (
		records []reference.Record
		missing []string
	)
	for i, id := range ids {
		raw, ok := hits[keys[i]]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var rec reference.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			missing = append(missing, id)
			continue
		}
		records = append(records, rec)
	}
	return records, missing
}

// fillCache stores freshly fetched records. Failures are logged and
// ignored; the cache is advisory.
func (s *Service) fillCache(ctx context.Context, providerName string, records []reference.Record) {
	entries := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		entries[cache.Key(providerName, rec.PMID)] = string(encoded)
	}
	if len(entries) == 0 {
		return
	}
	if err := s.cache.SetMany(ctx, entries, s.cfg.CacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("cache fill failed")
	}
}
