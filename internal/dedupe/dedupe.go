// Package dedupe groups bibliographic records that describe the same
// publication and selects one canonical representative per group.
package dedupe

import (
	"fmt"

	"github.com/litsift/litsift/internal/normalize"
	"github.com/litsift/litsift/internal/reference"
)

// Group is a cluster of records judged to represent one publication.
// Duplicates never contains the canonical record.
type Group struct {
	Canonical  reference.Record   `json:"canonical"`
	Duplicates []reference.Record `json:"duplicates,omitempty"`
}

// Stats summarizes one dedupe run. Total == Unique + Duplicates always
// holds; violations are engine bugs, not caller misuse.
type Stats struct {
	Total           int `json:"total"`
	Unique          int `json:"unique"`
	Duplicates      int `json:"duplicates"`
	DuplicateGroups int `json:"duplicate_groups"`
}

// Result is the full outcome of one dedupe invocation. Every input record
// appears in exactly one group; Unique holds each group's canonical.
type Result struct {
	Unique []reference.Record `json:"unique"`
	Groups []Group            `json:"duplicate_groups"`
	Stats  Stats              `json:"stats"`
}

// Dedupe reduces a batch of records to a unique set plus a duplicate
// report. It is deterministic given identical input order: canonicals are
// chosen by richness score and equal-richness ties keep the
// first-encountered record.
//
// The algorithm runs two phases. Identifiers are the strongest duplicate
// signal and are checked pairwise first, because two records can share a
// DOI while carrying divergent titles that would not hash to the same
// bucket. Phase-one canonicals are then re-keyed by canonical hash, which
// catches records with no shared identifier but a matching normalized
// title and year. The pairwise scan is O(n^2); batch sizes are bounded by
// provider page limits so this stays cheap in practice.
func Dedupe(records []reference.Record) Result {
	if len(records) == 0 {
		return Result{Unique: []reference.Record{}, Groups: []Group{}}
	}

	// Phase 1: walk records in input order, greedily absorbing every later
	// unprocessed record that shares a DOI or PMID with the group seed.
	n := len(records)
	absorbed := make([]bool, n)
	var idGroups [][]int
	for i := 0; i < n; i++ {
		if absorbed[i] {
			continue
		}
		members := []int{i}
		for j := i + 1; j < n; j++ {
			if absorbed[j] {
				continue
			}
			if normalize.IsExactDuplicate(records[i], records[j]) {
				members = append(members, j)
				absorbed[j] = true
			}
		}
		idGroups = append(idGroups, members)
	}

	// Per-group canonical selection: max richness, first-encountered wins
	// ties (strict greater-than keeps the earlier record).
	type idGroup struct {
		canonical  int
		duplicates []int
	}
	groups := make([]idGroup, 0, len(idGroups))
	for _, members := range idGroups {
		best := members[0]
		for _, m := range members[1:] {
			if normalize.RichnessScore(records[m]) > normalize.RichnessScore(records[best]) {
				best = m
			}
		}
		g := idGroup{canonical: best}
		for _, m := range members {
			if m != best {
				g.duplicates = append(g.duplicates, m)
			}
		}
		groups = append(groups, g)
	}

	// Phase 2: re-key phase-1 canonicals by canonical hash. Records with no
	// DOI, no PMID and no title get a process-unique synthetic key so they
	// are never merged with unrelated records.
	hashOrder := make([]string, 0, len(groups))
	byHash := make(map[string][]idGroup)
	for idx, g := range groups {
		key := hashKey(records[g.canonical], idx)
		if _, seen := byHash[key]; !seen {
			hashOrder = append(hashOrder, key)
		}
		byHash[key] = append(byHash[key], g)
	}

	result := Result{Unique: []reference.Record{}, Groups: []Group{}}
	for _, key := range hashOrder {
		cluster := byHash[key]

		best := 0
		for i := 1; i < len(cluster); i++ {
			ci, cb := records[cluster[i].canonical], records[cluster[best].canonical]
			if normalize.RichnessScore(ci) > normalize.RichnessScore(cb) {
				best = i
			}
		}

		final := Group{Canonical: records[cluster[best].canonical]}
		for i, g := range cluster {
			if i != best {
				final.Duplicates = append(final.Duplicates, records[g.canonical])
			}
			// Duplicates absorbed in phase 1 stay attached to the group that
			// holds their original canonical; they are not re-reported.
			for _, d := range g.duplicates {
				final.Duplicates = append(final.Duplicates, records[d])
			}
		}

		result.Unique = append(result.Unique, final.Canonical)
		result.Groups = append(result.Groups, final)
	}

	result.Stats = Stats{
		Total:           n,
		Unique:          len(result.Unique),
		Duplicates:      n - len(result.Unique),
		DuplicateGroups: len(result.Groups),
	}
	return result
}

// hashKey returns the grouping key for a record: the canonical hash, or a
// synthetic key unique to this invocation for records carrying no usable
// identity at all.
func hashKey(r reference.Record, idx int) string {
	if normalize.DOI(r.DOI) == "" && normalize.PMID(r.PMID) == "" && normalize.Title(r.Title) == "" {
		return fmt.Sprintf("synthetic:%d", idx)
	}
	return normalize.CanonicalHash(r)
}

// Validate checks the result invariants: stats add up and no two unique
// records share a canonical hash. A non-nil return is an
// *InvariantViolationError and signals an engine bug; callers must fail
// loudly rather than silently repair the data.
func Validate(r Result) error {
	if r.Stats.Total != r.Stats.Unique+r.Stats.Duplicates {
		return &InvariantViolationError{
			Msg: fmt.Sprintf("stats mismatch: total %d != unique %d + duplicates %d",
				r.Stats.Total, r.Stats.Unique, r.Stats.Duplicates),
		}
	}
	if r.Stats.Unique != len(r.Unique) {
		return &InvariantViolationError{
			Msg: fmt.Sprintf("stats.unique %d != len(unique) %d", r.Stats.Unique, len(r.Unique)),
		}
	}
	seen := make(map[string]bool, len(r.Unique))
	for _, rec := range r.Unique {
		// Identity-less records were grouped under synthetic per-run keys;
		// their recomputed hashes are allowed to collide.
		if normalize.DOI(rec.DOI) == "" && normalize.PMID(rec.PMID) == "" && normalize.Title(rec.Title) == "" {
			continue
		}
		h := normalize.CanonicalHash(rec)
		if seen[h] {
			return &InvariantViolationError{
				Msg: fmt.Sprintf("duplicate canonical hash %s in unique set", h),
			}
		}
		seen[h] = true
	}
	return nil
}

// InvariantViolationError indicates the dedupe engine produced an
// internally inconsistent result.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "dedupe invariant violation: " + e.Msg
}
