// Package normalize turns raw bibliographic fields into canonical comparable
// forms. All functions are pure: no I/O, no state.
package normalize

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"github.com/litsift/litsift/internal/reference"
)

// Richness score weights. Empirically chosen; changing any of them changes
// which record wins a duplicate group, so tests assert on the exact values.
const (
	WeightTitle    = 10
	WeightDOI      = 20
	WeightPMID     = 15
	WeightPMCID    = 10
	WeightAbstract = 15
	WeightAuthors  = 10
	WeightJournal  = 5
	WeightYear     = 5
	WeightMesh     = 5
)

// Title lowercases, strips punctuation, collapses internal whitespace and
// trims. The punctuation strip is by Unicode character class, not ASCII.
// Empty input yields empty output.
func Title(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsPunct(r):
			// dropped
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DOI strips a leading "doi:" or "https://doi.org/" prefix
// (case-insensitive), lowercases and trims.
func DOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			lower = lower[len(prefix):]
		}
	}
	return strings.TrimSpace(strings.ToLower(s))
}

// PMID trims only. PMIDs are numeric strings; no case folding applies.
func PMID(s string) string {
	return strings.TrimSpace(s)
}

// CanonicalKey builds a pipe-delimited identity key from the
// highest-priority available identifier: DOI, then PMID, then normalized
// title. Exactly one identifier segment is used even when several are
// present. A year segment is appended when the year is known.
func CanonicalKey(r reference.Record) string {
	var key string
	switch {
	case DOI(r.DOI) != "":
		key = "doi:" + DOI(r.DOI)
	case PMID(r.PMID) != "":
		key = "pmid:" + PMID(r.PMID)
	default:
		key = "title:" + Title(r.Title)
	}
	if r.Year != 0 {
		key += fmt.Sprintf("|year:%d", r.Year)
	}
	return key
}

// CanonicalHash returns the hex-encoded BLAKE2b-256 digest of the record's
// canonical key. It is a grouping key, not a security primitive: colliding
// records are treated as duplicates.
func CanonicalHash(r reference.Record) string {
	sum := blake2b.Sum256([]byte(CanonicalKey(r)))
	return hex.EncodeToString(sum[:])
}

// IsExactDuplicate reports whether two records share a DOI or a PMID.
// Records lacking both identifiers are never exact duplicates; they fall
// through to hash-based grouping.
func IsExactDuplicate(a, b reference.Record) bool {
	if da, db := DOI(a.DOI), DOI(b.DOI); da != "" && db != "" && da == db {
		return true
	}
	if pa, pb := PMID(a.PMID), PMID(b.PMID); pa != "" && pb != "" && pa == pb {
		return true
	}
	return false
}

// RichnessScore scores how complete a record is. Used only to pick a
// duplicate-group representative, never surfaced to users.
func RichnessScore(r reference.Record) int {
	score := 0
	if r.Title != "" {
		score += WeightTitle
	}
	if r.DOI != "" {
		score += WeightDOI
	}
	if r.PMID != "" {
		score += WeightPMID
	}
	if r.PMCID != "" {
		score += WeightPMCID
	}
	if r.Abstract != "" {
		score += WeightAbstract
	}
	if len(r.Authors) > 0 {
		score += WeightAuthors
	}
	if r.Journal != "" {
		score += WeightJournal
	}
	if r.Year != 0 {
		score += WeightYear
	}
	if len(r.MeshTerms) > 0 {
		score += WeightMesh
	}
	return score
}
