// Package extract recovers structured citations from free-form document
// text with graded confidence. It optimizes for the common trailing
// "References" section; when that fails it degrades to low-confidence
// pattern extraction rather than erroring.
package extract

import (
	"regexp"
	"strings"

	"github.com/litsift/litsift/internal/reference"
)

// Confidence thresholds on the identifier ratio of a parsed batch.
// Empirically chosen; any change is a behavior-affecting tuning decision.
const (
	HighIDRatio   = 0.7
	MediumIDRatio = 0.3
)

// Per-pass record confidence values.
const (
	doiConfidence        = 1.0
	pmidConfidence       = 0.9
	structuralConfidence = 0.4
)

// tailFraction of the document scanned by the density fallback, and the
// minimum DOI count required to accept the tail as a references region.
const (
	tailFraction  = 0.3
	tailMinDOIs   = 3
	titleMinChars = 10
	titleMaxChars = 160
)

var (
	// DOI pattern: 10.XXXX/... with 4+ registrant digits.
	doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

	// Labeled PMID: 6-9 digit number.
	pmidPattern = regexp.MustCompile(`(?i)\bpmid[:\s]\s*(\d{6,9})`)

	yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	// Journal-looking substring: capitalized word run containing one of the
	// usual journal-name tokens.
	journalPattern = regexp.MustCompile(`(?:[A-Z][A-Za-z.]*\s+)*(?:Journal|J\b\.?|Rev\b\.?|Res\b\.?|Med\b\.?)[A-Za-z.]*(?:\s+[A-Z][A-Za-z.]*)*`)

	// Structural citation patterns, loosest last.
	numberedPattern   = regexp.MustCompile(`^\s*(?:\[\d+\]|\d{1,3}\.)\s+\S.*`)
	authorYearPattern = regexp.MustCompile(`^\s*[A-Z][\p{L}'-]+,?\s+(?:[A-Z]\.?\s*)+.*\((?:19|20)\d{2}\)`)
	vancouverPattern  = regexp.MustCompile(`^\s*[A-Z][^.]{2,}\.\s+[^.]+\.\s+.*(?:19|20)\d{2}`)
)

// Extractor locates and parses references regions. The zero value is not
// usable; construct with New.
type Extractor struct {
	headers map[string]bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHeaders replaces the recognized section header list.
func WithHeaders(headers []string) Option {
	return func(e *Extractor) {
		e.headers = make(map[string]bool, len(headers))
		for _, h := range headers {
			e.headers[canonLine(h)] = true
		}
	}
}

// New creates an Extractor recognizing the default multilingual headers.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	WithHeaders(DefaultHeaders)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// canonLine normalizes a line for header comparison: trim, lowercase,
// collapse whitespace, drop one trailing colon.
func canonLine(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ":")
	return strings.Join(strings.Fields(s), " ")
}

// FindSection returns the text following a recognized references header.
// Without a header it falls back to a density heuristic: the last 30% of
// lines is accepted when it contains at least three DOI matches. The false
// return means "no references detected", a normal outcome.
func (e *Extractor) FindSection(text string) (string, bool) {
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if e.headers[canonLine(line)] {
			return strings.Join(lines[i+1:], "\n"), true
		}
	}

	tailStart := len(lines) - int(float64(len(lines))*tailFraction)
	if tailStart < 0 {
		tailStart = 0
	}
	tail := strings.Join(lines[tailStart:], "\n")
	if len(doiPattern.FindAllString(tail, -1)) >= tailMinDOIs {
		return tail, true
	}

	return "", false
}

// Parse extracts reference candidates from a references region in three
// passes, highest confidence first. Each pass only adds entries whose key
// (DOI, PMID, title+year, or raw-text prefix) has not been seen yet;
// later identical keys are extraction noise and are silently dropped.
func (e *Extractor) Parse(section string) []reference.Record {
	var refs []reference.Record
	seen := make(map[string]bool)

	add := func(key string, rec reference.Record) {
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, rec)
	}

	lines := strings.Split(section, "\n")
	lineHasID := make([]bool, len(lines))

	// Pass 1: every DOI occurrence.
	for i, line := range lines {
		for _, m := range doiPattern.FindAllString(line, -1) {
			doi := strings.TrimRight(m, ".,;:)")
			lineHasID[i] = true
			add("doi:"+strings.ToLower(doi), reference.Record{
				Title:      doi, // placeholder until enrichment
				DOI:        doi,
				Source:     reference.SourceExtracted,
				Confidence: doiConfidence,
				RawText:    strings.TrimSpace(line),
			})
		}
	}

	// Pass 2: labeled PMIDs on lines that did not already yield a DOI.
	for i, line := range lines {
		if lineHasID[i] {
			continue
		}
		for _, m := range pmidPattern.FindAllStringSubmatch(line, -1) {
			pmid := m[1]
			lineHasID[i] = true
			add("pmid:"+pmid, reference.Record{
				PMID:       pmid,
				Source:     reference.SourceExtracted,
				Partial:    true,
				Confidence: pmidConfidence,
				RawText:    strings.TrimSpace(line),
			})
		}
	}

	// Pass 3: structural patterns over the remaining lines.
	for i, line := range lines {
		if lineHasID[i] {
			continue
		}
		if !numberedPattern.MatchString(line) &&
			!authorYearPattern.MatchString(line) &&
			!vancouverPattern.MatchString(line) {
			continue
		}

		rec := carveStructural(line)
		if rec == nil {
			continue // pure noise
		}

		key := "title:" + strings.ToLower(rec.Title)
		if rec.Title == "" {
			prefix := strings.TrimSpace(line)
			if len(prefix) > 40 {
				prefix = prefix[:40]
			}
			key = "raw:" + prefix
		} else if rec.Year != 0 {
			key = key + ":" + yearPattern.FindString(line)
		}
		add(key, *rec)
	}

	return refs
}

// carveStructural heuristically recovers year, journal and title from a
// citation-shaped line. Returns nil when nothing was recovered.
func carveStructural(line string) *reference.Record {
	rec := reference.Record{
		Source:     reference.SourceExtracted,
		Partial:    true,
		Confidence: structuralConfidence,
		RawText:    strings.TrimSpace(line),
	}

	if y := yearPattern.FindString(line); y != "" {
		rec.Year = atoiYear(y)
	}
	if j := journalPattern.FindString(line); j != "" {
		rec.Journal = strings.TrimSpace(j)
	}

	// Title heuristic: the span between the second and third
	// sentence-terminal periods, when it is title-sized.
	parts := strings.Split(line, ".")
	if len(parts) >= 4 {
		cand := strings.TrimSpace(parts[2])
		if len(cand) >= titleMinChars && len(cand) <= titleMaxChars {
			rec.Title = cand
		}
	}

	if rec.Title == "" && rec.Journal == "" && rec.Year == 0 {
		return nil
	}
	return &rec
}

func atoiYear(s string) int {
	y := 0
	for _, c := range s {
		y = y*10 + int(c-'0')
	}
	return y
}

// Confidence grades a parsed batch.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Assess grades a batch by the fraction of entries backed by a DOI or
// PMID. An empty batch is always low.
func Assess(refs []reference.Record) Confidence {
	if len(refs) == 0 {
		return ConfidenceLow
	}
	withID := 0
	for _, r := range refs {
		if r.HasIdentifier() {
			withID++
		}
	}
	ratio := float64(withID) / float64(len(refs))
	switch {
	case ratio >= HighIDRatio:
		return ConfidenceHigh
	case ratio >= MediumIDRatio:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
