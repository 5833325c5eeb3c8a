// Package importer parses uploaded reference files into records.
package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/litsift/litsift/internal/reference"
)

// risEntry accumulates tag values for one RIS record.
type risEntry struct {
	tags map[string][]string
	line int
}

// ParseRIS parses an RIS export. Entries with unusable content yield
// per-entry errors; the rest of the batch is still returned. Missing
// optional fields degrade the record (lower richness downstream), they do
// not abort it.
func ParseRIS(data []byte) ([]reference.Record, []error) {
	var refs []reference.Record
	var errs []error

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	entry := risEntry{tags: map[string][]string{}}
	last := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// RIS tag lines look like "TY  - JOUR". Continuation lines without
		// a tag extend the immediately preceding tag's value.
		tag, value, ok := splitRISLine(line)
		if !ok {
			if vs := entry.tags[last]; len(vs) > 0 {
				vs[len(vs)-1] += " " + trimmed
			}
			continue
		}

		if tag == "TY" {
			entry = risEntry{tags: map[string][]string{tag: {value}}, line: lineNo}
			last = ""
			continue
		}
		if tag == "ER" {
			if ref, err := risEntryToRecord(entry); err != nil {
				errs = append(errs, fmt.Errorf("entry at line %d: %w", entry.line, err))
			} else {
				refs = append(refs, ref)
			}
			entry = risEntry{tags: map[string][]string{}}
			last = ""
			continue
		}
		entry.tags[tag] = append(entry.tags[tag], value)
		last = tag
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("reading RIS input: %w", err))
	}

	// Trailing entry without ER terminator.
	if len(entry.tags) > 0 {
		if ref, err := risEntryToRecord(entry); err != nil {
			errs = append(errs, fmt.Errorf("entry at line %d: %w", entry.line, err))
		} else {
			refs = append(refs, ref)
		}
	}

	return refs, errs
}

// splitRISLine splits "TA  - value" into tag and value. The value may be
// empty, as in the "ER  -" terminator.
func splitRISLine(line string) (tag, value string, ok bool) {
	if len(line) < 5 {
		return "", "", false
	}
	tag = line[:2]
	for _, c := range tag {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", "", false
		}
	}
	rest := strings.TrimLeft(line[2:], " ")
	if !strings.HasPrefix(rest, "-") {
		return "", "", false
	}
	return tag, strings.TrimSpace(rest[1:]), true
}

func risEntryToRecord(e risEntry) (reference.Record, error) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if vs := e.tags[k]; len(vs) > 0 && vs[0] != "" {
				return vs[0]
			}
		}
		return ""
	}

	title := first("TI", "T1")
	doi := first("DO")
	if title == "" && doi == "" && len(e.tags["AU"]) == 0 {
		return reference.Record{}, fmt.Errorf("entry has no title, DOI or authors")
	}

	rec := reference.Record{
		Title:      title,
		Journal:    first("JO", "JF", "T2", "JA"),
		DOI:        doi,
		Abstract:   first("AB", "N2"),
		Source:     reference.SourceRIS,
		Confidence: 1.0,
	}

	for _, au := range e.tags["AU"] {
		if au != "" {
			rec.Authors = append(rec.Authors, au)
		}
	}
	for _, a1 := range e.tags["A1"] {
		if a1 != "" {
			rec.Authors = append(rec.Authors, a1)
		}
	}

	if y := first("PY", "Y1", "DA"); y != "" {
		// Year is the leading numeric component of "2020", "2020/05/01" or
		// "2020 May".
		digits := y
		for i, c := range y {
			if c < '0' || c > '9' {
				digits = y[:i]
				break
			}
		}
		if year, err := strconv.Atoi(digits); err == nil && year > 0 {
			rec.Year = year
		}
	}

	for _, kw := range e.tags["KW"] {
		if kw != "" {
			rec.MeshTerms = append(rec.MeshTerms, kw)
		}
	}

	rec.Partial = !rec.Complete() && !rec.HasIdentifier()
	return rec, nil
}
