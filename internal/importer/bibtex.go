package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/litsift/litsift/internal/reference"
)

// ParseBibTeX parses a BibTeX export. Comment entries and unknown fields
// are ignored; entries with unusable content yield per-entry errors while
// the rest of the batch is returned.
func ParseBibTeX(data []byte) ([]reference.Record, []error) {
	var refs []reference.Record
	var errs []error

	src := string(data)
	for i := 0; i < len(src); i++ {
		if src[i] != '@' {
			continue
		}
		entry, end, err := readBibEntry(src, i)
		if err != nil {
			errs = append(errs, err)
			// Skip ahead to avoid reparsing the same malformed span.
			i = end
			continue
		}
		i = end

		if entry == nil {
			continue // @comment, @preamble, @string
		}

		ref, err := bibEntryToRecord(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", entry.key, err))
			continue
		}
		refs = append(refs, ref)
	}

	return refs, errs
}

type bibEntry struct {
	kind   string
	key    string
	fields map[string]string
}

// readBibEntry parses one @type{key, field = {value}, ...} block starting
// at the '@'. Returns a nil entry for non-reference blocks.
func readBibEntry(src string, start int) (*bibEntry, int, error) {
	i := start + 1
	typeStart := i
	for i < len(src) && src[i] != '{' && src[i] != '(' {
		i++
	}
	if i >= len(src) {
		return nil, len(src), fmt.Errorf("unterminated entry at offset %d", start)
	}
	kind := strings.ToLower(strings.TrimSpace(src[typeStart:i]))

	body, end, err := readBalanced(src, i)
	if err != nil {
		return nil, end, fmt.Errorf("entry @%s at offset %d: %w", kind, start, err)
	}

	switch kind {
	case "comment", "preamble", "string":
		return nil, end, nil
	}

	key := body
	rest := ""
	if comma := strings.IndexByte(body, ','); comma != -1 {
		key = body[:comma]
		rest = body[comma+1:]
	}

	entry := &bibEntry{kind: kind, key: strings.TrimSpace(key), fields: map[string]string{}}
	for _, f := range bibFields(rest) {
		entry.fields[strings.ToLower(f.name)] = f.value
	}
	return entry, end, nil
}

// readBalanced consumes a brace- or paren-balanced body starting at the
// opening delimiter and returns the content between the delimiters.
func readBalanced(src string, open int) (string, int, error) {
	openCh, closeCh := src[open], byte('}')
	if openCh == '(' {
		closeCh = ')'
	}
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return src[open+1 : i], i, nil
			}
		}
	}
	return "", len(src), fmt.Errorf("unbalanced delimiters")
}

type bibField struct {
	name  string
	value string
}

// bibFields collects name = value pairs inside an entry body.
func bibFields(body string) []bibField {
	var fields []bibField
	i := 0
	for i < len(body) {
		eq := strings.IndexByte(body[i:], '=')
		if eq == -1 {
			return fields
		}
		name := strings.TrimSpace(strings.Trim(body[i:i+eq], ", \t\r\n"))
		i += eq + 1

		value, next := readBibValue(body, i)
		if name != "" {
			fields = append(fields, bibField{name: name, value: value})
		}
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return fields
}

// readBibValue reads a {braced}, "quoted" or bare field value starting at
// or after position i, returning the cleaned value and the next offset.
func readBibValue(body string, i int) (string, int) {
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
		i++
	}
	if i >= len(body) {
		return "", i
	}

	switch body[i] {
	case '{':
		depth := 0
		for j := i; j < len(body); j++ {
			if body[j] == '{' {
				depth++
			} else if body[j] == '}' {
				depth--
				if depth == 0 {
					return cleanBibValue(body[i+1 : j]), j + 1
				}
			}
		}
		return cleanBibValue(body[i+1:]), len(body)
	case '"':
		for j := i + 1; j < len(body); j++ {
			if body[j] == '"' {
				return cleanBibValue(body[i+1 : j]), j + 1
			}
		}
		return cleanBibValue(body[i+1:]), len(body)
	default:
		end := i
		for end < len(body) && body[end] != ',' && body[end] != '\n' {
			end++
		}
		return cleanBibValue(body[i:end]), end
	}
}

// cleanBibValue collapses whitespace and strips protective inner braces.
func cleanBibValue(s string) string {
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return strings.Join(strings.Fields(s), " ")
}

func bibEntryToRecord(e *bibEntry) (reference.Record, error) {
	title := e.fields["title"]
	doi := e.fields["doi"]
	author := e.fields["author"]
	if title == "" && doi == "" && author == "" {
		return reference.Record{}, fmt.Errorf("entry has no title, DOI or author")
	}

	rec := reference.Record{
		Title:      title,
		Journal:    e.fields["journal"],
		DOI:        doi,
		PMID:       e.fields["pmid"],
		Abstract:   e.fields["abstract"],
		Source:     reference.SourceBibTeX,
		Confidence: 1.0,
	}
	if rec.Journal == "" {
		rec.Journal = e.fields["booktitle"]
	}

	if author != "" {
		for _, a := range strings.Split(author, " and ") {
			if a = strings.TrimSpace(a); a != "" {
				rec.Authors = append(rec.Authors, a)
			}
		}
	}

	if y := e.fields["year"]; y != "" {
		if year, err := strconv.Atoi(strings.TrimSpace(y)); err == nil {
			rec.Year = year
		}
	}

	if kw := e.fields["keywords"]; kw != "" {
		for _, k := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if k = strings.TrimSpace(k); k != "" {
				rec.MeshTerms = append(rec.MeshTerms, k)
			}
		}
	}

	rec.Partial = !rec.Complete() && !rec.HasIdentifier()
	return rec, nil
}
