// Package doctext produces the raw-text envelope consumed by the
// reference extractor. Binary DOCX parsing lives outside this module; DOCX
// uploads arrive here as already-extracted plain text.
package doctext

import (
	"strings"
)

// Extracted is raw document text plus extraction metadata.
type Extracted struct {
	Text           string `json:"-"`
	TotalPages     int    `json:"total_pages,omitempty"`
	Truncated      bool   `json:"truncated"`
	ExtractedLines int    `json:"extracted_lines"`
}

// Limits caps extraction work. Zero values mean unlimited.
type Limits struct {
	MaxPages int
	MaxChars int
}

// FromPlain wraps pre-extracted text, truncating at the character cap.
// Oversized text is truncated, never rejected.
func FromPlain(data []byte, lim Limits) Extracted {
	text := string(data)
	truncated := false
	if lim.MaxChars > 0 && len(text) > lim.MaxChars {
		text = text[:lim.MaxChars]
		truncated = true
	}
	return Extracted{
		Text:           text,
		Truncated:      truncated,
		ExtractedLines: countLines(text),
	}
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
