package doctext

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FromPDF extracts text from PDF bytes, honoring page and character caps.
// Pages that fail to render are skipped; a document where every page fails
// still returns an empty envelope rather than an error, matching the
// graceful-degradation contract of the extractor downstream.
func FromPDF(data []byte, lim Limits) (Extracted, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extracted{}, err
	}

	totalPages := reader.NumPage()
	maxPages := totalPages
	if lim.MaxPages > 0 && lim.MaxPages < maxPages {
		maxPages = lim.MaxPages
	}

	var builder strings.Builder
	truncated := maxPages < totalPages
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")

		if lim.MaxChars > 0 && builder.Len() >= lim.MaxChars {
			truncated = true
			break
		}
	}

	text := builder.String()
	if lim.MaxChars > 0 && len(text) > lim.MaxChars {
		text = text[:lim.MaxChars]
		truncated = true
	}

	return Extracted{
		Text:           text,
		TotalPages:     totalPages,
		Truncated:      truncated,
		ExtractedLines: countLines(text),
	}, nil
}
