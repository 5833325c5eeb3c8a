// Package reference defines the core domain types for bibliographic records.
package reference

// Source identifies where a record was produced.
type Source string

const (
	SourcePubMed    Source = "pubmed"
	SourceRIS       Source = "ris"
	SourceBibTeX    Source = "bibtex"
	SourcePDF       Source = "pdf"
	SourceDOCX      Source = "docx"
	SourceExtracted Source = "extracted"
)

// Record is a provisional bibliographic record. Records are created by a
// provider adapter, a file importer, or the reference extractor, consumed
// once by the deduplicator, and never mutated after creation (copy on
// enrichment).
type Record struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	Year      int      `json:"year,omitempty"`
	DOI       string   `json:"doi,omitempty"`
	PMID      string   `json:"pmid,omitempty"`
	PMCID     string   `json:"pmcid,omitempty"`
	Abstract  string   `json:"abstract,omitempty"`
	MeshTerms []string `json:"mesh_terms,omitempty"`
	Source    Source   `json:"source"`

	// Partial is true when extraction could not fully structure the entry.
	Partial bool `json:"partial,omitempty"`

	// Confidence estimates extraction reliability in [0,1]. Structured
	// sources (provider responses, RIS, BibTeX) always carry 1.0.
	Confidence float64 `json:"confidence"`

	// RawText keeps the original matched span for audit and debugging.
	RawText string `json:"raw_text,omitempty"`
}

// HasIdentifier reports whether the record carries a DOI or PMID.
func (r Record) HasIdentifier() bool {
	return r.DOI != "" || r.PMID != ""
}

// Complete reports whether the record is structurally valid without being
// identifier-backed: title, journal, year and at least one author present.
func (r Record) Complete() bool {
	return r.Title != "" && r.Journal != "" && r.Year != 0 && len(r.Authors) > 0
}
