package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/litsift/litsift/internal/doctext"
	"github.com/litsift/litsift/internal/extract"
	"github.com/litsift/litsift/internal/importer"
	"github.com/litsift/litsift/internal/reference"
)

// parseOutput is what a format parser produces before deduplication.
type parseOutput struct {
	records    []reference.Record
	skipped    int    // entries the parser could not use
	confidence string // extraction confidence, empty for structured formats
	warnings   []string
}

// runImport executes a document import job.
func (s *Service) runImport(ctx context.Context, j *job) (*Outcome, error) {
	req := j.importReq

	out, err := s.parseUpload(ctx, req)
	if err != nil {
		return nil, err
	}
	s.checkpoint(ctx, j, StepParsing, 50)

	result, err := s.finalize(ctx, req.ProjectID, "import", out.records)
	if err != nil {
		return nil, err
	}
	s.checkpoint(ctx, j, StepPersisting, 90)

	if out.skipped > 0 {
		out.warnings = append(out.warnings, fmt.Sprintf("%d entries could not be parsed and were skipped", out.skipped))
	}
	return &Outcome{
		Imported:   result.Stats.Unique,
		Duplicates: result.Stats.Duplicates,
		Confidence: out.confidence,
		Warning:    strings.Join(out.warnings, "; "),
	}, nil
}

// parseUpload runs the format parser under the configured time budget.
// A budget overrun fails the job with ErrParseTimeout; the oversized
// document is the problem, not the pipeline.
func (s *Service) parseUpload(ctx context.Context, req *ImportRequest) (parseOutput, error) {
	type parseResult struct {
		out parseOutput
		err error
	}
	done := make(chan parseResult, 1)

	go func() {
		out, err := s.parseByFormat(req)
		done <- parseResult{out: out, err: err}
	}()

	timeout, cancel := context.WithTimeout(ctx, s.cfg.ParseBudget)
	defer cancel()

	select {
	case <-timeout.Done():
		if ctx.Err() != nil {
			return parseOutput{}, ctx.Err()
		}
		return parseOutput{}, fmt.Errorf("%w: %s after %s", ErrParseTimeout, req.Filename, s.cfg.ParseBudget)
	case r := <-done:
		return r.out, r.err
	}
}

func (s *Service) parseByFormat(req *ImportRequest) (parseOutput, error) {
	limits := doctext.Limits{MaxPages: s.cfg.MaxPDFPages, MaxChars: s.cfg.MaxExtractedChars}

	switch uploadFormat(req.Filename) {
	case "ris":
		records, errs := importer.ParseRIS(req.Data)
		return structuredOutput(records, errs), nil

	case "bib":
		records, errs := importer.ParseBibTeX(req.Data)
		return structuredOutput(records, errs), nil

	case "pdf":
		extracted, err := doctext.FromPDF(req.Data, limits)
		if err != nil {
			return parseOutput{}, fmt.Errorf("%w: extracting text from %s: %v", ErrValidation, req.Filename, err)
		}
		return s.extractReferences(extracted), nil

	case "txt", "docx":
		return s.extractReferences(doctext.FromPlain(req.Data, limits)), nil
	}
	return parseOutput{}, fmt.Errorf("%w: unsupported file type", ErrValidation)
}

// structuredOutput wraps records from a tagged format. Structured tags
// need no extraction grading, so the batch is reported high confidence.
func structuredOutput(records []reference.Record, errs []error) parseOutput {
	return parseOutput{
		records:    records,
		skipped:    len(errs),
		confidence: string(extract.ConfidenceHigh),
	}
}

// extractReferences runs section detection and reference parsing over
// extracted document text. Finding nothing is a normal outcome, not an
// error: the job completes with zero imports and a warning.
func (s *Service) extractReferences(doc doctext.Extracted) parseOutput {
	var out parseOutput

	if doc.Truncated {
		out.warnings = append(out.warnings, "document was truncated before extraction")
	}

	section, ok := s.extractor.FindSection(doc.Text)
	if !ok {
		out.confidence = string(extract.Assess(nil))
		out.warnings = append(out.warnings, "no reference section detected")
		return out
	}

	out.records = s.extractor.Parse(section)
	conf := extract.Assess(out.records)
	out.confidence = string(conf)
	if conf == extract.ConfidenceLow {
		out.warnings = append(out.warnings,
			"low extraction confidence; importing a structured format such as RIS or BibTeX will give better results")
	}
	return out
}
