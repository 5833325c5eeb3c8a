package importer

import (
	"testing"

	"github.com/litsift/litsift/internal/reference"
)

const sampleBib = `@article{smith2020,
  title   = {Effects of {Exercise} on Cognition},
  author  = {Smith, John and Jones, Kate},
  journal = {J Cogn Res},
  year    = {2020},
  doi     = {10.1000/exercise},
  abstract = {Background text.},
  keywords = {exercise, cognition}
}

@comment{ignore me entirely }

@inproceedings{brown2021,
  title = "A Second Paper",
  author = "Brown, Lisa",
  booktitle = {Proc Intl Conf},
  year = 2021
}
`

func TestParseBibTeX(t *testing.T) {
	refs, errs := ParseBibTeX([]byte(sampleBib))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(refs))
	}

	r := refs[0]
	if r.Title != "Effects of Exercise on Cognition" {
		t.Errorf("title = %q", r.Title)
	}
	if len(r.Authors) != 2 || r.Authors[1] != "Jones, Kate" {
		t.Errorf("authors = %v", r.Authors)
	}
	if r.Journal != "J Cogn Res" {
		t.Errorf("journal = %q", r.Journal)
	}
	if r.Year != 2020 {
		t.Errorf("year = %d", r.Year)
	}
	if r.DOI != "10.1000/exercise" {
		t.Errorf("doi = %q", r.DOI)
	}
	if len(r.MeshTerms) != 2 {
		t.Errorf("keywords = %v", r.MeshTerms)
	}
	if r.Source != reference.SourceBibTeX {
		t.Errorf("source = %q", r.Source)
	}

	second := refs[1]
	if second.Title != "A Second Paper" {
		t.Errorf("second title = %q", second.Title)
	}
	if second.Journal != "Proc Intl Conf" {
		t.Errorf("booktitle fallback = %q", second.Journal)
	}
	if second.Year != 2021 {
		t.Errorf("bare year = %d", second.Year)
	}
}

func TestParseBibTeXUnusableEntry(t *testing.T) {
	data := "@article{nothing2020,\n  year = {2020}\n}\n"
	refs, errs := ParseBibTeX([]byte(data))
	if len(refs) != 0 {
		t.Errorf("expected 0 records, got %+v", refs)
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 per-entry error, got %v", errs)
	}
}

func TestParseBibTeXUnbalanced(t *testing.T) {
	data := "@article{broken2020,\n  title = {never closed\n"
	refs, errs := ParseBibTeX([]byte(data))
	if len(refs) != 0 {
		t.Errorf("expected no records, got %+v", refs)
	}
	if len(errs) == 0 {
		t.Error("expected a parse error for unbalanced braces")
	}
}
