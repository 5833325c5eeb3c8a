package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/doctext"
	"github.com/litsift/litsift/internal/extract"
	"github.com/litsift/litsift/internal/reference"
)

func init() {
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract references from a document",
	Long: `Extract references from a PDF or plain-text document without
importing them.

Locates the reference section, parses its entries and assesses how
reliable the extraction looks.

Examples:
  litsift extract paper.pdf
  litsift extract manuscript.txt --human`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractResponse is the JSON payload of the extract command.
type ExtractResponse struct {
	Found      bool               `json:"found"`
	Confidence string             `json:"confidence,omitempty"`
	Count      int                `json:"count"`
	Truncated  bool               `json:"truncated,omitempty"`
	References []reference.Record `json:"references"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}

	cfg := mustLoadConfig()
	limits := doctext.Limits{MaxPages: cfg.MaxPDFPages, MaxChars: cfg.MaxExtractedChars}

	var doc doctext.Extracted
	if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
		doc, err = doctext.FromPDF(data, limits)
		if err != nil {
			exitWithError(ExitDataError, "extracting text from %s: %v", args[0], err)
		}
	} else {
		doc = doctext.FromPlain(data, limits)
	}

	extractor := mustBuildExtractor(cfg)

	resp := ExtractResponse{Truncated: doc.Truncated, References: []reference.Record{}}
	if section, ok := extractor.FindSection(doc.Text); ok {
		refs := extractor.Parse(section)
		resp.Found = true
		resp.Count = len(refs)
		resp.Confidence = string(extract.Assess(refs))
		resp.References = refs
	}

	if !humanOutput {
		return outputJSON(resp)
	}

	if !resp.Found {
		fmt.Println("No reference section detected.")
		return nil
	}
	fmt.Printf("Found %d references (confidence: %s)\n\n", resp.Count, resp.Confidence)
	for i, r := range resp.References {
		fmt.Printf("%d. %s", i+1, r.Title)
		if r.Year != 0 {
			fmt.Printf(" (%d)", r.Year)
		}
		fmt.Println()
		if r.DOI != "" {
			fmt.Printf("   doi:%s\n", r.DOI)
		}
		if r.PMID != "" {
			fmt.Printf("   pmid:%s\n", r.PMID)
		}
	}
	return nil
}
