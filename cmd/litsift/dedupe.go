package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/dedupe"
	"github.com/litsift/litsift/internal/importer"
	"github.com/litsift/litsift/internal/reference"
)

func init() {
	rootCmd.AddCommand(dedupeCmd)
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <file>",
	Short: "Deduplicate a reference file without importing it",
	Long: `Deduplicate a RIS or BibTeX file and report the result without
touching any project.

Useful for inspecting an export before importing it.

Examples:
  litsift dedupe refs.ris
  litsift dedupe library.bib --human`,
	Args: cobra.ExactArgs(1),
	RunE: runDedupeFile,
}

func runDedupeFile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}

	var records []reference.Record
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".ris":
		records, _ = importer.ParseRIS(data)
	case ".bib", ".bibtex":
		records, _ = importer.ParseBibTeX(data)
	default:
		exitWithError(ExitDataError, "unsupported file type %q, expected .ris or .bib", filepath.Ext(args[0]))
	}

	result := dedupe.Dedupe(records)
	if err := dedupe.Validate(result); err != nil {
		exitWithError(ExitError, "deduplication produced inconsistent results: %v", err)
	}

	if !humanOutput {
		return outputJSON(result)
	}

	fmt.Printf("%d records, %d unique, %d duplicates in %d groups\n",
		result.Stats.Total, result.Stats.Unique, result.Stats.Duplicates, result.Stats.DuplicateGroups)
	for _, g := range result.Groups {
		if len(g.Duplicates) == 0 {
			continue
		}
		fmt.Printf("\nKeep:   %s\n", g.Canonical.Title)
		for _, d := range g.Duplicates {
			fmt.Printf("Remove: %s\n", d.Title)
		}
	}
	return nil
}
