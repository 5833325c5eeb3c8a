package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/pipeline"
)

var importProject string

func init() {
	importCmd.Flags().StringVar(&importProject, "project", "", "Project to import into (required)")
	importCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import references from a document",
	Long: `Import references into a project from an uploaded document.

Supported formats by extension:
  .ris .bib .bibtex   structured reference exports
  .pdf .txt .docx     documents; the reference section is located and
                      parsed, with a confidence assessment

Examples:
  litsift import refs.ris --project stroke-review
  litsift import paper.pdf --project p1`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}

	cfg := mustLoadConfig()
	store := mustOpenStorage(cfg)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := mustBuildService(ctx, cfg, store)
	svc.Start(ctx)
	defer svc.Stop()

	snap, err := svc.SubmitImport(ctx, pipeline.ImportRequest{
		ProjectID: importProject,
		Filename:  filepath.Base(args[0]),
		Data:      data,
	})
	if err != nil {
		exitWithError(ExitDataError, "submitting import: %v", err)
	}

	exitForJob(waitForJob(svc, snap.ID))
	return nil
}
