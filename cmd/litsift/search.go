package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/pipeline"
	"github.com/litsift/litsift/internal/provider"
)

var (
	searchProject   string
	searchLimit     int
	searchJournal   string
	searchDates     string
	searchProviders []string
)

func init() {
	searchCmd.Flags().StringVar(&searchProject, "project", "", "Project to ingest results into (required)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results per provider")
	searchCmd.Flags().StringVar(&searchJournal, "journal", "", "Restrict to a journal")
	searchCmd.Flags().StringVar(&searchDates, "dates", "", "Publication date range, e.g. 2019:2024")
	searchCmd.Flags().StringSliceVar(&searchProviders, "provider", nil, "Providers to query (default: all)")
	searchCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search literature providers and ingest the results",
	Long: `Search literature providers and ingest the results into a project.

The search runs as a job: provider queries, cached detail resolution,
deduplication and persistence. The command waits for the job to finish
and reports the outcome.

Examples:
  litsift search "exercise AND cognition" --project stroke-review
  litsift search "sleep" --project p1 --limit 50 --dates 2019:2024`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	store := mustOpenStorage(cfg)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := mustBuildService(ctx, cfg, store)
	svc.Start(ctx)
	defer svc.Stop()

	snap, err := svc.SubmitSearch(ctx, pipeline.SearchRequest{
		ProjectID: searchProject,
		Query:     strings.Join(args, " "),
		Limit:     searchLimit,
		Filters: provider.Filters{
			Journal:   searchJournal,
			DateRange: searchDates,
		},
		Providers: searchProviders,
	})
	if err != nil {
		exitWithError(ExitDataError, "submitting search: %v", err)
	}

	exitForJob(waitForJob(svc, snap.ID))
	return nil
}
