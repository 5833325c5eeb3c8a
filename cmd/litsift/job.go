package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/litsift/litsift/internal/pipeline"
	"github.com/litsift/litsift/internal/storage"
)

func init() {
	rootCmd.AddCommand(jobCmd)
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show the stored state of a job",
	Long: `Show the stored state of a job.

Job snapshots are persisted at every checkpoint, so this works for jobs
run by earlier invocations.

Examples:
  litsift job 7d9c2f1e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	store := mustOpenStorage(cfg)
	defer store.Close()

	snap, err := store.LoadJob(context.Background(), args[0])
	if errors.Is(err, storage.ErrNotFound) {
		exitWithError(ExitDataError, "job %s not found", args[0])
	}
	if err != nil {
		exitWithError(ExitError, "loading job: %v", err)
	}

	printJob(snap)
	return nil
}

// waitForJob polls the in-process service until the job reaches a
// terminal state.
func waitForJob(svc *pipeline.Service, id string) pipeline.JobSnapshot {
	for {
		snap, err := svc.Job(id)
		if err != nil {
			exitWithError(ExitError, "tracking job: %v", err)
		}
		if snap.Terminal() {
			return snap
		}
		time.Sleep(100 * time.Millisecond)
	}
}
