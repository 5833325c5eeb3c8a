package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/litsift/litsift/internal/pipeline"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// printJob writes a job snapshot in the selected format.
func printJob(snap pipeline.JobSnapshot) {
	if !humanOutput {
		outputJSON(snap)
		return
	}

	fmt.Printf("Job %s (%s): %s\n", snap.ID, snap.Kind, snap.State)
	if snap.ProgressStep != "" {
		fmt.Printf("  Progress: %s (%d%%)\n", snap.ProgressStep, snap.ProgressPct)
	}
	if snap.Error != "" {
		fmt.Printf("  Error: %s\n", snap.Error)
	}
	if snap.Result != nil {
		fmt.Printf("  Imported: %d (%d duplicates removed)\n", snap.Result.Imported, snap.Result.Duplicates)
		if snap.Result.Confidence != "" {
			fmt.Printf("  Extraction confidence: %s\n", snap.Result.Confidence)
		}
		if snap.Result.Warning != "" {
			fmt.Printf("  Warning: %s\n", snap.Result.Warning)
		}
		for _, pe := range snap.Result.ProviderErrors {
			fmt.Printf("  Provider %s failed: %s\n", pe.Provider, pe.Message)
		}
	}
}

// exitForJob maps a terminal job state to a process exit.
func exitForJob(snap pipeline.JobSnapshot) {
	printJob(snap)
	if snap.State == pipeline.StateFailed {
		os.Exit(ExitJobFailed)
	}
}
