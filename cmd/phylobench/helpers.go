package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"phylobench/internal/pipeline"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatLabel turns ledger identifiers like "index-augment" or "completed"
// into display labels ("Index Augment", "Completed").
func formatLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "-", " ")
	value = strings.ReplaceAll(value, "_", " ")
	return cases.Title(language.Und).String(value)
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04:05")
}

func formatDuration(value time.Duration) string {
	if value <= 0 {
		return "-"
	}
	return value.Round(time.Millisecond).String()
}

func printPipelineResult(out io.Writer, result pipeline.Result) {
	if result.Tasks == 0 {
		fmt.Fprintln(out, "No tasks to run")
		return
	}
	fmt.Fprintf(out, "Completed %d of %d tasks in %s\n",
		result.Completed, result.Tasks, result.Duration.Round(time.Millisecond))
	if result.Failed > 0 || result.Skipped > 0 {
		fmt.Fprintf(out, "Failed: %d, skipped: %d\n", result.Failed, result.Skipped)
	}
}
