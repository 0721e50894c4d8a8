package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"phylobench/internal/config"
	"phylobench/internal/ledger"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tasks <batch-id>",
		Short: "Show task outcomes for one ledger batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid batch id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *ledger.Store) error {
				batch, err := store.GetBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				if batch == nil {
					return fmt.Errorf("batch %d not found", id)
				}

				var records []*ledger.TaskRecord
				if failedOnly {
					records, err = store.FailedTasks(cmd.Context(), id)
				} else {
					records, err = store.TasksForBatch(cmd.Context(), id)
				}
				if err != nil {
					return err
				}

				if asJSON {
					return writeTasksJSON(cmd, batch, records)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch %d: %s/%s, %s, %d tasks\n",
					batch.ID, batch.Pipeline, batch.Stage, batch.Status, batch.TaskCount)
				if len(records) == 0 {
					fmt.Fprintln(out, "No task records")
					return nil
				}
				writeRows(
					out,
					[]string{"Run", "Stage", "Status", "Exit", "Duration", "Detail"},
					buildTaskRows(records),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func buildTaskRows(records []*ledger.TaskRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		runID := rec.RunID
		if runID == "" {
			runID = "-"
		}
		rows = append(rows, []string{
			runID,
			formatLabel(rec.Stage),
			formatLabel(string(rec.Status)),
			fmt.Sprintf("%d", rec.ExitCode),
			formatDuration(rec.Duration),
			taskDetail(rec),
		})
	}
	return rows
}

// taskDetail prefers the stderr capture path so operators can go straight
// to the tool output; the recorded error is the fallback.
func taskDetail(rec *ledger.TaskRecord) string {
	if rec.Status == ledger.TaskFailed && rec.StderrPath != "" {
		return rec.StderrPath
	}
	if rec.Error != "" {
		return rec.Error
	}
	return ""
}

func writeTasksJSON(cmd *cobra.Command, batch *ledger.Batch, records []*ledger.TaskRecord) error {
	type jsonTask struct {
		RunID      string `json:"run_id,omitempty"`
		Method     string `json:"method,omitempty"`
		Stage      string `json:"stage"`
		Status     string `json:"status"`
		ExitCode   int    `json:"exit_code"`
		Command    string `json:"command,omitempty"`
		Error      string `json:"error,omitempty"`
		StderrPath string `json:"stderr_path,omitempty"`
		DurationMS int64  `json:"duration_ms"`
	}
	items := make([]jsonTask, 0, len(records))
	for _, rec := range records {
		items = append(items, jsonTask{
			RunID:      rec.RunID,
			Method:     rec.Method,
			Stage:      rec.Stage,
			Status:     string(rec.Status),
			ExitCode:   rec.ExitCode,
			Command:    rec.Command,
			Error:      rec.Error,
			StderrPath: rec.StderrPath,
			DurationMS: rec.Duration.Milliseconds(),
		})
	}
	return writeJSON(cmd, map[string]any{
		"batch": map[string]any{
			"id":         batch.ID,
			"uuid":       batch.UUID,
			"pipeline":   batch.Pipeline,
			"stage":      batch.Stage,
			"status":     string(batch.Status),
			"task_count": batch.TaskCount,
			"started_at": batch.StartedAt.UTC().Format(time.RFC3339),
		},
		"tasks": items,
	})
}
