package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"phylobench/internal/config"
	"phylobench/internal/ledger"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent dispatch batches from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *ledger.Store) error {
				batches, err := store.RecentBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeBatchesJSON(cmd, batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty")
					return nil
				}
				writeRows(
					cmd.OutOrStdout(),
					[]string{"ID", "Pipeline", "Stage", "Status", "Tasks", "Workers", "Started", "Duration"},
					buildBatchRows(batches),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
				)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func buildBatchRows(batches []*ledger.Batch) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, []string{
			fmt.Sprintf("%d", batch.ID),
			formatLabel(batch.Pipeline),
			formatLabel(batch.Stage),
			formatLabel(string(batch.Status)),
			fmt.Sprintf("%d", batch.TaskCount),
			fmt.Sprintf("%d", batch.Workers),
			formatDisplayTime(batch.StartedAt),
			formatDuration(batchDuration(batch)),
		})
	}
	return rows
}

func batchDuration(batch *ledger.Batch) time.Duration {
	if batch.FinishedAt.IsZero() {
		return 0
	}
	return batch.FinishedAt.Sub(batch.StartedAt)
}

func writeBatchesJSON(cmd *cobra.Command, batches []*ledger.Batch) error {
	type jsonBatch struct {
		ID         int64  `json:"id"`
		UUID       string `json:"uuid"`
		Pipeline   string `json:"pipeline"`
		Stage      string `json:"stage"`
		Status     string `json:"status"`
		TaskCount  int    `json:"task_count"`
		Workers    int    `json:"workers"`
		Error      string `json:"error,omitempty"`
		StartedAt  string `json:"started_at"`
		FinishedAt string `json:"finished_at,omitempty"`
	}
	items := make([]jsonBatch, 0, len(batches))
	for _, batch := range batches {
		item := jsonBatch{
			ID:        batch.ID,
			UUID:      batch.UUID,
			Pipeline:  batch.Pipeline,
			Stage:     batch.Stage,
			Status:    string(batch.Status),
			TaskCount: batch.TaskCount,
			Workers:   batch.Workers,
			Error:     batch.Error,
			StartedAt: batch.StartedAt.UTC().Format(time.RFC3339),
		}
		if !batch.FinishedAt.IsZero() {
			item.FinishedAt = batch.FinishedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return writeJSON(cmd, map[string]any{"batches": items})
}
