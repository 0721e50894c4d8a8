package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"phylobench/internal/config"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/pipeline"
)

func newEvalCommand(ctx *commandContext) *cobra.Command {
	var methods []string
	var metrics []string
	var workers int
	var slowWorkers int
	var seed int64

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate method results against simulation truth",
		Long: "Eval walks the results tree, pairs every run with its truth and input\n" +
			"files, and dispatches one scoring command per run and metric. Runs whose\n" +
			"names carry a slow marker are evaluated in a second, narrower batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *ledger.Store) error {
				flags := cmd.Flags()
				if flags.Changed("methods") {
					cfg.Eval.Methods = methods
				}
				if flags.Changed("metrics") {
					cfg.Eval.Metrics = metrics
				}
				if flags.Changed("workers") {
					cfg.Eval.Workers = workers
				}
				if flags.Changed("slow-workers") {
					cfg.Eval.SlowWorkers = slowWorkers
				}
				if flags.Changed("seed") {
					cfg.Dispatch.ShuffleSeed = seed
				}
				if err := cfg.Validate(); err != nil {
					return err
				}

				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}

				result, err := pipeline.NewEval(cfg, store, logger).Run(runCtx)
				printPipelineResult(cmd.OutOrStdout(), result)
				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&methods, "methods", nil, "Evaluate only these methods (repeatable)")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Score only these metrics (repeatable)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent tasks for the standard batch")
	cmd.Flags().IntVar(&slowWorkers, "slow-workers", 0, "Concurrent tasks for the slow batch")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Shuffle seed for reproducible dispatch order (0 = random)")
	return cmd
}
