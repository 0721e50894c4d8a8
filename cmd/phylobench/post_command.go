package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"phylobench/internal/config"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/pipeline"
)

func newPostCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var method string
	var workers int

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post-process one method's runs and publish them",
		Long: "Post runs the fixed post-processing sequence (" + strings.Join(pipeline.PostStages(), ", ") + ")\n" +
			"over the configured method. Each stage re-enumerates the tree so it picks\n" +
			"up the files the previous stage wrote.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *ledger.Store) error {
				flags := cmd.Flags()
				if flags.Changed("method") {
					cfg.Post.Method = method
				}
				if flags.Changed("workers") {
					cfg.Post.Workers = workers
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

				result, err := pipeline.NewPost(cfg, store, logger).Run(runCtx, stages)
				printPipelineResult(cmd.OutOrStdout(), result)
				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Run only these stages, always in pipeline order (repeatable)")
	cmd.Flags().StringVar(&method, "method", "", "Method directory to post-process")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent tasks per stage")
	return cmd
}
