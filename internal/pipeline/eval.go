package pipeline

import (
	"context"
	"log/slog"
	"time"

	"phylobench/internal/config"
	"phylobench/internal/dispatch"
	"phylobench/internal/layout"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/task"
)

// Result aggregates dispatch outcomes across the batches of one pipeline
// invocation. Tasks counts everything enumerated, including tasks in batches
// that were never started after a halt.
type Result struct {
	Tasks     int
	Completed int
	Failed    int
	Skipped   int
	Halted    bool
	Duration  time.Duration
}

func (r *Result) add(s dispatch.Summary) {
	r.Completed += s.Completed
	r.Failed += s.Failed
	r.Skipped += s.Skipped
	r.Halted = r.Halted || s.Halted
}

// Eval drives the evaluation pipeline: discover method runs, build one task
// per (method, run, metric), and dispatch with the slow subset throttled to
// its own worker bound.
type Eval struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	enum       *enumerator
}

// NewEval wires the evaluation driver. The ledger store may be nil.
func NewEval(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts ...dispatch.Option) *Eval {
	if logger == nil {
		logger = logging.NewNop()
	}
	dispatchOpts := append([]dispatch.Option{
		dispatch.WithShuffleSeed(cfg.Dispatch.ShuffleSeed),
		dispatch.WithProgressInterval(time.Duration(cfg.Dispatch.ProgressInterval) * time.Second),
	}, opts...)
	evalLogger := logging.NewComponentLogger(logger, "eval")
	return &Eval{
		cfg:        cfg,
		logger:     evalLogger,
		dispatcher: dispatch.New(logger, store, dispatchOpts...),
		enum:       newEnumerator(cfg, evalLogger),
	}
}

// Run executes the full evaluation pipeline. The standard batch runs first;
// the slow batch is not started if the standard batch halted.
func (e *Eval) Run(ctx context.Context) (Result, error) {
	ctx = logging.WithPipeline(ctx, "eval")
	logger := logging.WithContext(ctx, e.logger)
	start := time.Now()

	lock, err := acquireRunLock(e.cfg.LockPath())
	if err != nil {
		return Result{}, err
	}
	defer lock.release(logger)

	methods, err := layout.DiscoverMethods(e.cfg.Paths.ResultsDir, e.cfg.Eval.ResultSuffix,
		e.cfg.Eval.Methods, e.cfg.Eval.ExcludeMethods)
	if err != nil {
		return Result{}, Wrap(ErrConfiguration, "eval", "discover", "enumerate results tree", err)
	}

	tasks := e.enum.evalTasks(methods)
	result := Result{Tasks: len(tasks)}
	if len(tasks) == 0 {
		logger.Warn("no evaluation tasks enumerated",
			logging.String("results_dir", e.cfg.Paths.ResultsDir),
			logging.Int("methods", len(methods)))
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := task.ValidateDisjointOutputs(tasks); err != nil {
		return result, Wrap(ErrValidation, "eval", "validate", "task outputs collide", err)
	}

	slow, standard := task.Partition(tasks, e.cfg.Eval.SlowMarkers)
	logger.Info("evaluation batches ready",
		logging.Int("tasks", len(tasks)),
		logging.Int("standard", len(standard)),
		logging.Int("slow", len(slow)))

	summary, err := e.dispatcher.Run(ctx, task.Batch{
		Name:     "metrics",
		Pipeline: "eval",
		Workers:  e.cfg.Eval.Workers,
		Tasks:    standard,
	})
	result.add(summary)
	if err != nil {
		if len(slow) > 0 {
			logger.Warn("slow batch not started, standard batch halted",
				logging.Int("tasks", len(slow)))
		}
		result.Duration = time.Since(start)
		return result, wrapDispatchErr("eval", "standard batch", err)
	}

	summary, err = e.dispatcher.Run(ctx, task.Batch{
		Name:     "metrics-slow",
		Pipeline: "eval",
		Workers:  e.cfg.Eval.SlowWorkers,
		Tasks:    slow,
	})
	result.add(summary)
	result.Duration = time.Since(start)
	if err != nil {
		return result, wrapDispatchErr("eval", "slow batch", err)
	}

	logger.Info("evaluation pipeline complete",
		logging.Int("tasks", result.Tasks),
		logging.Int("completed", result.Completed),
		logging.Duration("duration", result.Duration.Round(time.Millisecond)))
	return result, nil
}
