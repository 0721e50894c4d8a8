package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"phylobench/internal/config"
	"phylobench/internal/dispatch"
	"phylobench/internal/layout"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/task"
)

// Post stage names in their fixed execution order.
const (
	StageRename       = "rename"
	StageRemove       = "remove"
	StagePairwise     = "pairwise"
	StagePlot         = "plot"
	StageIndexAugment = "index-augment"
	StageIndexPages   = "index-pages"
	StagePublish      = "publish"
)

// PostStages returns the fixed stage order of the post-processing pipeline.
func PostStages() []string {
	return []string{
		StageRename,
		StageRemove,
		StagePairwise,
		StagePlot,
		StageIndexAugment,
		StageIndexPages,
		StagePublish,
	}
}

// Post drives the post-processing pipeline over the configured method's
// result tree. Each stage is one enumerate+dispatch cycle; a stage only
// begins after the prior stage's dispatcher returned cleanly.
type Post struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	enum       *enumerator
}

// NewPost wires the post-processing driver. The ledger store may be nil.
func NewPost(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts ...dispatch.Option) *Post {
	if logger == nil {
		logger = logging.NewNop()
	}
	dispatchOpts := append([]dispatch.Option{
		dispatch.WithShuffleSeed(cfg.Dispatch.ShuffleSeed),
		dispatch.WithProgressInterval(time.Duration(cfg.Dispatch.ProgressInterval) * time.Second),
	}, opts...)
	postLogger := logging.NewComponentLogger(logger, "post")
	return &Post{
		cfg:        cfg,
		logger:     postLogger,
		dispatcher: dispatch.New(logger, store, dispatchOpts...),
		enum:       newEnumerator(cfg, postLogger),
	}
}

// Run executes the requested stages. An empty selection runs every stage.
// Selections always execute in the fixed order regardless of how they were
// passed; unknown names are validation errors.
func (p *Post) Run(ctx context.Context, only []string) (Result, error) {
	ctx = logging.WithPipeline(ctx, "post")
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	stages, err := selectStages(only)
	if err != nil {
		return Result{}, err
	}

	lock, err := acquireRunLock(p.cfg.LockPath())
	if err != nil {
		return Result{}, err
	}
	defer lock.release(logger)

	logger.Info("post-processing started",
		logging.String(logging.FieldMethod, p.cfg.Post.Method),
		logging.String("stages", strings.Join(stages, ",")))

	var result Result
	seq := NewSequencer(stages, func(ctx context.Context, stage string) error {
		summary, n, err := p.runStage(ctx, stage)
		result.Tasks += n
		result.add(summary)
		return err
	})

	err = seq.Run(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		status := seq.Status()
		logger.Error("post-processing halted",
			logging.String(logging.FieldStage, status.Stage),
			logging.Error(err))
		return result, err
	}

	logger.Info("post-processing complete",
		logging.Int("tasks", result.Tasks),
		logging.Int("completed", result.Completed),
		logging.Duration("duration", result.Duration.Round(time.Millisecond)))
	return result, nil
}

// runStage enumerates and dispatches one stage over the configured method.
func (p *Post) runStage(ctx context.Context, stage string) (dispatch.Summary, int, error) {
	ctx = logging.WithStage(ctx, stage)
	logger := logging.WithContext(ctx, p.logger)

	method, err := p.discoverMethod()
	if err != nil {
		return dispatch.Summary{}, 0, err
	}

	tasks, err := p.enum.postTasks(stage, method)
	if err != nil {
		return dispatch.Summary{}, 0, err
	}
	if len(tasks) == 0 {
		logger.Warn("no tasks enumerated for stage",
			logging.Int("runs_discovered", len(method.Runs)))
		return dispatch.Summary{}, 0, nil
	}
	if err := task.ValidateDisjointOutputs(tasks); err != nil {
		return dispatch.Summary{}, len(tasks), Wrap(ErrValidation, "post", "validate", "task outputs collide", err)
	}

	if stage == StagePublish {
		namespace := filepath.Join(p.cfg.Paths.WebDir, p.cfg.Run.Name)
		if err := os.MkdirAll(namespace, 0o755); err != nil {
			return dispatch.Summary{}, len(tasks), Wrap(ErrConfiguration, "post", "publish", "create web namespace", err)
		}
	}

	summary, err := p.dispatcher.Run(ctx, task.Batch{
		Name:     stage,
		Pipeline: "post",
		Workers:  p.cfg.Post.Workers,
		Tasks:    tasks,
	})
	if err != nil {
		return summary, len(tasks), wrapDispatchErr("post", stage+" stage", err)
	}
	return summary, len(tasks), nil
}

// discoverMethod resolves the configured post method's runs. A missing
// method directory is not an error; stages then enumerate zero tasks.
func (p *Post) discoverMethod() (layout.Method, error) {
	methods, err := layout.DiscoverMethods(p.cfg.Paths.ResultsDir, p.cfg.Eval.ResultSuffix,
		[]string{p.cfg.Post.Method}, nil)
	if err != nil {
		return layout.Method{}, Wrap(ErrConfiguration, "post", "discover", "enumerate results tree", err)
	}
	for _, method := range methods {
		if method.Name == p.cfg.Post.Method {
			return method, nil
		}
	}
	return layout.Method{Name: p.cfg.Post.Method}, nil
}

// selectStages validates a stage subset and reorders it into the fixed
// execution order.
func selectStages(only []string) ([]string, error) {
	if len(only) == 0 {
		return PostStages(), nil
	}
	requested := make(map[string]struct{}, len(only))
	for _, name := range only {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !isPostStage(name) {
			return nil, Wrap(ErrValidation, "post", "stages",
				fmt.Sprintf("unknown stage %q (valid: %s)", name, strings.Join(PostStages(), ", ")), nil)
		}
		requested[name] = struct{}{}
	}
	if len(requested) == 0 {
		return PostStages(), nil
	}
	var stages []string
	for _, stage := range PostStages() {
		if _, ok := requested[stage]; ok {
			stages = append(stages, stage)
		}
	}
	return stages, nil
}

func isPostStage(name string) bool {
	for _, stage := range PostStages() {
		if stage == name {
			return true
		}
	}
	return false
}
