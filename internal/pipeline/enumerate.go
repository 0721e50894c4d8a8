package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"phylobench/internal/config"
	"phylobench/internal/layout"
	"phylobench/internal/logging"
	"phylobench/internal/task"
)

// enumerator builds concrete task lists from the on-disk tree. Builders never
// create files themselves; a run missing a required companion file is skipped
// silently per the layout contract, surfacing only as a debug line.
type enumerator struct {
	cfg    *config.Config
	lay    layout.Layout
	logger *slog.Logger
}

func newEnumerator(cfg *config.Config, logger *slog.Logger) *enumerator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &enumerator{cfg: cfg, lay: layout.FromConfig(cfg), logger: logger}
}

// evalTasks produces one task per (method, run, metric) whose truth, ssm, and
// params companions are all present. A method that yields zero tasks is
// diagnosed at WARN and is never an error.
func (e *enumerator) evalTasks(methods []layout.Method) []task.Task {
	var tasks []task.Task
	for _, method := range methods {
		count := 0
		for _, runID := range method.Runs {
			companions := []string{
				e.lay.TruthFile(runID),
				e.lay.SSMFile(runID),
				e.lay.ParamsFile(runID),
			}
			if missing := firstMissing(companions); missing != "" {
				e.debugSkip("eval", method.Name, runID, missing)
				continue
			}
			for _, metric := range e.cfg.Eval.Metrics {
				tasks = append(tasks, e.evalTask(metric, method.Name, runID))
				count++
			}
		}
		if count == 0 {
			e.logger.Warn("no evaluable runs for method",
				logging.String(logging.FieldMethod, method.Name),
				logging.Int("runs_discovered", len(method.Runs)))
			continue
		}
		e.logger.Info("enumerated evaluation tasks",
			logging.String(logging.FieldMethod, method.Name),
			logging.Int("tasks", count))
	}
	return tasks
}

func (e *enumerator) evalTask(metric, method, runID string) task.Task {
	out := e.lay.ArtifactFile(method, runID, layout.MetricSuffix(metric))
	return task.Task{
		Stage:  metric,
		Method: method,
		RunID:  runID,
		Command: task.Command{
			Program: e.cfg.PythonBinary(),
			Args: []string{
				e.cfg.ScriptPath(metric + ".py"),
				"--truth", e.lay.TruthFile(runID),
				"--result", e.lay.ArtifactFile(method, runID, e.cfg.Eval.ResultSuffix),
				"--ssm", e.lay.SSMFile(runID),
				"--params", e.lay.ParamsFile(runID),
				"--out", out,
			},
		},
		OutputPath: out,
	}
}

// postTasks builds the task list for one post-processing stage over the
// given method's runs.
func (e *enumerator) postTasks(stage string, method layout.Method) ([]task.Task, error) {
	switch stage {
	case StageRename:
		return e.renameTasks(method), nil
	case StageRemove:
		return e.removeTasks(method), nil
	case StagePairwise:
		return e.pairwiseTasks(method), nil
	case StagePlot:
		return e.plotTasks(method), nil
	case StageIndexAugment:
		return e.indexAugmentTasks(method), nil
	case StageIndexPages:
		return e.indexPageTasks(method), nil
	case StagePublish:
		return e.publishTasks(method), nil
	default:
		return nil, Wrap(ErrValidation, "post", "enumerate", fmt.Sprintf("unknown stage %q", stage), nil)
	}
}

// renameTasks maps sample identifiers in the raw inputs into run-local
// copies that later stages edit and read.
func (e *enumerator) renameTasks(method layout.Method) []task.Task {
	var tasks []task.Task
	for _, runID := range method.Runs {
		inSSM := e.lay.SSMFile(runID)
		inParams := e.lay.ParamsFile(runID)
		if missing := firstMissing([]string{inSSM, inParams}); missing != "" {
			e.debugSkip(StageRename, method.Name, runID, missing)
			continue
		}
		outSSM := e.lay.ArtifactFile(method.Name, runID, layout.SuffixSSM)
		outParams := e.lay.ArtifactFile(method.Name, runID, layout.SuffixParams)
		tasks = append(tasks, e.runTask(StageRename, method.Name, runID,
			[]string{
				e.cfg.ScriptPath("rename_samples.py"),
				inSSM, inParams,
				"--out-ssm", outSSM,
				"--out-params", outParams,
			}, outSSM))
	}
	return tasks
}

// removeTasks strips unwanted samples from the run-local copies in place.
func (e *enumerator) removeTasks(method layout.Method) []task.Task {
	var tasks []task.Task
	for _, runID := range method.Runs {
		ssm := e.lay.ArtifactFile(method.Name, runID, layout.SuffixSSM)
		params := e.lay.ArtifactFile(method.Name, runID, layout.SuffixParams)
		if missing := firstMissing([]string{ssm, params}); missing != "" {
			e.debugSkip(StageRemove, method.Name, runID, missing)
			continue
		}
		tasks = append(tasks, e.runTask(StageRemove, method.Name, runID,
			[]string{
				e.cfg.ScriptPath("remove_samples.py"),
				"--ssm", ssm,
				"--params", params,
			}, ssm))
	}
	return tasks
}

func (e *enumerator) pairwiseTasks(method layout.Method) []task.Task {
	var tasks []task.Task
	for _, runID := range method.Runs {
		ssm := e.lay.ArtifactFile(method.Name, runID, layout.SuffixSSM)
		params := e.lay.ArtifactFile(method.Name, runID, layout.SuffixParams)
		if missing := firstMissing([]string{ssm, params}); missing != "" {
			e.debugSkip(StagePairwise, method.Name, runID, missing)
			continue
		}
		out := e.lay.ArtifactFile(method.Name, runID, layout.SuffixPairwise)
		tasks = append(tasks, e.runTask(StagePairwise, method.Name, runID,
			[]string{
				e.cfg.ScriptPath("calc_pairwise.py"),
				"--ssm", ssm,
				"--params", params,
				"--out", out,
			}, out))
	}
	return tasks
}

// plotTasks renders one HTML page per configured render kind per run.
func (e *enumerator) plotTasks(method layout.Method) []task.Task {
	var tasks []task.Task
	for _, runID := range method.Runs {
		ssm := e.lay.ArtifactFile(method.Name, runID, layout.SuffixSSM)
		for _, kind := range e.cfg.Post.Render {
			in := e.lay.ArtifactFile(method.Name, runID, "."+kind+".json")
			if missing := firstMissing([]string{in, ssm}); missing != "" {
				e.debugSkip(StagePlot, method.Name, runID, missing)
				continue
			}
			out := e.lay.ArtifactFile(method.Name, runID, "."+kind+".html")
			tasks = append(tasks, e.runTask(StagePlot, method.Name, runID,
				[]string{
					e.cfg.ScriptPath("plot_" + kind + ".py"),
					in,
					"--ssm", ssm,
					"--out", out,
				}, out))
		}
	}
	return tasks
}

// indexAugmentTasks compresses and indexes the summary JSON the method
// itself produced alongside its results.
func (e *enumerator) indexAugmentTasks(method layout.Method) []task.Task {
	var tasks []task.Task
	for _, runID := range method.Runs {
		summ := e.lay.ArtifactFile(method.Name, runID, layout.SuffixSummary)
		muts := e.lay.ArtifactFile(method.Name, runID, layout.SuffixMutations)
		if missing := firstMissing([]string{summ, muts}); missing != "" {
			e.debugSkip(StageIndexAugment, method.Name, runID, missing)
			continue
		}
		runDir := e.lay.RunDir(method.Name, runID)
		tasks = append(tasks, e.runTask(StageIndexAugment, method.Name, runID,
			[]string{
				e.cfg.ScriptPath("augment_index.py"),
				"--summ", summ,
				"--muts", muts,
				"--out-dir", runDir,
			}, runDir))
	}
	return tasks
}

// indexPageTasks generates the method-level index page, one task per method.
func (e *enumerator) indexPageTasks(method layout.Method) []task.Task {
	methodDir := e.lay.MethodDir(method.Name)
	if missing := firstMissing([]string{methodDir}); missing != "" {
		e.debugSkip(StageIndexPages, method.Name, "", missing)
		return nil
	}
	out := filepath.Join(methodDir, "index.html")
	return []task.Task{{
		Stage:  StageIndexPages,
		Method: method.Name,
		Command: task.Command{
			Program: e.cfg.PythonBinary(),
			Args: []string{
				e.cfg.ScriptPath("make_index.py"),
				methodDir,
				"--out", out,
			},
		},
		OutputPath: out,
		StderrPath: e.methodStderrPath(method.Name, StageIndexPages),
	}}
}

// publishTasks syncs each run directory into the web namespace, plus one
// task copying the method index page to the namespace root.
func (e *enumerator) publishTasks(method layout.Method) []task.Task {
	namespace := filepath.Join(e.cfg.Paths.WebDir, e.cfg.Run.Name)
	var tasks []task.Task
	for _, runID := range method.Runs {
		dest := filepath.Join(namespace, runID)
		tasks = append(tasks, task.Task{
			Stage:  StagePublish,
			Method: method.Name,
			RunID:  runID,
			Command: task.Command{
				Program: e.cfg.PublisherBinary(),
				Args:    []string{"-a", e.lay.RunDir(method.Name, runID) + "/", dest + "/"},
			},
			OutputPath: dest,
			StderrPath: e.stderrPath(method.Name, runID, StagePublish),
		})
	}

	index := filepath.Join(e.lay.MethodDir(method.Name), "index.html")
	if missing := firstMissing([]string{index}); missing != "" {
		if len(method.Runs) > 0 {
			e.debugSkip(StagePublish, method.Name, "", missing)
		}
		return tasks
	}
	tasks = append(tasks, task.Task{
		Stage:  StagePublish,
		Method: method.Name,
		Command: task.Command{
			Program: e.cfg.PublisherBinary(),
			Args:    []string{"-a", index, namespace + "/"},
		},
		OutputPath: filepath.Join(namespace, "index.html"),
		StderrPath: e.methodStderrPath(method.Name, StagePublish),
	})
	return tasks
}

func (e *enumerator) runTask(stage, method, runID string, args []string, output string) task.Task {
	return task.Task{
		Stage:  stage,
		Method: method,
		RunID:  runID,
		Command: task.Command{
			Program: e.cfg.PythonBinary(),
			Args:    args,
		},
		OutputPath: output,
		StderrPath: e.stderrPath(method, runID, stage),
	}
}

// stderrPath is the post-mortem capture location for a run-scoped task.
func (e *enumerator) stderrPath(method, runID, stage string) string {
	return filepath.Join(e.lay.RunDir(method, runID), runID+"."+stage+".stderr")
}

// methodStderrPath is the capture location for method-scoped index tasks.
func (e *enumerator) methodStderrPath(method, stage string) string {
	return filepath.Join(e.lay.MethodDir(method), "index."+stage+".stderr")
}

func (e *enumerator) debugSkip(stage, method, runID, missing string) {
	e.logger.Debug("run skipped, required file missing",
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldMethod, method),
		logging.String(logging.FieldRunID, runID),
		logging.String("missing", missing))
}

// firstMissing returns the first path that does not exist, or "" when all
// are present. Stat errors count as missing.
func firstMissing(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return path
		}
	}
	return ""
}
