package pipeline

import (
	"path/filepath"
	"testing"

	"phylobench/internal/layout"
	"phylobench/internal/logging"
	"phylobench/internal/task"
	"phylobench/internal/testsupport"
)

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("arg count mismatch:\n got %v\nwant %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestEvalTasksCommandShape(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K10_S10_R1"
	testsupport.SeedEvalRun(t, cfg, method, runID)

	enum := newEnumerator(cfg, logging.NewNop())
	tasks := enum.evalTasks([]layout.Method{{Name: method, Runs: []string{runID}}})
	if len(tasks) != 3 {
		t.Fatalf("expected one task per metric, got %d", len(tasks))
	}

	lay := layout.FromConfig(cfg)
	first := tasks[0]
	if first.Stage != "mutphi" || first.Method != method || first.RunID != runID {
		t.Fatalf("unexpected task identity: %+v", first)
	}
	if first.Command.Program != "python3" {
		t.Fatalf("expected python interpreter, got %q", first.Command.Program)
	}
	out := lay.ArtifactFile(method, runID, ".mutphi.npz")
	assertArgs(t, first.Command.Args, []string{
		cfg.ScriptPath("mutphi.py"),
		"--truth", lay.TruthFile(runID),
		"--result", lay.ArtifactFile(method, runID, cfg.Eval.ResultSuffix),
		"--ssm", lay.SSMFile(runID),
		"--params", lay.ParamsFile(runID),
		"--out", out,
	})
	if first.OutputPath != out {
		t.Fatalf("expected output %s, got %s", out, first.OutputPath)
	}
	if first.StderrPath != "" {
		t.Fatalf("evaluation tasks must not capture stderr files, got %q", first.StderrPath)
	}

	if tasks[1].Stage != "mutdist" || tasks[2].Stage != "mutrel" {
		t.Fatalf("unexpected metric order: %s, %s", tasks[1].Stage, tasks[2].Stage)
	}
}

func TestEvalTasksSkipRunsMissingCompanions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.SeedResultOnly(t, cfg, "pairtree", "sim_K10_S10_R1")

	enum := newEnumerator(cfg, logging.NewNop())
	tasks := enum.evalTasks([]layout.Method{{Name: "pairtree", Runs: []string{"sim_K10_S10_R1"}}})
	if len(tasks) != 0 {
		t.Fatalf("expected silent skip without companions, got %d tasks", len(tasks))
	}
}

func TestRenameTasksShape(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K3_S30_R2"
	testsupport.SeedEvalRun(t, cfg, method, runID)

	enum := newEnumerator(cfg, logging.NewNop())
	tasks, err := enum.postTasks(StageRename, layout.Method{Name: method, Runs: []string{runID}})
	if err != nil {
		t.Fatalf("postTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one rename task, got %d", len(tasks))
	}

	lay := layout.FromConfig(cfg)
	outSSM := lay.ArtifactFile(method, runID, layout.SuffixSSM)
	outParams := lay.ArtifactFile(method, runID, layout.SuffixParams)
	tk := tasks[0]
	assertArgs(t, tk.Command.Args, []string{
		cfg.ScriptPath("rename_samples.py"),
		lay.SSMFile(runID), lay.ParamsFile(runID),
		"--out-ssm", outSSM,
		"--out-params", outParams,
	})
	if tk.OutputPath != outSSM {
		t.Fatalf("expected ssm copy as output, got %s", tk.OutputPath)
	}
	wantStderr := filepath.Join(lay.RunDir(method, runID), runID+".rename.stderr")
	if tk.StderrPath != wantStderr {
		t.Fatalf("expected stderr at %s, got %s", wantStderr, tk.StderrPath)
	}
}

func TestRemoveAndPairwiseRequireRunCopies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K3_S30_R2"
	testsupport.SeedEvalRun(t, cfg, method, runID)
	meth := layout.Method{Name: method, Runs: []string{runID}}
	enum := newEnumerator(cfg, logging.NewNop())

	// Before rename ran there are no run-local copies to edit.
	for _, stage := range []string{StageRemove, StagePairwise} {
		tasks, err := enum.postTasks(stage, meth)
		if err != nil {
			t.Fatalf("postTasks(%s): %v", stage, err)
		}
		if len(tasks) != 0 {
			t.Fatalf("expected %s to skip runs without copies, got %d tasks", stage, len(tasks))
		}
	}

	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixSSM, "ssm")
	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixParams, "{}")

	lay := layout.FromConfig(cfg)
	ssm := lay.ArtifactFile(method, runID, layout.SuffixSSM)
	params := lay.ArtifactFile(method, runID, layout.SuffixParams)

	tasks, err := enum.postTasks(StageRemove, meth)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("remove tasks: %v (%d)", err, len(tasks))
	}
	assertArgs(t, tasks[0].Command.Args, []string{
		cfg.ScriptPath("remove_samples.py"),
		"--ssm", ssm,
		"--params", params,
	})

	tasks, err = enum.postTasks(StagePairwise, meth)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("pairwise tasks: %v (%d)", err, len(tasks))
	}
	out := lay.ArtifactFile(method, runID, layout.SuffixPairwise)
	assertArgs(t, tasks[0].Command.Args, []string{
		cfg.ScriptPath("calc_pairwise.py"),
		"--ssm", ssm,
		"--params", params,
		"--out", out,
	})
	if tasks[0].OutputPath != out {
		t.Fatalf("expected pairwise output %s, got %s", out, tasks[0].OutputPath)
	}
}

func TestPlotTasksShape(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K10_S100_R3"
	testsupport.SeedEvalRun(t, cfg, method, runID)
	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixSSM, "ssm")
	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixPairwise, "{}")

	enum := newEnumerator(cfg, logging.NewNop())
	tasks, err := enum.postTasks(StagePlot, layout.Method{Name: method, Runs: []string{runID}})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("plot tasks: %v (%d)", err, len(tasks))
	}

	lay := layout.FromConfig(cfg)
	out := lay.ArtifactFile(method, runID, layout.SuffixPairwisePlot)
	assertArgs(t, tasks[0].Command.Args, []string{
		cfg.ScriptPath("plot_pairwise.py"),
		lay.ArtifactFile(method, runID, layout.SuffixPairwise),
		"--ssm", lay.ArtifactFile(method, runID, layout.SuffixSSM),
		"--out", out,
	})
	if tasks[0].OutputPath != out {
		t.Fatalf("expected plot output %s, got %s", out, tasks[0].OutputPath)
	}
}

func TestIndexTasksShape(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K30_S10_R1"
	testsupport.SeedEvalRun(t, cfg, method, runID)
	meth := layout.Method{Name: method, Runs: []string{runID}}
	enum := newEnumerator(cfg, logging.NewNop())
	lay := layout.FromConfig(cfg)

	// index-augment skips runs until the method-produced JSON exists.
	tasks, err := enum.postTasks(StageIndexAugment, meth)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected augment skip, got %v (%d)", err, len(tasks))
	}
	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixSummary, "{}")
	testsupport.WriteArtifact(t, cfg, method, runID, layout.SuffixMutations, "{}")

	tasks, err = enum.postTasks(StageIndexAugment, meth)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("augment tasks: %v (%d)", err, len(tasks))
	}
	runDir := lay.RunDir(method, runID)
	assertArgs(t, tasks[0].Command.Args, []string{
		cfg.ScriptPath("augment_index.py"),
		"--summ", lay.ArtifactFile(method, runID, layout.SuffixSummary),
		"--muts", lay.ArtifactFile(method, runID, layout.SuffixMutations),
		"--out-dir", runDir,
	})
	if tasks[0].OutputPath != runDir {
		t.Fatalf("expected run dir as owned output, got %s", tasks[0].OutputPath)
	}

	tasks, err = enum.postTasks(StageIndexPages, meth)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("index page tasks: %v (%d)", err, len(tasks))
	}
	methodDir := lay.MethodDir(method)
	indexOut := filepath.Join(methodDir, "index.html")
	assertArgs(t, tasks[0].Command.Args, []string{
		cfg.ScriptPath("make_index.py"),
		methodDir,
		"--out", indexOut,
	})
	if tasks[0].RunID != "" {
		t.Fatalf("index page task is method-scoped, got run %q", tasks[0].RunID)
	}
	wantStderr := filepath.Join(methodDir, "index.index-pages.stderr")
	if tasks[0].StderrPath != wantStderr {
		t.Fatalf("expected stderr at %s, got %s", wantStderr, tasks[0].StderrPath)
	}
}

func TestPublishTasksShape(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const method, runID = "pairtree", "sim_K100_S100_R1"
	testsupport.SeedEvalRun(t, cfg, method, runID)
	meth := layout.Method{Name: method, Runs: []string{runID}}
	enum := newEnumerator(cfg, logging.NewNop())
	lay := layout.FromConfig(cfg)

	// Without an index page only the run sync is enumerated.
	tasks, err := enum.postTasks(StagePublish, meth)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("publish tasks: %v (%d)", err, len(tasks))
	}

	testsupport.WriteFile(t, filepath.Join(lay.MethodDir(method), "index.html"), "<html/>")
	tasks, err = enum.postTasks(StagePublish, meth)
	if err != nil || len(tasks) != 2 {
		t.Fatalf("publish tasks with index: %v (%d)", err, len(tasks))
	}

	namespace := filepath.Join(cfg.Paths.WebDir, cfg.Run.Name)
	runSync := tasks[0]
	if runSync.Command.Program != "rsync" {
		t.Fatalf("expected publisher binary, got %q", runSync.Command.Program)
	}
	assertArgs(t, runSync.Command.Args, []string{
		"-a",
		lay.RunDir(method, runID) + "/",
		filepath.Join(namespace, runID) + "/",
	})
	if runSync.OutputPath != filepath.Join(namespace, runID) {
		t.Fatalf("unexpected run sync output: %s", runSync.OutputPath)
	}

	indexCopy := tasks[1]
	assertArgs(t, indexCopy.Command.Args, []string{
		"-a",
		filepath.Join(lay.MethodDir(method), "index.html"),
		namespace + "/",
	})
	if indexCopy.OutputPath != filepath.Join(namespace, "index.html") {
		t.Fatalf("unexpected index copy output: %s", indexCopy.OutputPath)
	}

	if err := task.ValidateDisjointOutputs(tasks); err != nil {
		t.Fatalf("publish outputs must be disjoint: %v", err)
	}
}

func TestPostTasksRejectsUnknownStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	enum := newEnumerator(cfg, logging.NewNop())
	if _, err := enum.postTasks("mystery", layout.Method{Name: "pairtree"}); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}
