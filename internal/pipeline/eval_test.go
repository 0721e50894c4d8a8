package pipeline_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"phylobench/internal/layout"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/pipeline"
	"phylobench/internal/testsupport"
)

func TestEvalEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(), testsupport.WithShuffleSeed(7))
	for _, method := range []string{"a", "b"} {
		for _, runID := range []string{"R1", "R2"} {
			testsupport.SeedEvalRun(t, cfg, method, runID)
		}
	}
	store := testsupport.MustOpenStore(t, cfg)

	eval := pipeline.NewEval(cfg, store, logging.NewNop())
	result, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Tasks != 12 || result.Completed != 12 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Halted {
		t.Fatal("clean run reported halted")
	}

	lay := layout.FromConfig(cfg)
	for _, method := range []string{"a", "b"} {
		for _, runID := range []string{"R1", "R2"} {
			for _, metric := range []string{"mutphi", "mutdist", "mutrel"} {
				path := lay.ArtifactFile(method, runID, layout.MetricSuffix(metric))
				if _, err := os.Stat(path); err != nil {
					t.Fatalf("expected artifact %s: %v", path, err)
				}
			}
		}
	}

	invocations := testsupport.ToolLog(t, cfg)
	if len(invocations) != 12 {
		t.Fatalf("expected 12 tool invocations, got %d", len(invocations))
	}

	batches, err := store.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected single batch without slow runs, got %d", len(batches))
	}
	if batches[0].Stage != "metrics" || batches[0].Status != ledger.BatchCompleted || batches[0].TaskCount != 12 {
		t.Fatalf("unexpected batch row: %+v", batches[0])
	}
}

func TestEvalRoutesMarkedRunsToSlowBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(), testsupport.WithShuffleSeed(7))
	testsupport.SeedEvalRun(t, cfg, "pairtree", "sim_K10_S10_R1")
	testsupport.SeedEvalRun(t, cfg, "pairtree", "sim_K30_S10_R1")
	store := testsupport.MustOpenStore(t, cfg)

	eval := pipeline.NewEval(cfg, store, logging.NewNop())
	result, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Tasks != 6 || result.Completed != 6 {
		t.Fatalf("unexpected result: %+v", result)
	}

	batches, err := store.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected standard and slow batches, got %d", len(batches))
	}
	// Newest first: the slow batch ran second.
	if batches[0].Stage != "metrics-slow" || batches[0].TaskCount != 3 {
		t.Fatalf("unexpected slow batch: %+v", batches[0])
	}
	if batches[1].Stage != "metrics" || batches[1].TaskCount != 3 {
		t.Fatalf("unexpected standard batch: %+v", batches[1])
	}

	slowTasks, err := store.TasksForBatch(context.Background(), batches[0].ID)
	if err != nil {
		t.Fatalf("TasksForBatch: %v", err)
	}
	for _, rec := range slowTasks {
		if rec.RunID != "sim_K30_S10_R1" {
			t.Fatalf("standard run leaked into slow batch: %+v", rec)
		}
	}
}

func TestEvalHaltSkipsSlowBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedTools(),
		testsupport.WithFailingScript("mutdist", 3),
		testsupport.WithShuffleSeed(7))
	testsupport.SeedEvalRun(t, cfg, "pairtree", "sim_K10_S10_R1")
	testsupport.SeedEvalRun(t, cfg, "pairtree", "sim_K100_S10_R1")
	store := testsupport.MustOpenStore(t, cfg)

	eval := pipeline.NewEval(cfg, store, logging.NewNop())
	result, err := eval.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing metric")
	}
	if !errors.Is(err, pipeline.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !result.Halted {
		t.Fatal("expected halted result")
	}
	if result.Failed == 0 {
		t.Fatalf("expected at least one failure, got %+v", result)
	}

	batches, err := store.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("slow batch must not start after halt, got %d batches", len(batches))
	}
	if batches[0].Stage != "metrics" || batches[0].Status != ledger.BatchFailed {
		t.Fatalf("unexpected batch row: %+v", batches[0])
	}

	lay := layout.FromConfig(cfg)
	slowArtifact := lay.ArtifactFile("pairtree", "sim_K100_S10_R1", ".mutphi.npz")
	if _, err := os.Stat(slowArtifact); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("slow batch artifact should not exist, stat err=%v", err)
	}
}

func TestEvalEmptyTreeIsNotAnError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	store := testsupport.MustOpenStore(t, cfg)

	eval := pipeline.NewEval(cfg, store, logging.NewNop())
	result, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Tasks != 0 || result.Completed != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}

	batches, err := store.RecentBatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches recorded, got %d", len(batches))
	}
}

func TestEvalSkipsRunsMissingCompanions(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	testsupport.SeedEvalRun(t, cfg, "pairtree", "R1")
	testsupport.SeedResultOnly(t, cfg, "pairtree", "R2")

	eval := pipeline.NewEval(cfg, nil, logging.NewNop())
	result, err := eval.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Tasks != 3 {
		t.Fatalf("expected tasks only for the complete run, got %+v", result)
	}
	for _, line := range testsupport.ToolLog(t, cfg) {
		if strings.Contains(line, "R2") {
			t.Fatalf("companion-less run was evaluated: %s", line)
		}
	}
}

func TestEvalRefusesLockedTree(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	testsupport.SeedEvalRun(t, cfg, "pairtree", "R1")

	holder := flock.New(cfg.LockPath())
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("prepare lock holder: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	eval := pipeline.NewEval(cfg, nil, logging.NewNop())
	if _, err := eval.Run(context.Background()); !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
