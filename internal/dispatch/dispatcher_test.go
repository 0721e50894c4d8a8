package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"phylobench/internal/dispatch"
	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/task"
)

type stubExecutor struct {
	mu      sync.Mutex
	running int
	peak    int
	order   []string
	fail    map[string]int
	delay   time.Duration
}

func (s *stubExecutor) Run(ctx context.Context, t task.Task) dispatch.Outcome {
	s.mu.Lock()
	s.running++
	if s.running > s.peak {
		s.peak = s.running
	}
	s.order = append(s.order, t.Label())
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.running--
	code, failed := s.fail[t.Label()]
	s.mu.Unlock()

	if failed {
		return dispatch.Outcome{ExitCode: code, StderrTail: "synthetic failure", Err: fmt.Errorf("exit status %d", code)}
	}
	return dispatch.Outcome{}
}

func (s *stubExecutor) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// blockingExecutor signals entry and then waits for cancellation.
type blockingExecutor struct {
	started chan struct{}
}

func (b *blockingExecutor) Run(ctx context.Context, t task.Task) dispatch.Outcome {
	b.started <- struct{}{}
	<-ctx.Done()
	return dispatch.Outcome{ExitCode: -1, Err: ctx.Err()}
}

func makeBatch(name string, workers, count int) task.Batch {
	tasks := make([]task.Task, 0, count)
	for i := range count {
		runID := fmt.Sprintf("sim_K10_S%02d_R1", i)
		tasks = append(tasks, task.Task{
			Stage:  "mutphi",
			Method: "pairtree",
			RunID:  runID,
			Command: task.Command{
				Program: "python3",
				Args:    []string{"mutphi.py", "--out", runID + ".mutphi.npz"},
			},
			OutputPath: runID + ".mutphi.npz",
		})
	}
	return task.Batch{Name: name, Pipeline: "eval", Workers: workers, Tasks: tasks}
}

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close ledger: %v", err)
		}
	})
	return store
}

func TestRunCompletesAllTasks(t *testing.T) {
	store := openLedger(t)
	exec := &stubExecutor{delay: 10 * time.Millisecond}
	d := dispatch.New(logging.NewNop(), store, dispatch.WithExecutor(exec), dispatch.WithShuffleSeed(7))

	batch := makeBatch("metrics", 3, 8)
	summary, err := d.Run(context.Background(), batch)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Total != 8 || summary.Completed != 8 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Halted {
		t.Fatal("clean batch reported halted")
	}
	if exec.peak > 3 {
		t.Fatalf("worker bound exceeded: peak %d > 3", exec.peak)
	}
	if exec.peak < 2 {
		t.Fatalf("tasks never overlapped: peak %d", exec.peak)
	}

	ctx := context.Background()
	batches, err := store.RecentBatches(ctx, 5)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected one batch recorded, got %d", len(batches))
	}
	row := batches[0]
	if row.Pipeline != "eval" || row.Stage != "metrics" || row.Workers != 3 || row.TaskCount != 8 {
		t.Fatalf("unexpected batch row: %+v", row)
	}
	if row.Status != ledger.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", row.Status)
	}
	if row.FinishedAt.IsZero() {
		t.Fatal("expected finished timestamp on completed batch")
	}
	stats, err := store.Stats(ctx, row.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[ledger.TaskCompleted] != 8 || stats[ledger.TaskFailed] != 0 || stats[ledger.TaskSkipped] != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	store := openLedger(t)
	batch := makeBatch("metrics", 1, 12)
	failLabel := batch.Tasks[4].Label()
	exec := &stubExecutor{fail: map[string]int{failLabel: 2}}
	d := dispatch.New(logging.NewNop(), store, dispatch.WithExecutor(exec), dispatch.WithShuffleSeed(42))

	summary, err := d.Run(context.Background(), batch)
	if err == nil {
		t.Fatal("expected error from failing batch")
	}
	var taskErr *dispatch.TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected TaskError, got %T: %v", err, err)
	}
	if taskErr.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", taskErr.ExitCode)
	}
	if taskErr.Task.Label() != failLabel {
		t.Fatalf("expected failing task %s, got %s", failLabel, taskErr.Task.Label())
	}
	if taskErr.StderrTail != "synthetic failure" {
		t.Fatalf("expected stderr tail propagated, got %q", taskErr.StderrTail)
	}

	order := exec.executed()
	if order[len(order)-1] != failLabel {
		t.Fatalf("expected halt after failing task, last executed %s", order[len(order)-1])
	}
	if !summary.Halted {
		t.Fatal("expected halted summary")
	}
	if summary.Failed != 1 {
		t.Fatalf("expected one failure, got %d", summary.Failed)
	}
	if summary.Completed != len(order)-1 {
		t.Fatalf("completed %d does not match executed prefix %d", summary.Completed, len(order)-1)
	}
	if summary.Skipped != summary.Total-len(order) {
		t.Fatalf("skipped %d does not cover unissued tasks (%d executed of %d)", summary.Skipped, len(order), summary.Total)
	}
	if got := summary.Completed + summary.Failed + summary.Skipped; got != summary.Total {
		t.Fatalf("summary does not account for every task: %+v", summary)
	}

	ctx := context.Background()
	batches, err := store.RecentBatches(ctx, 1)
	if err != nil || len(batches) != 1 {
		t.Fatalf("RecentBatches: %v (%d rows)", err, len(batches))
	}
	if batches[0].Status != ledger.BatchFailed {
		t.Fatalf("expected failed batch, got %s", batches[0].Status)
	}
	failed, err := store.FailedTasks(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("FailedTasks: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failed task row, got %d", len(failed))
	}
	if failed[0].ExitCode != 2 || failed[0].RunID != taskErr.Task.RunID {
		t.Fatalf("unexpected failed row: %+v", failed[0])
	}
	stats, err := store.Stats(ctx, batches[0].ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[ledger.TaskSkipped] != summary.Skipped || stats[ledger.TaskCompleted] != summary.Completed {
		t.Fatalf("ledger stats %v disagree with summary %+v", stats, summary)
	}
}

func TestRunShuffleSeedIsDeterministic(t *testing.T) {
	run := func(seed int64) []string {
		exec := &stubExecutor{}
		d := dispatch.New(logging.NewNop(), nil, dispatch.WithExecutor(exec), dispatch.WithShuffleSeed(seed))
		if _, err := d.Run(context.Background(), makeBatch("metrics", 1, 12)); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return exec.executed()
	}

	first := run(99)
	second := run(99)
	if len(first) != 12 {
		t.Fatalf("expected 12 executions, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different orders at %d: %s vs %s", i, first[i], second[i])
		}
	}

	other := run(100)
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical order")
	}
}

func TestRunContextCancellation(t *testing.T) {
	store := openLedger(t)
	exec := &blockingExecutor{started: make(chan struct{}, 6)}
	d := dispatch.New(logging.NewNop(), store, dispatch.WithExecutor(exec), dispatch.WithShuffleSeed(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		summary dispatch.Summary
		err     error
	}
	results := make(chan result, 1)
	go func() {
		summary, err := d.Run(ctx, makeBatch("metrics", 2, 6))
		results <- result{summary, err}
	}()

	<-exec.started
	<-exec.started
	cancel()

	res := <-results
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	if !res.summary.Halted {
		t.Fatal("expected halted summary after cancellation")
	}
	if res.summary.Completed != 0 {
		t.Fatalf("expected no completions, got %d", res.summary.Completed)
	}
	if res.summary.Failed != 2 {
		t.Fatalf("expected both in-flight tasks to fail, got %d", res.summary.Failed)
	}
	if res.summary.Skipped != 4 {
		t.Fatalf("expected unissued tasks skipped, got %d", res.summary.Skipped)
	}

	batches, err := store.RecentBatches(context.Background(), 1)
	if err != nil || len(batches) != 1 {
		t.Fatalf("RecentBatches: %v (%d rows)", err, len(batches))
	}
	if batches[0].Status != ledger.BatchFailed {
		t.Fatalf("expected failed batch after cancellation, got %s", batches[0].Status)
	}
	stats, err := store.Stats(context.Background(), batches[0].ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[ledger.TaskSkipped] != 4 {
		t.Fatalf("expected skipped outcomes persisted despite cancellation, got %v", stats)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	store := openLedger(t)
	d := dispatch.New(logging.NewNop(), store)

	summary, err := d.Run(context.Background(), task.Batch{Name: "metrics", Pipeline: "eval", Workers: 4})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary != (dispatch.Summary{}) {
		t.Fatalf("expected zero summary, got %+v", summary)
	}

	batches, err := store.RecentBatches(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("empty batch should not be recorded, got %d rows", len(batches))
	}
}

func TestRunWithoutLedger(t *testing.T) {
	exec := &stubExecutor{}
	d := dispatch.New(nil, nil, dispatch.WithExecutor(exec))

	summary, err := d.Run(context.Background(), makeBatch("metrics", 2, 3))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Completed != 3 {
		t.Fatalf("expected 3 completions, got %+v", summary)
	}
}
