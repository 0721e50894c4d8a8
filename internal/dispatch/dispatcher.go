package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"phylobench/internal/ledger"
	"phylobench/internal/logging"
	"phylobench/internal/task"
)

const defaultProgressInterval = 30 * time.Second

// TaskError describes the first failing task in a halted batch.
type TaskError struct {
	Task       task.Task
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task.Label(), e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Summary aggregates the outcome of one dispatched batch.
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Halted    bool
	Duration  time.Duration
}

// Dispatcher feeds task batches to a bounded worker pool.
type Dispatcher struct {
	logger   *slog.Logger
	store    *ledger.Store
	exec     Executor
	seed     int64
	interval time.Duration
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(d *Dispatcher) {
		if exec != nil {
			d.exec = exec
		}
	}
}

// WithShuffleSeed fixes the task shuffle order. Zero seeds from the clock.
func WithShuffleSeed(seed int64) Option {
	return func(d *Dispatcher) {
		d.seed = seed
	}
}

// WithProgressInterval overrides how often batch progress is logged.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// New constructs a dispatcher. The ledger store may be nil, in which case
// outcomes are not persisted.
func New(logger *slog.Logger, store *ledger.Store, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		logger:   logging.NewComponentLogger(logger, "dispatch"),
		store:    store,
		exec:     commandExecutor{},
		interval: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// batchState tracks shared counters across workers.
type batchState struct {
	mu        sync.Mutex
	completed int
	failed    int
	skipped   int
	firstErr  *TaskError
}

func (s *batchState) done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed + s.failed
}

// Run dispatches every task in the batch and blocks until all issued tasks
// finish. The first nonzero exit stops the feed: running tasks complete,
// unissued tasks are recorded as skipped, and the first failure is returned.
// Cancelling ctx kills in-flight children.
func (d *Dispatcher) Run(ctx context.Context, batch task.Batch) (Summary, error) {
	start := time.Now()
	total := len(batch.Tasks)

	logger := logging.WithContext(ctx, d.logger)
	if total == 0 {
		logger.Info("batch empty, nothing to dispatch",
			logging.String("batch_name", batch.Name))
		return Summary{}, nil
	}

	workers := batch.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	var batchRow *ledger.Batch
	if d.store != nil {
		row, err := d.store.BeginBatch(ctx, batch.Pipeline, batch.Name, workers, total)
		if err != nil {
			logger.Warn("ledger unavailable, outcomes will not be recorded", logging.Error(err))
		} else {
			batchRow = row
			logger = logger.With(logging.String(logging.FieldBatch, row.UUID))
		}
	}
	logger = logger.With(
		logging.String("batch_name", batch.Name),
		logging.Int(logging.FieldWorkers, workers),
	)

	logger.Info("batch started", logging.Int("tasks", total))

	tasks := make([]task.Task, total)
	copy(tasks, batch.Tasks)
	d.shuffle(tasks)

	state := &batchState{}
	feed := make(chan task.Task)
	halt := make(chan struct{})
	var haltOnce sync.Once
	triggerHalt := func() { haltOnce.Do(func() { close(halt) }) }

	recordTask := func(t task.Task, status ledger.TaskStatus, outcome Outcome) {
		if batchRow == nil {
			return
		}
		errMsg := ""
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}
		rec := &ledger.TaskRecord{
			BatchID:    batchRow.ID,
			Stage:      t.Stage,
			Method:     t.Method,
			RunID:      t.RunID,
			Command:    t.Command.String(),
			Status:     status,
			ExitCode:   outcome.ExitCode,
			Error:      errMsg,
			StderrPath: t.StderrPath,
			Duration:   outcome.Duration,
		}
		// Recording runs on worker goroutines; use a background-derived
		// context so a cancelled batch still gets its outcomes persisted.
		if err := d.store.RecordTask(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("record task outcome", logging.Error(err))
		}
	}

	// Feeder. Stops on halt or cancellation and records never-issued tasks
	// as skipped.
	go func() {
		defer close(feed)
		for i := range tasks {
			select {
			case feed <- tasks[i]:
			case <-halt:
				d.recordSkipped(tasks[i:], state, recordTask)
				return
			case <-ctx.Done():
				triggerHalt()
				d.recordSkipped(tasks[i:], state, recordTask)
				return
			}
		}
	}()

	stopProgress := d.startProgress(logger, batch.Name, total, state, start)
	defer stopProgress()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range feed {
				select {
				case <-halt:
					// Slipped past the feeder at the halt boundary.
					d.recordSkipped([]task.Task{t}, state, recordTask)
					continue
				default:
				}

				outcome := d.exec.Run(ctx, t)
				if outcome.Err == nil {
					state.mu.Lock()
					state.completed++
					state.mu.Unlock()
					recordTask(t, ledger.TaskCompleted, outcome)
					logger.Debug("task completed",
						logging.String("task", t.Label()),
						logging.Duration("duration", outcome.Duration))
					continue
				}

				state.mu.Lock()
				state.failed++
				if state.firstErr == nil {
					state.firstErr = &TaskError{
						Task:       t,
						ExitCode:   outcome.ExitCode,
						StderrTail: outcome.StderrTail,
						Err:        outcome.Err,
					}
				}
				state.mu.Unlock()
				triggerHalt()
				recordTask(t, ledger.TaskFailed, outcome)
				logger.Error("task failed, halting batch",
					logging.String("task", t.Label()),
					logging.String("command", t.Command.String()),
					logging.Int("exit_code", outcome.ExitCode),
					logging.String("stderr_tail", outcome.StderrTail),
					logging.Error(outcome.Err))
			}
		}()
	}

	wg.Wait()

	state.mu.Lock()
	summary := Summary{
		Total:     total,
		Completed: state.completed,
		Failed:    state.failed,
		Skipped:   state.skipped,
		Duration:  time.Since(start),
	}
	firstErr := state.firstErr
	state.mu.Unlock()
	summary.Halted = summary.Failed > 0 || ctx.Err() != nil

	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = ctx.Err()
	case firstErr != nil:
		runErr = firstErr
	}

	if batchRow != nil {
		status := ledger.BatchCompleted
		errMsg := ""
		if runErr != nil {
			status = ledger.BatchFailed
			errMsg = runErr.Error()
		}
		if err := d.store.FinishBatch(context.WithoutCancel(ctx), batchRow.ID, status, errMsg); err != nil {
			logger.Warn("finish batch record", logging.Error(err))
		}
	}

	logger.Info("batch finished",
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Bool("halted", summary.Halted),
		logging.Duration("duration", summary.Duration))

	return summary, runErr
}

func (d *Dispatcher) recordSkipped(tasks []task.Task, state *batchState, record func(task.Task, ledger.TaskStatus, Outcome)) {
	if len(tasks) == 0 {
		return
	}
	state.mu.Lock()
	state.skipped += len(tasks)
	state.mu.Unlock()
	for _, t := range tasks {
		record(t, ledger.TaskSkipped, Outcome{})
	}
}

func (d *Dispatcher) shuffle(tasks []task.Task) {
	var rng *rand.Rand
	if d.seed != 0 {
		rng = rand.New(rand.NewPCG(uint64(d.seed), uint64(d.seed)))
	} else {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	rng.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
}

// startProgress emits sampled progress lines until the returned stop func
// runs. Observability only; dispatch behavior never depends on it.
func (d *Dispatcher) startProgress(logger *slog.Logger, name string, total int, state *batchState, start time.Time) func() {
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		sampler := logging.NewProgressSampler(5)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				done := state.done()
				percent := float64(done) / float64(total) * 100
				if !sampler.ShouldLog(percent, name) {
					continue
				}
				elapsed := time.Since(start)
				attrs := []logging.Attr{
					logging.Int("done", done),
					logging.Int("total", total),
					logging.Duration("elapsed", elapsed.Round(time.Second)),
				}
				if done > 0 && done < total {
					eta := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
					attrs = append(attrs, logging.Duration("eta", eta.Round(time.Second)))
				}
				logger.Info("batch progress", logging.Args(attrs...)...)
			}
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}
