package ledger

import "time"

// BatchStatus represents the final state of a dispatched batch.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// TaskStatus represents one task's outcome.
type TaskStatus string

const (
	// TaskCompleted means the command exited zero.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the command exited nonzero or could not start.
	TaskFailed TaskStatus = "failed"
	// TaskSkipped means the batch halted before the task was issued.
	TaskSkipped TaskStatus = "skipped"
)

// Batch is one dispatcher invocation.
type Batch struct {
	ID         int64
	UUID       string
	Pipeline   string
	Stage      string
	Workers    int
	TaskCount  int
	Status     BatchStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// TaskRecord is one task outcome within a batch.
type TaskRecord struct {
	ID         int64
	BatchID    int64
	Stage      string
	Method     string
	RunID      string
	Command    string
	Status     TaskStatus
	ExitCode   int
	Error      string
	StderrPath string
	StartedAt  time.Time
	Duration   time.Duration
}
