package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginBatch inserts a new running batch and returns it.
func (s *Store) BeginBatch(ctx context.Context, pipeline, stage string, workers, taskCount int) (*Batch, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	batchUUID := uuid.NewString()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO batches (uuid, pipeline, stage, workers, task_count, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batchUUID,
		pipeline,
		stage,
		workers,
		taskCount,
		BatchRunning,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetBatch(ctx, id)
}

// FinishBatch records a batch's final status.
func (s *Store) FinishBatch(ctx context.Context, id int64, status BatchStatus, errMsg string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status,
		nullableString(errMsg),
		timestamp,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

// RecordTask appends one task outcome to a batch.
func (s *Store) RecordTask(ctx context.Context, rec *TaskRecord) error {
	if rec == nil {
		return errors.New("task record is nil")
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (batch_id, stage, method, run_id, command, status,
            exit_code, error, stderr_path, started_at, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BatchID,
		rec.Stage,
		nullableString(rec.Method),
		nullableString(rec.RunID),
		rec.Command,
		rec.Status,
		rec.ExitCode,
		nullableString(rec.Error),
		nullableString(rec.StderrPath),
		startedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetBatch fetches a batch by identifier. Returns nil when absent.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// RecentBatches returns the most recently started batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]*Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	batches := make([]*Batch, 0, limit)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// TasksForBatch returns every task recorded for a batch in insertion order.
func (s *Store) TasksForBatch(ctx context.Context, batchID int64) ([]*TaskRecord, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE batch_id = ? ORDER BY id`, batchID)
}

// FailedTasks returns the failed tasks for a batch in insertion order.
func (s *Store) FailedTasks(ctx context.Context, batchID int64) ([]*TaskRecord, error) {
	return s.queryTasks(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE batch_id = ? AND status = ? ORDER BY id`,
		batchID, TaskFailed,
	)
}

// Stats returns per-status task counts for a batch.
func (s *Store) Stats(ctx context.Context, batchID int64) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM tasks WHERE batch_id = ? GROUP BY status`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()

	stats := make(map[TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[TaskStatus(status)] = count
	}
	return stats, rows.Err()
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var records []*TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
