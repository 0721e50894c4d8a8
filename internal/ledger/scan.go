package ledger

import (
	"database/sql"
	"time"
)

const batchColumns = "id, uuid, pipeline, stage, workers, task_count, status, error, started_at, finished_at"

const taskColumns = "id, batch_id, stage, method, run_id, command, status, exit_code, error, stderr_path, started_at, duration_ms"

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id          int64
		batchUUID   string
		pipeline    string
		stage       string
		workers     int
		taskCount   int
		statusStr   string
		errMessage  sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&batchUUID,
		&pipeline,
		&stage,
		&workers,
		&taskCount,
		&statusStr,
		&errMessage,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:        id,
		UUID:      batchUUID,
		Pipeline:  pipeline,
		Stage:     stage,
		Workers:   workers,
		TaskCount: taskCount,
		Status:    BatchStatus(statusStr),
		Error:     errMessage.String,
		StartedAt: parseTimestamp(startedRaw),
	}
	if finishedRaw.Valid {
		batch.FinishedAt = parseTimestamp(finishedRaw.String)
	}
	return batch, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*TaskRecord, error) {
	var (
		id         int64
		batchID    int64
		stage      string
		method     sql.NullString
		runID      sql.NullString
		command    string
		statusStr  string
		exitCode   int
		errMessage sql.NullString
		stderrPath sql.NullString
		startedRaw string
		durationMS int64
	)

	if err := scanner.Scan(
		&id,
		&batchID,
		&stage,
		&method,
		&runID,
		&command,
		&statusStr,
		&exitCode,
		&errMessage,
		&stderrPath,
		&startedRaw,
		&durationMS,
	); err != nil {
		return nil, err
	}

	return &TaskRecord{
		ID:         id,
		BatchID:    batchID,
		Stage:      stage,
		Method:     method.String,
		RunID:      runID.String,
		Command:    command,
		Status:     TaskStatus(statusStr),
		ExitCode:   exitCode,
		Error:      errMessage.String,
		StderrPath: stderrPath.String,
		StartedAt:  parseTimestamp(startedRaw),
		Duration:   time.Duration(durationMS) * time.Millisecond,
	}, nil
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}
