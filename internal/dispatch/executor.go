package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"phylobench/internal/task"
)

// stderrTailLimit bounds the stderr retained in memory per task for error
// reporting. The full stream still lands in Task.StderrPath when set.
const stderrTailLimit = 4 * 1024

// Outcome captures one finished task execution.
type Outcome struct {
	ExitCode   int
	Duration   time.Duration
	StderrTail string
	Err        error
}

// Executor runs one task to completion. Implementations must honour context
// cancellation by killing the child process.
type Executor interface {
	Run(ctx context.Context, t task.Task) Outcome
}

// commandExecutor is the production Executor. It starts the task's program
// directly, never through a shell, with OMP_NUM_THREADS pinned to 1 so
// children do not oversubscribe cores under the outer worker pool.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, t task.Task) Outcome {
	start := time.Now()

	cmd := exec.CommandContext(ctx, t.Command.Program, t.Command.Args...) //nolint:gosec
	cmd.Env = mergedEnv(t.Command.Env)
	cmd.Stdout = io.Discard

	tail := &tailBuffer{limit: stderrTailLimit}
	var stderr io.Writer = tail
	var capture *os.File
	if t.StderrPath != "" {
		if err := os.MkdirAll(filepath.Dir(t.StderrPath), 0o755); err != nil {
			return Outcome{ExitCode: -1, Duration: time.Since(start), Err: fmt.Errorf("create stderr directory: %w", err)}
		}
		file, err := os.Create(t.StderrPath)
		if err != nil {
			return Outcome{ExitCode: -1, Duration: time.Since(start), Err: fmt.Errorf("create stderr file: %w", err)}
		}
		capture = file
		stderr = io.MultiWriter(file, tail)
	}
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if capture != nil {
		_ = capture.Close()
	}

	outcome := Outcome{Duration: time.Since(start), StderrTail: tail.String()}
	if runErr == nil {
		return outcome
	}

	outcome.Err = runErr
	outcome.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.Err = ctxErr
	}
	return outcome
}

// mergedEnv layers task variables over the inherited environment. Later
// entries win for duplicate keys, so task values override inherited ones and
// OMP_NUM_THREADS stays pinned unless the task sets it explicitly.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	if _, ok := extra["OMP_NUM_THREADS"]; !ok {
		env = append(env, "OMP_NUM_THREADS=1")
	}
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+extra[key])
	}
	return env
}

// tailBuffer keeps the last limit bytes written to it. Each task owns its
// buffer, so no locking is needed.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
