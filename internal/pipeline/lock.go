package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"phylobench/internal/logging"
)

// runLock is the advisory lock guarding a results tree. Holding it means no
// other eval or post invocation is working the same tree.
type runLock struct {
	fl *flock.Flock
}

func acquireRunLock(path string) (*runLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, Wrap(ErrConfiguration, "", "lock", fmt.Sprintf("acquire run lock %s", path), err)
	}
	if !ok {
		return nil, Wrap(ErrLocked, "", "lock", fmt.Sprintf("another phylobench invocation holds %s", path), nil)
	}
	return &runLock{fl: fl}, nil
}

func (l *runLock) release(logger *slog.Logger) {
	if l == nil {
		return
	}
	if err := l.fl.Unlock(); err != nil && logger != nil {
		logger.Warn("failed to release run lock", logging.Error(err))
	}
}
