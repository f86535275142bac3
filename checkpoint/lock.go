package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrJobLocked means another process is already running the job.
var ErrJobLocked = errors.New("checkpoint: job locked by another process")

// JobLock is an advisory cross-process lock for one job id, backed by
// a lock file next to the checkpoint database.
type JobLock struct {
	fl *flock.Flock
}

// AcquireJobLock takes the lock for jobID without blocking. It returns
// ErrJobLocked when a concurrent process holds it.
func AcquireJobLock(dir, jobID string) (*JobLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, jobID+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking job %s: %w", jobID, err)
	}
	if !ok {
		return nil, ErrJobLocked
	}
	return &JobLock{fl: fl}, nil
}

// Release unlocks and removes the lock file. Safe to call once.
func (l *JobLock) Release() error {
	path := l.fl.Path()
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	// Best effort; a leftover file only wastes a directory entry.
	os.Remove(path)
	return nil
}
