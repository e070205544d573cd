// Package flock serialises changes to the installation directory across concurrently running processes.
package flock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/errs"
)

var ErrNoLockRelease = errors.New("unable to release file lock")

const (
	pollInterval        = 100 * time.Millisecond
	pidWriteGracePeriod = 1 * time.Second
	waitNotice          = 50
)

// Lock is an advisory lock materialised as a file holding the PID of its owner.
type Lock struct {
	log  *zap.Logger
	path string
}

// Acquire blocks until the lock at path is held by the calling process or ctx is done. A lock whose owner has exited
// is broken.
func Acquire(ctx context.Context, log *zap.Logger, path string) (*Lock, error) {
	log = log.With(zap.String("lock", path))
	for {
		ok, err := tryAcquire(log, path)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to create lock file %q: %w", errs.ErrFilesystem, path, err)
		}
		if ok {
			return &Lock{log: log, path: path}, nil
		}
		if err = waitOnPID(ctx, log, path); err != nil {
			return nil, err
		}
	}
}

func (l *Lock) Release() error {
	l.log.Debug("Deleting lock file.")
	return release(l.log, l.path)
}

func tryAcquire(log *zap.Logger, path string) (bool, error) {
	sem, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		log.Debug("Lock file already exists. Waiting for it to be released.")
		return false, nil
	} else if err != nil {
		return false, err
	}

	log.Debug("Acquired lock. Writing PID to file.")
	if _, err = fmt.Fprint(sem, os.Getpid()); err != nil {
		_ = sem.Close()
		_ = os.Remove(path)
		return false, err
	}
	if err = sem.Close(); err != nil {
		_ = os.Remove(path)
		return false, err
	}
	return true, nil
}

func release(log *zap.Logger, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Could not delete lock file.", zap.Error(err))
		return fmt.Errorf("%w (%s): %w", ErrNoLockRelease, path, err)
	}
	return nil
}

// breakStale removes an abandoned lock file. The file is first moved aside under a unique name and checked again, so
// that a lock freshly taken by another waiter after ours was observed as stale is put back instead of deleted.
func breakStale(log *zap.Logger, path string, stillStale func([]byte, os.FileInfo) bool) error {
	aside := fmt.Sprintf("%s.stale-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: unable to move stale lock %q aside: %w", errs.ErrFilesystem, path, err)
	}

	content, readErr := os.ReadFile(aside)
	fi, statErr := os.Stat(aside)
	if readErr == nil && statErr == nil && !stillStale(content, fi) {
		log.Debug("Lock was taken over while being broken. Putting it back.")
		// Link fails rather than replace a lock created in the meantime.
		if err := os.Link(aside, path); err != nil {
			log.Debug("Unable to put back the lock file.", zap.Error(err))
		}
	}
	return release(log, aside)
}

func waitOnPID(ctx context.Context, log *zap.Logger, path string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for iterations := 1; ; iterations++ {
		if iterations%waitNotice == 0 {
			log.Info("Waiting for another wasmenv process to finish.")
		}

		c, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Lock has been released. PID file was deleted.")
			return nil
		} else if err != nil {
			return fmt.Errorf("%w: unable to read lock file %q: %w", errs.ErrFilesystem, path, err)
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(c)))
		switch {
		case err != nil:
			// The owner may not have written its PID yet. Past the grace period it is presumed to have died before
			// doing so.
			fi, statErr := os.Stat(path)
			if errors.Is(statErr, os.ErrNotExist) {
				return nil
			} else if statErr != nil {
				return fmt.Errorf("%w: unable to inspect lock file %q: %w", errs.ErrFilesystem, path, statErr)
			}
			if time.Since(fi.ModTime()) >= pidWriteGracePeriod {
				log.Debug("Forcing lock release after PID-write grace period expired.")
				return breakStale(log, path, func(content []byte, fi os.FileInfo) bool {
					_, err := strconv.Atoi(strings.TrimSpace(string(content)))
					return err != nil && time.Since(fi.ModTime()) >= pidWriteGracePeriod
				})
			}
		case !processIsRunning(pid):
			log.Debug("Forcing lock release after owning PID exited.", zap.Int("pid", pid))
			return breakStale(log, path, func(content []byte, _ os.FileInfo) bool {
				return bytes.Equal(content, c)
			})
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: gave up waiting on lock %q: %w", errs.ErrPrecondition, path, ctx.Err())
		case <-ticker.C:
		}
	}
}
