// Package storage owns the per-requester working directories on disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"bulkdl/internal/config"
	"bulkdl/internal/consts"
	"bulkdl/internal/errs"
	"bulkdl/internal/observability"

	"github.com/gofrs/flock"
)

const dirPerm = 0o750

// Workspace hands out downloads/<requesterId>/ and temp/<requesterId>/ to one batch at a time.
type Workspace struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	lock *flock.Flock

	mu    sync.Mutex
	owned map[int64]struct{}
}

// New creates a workspace rooted at the configured downloads and temp directories.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Workspace {
	return &Workspace{
		log:     log.With(slog.String("package", "storage")),
		cfg:     cfg,
		metrics: metrics,
		lock:    flock.New(filepath.Join(cfg.Dir.Downloads, consts.LockFileName)),
		owned:   make(map[int64]struct{}),
	}
}

// Lock creates the data roots and takes an exclusive file lock on them.
// A second process sharing the same directories gets errs.ErrWorkspaceLocked.
func (w *Workspace) Lock() error {
	for _, dir := range []string{w.cfg.Dir.Downloads, w.cfg.Dir.Temp} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", w.lock.Path(), err)
	}

	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrWorkspaceLocked, w.lock.Path())
	}

	return nil
}

// Unlock releases the file lock taken by Lock.
func (w *Workspace) Unlock() error {
	if err := w.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", w.lock.Path(), err)
	}

	return nil
}

// WorkDir returns the download directory of requesterID.
func (w *Workspace) WorkDir(requesterID int64) string {
	return filepath.Join(w.cfg.Dir.Downloads, strconv.FormatInt(requesterID, 10))
}

// TempDir returns the temporary directory of requesterID.
func (w *Workspace) TempDir(requesterID int64) string {
	return filepath.Join(w.cfg.Dir.Temp, strconv.FormatInt(requesterID, 10))
}

// Lease is one batch's ownership of a requester's directories.
type Lease struct {
	WorkDir string
	TempDir string

	once    sync.Once
	release func()
}

// Release removes both directories and gives up ownership. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Acquire reserves the requester's directories for one batch.
// Leftovers in the download directory from an earlier crash are removed first;
// the temp directory is kept since it may hold the credentials file of this batch.
func (w *Workspace) Acquire(ctx context.Context, requesterID int64) (*Lease, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.owned[requesterID]; ok {
		return nil, fmt.Errorf("%w: requester %d", errs.ErrWorkspaceBusy, requesterID)
	}

	workDir, tempDir := w.WorkDir(requesterID), w.TempDir(requesterID)

	if err := os.RemoveAll(workDir); err != nil {
		return nil, fmt.Errorf("clear work dir: %w", err)
	}

	if err := errors.Join(os.MkdirAll(workDir, dirPerm), os.MkdirAll(tempDir, dirPerm)); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	w.owned[requesterID] = struct{}{}

	log := w.log.With(slog.Int64("requester_id", requesterID))
	log.DebugContext(ctx, "workspace acquired", slog.String("work_dir", workDir))

	return &Lease{
		WorkDir: workDir,
		TempDir: tempDir,
		release: func() {
			for _, dir := range []string{workDir, tempDir} {
				if err := os.RemoveAll(dir); err != nil {
					log.ErrorContext(ctx, "remove dir", slog.String("dir", dir), slog.Any("error", err))
				}
			}

			w.mu.Lock()
			delete(w.owned, requesterID)
			w.mu.Unlock()

			log.DebugContext(ctx, "workspace released")
		},
	}, nil
}

// Owned reports whether a batch currently holds requesterID's directories.
func (w *Workspace) Owned(requesterID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.owned[requesterID]

	return ok
}
