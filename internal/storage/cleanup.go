package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// RunSweeper removes orphaned requester directories every CleanupInterval until ctx is done.
func (w *Workspace) RunSweeper(ctx context.Context) {
	interval := w.cfg.Storage.CleanupInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := w.log.With(slog.String("action", "sweep_orphans"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			log.Info("orphan sweeper stopped")

			return
		}
	}
}

// Sweep removes requester directories that no batch owns and that were not
// modified within OrphanTTL. It returns the number of directories removed.
func (w *Workspace) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-w.cfg.Storage.OrphanTTL)
	removed := 0

	for _, root := range []string{w.cfg.Dir.Downloads, w.cfg.Dir.Temp} {
		entries, err := os.ReadDir(root)
		if err != nil {
			w.log.WarnContext(ctx, "read dir", slog.String("dir", root), slog.Any("error", err))

			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			id, err := strconv.ParseInt(entry.Name(), 10, 64)
			if err != nil {
				continue
			}

			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			if w.removeOrphan(ctx, id, filepath.Join(root, entry.Name())) {
				removed++
			}
		}
	}

	if removed > 0 {
		w.log.InfoContext(ctx, "orphaned directories removed", slog.Int("count", removed))
	}

	w.metrics.RecordCleanup(removed)

	return removed
}

// removeOrphan deletes path unless a batch owns requesterID. Holding the lock keeps Acquire out meanwhile.
func (w *Workspace) removeOrphan(ctx context.Context, requesterID int64, path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.owned[requesterID]; ok {
		return false
	}

	if err := os.RemoveAll(path); err != nil {
		w.log.ErrorContext(ctx, "remove orphan", slog.String("dir", path), slog.Any("error", err))

		return false
	}

	w.log.DebugContext(ctx, "orphan removed", slog.String("dir", path))

	return true
}
