package storage_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/errs"
	"bulkdl/internal/storage"
)

func newWorkspace(t *testing.T, interval time.Duration) (*storage.Workspace, *config.Config) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		Dir: config.Dir{
			Downloads: filepath.Join(root, "downloads"),
			Temp:      filepath.Join(root, "temp"),
		},
		Storage: config.Storage{OrphanTTL: 24 * time.Hour, CleanupInterval: interval},
	}

	return storage.New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, nil), cfg
}

func TestAcquireRelease(t *testing.T) {
	ws, cfg := newWorkspace(t, 0)

	stale := filepath.Join(cfg.Dir.Downloads, "42", "old.mp4")
	if err := os.MkdirAll(filepath.Dir(stale), 0o750); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	creds := filepath.Join(cfg.Dir.Temp, "42", "cookies.txt")
	if err := os.MkdirAll(filepath.Dir(creds), 0o750); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(creds, []byte("c"), 0o600); err != nil {
		t.Fatal(err)
	}

	lease, err := ws.Acquire(t.Context(), 42)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if lease.WorkDir != filepath.Join(cfg.Dir.Downloads, "42") || lease.TempDir != filepath.Join(cfg.Dir.Temp, "42") {
		t.Errorf("lease dirs = %s, %s", lease.WorkDir, lease.TempDir)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("leftover in work dir survived Acquire")
	}

	if _, err := os.Stat(creds); err != nil {
		t.Errorf("credentials removed by Acquire: %v", err)
	}

	if _, err := ws.Acquire(t.Context(), 42); !errors.Is(err, errs.ErrWorkspaceBusy) {
		t.Errorf("second Acquire err = %v, want ErrWorkspaceBusy", err)
	}

	other, err := ws.Acquire(t.Context(), 7)
	if err != nil {
		t.Fatalf("Acquire other requester: %v", err)
	}
	defer other.Release()

	lease.Release()
	lease.Release()

	for _, dir := range []string{lease.WorkDir, lease.TempDir} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s not removed", dir)
		}
	}

	if ws.Owned(42) {
		t.Error("requester still owned after Release")
	}

	again, err := ws.Acquire(t.Context(), 42)
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}

	again.Release()
}

func TestLock(t *testing.T) {
	first, cfg := newWorkspace(t, 0)
	second := storage.New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, nil)

	if err := first.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := second.Lock(); !errors.Is(err, errs.ErrWorkspaceLocked) {
		t.Errorf("second Lock err = %v, want ErrWorkspaceLocked", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if err := second.Lock(); err != nil {
		t.Errorf("Lock after Unlock: %v", err)
	}

	if err := second.Unlock(); err != nil {
		t.Error(err)
	}
}

func TestSweeper(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		interval := time.Hour
		ws, cfg := newWorkspace(t, interval)

		if err := ws.Lock(); err != nil {
			t.Fatal(err)
		}
		defer ws.Unlock()

		old := time.Now().Add(-48 * time.Hour)

		mkdir := func(path string, mtime time.Time) {
			if err := os.MkdirAll(path, 0o750); err != nil {
				t.Fatal(err)
			}

			if err := os.Chtimes(path, mtime, mtime); err != nil {
				t.Fatal(err)
			}
		}

		orphanDownloads := filepath.Join(cfg.Dir.Downloads, "1")
		orphanTemp := filepath.Join(cfg.Dir.Temp, "1")
		fresh := filepath.Join(cfg.Dir.Downloads, "2")
		notRequester := filepath.Join(cfg.Dir.Downloads, "cache")

		mkdir(orphanDownloads, old)
		mkdir(orphanTemp, old)
		mkdir(fresh, time.Now())
		mkdir(notRequester, old)

		lease, err := ws.Acquire(t.Context(), 3)
		if err != nil {
			t.Fatal(err)
		}

		if err := os.Chtimes(lease.WorkDir, old, old); err != nil {
			t.Fatal(err)
		}

		go ws.RunSweeper(t.Context())

		time.Sleep(interval + time.Minute)
		synctest.Wait()

		tests := []struct {
			path string
			kept bool
		}{
			{orphanDownloads, false},
			{orphanTemp, false},
			{fresh, true},
			{notRequester, true},
			{lease.WorkDir, true},
			{filepath.Join(cfg.Dir.Downloads, ".bulkdl.lock"), true},
		}

		for _, tc := range tests {
			_, err := os.Stat(tc.path)
			if kept := err == nil; kept != tc.kept {
				t.Errorf("%s kept = %v, want %v", tc.path, kept, tc.kept)
			}
		}

		lease.Release()
	})
}
