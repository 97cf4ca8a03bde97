package subprocess_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"bulkdl/internal/errs"
	"bulkdl/internal/subprocess"
)

func script(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	return path
}

func newExec() *subprocess.Exec {
	return subprocess.NewExec(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestRunSuccess(t *testing.T) {
	bin := script(t, `echo "out:$1:$2"; echo "noise" >&2`)

	out, err := newExec().Run(t.Context(), bin, "a b", "$(rm -rf /)")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := strings.TrimSpace(string(out)); got != "out:a b:$(rm -rf /)" {
		t.Errorf("stdout = %q, arguments were not passed verbatim", got)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		bin      func(t *testing.T) string
		timeout  time.Duration
		wantKind errs.FetchKind
		wantIs   error
		check    func(t *testing.T, fe *errs.FetchError)
	}{
		{
			name:     "missing binary on path",
			bin:      func(*testing.T) string { return "bulkdl-no-such-tool" },
			wantKind: errs.FetchToolNotFound,
			wantIs:   errs.ErrToolNotFound,
		},
		{
			name:     "missing absolute binary",
			bin:      func(t *testing.T) string { return filepath.Join(t.TempDir(), "yt-dlp") },
			wantKind: errs.FetchToolNotFound,
			wantIs:   errs.ErrToolNotFound,
		},
		{
			name:     "non-zero exit",
			bin:      func(t *testing.T) string { return script(t, `echo "ERROR: unsupported url" >&2; exit 3`) },
			wantKind: errs.FetchNonZeroExit,
			wantIs:   errs.ErrNonZeroExit,
			check: func(t *testing.T, fe *errs.FetchError) {
				if fe.Code != 3 {
					t.Errorf("code = %d, want 3", fe.Code)
				}

				if !strings.Contains(fe.Stderr, "unsupported url") {
					t.Errorf("stderr = %q", fe.Stderr)
				}
			},
		},
		{
			name:     "timeout",
			bin:      func(t *testing.T) string { return script(t, `exec sleep 5`) },
			timeout:  50 * time.Millisecond,
			wantKind: errs.FetchTimeout,
			wantIs:   errs.ErrTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := t.Context()

			if tc.timeout > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, tc.timeout)
				defer cancel()
			}

			_, err := newExec().Run(ctx, tc.bin(t))

			var fe *errs.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *errs.FetchError", err)
			}

			if fe.Kind != tc.wantKind {
				t.Errorf("kind = %s, want %s", fe.Kind, tc.wantKind)
			}

			if !errors.Is(err, tc.wantIs) {
				t.Errorf("errors.Is(%v) = false", tc.wantIs)
			}

			if tc.check != nil {
				tc.check(t, fe)
			}
		})
	}
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	fe := subprocess.Classify(ctx, "yt-dlp", errors.New("signal: killed"), "")
	if fe.Kind != errs.FetchNonZeroExit || !errors.Is(fe, context.Canceled) {
		t.Errorf("got %+v", fe)
	}
}
