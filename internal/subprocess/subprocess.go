// Package subprocess runs external tools with a structured argument vector
// and turns their failures into *errs.FetchError values.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"bulkdl/internal/errs"
	"bulkdl/internal/observability"
	"bulkdl/pkg/shellquote"
)

const (
	// stderrTailLines is how many trailing stderr lines are kept for error reports.
	stderrTailLines = 20
	// waitDelay bounds how long output is drained after the process is killed.
	waitDelay = 5 * time.Second
)

// Runner runs one external command and returns its standard output.
// A failed run returns a *errs.FetchError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Exec is the Runner backed by os/exec. No shell is involved.
type Exec struct {
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewExec returns an Exec runner. metrics may be nil.
func NewExec(log *slog.Logger, metrics *observability.Metrics) *Exec {
	return &Exec{
		log:     log.With(slog.String("package", "subprocess")),
		metrics: metrics,
	}
}

// Run starts name with args, logs stderr lines at debug level,
// and classifies the outcome.
func (e *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	tool := filepath.Base(name)
	log := e.log.With(slog.String("tool", tool))

	log.DebugContext(ctx, "run", slog.String("cmd", shellquote.Join(name, args)))

	var stdout bytes.Buffer

	stderr := &tailWriter{ctx: ctx, log: log}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), e.classify(ctx, tool, err, stderr.String())
	}

	e.metrics.RecordDownloaderRequest(tool, "ok")

	return stdout.Bytes(), nil
}

func (e *Exec) classify(ctx context.Context, tool string, err error, stderr string) error {
	fetchErr := Classify(ctx, tool, err, stderr)

	e.metrics.RecordDownloaderRequest(tool, "error")
	e.metrics.RecordDownloaderError(tool, string(fetchErr.Kind))

	return fetchErr
}

// Classify maps a command error to a FetchError.
func Classify(ctx context.Context, tool string, err error, stderr string) *errs.FetchError {
	var exitErr *exec.ExitError

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &errs.FetchError{Kind: errs.FetchToolNotFound, Tool: tool, Code: -1, Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &errs.FetchError{Kind: errs.FetchTimeout, Tool: tool, Code: -1, Stderr: stderr, Err: ctx.Err()}
	case ctx.Err() != nil:
		return &errs.FetchError{Kind: errs.FetchNonZeroExit, Tool: tool, Code: -1, Stderr: stderr, Err: ctx.Err()}
	case errors.As(err, &exitErr):
		return &errs.FetchError{Kind: errs.FetchNonZeroExit, Tool: tool, Code: exitErr.ExitCode(), Stderr: stderr, Err: err}
	default:
		return &errs.FetchError{Kind: errs.FetchNonZeroExit, Tool: tool, Code: -1, Stderr: stderr, Err: err}
	}
}

// tailWriter logs complete lines and keeps the last stderrTailLines of them.
type tailWriter struct {
	ctx     context.Context //nolint:containedctx // scoped to one Run call
	log     *slog.Logger
	partial []byte
	lines   []string
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)

	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}

		w.add(strings.TrimRight(string(w.partial[:i]), "\r"))
		w.partial = w.partial[i+1:]
	}

	return len(p), nil
}

func (w *tailWriter) add(line string) {
	if line == "" {
		return
	}

	w.log.DebugContext(w.ctx, "stderr", slog.String("line", line))

	w.lines = append(w.lines, line)
	if len(w.lines) > stderrTailLines {
		w.lines = w.lines[1:]
	}
}

// String returns the kept lines, including an unterminated last line.
func (w *tailWriter) String() string {
	if len(w.partial) > 0 {
		w.add(string(w.partial))
		w.partial = nil
	}

	return strings.Join(w.lines, "\n")
}
