package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bulkdl/internal/consts"
	"bulkdl/internal/observability"
	"bulkdl/internal/transport"
)

// Editor edits an existing status message.
type Editor interface {
	Edit(ctx context.Context, ref transport.MessageRef, text string) error
}

// Reporter owns one status message and keeps it up to date.
// Edit failures are logged and swallowed.
type Reporter struct {
	log     *slog.Logger
	editor  Editor
	metrics *observability.Metrics
	ref     transport.MessageRef

	mu   sync.Mutex
	last string
}

// NewReporter returns a reporter for the message at ref. metrics may be nil.
func NewReporter(log *slog.Logger, editor Editor, ref transport.MessageRef, metrics *observability.Metrics) *Reporter {
	return &Reporter{
		log:     log.With(slog.String("package", "progress")),
		editor:  editor,
		metrics: metrics,
		ref:     ref,
	}
}

// Update replaces the status text. Identical consecutive texts are not re-sent.
func (r *Reporter) Update(ctx context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if text == r.last {
		return
	}

	err := r.editor.Edit(ctx, r.ref, text)
	if err != nil {
		r.metrics.RecordStatusEditError()
		r.log.WarnContext(ctx, "status edit failed", slog.Int("message_id", r.ref.MessageID), slog.Any("error", err))

		return
	}

	r.last = text
}

// Items renders the queue counter under header.
func (r *Reporter) Items(ctx context.Context, header string, total, done int) {
	r.Update(ctx, header+"\n"+Counter(total, done))
}

// Bytes returns a callback that renders throttled byte progress under label.
// now may be nil.
func (r *Reporter) Bytes(ctx context.Context, label string, now func() time.Time) func(current, total int64) {
	throttle := NewThrottle(consts.ProgressEditInterval, now)

	return func(current, total int64) {
		ok, elapsed := throttle.Allow(current, total)
		if !ok {
			return
		}

		r.Update(ctx, Render(current, total, label, elapsed))
	}
}
