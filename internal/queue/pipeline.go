package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bulkdl/internal/entity"
	"bulkdl/internal/errs"

	"golang.org/x/sync/semaphore"
)

// Counts is the state of a phase after an item finishes.
// Done+Remaining always equals Total.
type Counts struct {
	Total     int
	Done      int
	Remaining int
}

// ReportFunc receives Counts after every finished item.
type ReportFunc func(ctx context.Context, c Counts)

// FetchFunc processes one download item.
type FetchFunc func(ctx context.Context, item entity.QueueItem) error

// DeliverFunc sends one produced file.
type DeliverFunc func(ctx context.Context, path string) error

// DownloadResult aggregates the outcome of a download phase.
type DownloadResult struct {
	Succeeded int
	Failed    int
	Skipped   int
	// Fatal is the error that stopped the phase early, if any.
	Fatal error
}

// UploadResult aggregates the outcome of an upload phase.
type UploadResult struct {
	Delivered int
	Failed    int
}

// Pipeline drains one batch's queues.
type Pipeline struct {
	log     *slog.Logger
	workers int
	delay   time.Duration
}

// NewPipeline returns a pipeline running up to workers fetches at once
// and pausing delay between uploads.
func NewPipeline(log *slog.Logger, workers int, delay time.Duration) *Pipeline {
	return &Pipeline{
		log:     log.With(slog.String("package", "queue")),
		workers: max(workers, 1),
		delay:   delay,
	}
}

// RunDownloadPhase pulls items in FIFO order until the queue is empty,
// running up to the configured number of fetches at once.
// Item failures are counted and do not stop the loop. A fatal error
// (see errs.IsFatal) stops further pulls and the remaining items are drained as skipped.
func (p *Pipeline) RunDownloadPhase(
	ctx context.Context,
	q *Queue[entity.QueueItem],
	fetch FetchFunc,
	report ReportFunc,
) (DownloadResult, error) {
	if err := q.claim(); err != nil {
		return DownloadResult{}, err
	}
	defer q.release()

	total := q.Len()
	sem := semaphore.NewWeighted(int64(p.workers))

	reports := startReporter(ctx, report)
	defer reports.stop()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		done   int
		result DownloadResult
	)

	finish := func(err error) {
		mu.Lock()
		defer mu.Unlock()

		done++

		switch {
		case err == nil:
			result.Succeeded++
		case errs.IsFatal(err):
			result.Failed++

			if result.Fatal == nil {
				result.Fatal = err
			}
		default:
			result.Failed++
		}

		reports.push(Counts{Total: total, Done: done, Remaining: total - done})
	}

	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()

		return result.Fatal != nil
	}

	for !stopped() {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		// Re-check after waiting: a running item may have hit a fatal error.
		if stopped() {
			sem.Release(1)

			break
		}

		item, ok := q.Pop()
		if !ok {
			sem.Release(1)

			break
		}

		wg.Go(func() {
			defer sem.Release(1)

			err := fetch(ctx, item)
			if err != nil {
				p.log.WarnContext(ctx, "item failed",
					slog.Int("index", item.Index),
					slog.String("url", item.URL),
					slog.Any("error", err))
			}

			finish(err)
		})
	}

	wg.Wait()

	for _, item := range q.Drain() {
		p.log.DebugContext(ctx, "item skipped", slog.Int("index", item.Index), slog.String("url", item.URL))

		mu.Lock()
		result.Skipped++
		done++
		reports.push(Counts{Total: total, Done: done, Remaining: total - done})
		mu.Unlock()
	}

	reports.stop()

	return result, nil
}

// reporter hands Counts to a ReportFunc from its own goroutine, in push order,
// so workers never wait on a status edit. A nil *reporter discards everything.
type reporter struct {
	ctx    context.Context //nolint:containedctx // scoped to one phase
	report ReportFunc

	mu      sync.Mutex
	pending []Counts
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func startReporter(ctx context.Context, report ReportFunc) *reporter {
	if report == nil {
		return nil
	}

	r := &reporter{
		ctx:    ctx,
		report: report,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go r.loop()

	return r
}

func (r *reporter) push(c Counts) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.pending = append(r.pending, c)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *reporter) loop() {
	defer close(r.done)

	for range r.wake {
		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				r.mu.Unlock()

				break
			}

			c := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()

			r.report(r.ctx, c)
		}
	}
}

// stop delivers what is still pending and waits for the goroutine to exit.
func (r *reporter) stop() {
	if r == nil {
		return
	}

	r.once.Do(func() { close(r.wake) })
	<-r.done
}

// RunUploadPhase delivers queued files one at a time in FIFO order,
// pausing between items. cleanup runs last on every path, including
// cancellation and a refused queue.
func (p *Pipeline) RunUploadPhase(
	ctx context.Context,
	q *Queue[string],
	deliver DeliverFunc,
	report ReportFunc,
	cleanup func(),
) (UploadResult, error) {
	if cleanup != nil {
		defer cleanup()
	}

	if err := q.claim(); err != nil {
		return UploadResult{}, err
	}
	defer q.release()

	total := q.Len()

	var result UploadResult

	for done := 1; q.Len() > 0; done++ {
		if done > 1 && p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
			}
		}

		if ctx.Err() != nil {
			return result, fmt.Errorf("upload phase: %w", ctx.Err())
		}

		path, ok := q.Pop()
		if !ok {
			break
		}

		if err := deliver(ctx, path); err != nil {
			result.Failed++

			p.log.WarnContext(ctx, "delivery failed", slog.String("path", path), slog.Any("error", err))
		} else {
			result.Delivered++
		}

		if report != nil {
			report(ctx, Counts{Total: total, Done: done, Remaining: total - done})
		}
	}

	return result, nil
}
