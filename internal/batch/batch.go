// Package batch runs one JobSpec end to end: fetch every URL, deliver the
// results and clean up.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/consts"
	"bulkdl/internal/downloader"
	"bulkdl/internal/entity"
	"bulkdl/internal/errs"
	"bulkdl/internal/media"
	"bulkdl/internal/observability"
	"bulkdl/internal/progress"
	"bulkdl/internal/queue"
	"bulkdl/internal/storage"
	"bulkdl/internal/transport"

	"github.com/dustin/go-humanize"
)

// Batch outcomes reported to metrics.
const (
	outcomeCompleted = "completed"
	outcomeEmpty     = "empty"
	outcomeAborted   = "aborted"
)

// Preparer classifies a produced file and gathers what is sent along with it.
type Preparer interface {
	Prepare(ctx context.Context, path, thumbDir string) (media.Prepared, error)
}

// Workspace hands out a requester's working directories.
type Workspace interface {
	Acquire(ctx context.Context, requesterID int64) (*storage.Lease, error)
}

// Orchestrator drives batches through the download and upload phases.
type Orchestrator struct {
	log       *slog.Logger
	cfg       *config.Config
	transport transport.Transport
	fetcher   downloader.Fetcher
	preparer  Preparer
	workspace Workspace
	metrics   *observability.Metrics
}

// New returns an orchestrator. metrics may be nil.
func New(
	log *slog.Logger,
	cfg *config.Config,
	tr transport.Transport,
	fetcher downloader.Fetcher,
	preparer Preparer,
	workspace Workspace,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		log:       log.With(slog.String("package", "batch")),
		cfg:       cfg,
		transport: tr,
		fetcher:   fetcher,
		preparer:  preparer,
		workspace: workspace,
		metrics:   metrics,
	}
}

// run is the state of one batch.
type run struct {
	start  time.Time
	spec   entity.JobSpec
	log    *slog.Logger
	status *progress.Reporter
	report entity.BatchReport
}

// Run executes spec and returns its summary. It never fails: item errors,
// delivery errors and aborts all end up in the report, and the requester's
// directories are removed on every path.
func (o *Orchestrator) Run(ctx context.Context, spec entity.JobSpec) entity.BatchReport {
	observe := o.metrics.BatchTimer()

	r := &run{
		start:  time.Now(),
		spec:   spec,
		log:    o.log.With(slog.Any("job", spec)),
		report: entity.BatchReport{BatchID: spec.BatchID, Attempted: len(spec.URLs)},
	}

	outcome := o.execute(ctx, r)

	r.report.Duration = time.Since(r.start)
	observe(outcome)

	r.log.InfoContext(ctx, "batch finished", slog.String("outcome", outcome), slog.Any("report", r.report))

	return r.report
}

func (o *Orchestrator) execute(ctx context.Context, r *run) string {
	lease, err := o.workspace.Acquire(ctx, r.spec.RequesterID)
	if err != nil {
		r.log.ErrorContext(ctx, "acquire workspace", slog.Any("error", err))
		o.abort(ctx, r, err, consts.MsgBusy)

		return outcomeAborted
	}
	defer lease.Release()

	r.spec.WorkDir, r.spec.TempDir = lease.WorkDir, lease.TempDir

	ref, err := o.transport.Send(ctx, r.spec.ChatID, fmt.Sprintf(consts.MsgStarting, len(r.spec.URLs)), nil)
	if err != nil {
		r.log.WarnContext(ctx, "send status message", slog.Any("error", err))
	} else {
		defer o.deleteStatus(ctx, r, ref)
	}

	r.status = progress.NewReporter(r.log, o.transport, ref, o.metrics)

	pipeline := queue.NewPipeline(r.log, o.cfg.Job.Workers, o.cfg.Job.UploadDelay)

	if err := o.download(ctx, r, pipeline); err != nil {
		msg := ""
		if errs.IsFatal(err) {
			msg = consts.MsgToolMissing
		}

		o.abort(ctx, r, err, msg)

		return outcomeAborted
	}

	var deliverErr error

	switch r.spec.DeliveryMode {
	case entity.DeliveryArchive:
		deliverErr = o.deliverArchive(ctx, r)
	default:
		deliverErr = o.deliverIndividually(ctx, r, pipeline, lease.Release)
	}

	switch {
	case errors.Is(deliverErr, errs.ErrNoDeliverables):
		o.notify(ctx, r, consts.MsgNothingDelivered)
		o.notify(ctx, r, r.summary())

		return outcomeEmpty
	case deliverErr != nil:
		o.abort(ctx, r, deliverErr, "")

		return outcomeAborted
	}

	o.notify(ctx, r, r.summary())

	return outcomeCompleted
}

func (o *Orchestrator) download(ctx context.Context, r *run, pipeline *queue.Pipeline) error {
	items := make([]entity.QueueItem, 0, len(r.spec.URLs))
	for i, u := range r.spec.URLs {
		items = append(items, entity.QueueItem{Index: i, URL: u, Format: r.spec.OutputFormat})
	}

	fetch := func(ctx context.Context, item entity.QueueItem) error {
		err := downloader.Fetch(ctx, o.fetcher, item, r.spec.WorkDir, r.spec.CredentialsPath)
		if err != nil {
			o.metrics.RecordItem("failed")
		} else {
			o.metrics.RecordItem("succeeded")
		}

		return err
	}

	report := func(ctx context.Context, c queue.Counts) {
		r.status.Items(ctx, consts.MsgDownloadStatus, c.Total, c.Done)
	}

	res, err := pipeline.RunDownloadPhase(ctx, queue.New(items...), fetch, report)
	if err != nil {
		return fmt.Errorf("download phase: %w", err)
	}

	r.report.Succeeded, r.report.Failed, r.report.Skipped = res.Succeeded, res.Failed, res.Skipped

	for range res.Skipped {
		o.metrics.RecordItem("skipped")
	}

	if res.Fatal != nil {
		return res.Fatal
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download phase: %w", err)
	}

	return nil
}

func (o *Orchestrator) deliverArchive(ctx context.Context, r *run) error {
	name := r.spec.ArchiveName
	if name == "" {
		name = fmt.Sprintf("%d%s", r.spec.RequesterID, consts.ArchiveExt)
	}

	r.status.Update(ctx, consts.MsgArchiving)

	archive := filepath.Join(r.spec.TempDir, name)

	files, err := Zip(r.spec.WorkDir, archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer removeFile(ctx, r.log, archive)

	if files == 0 {
		return errs.ErrNoDeliverables
	}

	info, err := os.Stat(archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	err = o.transport.SendFile(ctx, r.spec.ChatID, transport.OutgoingFile{
		Path:     archive,
		Kind:     entity.FileGeneric,
		Caption:  name,
		Progress: r.status.Bytes(ctx, consts.MsgUploadStatus+" "+name, nil),
	})
	if err != nil {
		o.metrics.RecordDelivery(string(entity.FileGeneric), "error", info.Size())
		r.log.WarnContext(ctx, "archive delivery failed", slog.Any("error", err))

		r.report.DeliveryFailed++

		return nil
	}

	o.metrics.RecordDelivery(string(entity.FileGeneric), "ok", info.Size())

	r.report.Delivered++
	r.report.Bytes += info.Size()

	return nil
}

func (o *Orchestrator) deliverIndividually(ctx context.Context, r *run, pipeline *queue.Pipeline, cleanup func()) error {
	files, err := Enumerate(r.spec.WorkDir)
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}

	if len(files) == 0 {
		return errs.ErrNoDeliverables
	}

	deliver := func(ctx context.Context, path string) error {
		defer removeFile(ctx, r.log, path)

		return o.deliverFile(ctx, r, path)
	}

	report := func(ctx context.Context, c queue.Counts) {
		r.status.Items(ctx, consts.MsgUploadStatus, c.Total, c.Done)
	}

	res, err := pipeline.RunUploadPhase(ctx, queue.New(files...), deliver, report, cleanup)

	r.report.Delivered += res.Delivered
	r.report.DeliveryFailed += res.Failed

	return err
}

func (o *Orchestrator) deliverFile(ctx context.Context, r *run, path string) error {
	prepared, err := o.preparer.Prepare(ctx, path, r.spec.TempDir)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrDelivery, err)
	}
	defer prepared.Release()

	name := filepath.Base(path)

	err = o.transport.SendFile(ctx, r.spec.ChatID, transport.OutgoingFile{
		Path:      path,
		Kind:      prepared.Kind,
		Caption:   name,
		ThumbPath: prepared.Thumb,
		Duration:  prepared.Duration,
		Progress:  r.status.Bytes(ctx, consts.MsgUploadStatus+" "+name, nil),
	})
	if err != nil {
		o.metrics.RecordDelivery(string(prepared.Kind), "error", prepared.Size)

		return err
	}

	o.metrics.RecordDelivery(string(prepared.Kind), "ok", prepared.Size)

	r.report.Bytes += prepared.Size

	return nil
}

// abort marks the report aborted and tells the requester; msg defaults to the error text.
func (o *Orchestrator) abort(ctx context.Context, r *run, err error, msg string) {
	r.report.Aborted = true
	r.report.AbortReason = err.Error()

	r.log.WarnContext(ctx, "batch aborted", slog.Any("error", err))

	if msg == "" {
		msg = "Batch aborted: " + err.Error()
	}

	o.notify(ctx, r, msg)
}

func (o *Orchestrator) notify(ctx context.Context, r *run, text string) {
	if _, err := o.transport.Send(context.WithoutCancel(ctx), r.spec.ChatID, text, nil); err != nil {
		r.log.WarnContext(ctx, "send message", slog.Any("error", err))
	}
}

func (o *Orchestrator) deleteStatus(ctx context.Context, r *run, ref transport.MessageRef) {
	if err := o.transport.Delete(context.WithoutCancel(ctx), ref); err != nil {
		r.log.DebugContext(ctx, "delete status message", slog.Any("error", err))
	}
}

func removeFile(ctx context.Context, log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WarnContext(ctx, "remove file", slog.String("path", path), slog.Any("error", err))
	}
}

func (r *run) summary() string {
	took := progress.FormatDuration(time.Since(r.start).Round(time.Second))
	if took == "" {
		took = "0s"
	}

	rep := r.report

	return fmt.Sprintf(consts.MsgSummary,
		took,
		rep.Succeeded, rep.Attempted, rep.Failed, rep.Skipped,
		rep.Delivered, humanize.IBytes(uint64(max(rep.Bytes, 0))), rep.DeliveryFailed)
}
