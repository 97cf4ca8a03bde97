// Package service routes inbound chat events through the session state
// machine and starts batches.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/consts"
	"bulkdl/internal/entity"
	"bulkdl/internal/observability"
	"bulkdl/internal/session"
	"bulkdl/internal/transport"
	"bulkdl/pkg/gen"
	"bulkdl/pkg/urls"
)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context, spec entity.JobSpec) entity.BatchReport
}

// Dispatcher consumes events from one goroutine and hands each requester's
// events to that requester's actor, so one requester is served strictly in
// arrival order while others interleave freely.
type Dispatcher struct {
	log     *slog.Logger
	cfg     *config.Config
	source  transport.Source
	tr      transport.Transport
	store   *session.Store
	runner  Runner
	metrics *observability.Metrics

	mu     sync.Mutex
	actors map[int64]*actor

	wg        sync.WaitGroup
	batches   sync.WaitGroup
	startOnce sync.Once
}

// SessionOptions maps configuration to the optional conversation steps.
func SessionOptions(cfg *config.Config) session.Options {
	format, _ := entity.ParseOutputFormat(cfg.Job.DefaultFormat)
	delivery, _ := entity.ParseDeliveryMode(cfg.Job.DefaultDeliveryMode)

	return session.Options{
		SiteTypePrompt:  cfg.Job.SiteTypePrompt,
		FormatPrompt:    cfg.Job.FormatPrompt,
		DeliveryPrompt:  cfg.Telegram.Buttons,
		DefaultFormat:   format,
		DefaultDelivery: delivery,
	}
}

// New returns a dispatcher. metrics may be nil.
func New(
	log *slog.Logger,
	cfg *config.Config,
	source transport.Source,
	tr transport.Transport,
	store *session.Store,
	runner Runner,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		log:     log.With(slog.String("package", "service")),
		cfg:     cfg,
		source:  source,
		tr:      tr,
		store:   store,
		runner:  runner,
		metrics: metrics,
		actors:  make(map[int64]*actor),
	}
}

// Start begins consuming events until ctx is done. Calling it again has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		events := d.source.Events(ctx)

		d.wg.Go(func() { d.loop(ctx, events) })
	})
}

// Wait blocks until the event loop, every actor and every running batch have returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.batches.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, events <-chan transport.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.log.InfoContext(ctx, "event source closed")

				return
			}

			d.route(ctx, ev)
		case <-ctx.Done():
			d.log.InfoContext(ctx, "got ctx done signal", slog.Any("error", ctx.Err()))

			return
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, ev transport.Event) {
	if owner := d.cfg.Telegram.OwnerID; owner != 0 && ev.SenderID != owner {
		d.log.WarnContext(ctx, "event from unauthorized sender", slog.Any("event", ev))
		d.reject(ctx, ev)

		return
	}

	d.mu.Lock()

	a, ok := d.actors[ev.SenderID]
	if !ok {
		a = &actor{events: make(chan transport.Event, consts.ActorBuffer)}
		d.actors[ev.SenderID] = a

		d.wg.Go(func() { d.runActor(ctx, ev.SenderID, a) })
	}

	// An actor with pending events never retires, so the send below always has a receiver.
	a.pending++

	d.mu.Unlock()

	select {
	case a.events <- ev:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) reject(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventFile:
		removeFile(ctx, d.log, ev.FilePath)
	case transport.EventButton:
		d.answer(ctx, ev)
	case transport.EventCommand:
		d.send(ctx, ev.ChatID, consts.MsgUnauthorized, nil)
	}
}

// actor serves one requester. pending counts events routed to it and not yet
// received; it is guarded by Dispatcher.mu.
type actor struct {
	events  chan transport.Event
	pending int
}

// runActor handles a requester's events in order and exits after
// consts.ActorIdleTimeout without any, so idle requesters hold no goroutine.
func (d *Dispatcher) runActor(ctx context.Context, requesterID int64, a *actor) {
	idle := time.NewTimer(consts.ActorIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case ev := <-a.events:
			d.mu.Lock()
			a.pending--
			d.mu.Unlock()

			d.handle(ctx, ev)
			idle.Reset(consts.ActorIdleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if a.pending > 0 {
				d.mu.Unlock()
				idle.Reset(consts.ActorIdleTimeout)

				continue
			}

			delete(d.actors, requesterID)
			d.mu.Unlock()

			d.log.DebugContext(ctx, "actor retired", slog.Int64("requester_id", requesterID))

			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev transport.Event) {
	log := d.log.With(slog.Any("event", ev))
	log.DebugContext(ctx, "event received")

	if ev.Kind == transport.EventButton {
		d.answer(ctx, ev)
	}

	if ev.Kind == transport.EventFile && ev.FilePath == "" {
		path, err := d.source.Fetch(ctx, ev)
		if err != nil {
			log.WarnContext(ctx, "fetch upload", slog.Any("error", err))
			d.send(ctx, ev.ChatID, consts.MsgFetchFailed, nil)

			return
		}

		ev.FilePath = path
	}

	in, ok := d.input(ctx, ev)
	if !ok {
		return
	}

	res := d.store.Apply(ev.SenderID, in)
	d.metrics.RecordSessionInput(string(res.Effect))

	log.DebugContext(ctx, "session transition",
		slog.String("input", string(in.Kind)),
		slog.String("from", string(res.Before.Phase)),
		slog.String("to", string(res.After.Phase)),
		slog.String("effect", string(res.Effect)))

	if ev.Kind == transport.EventFile && res.After.PendingCredentialsPath != ev.FilePath {
		removeFile(ctx, log, ev.FilePath)
	}

	d.discardCredentials(ctx, res)
	d.respond(ctx, ev.ChatID, res)
}

// input turns ev into a session input; false means the event was fully handled here.
func (d *Dispatcher) input(ctx context.Context, ev transport.Event) (session.Input, bool) {
	switch ev.Kind {
	case transport.EventCommand:
		switch ev.Command {
		case consts.CommandStart:
			d.send(ctx, ev.ChatID, consts.MsgWelcome, nil)

			return session.Input{}, false
		case consts.CommandBatch:
			return session.StartBatch(), true
		case consts.CommandCancel:
			return session.Cancel(), true
		default:
			d.send(ctx, ev.ChatID, consts.MsgHelp, nil)

			return session.Input{}, false
		}
	case transport.EventText:
		if found := urls.ExtractString(ev.Text); len(found) > 0 {
			return session.Links(found, ""), true
		}

		return session.Text(), true
	case transport.EventButton:
		return session.Button(ev.Token), true
	case transport.EventFile:
		return d.fileInput(ctx, ev), true
	}

	return session.Input{}, false
}

// fileInput reads an upload as credentials while they are awaited, and as a link list otherwise.
func (d *Dispatcher) fileInput(ctx context.Context, ev transport.Event) session.Input {
	if d.store.Get(ev.SenderID).Phase == entity.PhaseAwaitingCredentials {
		return session.Credentials(ev.FilePath)
	}

	if !strings.EqualFold(filepath.Ext(ev.FileName), ".txt") {
		return session.Links(nil, "")
	}

	found, err := readLinks(ev.FilePath)
	if err != nil {
		d.log.WarnContext(ctx, "read links file", slog.String("path", ev.FilePath), slog.Any("error", err))
	}

	return session.Links(found, ArchiveName(ev.FileName))
}

// ArchiveName returns the archive file name for links uploaded in fileName.
func ArchiveName(fileName string) string {
	base := filepath.Base(fileName)

	return strings.TrimSuffix(base, filepath.Ext(base)) + consts.ArchiveExt
}

func readLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	found, err := urls.Extract(f)
	if err != nil {
		return found, fmt.Errorf("scan: %w", err)
	}

	return found, nil
}

// discardCredentials removes a cookies file the session let go of without starting a batch.
func (d *Dispatcher) discardCredentials(ctx context.Context, res session.Result) {
	old := res.Before.PendingCredentialsPath
	if old == "" || old == res.After.PendingCredentialsPath || res.Effect == session.EffectStartBatch {
		return
	}

	removeFile(ctx, d.log, old)
}

func (d *Dispatcher) respond(ctx context.Context, chatID int64, res session.Result) {
	switch res.Effect {
	case session.EffectAskLinks:
		d.send(ctx, chatID, consts.MsgSendLinks, nil)
	case session.EffectAskSiteType:
		d.send(ctx, chatID, consts.MsgAskSiteType, transport.Keyboard{{
			{Label: consts.LabelPublic, Token: consts.TokenSitePublic},
			{Label: consts.LabelPrivate, Token: consts.TokenSitePrivate},
		}})
	case session.EffectAskCredentials:
		d.send(ctx, chatID, consts.MsgAskCredentials, nil)
	case session.EffectAskFormat:
		d.send(ctx, chatID, consts.MsgAskFormat, transport.Keyboard{{
			{Label: consts.LabelVideo, Token: consts.TokenFormatRaw},
			{Label: consts.LabelMP3, Token: consts.TokenFormatMP3},
		}})
	case session.EffectAskDeliveryMode:
		d.send(ctx, chatID, consts.MsgAskDeliveryMode, transport.Keyboard{{
			{Label: consts.LabelArchive, Token: consts.TokenDeliveryArchive},
			{Label: consts.LabelIndividual, Token: consts.TokenDeliveryIndividual},
		}})
	case session.EffectNoLinks:
		d.send(ctx, chatID, consts.MsgNoLinks, nil)
	case session.EffectInvalidState:
		d.send(ctx, chatID, consts.MsgInvalidState, nil)
	case session.EffectBusy:
		d.send(ctx, chatID, consts.MsgBusy, nil)
	case session.EffectCancelled:
		d.send(ctx, chatID, consts.MsgCancelled, nil)
	case session.EffectStartBatch:
		d.startBatch(ctx, chatID, res.After)
	case session.EffectNone, session.EffectBatchFinished:
	}
}

func (d *Dispatcher) startBatch(ctx context.Context, chatID int64, st entity.SessionState) {
	spec := entity.JobSpec{
		BatchID:         gen.BatchID(),
		RequesterID:     st.RequesterID,
		ChatID:          chatID,
		URLs:            st.PendingURLs,
		OutputFormat:    st.PendingFormat,
		DeliveryMode:    st.PendingDelivery,
		CredentialsPath: st.PendingCredentialsPath,
		ArchiveName:     st.PendingArchiveName,
	}

	d.log.InfoContext(ctx, "batch started", slog.Any("job", spec))

	d.batches.Go(func() {
		report := d.runner.Run(ctx, spec)

		res := d.store.Apply(spec.RequesterID, session.BatchDone())
		d.metrics.RecordSessionInput(string(res.Effect))
		d.discardCredentials(ctx, res)

		d.log.InfoContext(ctx, "session released",
			slog.Int64("requester_id", spec.RequesterID),
			slog.String("batch_id", report.BatchID))
	})
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, keyboard transport.Keyboard) {
	if _, err := d.tr.Send(ctx, chatID, text, keyboard); err != nil {
		d.log.WarnContext(ctx, "send message", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (d *Dispatcher) answer(ctx context.Context, ev transport.Event) {
	if ev.CallbackID == "" {
		return
	}

	if err := d.source.Answer(ctx, ev.CallbackID); err != nil {
		d.log.DebugContext(ctx, "answer callback", slog.Any("error", err))
	}
}

func removeFile(ctx context.Context, log *slog.Logger, path string) {
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WarnContext(ctx, "remove upload", slog.String("path", path), slog.Any("error", err))
	}
}
