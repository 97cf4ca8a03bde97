//go:build integration

package integration_test

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"bulkdl/internal/batch"
	"bulkdl/internal/config"
	"bulkdl/internal/depmanager"
	"bulkdl/internal/downloader"
	httprouter "bulkdl/internal/infrastructure/delivery/http"
	"bulkdl/internal/media"
	"bulkdl/internal/observability"
	"bulkdl/internal/service"
	"bulkdl/internal/session"
	"bulkdl/internal/storage"
	"bulkdl/internal/subprocess"
	"bulkdl/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	//go:embed testdata/fake-ytdlp.sh
	fakeYTdlpScript []byte
	//go:embed testdata/fake-ffprobe.sh
	fakeFFprobeScript []byte
	//go:embed testdata/fake-ffmpeg.sh
	fakeFFmpegScript []byte
)

const (
	requester = int64(5)
	chat      = int64(50)
)

// fakeChat is a Source and Transport that records everything the bot says.
type fakeChat struct {
	events chan transport.Event

	mu    sync.Mutex
	texts []string
	files []transport.OutgoingFile
	next  int

	// onFile, if set, sees every sent file before the batch removes it.
	onFile func(path string)
}

func newFakeChat() *fakeChat {
	return &fakeChat{events: make(chan transport.Event, 16)}
}

func (c *fakeChat) Events(ctx context.Context) <-chan transport.Event {
	out := make(chan transport.Event)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (c *fakeChat) Answer(context.Context, string) error { return nil }

// Fetch is never reached: the integration flows send links as text.
func (c *fakeChat) Fetch(context.Context, transport.Event) (string, error) {
	return "", errors.New("uploads not supported")
}

func (c *fakeChat) Send(_ context.Context, chatID int64, text string, _ transport.Keyboard) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	c.texts = append(c.texts, text)

	return transport.MessageRef{ChatID: chatID, MessageID: c.next}, nil
}

func (c *fakeChat) Edit(context.Context, transport.MessageRef, string) error { return nil }
func (c *fakeChat) Delete(context.Context, transport.MessageRef) error       { return nil }

func (c *fakeChat) SendFile(_ context.Context, _ int64, file transport.OutgoingFile) error {
	if _, err := os.Stat(file.Path); err != nil {
		return err
	}

	if c.onFile != nil {
		c.onFile(file.Path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = append(c.files, file)

	return nil
}

func (c *fakeChat) command(name string) {
	c.events <- transport.Event{Kind: transport.EventCommand, SenderID: requester, ChatID: chat, Command: name}
}

func (c *fakeChat) text(text string) {
	c.events <- transport.Event{Kind: transport.EventText, SenderID: requester, ChatID: chat, Text: text}
}

func (c *fakeChat) sentFiles() []transport.OutgoingFile {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.files)
}

// waitText polls until a sent message contains substr.
func (c *fakeChat) waitText(t *testing.T, substr string) string {
	t.Helper()

	deadline := time.Now().Add(20 * time.Second)

	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, text := range c.texts {
			if strings.Contains(text, substr) {
				c.mu.Unlock()

				return text
			}
		}
		c.mu.Unlock()

		time.Sleep(20 * time.Millisecond)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t.Fatalf("no message containing %q; sent %q", substr, c.texts)

	return ""
}

type fixture struct {
	cfg        *config.Config
	chat       *fakeChat
	store      *session.Store
	workspace  *storage.Workspace
	router     *httprouter.Router
	dispatcher *service.Dispatcher
	metrics    *observability.Metrics
}

// newFixture wires the production components around fake tools and a fake chat.
// Options in env are applied on top of the required bot credentials.
func newFixture(t *testing.T, env map[string]string) *fixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	base := t.TempDir()
	binsDir := filepath.Join(base, "bins")

	t.Setenv("API_HASH", "hash")
	t.Setenv("APP_ID", "1")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BULKDL_DIR_DOWNLOADS", filepath.Join(base, "downloads"))
	t.Setenv("BULKDL_DIR_TEMP", filepath.Join(base, "temp"))
	t.Setenv("BULKDL_DIR_CACHE", filepath.Join(base, "cache"))
	t.Setenv("BULKDL_DEPMANAGER_BINS_DIR", binsDir)
	t.Setenv("BULKDL_DEPMANAGER_USE_SYSTEM_BINARIES", "false")
	t.Setenv("BULKDL_JOB_ITEM_TIMEOUT", "2s")
	t.Setenv("BULKDL_STORAGE_CLEANUP_INTERVAL", "0")
	t.Setenv("BULKDL_JOB_SITE_TYPE_PROMPT", "false")
	t.Setenv("BULKDL_JOB_FORMAT_PROMPT", "false")

	for key, value := range env {
		t.Setenv(key, value)
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config new: %v", err)
	}

	if err := os.MkdirAll(binsDir, 0o755); err != nil {
		t.Fatalf("mkdir bins: %v", err)
	}

	for name, script := range map[depmanager.BinaryName][]byte{
		depmanager.BinaryYTdlp:   fakeYTdlpScript,
		depmanager.BinaryFFmpeg:  fakeFFmpegScript,
		depmanager.BinaryFFprobe: fakeFFprobeScript,
	} {
		if err := os.WriteFile(filepath.Join(binsDir, string(name)), script, 0o755); err != nil {
			t.Fatalf("write fake %s: %v", name, err)
		}
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)

	depMgr := depmanager.New(log, cfg)
	if err := depMgr.Resolve(t.Context()); err != nil {
		t.Fatalf("resolve binaries: %v", err)
	}

	workspace := storage.New(log, cfg, metrics)
	if err := workspace.Lock(); err != nil {
		t.Fatalf("lock workspace: %v", err)
	}
	t.Cleanup(func() { _ = workspace.Unlock() })

	runner := subprocess.NewExec(log, metrics)
	fetcher := downloader.NewYTdlp(log, cfg, runner, depMgr, nil)
	prober := media.NewProber(log, runner, depMgr)

	fc := newFakeChat()
	store := session.NewStore(session.NewMachine(service.SessionOptions(cfg)), nil)
	orchestrator := batch.New(log, cfg, fc, fetcher, prober, workspace, metrics)
	dispatcher := service.New(log, cfg, fc, fc, store, orchestrator, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)
	t.Cleanup(func() {
		cancel()
		dispatcher.Wait()
	})

	return &fixture{
		cfg:        cfg,
		chat:       fc,
		store:      store,
		workspace:  workspace,
		router:     httprouter.New(log, store, metrics),
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

func fileNames(files []transport.OutgoingFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}

	slices.Sort(names)

	return names
}
