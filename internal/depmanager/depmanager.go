// Package depmanager locates or installs the external tools the fetcher runs:
// yt-dlp, ffmpeg and ffprobe.
package depmanager

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/errs"

	"github.com/ulikunitz/xz"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
)

// All lists every binary the bot may run.
var All = []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe}

const (
	downloadTimeout    = 10 * time.Minute
	filePermExecutable = 0o755
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager resolves binary paths.
type Manager struct {
	log      *slog.Logger
	cfg      config.DepManager
	platform Platform
	client   *http.Client

	mu    sync.RWMutex
	paths map[BinaryName]string
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log:      log.With(slog.String("package", "depmanager")),
		cfg:      cfg.DepManager,
		platform: Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
		client:   &http.Client{Timeout: downloadTimeout},
		paths:    make(map[BinaryName]string),
	}
}

// Resolve finds every binary, either in PATH or by installing it into BinsDir.
// Missing binaries are reported in the returned error; the bot can still start,
// and batches needing them fail with a tool-not-found error.
func (m *Manager) Resolve(ctx context.Context) error {
	if m.cfg.UseSystemBinaries {
		return m.lookupSystem()
	}

	return m.install(ctx)
}

// Path returns the resolved path of name. An unresolved binary returns its
// bare name so that running it reports exec.ErrNotFound.
func (m *Manager) Path(name BinaryName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if path, ok := m.paths[name]; ok {
		return path
	}

	return string(name)
}

// YTdlp returns the path of yt-dlp.
func (m *Manager) YTdlp() string { return m.Path(BinaryYTdlp) }

// FFmpeg returns the path of ffmpeg.
func (m *Manager) FFmpeg() string { return m.Path(BinaryFFmpeg) }

// FFprobe returns the path of ffprobe.
func (m *Manager) FFprobe() string { return m.Path(BinaryFFprobe) }

func (m *Manager) lookupSystem() error {
	var missing []error

	for _, name := range All {
		path, err := exec.LookPath(string(name))
		if err != nil {
			missing = append(missing, fmt.Errorf("%w: %s: %w", errs.ErrBinaryNotFound, name, err))

			continue
		}

		m.setPath(name, path)
	}

	return errors.Join(missing...)
}

func (m *Manager) install(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.BinsDir, filePermExecutable); err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	// ffprobe ships in the ffmpeg archive.
	for _, name := range []BinaryName{BinaryYTdlp, BinaryFFmpeg} {
		if m.installed(name) {
			m.log.DebugContext(ctx, "binary already installed", slog.String("binary", string(name)))

			continue
		}

		if err := m.download(ctx, name); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	for _, name := range All {
		if m.installed(name) {
			m.setPath(name, m.binPath(name))
		}
	}

	m.log.InfoContext(ctx, "binaries installed", slog.String("dir", m.cfg.BinsDir))

	return nil
}

func (m *Manager) binPath(name BinaryName) string {
	return filepath.Join(m.cfg.BinsDir, string(name))
}

func (m *Manager) installed(name BinaryName) bool {
	info, err := os.Stat(m.binPath(name))

	return err == nil && info.Size() > 0
}

func (m *Manager) setPath(name BinaryName, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.paths[name] = path
}

// downloadURL returns the configured URL of name for the current platform.
func (m *Manager) downloadURL(name BinaryName) (string, error) {
	var arm64, amd64 string

	switch name {
	case BinaryYTdlp:
		arm64, amd64 = m.cfg.YTdlpLinuxARM64, m.cfg.YTdlpLinuxAMD64
	case BinaryFFmpeg, BinaryFFprobe:
		arm64, amd64 = m.cfg.FFmpegLinuxARM64, m.cfg.FFmpegLinuxAMD64
	}

	var url string

	switch m.platform.String() {
	case "linux/arm64":
		url = arm64
	case "linux/amd64":
		url = amd64
	default:
		return "", fmt.Errorf("%w: %s", errs.ErrUnsupportedPlatform, m.platform)
	}

	if url == "" {
		return "", fmt.Errorf("no download url for %s on %s", name, m.platform)
	}

	return url, nil
}

func (m *Manager) download(ctx context.Context, name BinaryName) error {
	url, err := m.downloadURL(name)
	if err != nil {
		return err
	}

	m.log.InfoContext(ctx, "downloading binary", slog.String("binary", string(name)), slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if strings.HasSuffix(url, ".tar.xz") {
		xzReader, err := xz.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("create xz reader: %w", err)
		}

		return m.extractTar(xzReader, map[string]struct{}{
			string(BinaryFFmpeg):  {},
			string(BinaryFFprobe): {},
		})
	}

	return m.writeExecutable(m.binPath(name), resp.Body)
}

// extractTar copies the regular files named in targets, matched by base name, into BinsDir.
func (m *Manager) extractTar(r io.Reader, targets map[string]struct{}) error {
	tarReader := tar.NewReader(r)
	extracted := 0

	for extracted < len(targets) {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		filename := filepath.Base(header.Name)
		if _, ok := targets[filename]; !ok {
			continue
		}

		if err := m.writeExecutable(filepath.Join(m.cfg.BinsDir, filename), tarReader); err != nil {
			return err
		}

		extracted++
	}

	if extracted == 0 {
		return errors.New("no target files found in tar archive")
	}

	return nil
}

// writeExecutable writes r to path through a temp file in the same directory.
func (m *Manager) writeExecutable(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()

		return fmt.Errorf("write file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), filePermExecutable); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}
