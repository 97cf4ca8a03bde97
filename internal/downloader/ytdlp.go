package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/consts"
	"bulkdl/internal/errs"
	"bulkdl/internal/subprocess"
)

// Audio modes.
const (
	AudioModeBuiltin = "builtin"
	AudioModeFFmpeg  = "ffmpeg"
)

// YTdlp is the Fetcher that runs yt-dlp, and ffmpeg for the separate transcode step.
type YTdlp struct {
	log      *slog.Logger
	runner   subprocess.Runner
	bins     Binaries
	proxies  ProxyPicker
	timeout  time.Duration
	template string
	cacheDir string
	audio    string
}

var _ Fetcher = (*YTdlp)(nil)

// NewYTdlp returns a yt-dlp fetcher. proxies may be nil.
func NewYTdlp(log *slog.Logger, cfg *config.Config, runner subprocess.Runner, bins Binaries, proxies ProxyPicker) *YTdlp {
	return &YTdlp{
		log:      log.With(slog.String("package", "downloader")),
		runner:   runner,
		bins:     bins,
		proxies:  proxies,
		timeout:  cfg.Job.ItemTimeout,
		template: cfg.Dir.FilenameTemplate,
		cacheDir: cfg.Dir.Cache,
		audio:    cfg.Job.AudioMode,
	}
}

// FetchRaw downloads the best single-file format of url.
func (y *YTdlp) FetchRaw(ctx context.Context, url, dir, credentials string) error {
	args := []string{"-f", "best"}
	args = append(args, y.commonArgs(dir, credentials)...)

	return y.runYTdlp(ctx, url, args)
}

// FetchAudio downloads the best audio of url as a 192 kbps MP3.
// In ffmpeg mode the audio is first extracted into a private directory
// under dir/.extract and then transcoded; a failed extraction skips the transcode.
func (y *YTdlp) FetchAudio(ctx context.Context, url, dir, credentials string) error {
	if y.audio != AudioModeFFmpeg {
		args := []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "192K"}
		args = append(args, y.ffmpegLocation()...)
		args = append(args, y.commonArgs(dir, credentials)...)

		return y.runYTdlp(ctx, url, args)
	}

	extractRoot := filepath.Join(dir, consts.ExtractDirName)
	if err := os.MkdirAll(extractRoot, 0o755); err != nil {
		return fmt.Errorf("create extract dir: %w", err)
	}

	extractDir, err := os.MkdirTemp(extractRoot, "item-")
	if err != nil {
		return fmt.Errorf("create extract dir: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(extractDir)
		// Fails while other items still use it.
		_ = os.Remove(extractRoot)
	}()

	args := []string{"-f", "bestaudio"}
	args = append(args, y.commonArgs(extractDir, credentials)...)

	if err := y.runYTdlp(ctx, url, args); err != nil {
		return err
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return fmt.Errorf("read extract dir: %w", err)
	}

	transcoded := 0

	for _, entry := range entries {
		if entry.IsDir() || IsPartial(entry.Name()) {
			continue
		}

		src := filepath.Join(extractDir, entry.Name())
		dst := filepath.Join(dir, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))+".mp3")

		if err := y.transcode(ctx, src, dst); err != nil {
			return err
		}

		transcoded++
	}

	if transcoded == 0 {
		return &errs.FetchError{Kind: errs.FetchNonZeroExit, Tool: consts.ToolYTdlp, Stderr: "no audio extracted"}
	}

	return nil
}

func (y *YTdlp) transcode(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	_, err := y.runner.Run(ctx, y.bins.FFmpeg(), "-y", "-i", src, "-vn", "-ab", consts.AudioBitrate, dst)
	if err != nil {
		return fmt.Errorf("transcode %s: %w", filepath.Base(src), err)
	}

	if err := os.Remove(src); err != nil {
		y.log.WarnContext(ctx, "remove extracted audio", slog.String("path", src), slog.Any("error", err))
	}

	return nil
}

func (y *YTdlp) commonArgs(dir, credentials string) []string {
	args := []string{
		"-i",
		"--no-progress",
		"--no-playlist",
		"-o", filepath.Join(dir, y.template),
	}

	if y.cacheDir != "" {
		args = append(args, "--cache-dir", y.cacheDir)
	}

	if credentials != "" {
		args = append(args, "--cookies", credentials)
	}

	return args
}

// ffmpegLocation points yt-dlp at a managed ffmpeg when one was installed.
func (y *YTdlp) ffmpegLocation() []string {
	path := y.bins.FFmpeg()
	if !strings.ContainsRune(path, filepath.Separator) {
		return nil
	}

	return []string{"--ffmpeg-location", path}
}

func (y *YTdlp) runYTdlp(ctx context.Context, url string, args []string) error {
	log := y.log.With(slog.String("url", url))

	proxy := ""

	if y.proxies != nil {
		var err error

		proxy, err = y.proxies.Next()
		if errors.Is(err, errs.ErrNoProxiesAvailable) {
			log.WarnContext(ctx, "all proxies benched, fetching directly")
		}
	}

	args = slices.Clone(args)
	if proxy != "" {
		args = append(args, "--proxy", proxy)
	}

	args = append(args, "--", url)

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	start := time.Now()

	_, err := y.runner.Run(ctx, y.bins.YTdlp(), args...)
	if err != nil {
		if proxy != "" && !errs.IsFatal(err) {
			y.proxies.MarkFailed(proxy)
		}

		log.WarnContext(ctx, "yt-dlp failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))

		return err
	}

	if proxy != "" {
		y.proxies.MarkSuccess(proxy)
	}

	log.InfoContext(ctx, "fetched", slog.Duration("elapsed", time.Since(start)))

	return nil
}

// IsPartial reports whether name is an in-progress yt-dlp file.
func IsPartial(name string) bool {
	return strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl")
}
