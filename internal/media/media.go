// Package media decides how a produced file is presented and gathers the
// metadata sent along with it.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bulkdl/internal/consts"
	"bulkdl/internal/entity"
	"bulkdl/internal/subprocess"
	"bulkdl/pkg/gen"
)

var (
	videoExts = map[string]struct{}{
		".mp4": {}, ".mkv": {}, ".webm": {}, ".mov": {}, ".avi": {},
		".flv": {}, ".m4v": {}, ".3gp": {}, ".wmv": {}, ".ts": {},
	}
	imageExts = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
	}
	audioExts = map[string]struct{}{
		".mp3": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {},
		".flac": {}, ".wav": {}, ".wma": {},
	}
)

// Classify returns the kind of path by its extension, case-insensitively.
// Video wins over image, image over audio; anything else is generic.
func Classify(path string) entity.FileKind {
	ext := strings.ToLower(filepath.Ext(path))

	if _, ok := videoExts[ext]; ok {
		return entity.FileVideo
	}

	if _, ok := imageExts[ext]; ok {
		return entity.FileImage
	}

	if _, ok := audioExts[ext]; ok {
		return entity.FileAudio
	}

	return entity.FileGeneric
}

// Binaries resolves tool paths.
type Binaries interface {
	FFmpeg() string
	FFprobe() string
}

// Prober reads durations and grabs thumbnails with ffprobe and ffmpeg.
type Prober struct {
	log    *slog.Logger
	runner subprocess.Runner
	bins   Binaries
	// offset picks the thumbnail position in [0, d).
	offset func(d time.Duration) time.Duration
}

// NewProber returns a prober running tools through runner.
func NewProber(log *slog.Logger, runner subprocess.Runner, bins Binaries) *Prober {
	return &Prober{
		log:    log.With(slog.String("package", "media")),
		runner: runner,
		bins:   bins,
		offset: func(d time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(d)))
		},
	}
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration of path, or 0 if it cannot be read.
func (p *Prober) Duration(ctx context.Context, path string) time.Duration {
	out, err := p.runner.Run(ctx, p.bins.FFprobe(), "-v", "error", "-show_format", "-of", "json", "--", path)
	if err != nil {
		p.log.DebugContext(ctx, "probe failed", slog.String("path", path), slog.Any("error", err))

		return 0
	}

	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		p.log.DebugContext(ctx, "probe output", slog.String("path", path), slog.Any("error", err))

		return 0
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(res.Format.Duration), 64)
	if err != nil || secs <= 0 {
		return 0
	}

	return time.Duration(secs * float64(time.Second))
}

// Thumbnail grabs one frame of path at a pseudo-random offset into dir.
// The returned release func deletes the thumbnail and is safe to call more than once.
func (p *Prober) Thumbnail(ctx context.Context, path, dir string, duration time.Duration) (string, func(), error) {
	if duration <= 0 {
		return "", func() {}, fmt.Errorf("thumbnail %s: unknown duration", filepath.Base(path))
	}

	offset := p.offset(duration)
	thumb := filepath.Join(dir, gen.UUIDv5(path, offset.String())+consts.ThumbSuffix)

	_, err := p.runner.Run(ctx, p.bins.FFmpeg(),
		"-y",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-vframes", "1",
		thumb)

	release := func() {
		if err := os.Remove(thumb); err != nil && !os.IsNotExist(err) {
			p.log.WarnContext(ctx, "remove thumbnail", slog.String("path", thumb), slog.Any("error", err))
		}
	}

	if err != nil {
		release()

		return "", func() {}, fmt.Errorf("thumbnail %s: %w", filepath.Base(path), err)
	}

	return thumb, release, nil
}

// Prepared is a classified file ready to send. Release must be called after sending.
type Prepared struct {
	entity.DeliverableFile
	Duration time.Duration
	Thumb    string
	Release  func()
}

// Prepare classifies path and, for videos, reads its duration and grabs a thumbnail into thumbDir.
// Metadata failures degrade to a zero duration and no thumbnail.
func (p *Prober) Prepare(ctx context.Context, path, thumbDir string) (Prepared, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Prepared{}, fmt.Errorf("stat: %w", err)
	}

	prepared := Prepared{
		DeliverableFile: entity.DeliverableFile{Path: path, Kind: Classify(path), Size: info.Size()},
		Release:         func() {},
	}

	switch prepared.Kind {
	case entity.FileVideo:
		prepared.Duration = p.Duration(ctx, path)
		if prepared.Duration == 0 {
			return prepared, nil
		}

		thumb, release, err := p.Thumbnail(ctx, path, thumbDir, prepared.Duration)
		if err != nil {
			p.log.DebugContext(ctx, "thumbnail skipped", slog.Any("error", err))

			return prepared, nil
		}

		prepared.Thumb = thumb
		prepared.Release = release
	case entity.FileAudio:
		prepared.Duration = p.Duration(ctx, path)
	}

	return prepared, nil
}
