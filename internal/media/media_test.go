package media_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"bulkdl/internal/entity"
	"bulkdl/internal/errs"
	"bulkdl/internal/media"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want entity.FileKind
	}{
		{"/w/clip.mp4", entity.FileVideo},
		{"/w/CLIP.MKV", entity.FileVideo},
		{"/w/a.WebM", entity.FileVideo},
		{"/w/photo.JPG", entity.FileImage},
		{"/w/photo.webp", entity.FileImage},
		{"/w/song.mp3", entity.FileAudio},
		{"/w/song.Opus", entity.FileAudio},
		{"/w/notes.txt", entity.FileGeneric},
		{"/w/noext", entity.FileGeneric},
		{"/w/archive.mp4.zip", entity.FileGeneric},
	}

	for _, tc := range tests {
		if got := media.Classify(tc.path); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.path, got, tc.want)
		}
	}
}

type fakeBins struct{}

func (fakeBins) FFmpeg() string  { return "ffmpeg" }
func (fakeBins) FFprobe() string { return "ffprobe" }

type fakeRunner struct {
	calls  [][]string
	probe  string
	failOn string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	if name == f.failOn {
		return nil, &errs.FetchError{Kind: errs.FetchNonZeroExit, Tool: name, Code: 1}
	}

	switch name {
	case "ffprobe":
		return []byte(f.probe), nil
	case "ffmpeg":
		return nil, os.WriteFile(args[len(args)-1], []byte("jpeg"), 0o600)
	}

	return nil, nil
}

func newProber(r *fakeRunner) *media.Prober {
	p := media.NewProber(slog.New(slog.NewTextHandler(io.Discard, nil)), r, fakeBins{})
	p.SetOffset(func(d time.Duration) time.Duration { return d / 2 })

	return p
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name  string
		probe string
		fail  bool
		want  time.Duration
	}{
		{"parsed", `{"format":{"duration":"12.500000"}}`, false, 12500 * time.Millisecond},
		{"missing", `{"format":{}}`, false, 0},
		{"garbage", `not json`, false, 0},
		{"tool failed", ``, true, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRunner{probe: tc.probe}
			if tc.fail {
				r.failOn = "ffprobe"
			}

			if got := newProber(r).Duration(t.Context(), "/w/a.mp4"); got != tc.want {
				t.Errorf("Duration() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrepareVideo(t *testing.T) {
	dir := t.TempDir()
	thumbs := t.TempDir()

	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("0123456789"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{probe: `{"format":{"duration":"20.0"}}`}

	prepared, err := newProber(r).Prepare(t.Context(), video, thumbs)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if prepared.Kind != entity.FileVideo || prepared.Size != 10 || prepared.Duration != 20*time.Second {
		t.Errorf("prepared = %+v", prepared)
	}

	if prepared.Thumb == "" || !strings.HasSuffix(prepared.Thumb, ".thumb.jpg") {
		t.Fatalf("thumb = %q", prepared.Thumb)
	}

	ffmpeg := r.calls[1]
	if i := slices.Index(ffmpeg, "-ss"); i < 0 || ffmpeg[i+1] != "10.000" {
		t.Errorf("ffmpeg args = %v, want -ss 10.000", ffmpeg)
	}

	if !slices.Contains(ffmpeg, "-vframes") {
		t.Errorf("ffmpeg args = %v, missing -vframes", ffmpeg)
	}

	if _, err := os.Stat(prepared.Thumb); err != nil {
		t.Fatalf("thumbnail missing before release: %v", err)
	}

	prepared.Release()
	prepared.Release()

	if _, err := os.Stat(prepared.Thumb); !os.IsNotExist(err) {
		t.Error("thumbnail not deleted by release")
	}
}

func TestPrepareVideoWithoutDurationSkipsThumbnail(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mkv")
	if err := os.WriteFile(video, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{failOn: "ffprobe"}

	prepared, err := newProber(r).Prepare(t.Context(), video, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if prepared.Duration != 0 || prepared.Thumb != "" {
		t.Errorf("prepared = %+v", prepared)
	}

	if len(r.calls) != 1 {
		t.Errorf("calls = %v, want only the probe", r.calls)
	}

	prepared.Release()
}

func TestThumbnailFailureCleansUp(t *testing.T) {
	thumbs := t.TempDir()
	r := &fakeRunner{failOn: "ffmpeg"}

	_, release, err := newProber(r).Thumbnail(t.Context(), "/w/a.mp4", thumbs, time.Minute)
	if !errors.Is(err, errs.ErrNonZeroExit) {
		t.Fatalf("err = %v", err)
	}

	release()

	entries, _ := os.ReadDir(thumbs)
	if len(entries) != 0 {
		t.Errorf("thumb dir not empty: %v", entries)
	}
}

func TestPrepareImageAndMissing(t *testing.T) {
	img := filepath.Join(t.TempDir(), "p.PNG")
	if err := os.WriteFile(img, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{}

	prepared, err := newProber(r).Prepare(t.Context(), img, t.TempDir())
	if err != nil || prepared.Kind != entity.FileImage {
		t.Errorf("Prepare(image) = %+v, %v", prepared, err)
	}

	if len(r.calls) != 0 {
		t.Errorf("images need no tools, got %v", r.calls)
	}

	if _, err := newProber(r).Prepare(t.Context(), "/nope/missing.mp4", t.TempDir()); err == nil {
		t.Error("Prepare(missing) expected error")
	}
}
