//go:build integration

package integration_test

import (
	"archive/zip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"bulkdl/internal/consts"
	"bulkdl/internal/entity"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIndividualDelivery(t *testing.T) {
	fx := newFixture(t, nil)

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)
	fx.chat.text("https://example.com/one\nhttps://example.com/fail\nhttps://example.com/two")

	summary := fx.chat.waitText(t, "Done in")

	if !strings.Contains(summary, "Downloaded: 2/3, failed: 1") {
		t.Errorf("summary = %q", summary)
	}

	files := fx.chat.sentFiles()
	if got, want := fileNames(files), []string{"one.mp4", "two.mp4"}; !slices.Equal(got, want) {
		t.Fatalf("sent %v, want %v", got, want)
	}

	for _, f := range files {
		if f.Kind != entity.FileVideo || f.Duration != 3*time.Second {
			t.Errorf("file %s: kind %s duration %s", f.Path, f.Kind, f.Duration)
		}
	}

	waitIdle(t, fx)

	if _, err := os.Stat(filepath.Join(fx.cfg.Dir.Downloads, "5")); !os.IsNotExist(err) {
		t.Errorf("work dir not removed: %v", err)
	}
}

func TestArchiveDelivery(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"BULKDL_JOB_DEFAULT_DELIVERY_MODE": "archive",
		"BULKDL_JOB_DEFAULT_FORMAT":        "mp3",
	})

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)
	fx.chat.text("https://example.com/a https://example.com/b")
	fx.chat.waitText(t, "Done in")

	files := fx.chat.sentFiles()
	if len(files) != 1 || files[0].Kind != entity.FileGeneric {
		t.Fatalf("sent %+v, want one archive", files)
	}

	if got := filepath.Base(files[0].Path); got != "5.zip" {
		t.Errorf("archive name = %q", got)
	}

	waitIdle(t, fx)

	if _, err := os.Stat(files[0].Path); !os.IsNotExist(err) {
		t.Errorf("archive not removed: %v", err)
	}
}

func TestArchiveContents(t *testing.T) {
	fx := newFixture(t, map[string]string{"BULKDL_JOB_DEFAULT_DELIVERY_MODE": "archive"})

	checked := make(chan []string, 1)
	fx.chat.onFile = func(path string) {
		zr, err := zip.OpenReader(path)
		if err != nil {
			checked <- nil

			return
		}
		defer zr.Close()

		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}

		checked <- names
	}

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)
	fx.chat.text("https://example.com/x https://example.com/y")

	select {
	case names := <-checked:
		slices.Sort(names)
		if want := []string{"x.mp4", "y.mp4"}; !slices.Equal(names, want) {
			t.Errorf("archive entries = %v, want %v", names, want)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("archive never sent")
	}
}

func TestItemTimeout(t *testing.T) {
	fx := newFixture(t, map[string]string{"BULKDL_JOB_ITEM_TIMEOUT": "200ms"})

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)
	fx.chat.text("https://example.com/slow https://example.com/fast")

	summary := fx.chat.waitText(t, "Done in")
	if !strings.Contains(summary, "Downloaded: 1/2, failed: 1") {
		t.Errorf("summary = %q", summary)
	}

	if got := fileNames(fx.chat.sentFiles()); !slices.Equal(got, []string{"fast.mp4"}) {
		t.Errorf("sent %v", got)
	}
}

func TestToolMissing(t *testing.T) {
	fx := newFixture(t, nil)

	if err := os.Remove(filepath.Join(fx.cfg.DepManager.BinsDir, "yt-dlp")); err != nil {
		t.Fatalf("remove fake yt-dlp: %v", err)
	}

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)
	fx.chat.text("https://example.com/one https://example.com/two")
	fx.chat.waitText(t, consts.MsgToolMissing)

	if files := fx.chat.sentFiles(); len(files) != 0 {
		t.Errorf("sent %d files after abort", len(files))
	}
}

func TestHTTPSessionInspection(t *testing.T) {
	fx := newFixture(t, nil)

	srv := httptest.NewServer(fx.router)
	defer srv.Close()

	fx.chat.command(consts.CommandBatch)
	fx.chat.waitText(t, consts.MsgSendLinks)

	resp, err := http.Get(srv.URL + "/v1/sessions/5")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			Phase string `json:"phase"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.Data.Phase != string(entity.PhaseAwaitingLinks) {
		t.Errorf("phase = %q", body.Data.Phase)
	}

	fx.chat.text("https://example.com/one")
	fx.chat.waitText(t, "Done in")
	waitIdle(t, fx)

	if got := testutil.ToFloat64(fx.metrics.BatchesStarted); got != 1 {
		t.Errorf("batches started = %v, want 1", got)
	}
}

func waitIdle(t *testing.T, fx *fixture) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fx.store.Get(requester).Phase == entity.PhaseIdle && !fx.workspace.Owned(requester) {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("session still %s", fx.store.Get(requester).Phase)
}
