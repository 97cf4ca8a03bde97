// Package downloader fetches media with yt-dlp.
package downloader

import (
	"context"
	"fmt"

	"bulkdl/internal/entity"
)

// Fetcher downloads one URL into dir. credentials is a cookies file path or "".
type Fetcher interface {
	FetchRaw(ctx context.Context, url, dir, credentials string) error
	FetchAudio(ctx context.Context, url, dir, credentials string) error
}

// Binaries resolves tool paths.
type Binaries interface {
	YTdlp() string
	FFmpeg() string
}

// ProxyPicker hands out proxies and learns from their results.
type ProxyPicker interface {
	Next() (string, error)
	MarkFailed(proxyURL string)
	MarkSuccess(proxyURL string)
}

// Fetch dispatches item to the fetch matching its format.
func Fetch(ctx context.Context, f Fetcher, item entity.QueueItem, dir, credentials string) error {
	switch item.Format {
	case entity.FormatMP3:
		return f.FetchAudio(ctx, item.URL, dir, credentials)
	case entity.FormatRaw:
		return f.FetchRaw(ctx, item.URL, dir, credentials)
	default:
		return fmt.Errorf("unknown output format %q", item.Format)
	}
}
