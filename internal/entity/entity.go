// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"
)

// OutputFormat selects what the fetcher produces for each URL.
type OutputFormat string

const (
	// FormatRaw keeps the best available single-file media.
	FormatRaw OutputFormat = "raw"
	// FormatMP3 extracts audio and converts it to 192 kbps MP3.
	FormatMP3 OutputFormat = "mp3"
)

// ParseOutputFormat returns the format for s and whether it is known.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch OutputFormat(s) {
	case FormatRaw, FormatMP3:
		return OutputFormat(s), true
	}

	return "", false
}

// DeliveryMode selects how produced files reach the requester.
type DeliveryMode string

const (
	// DeliveryArchive packs the whole work directory into one zip document.
	DeliveryArchive DeliveryMode = "archive"
	// DeliveryIndividual sends every produced file on its own.
	DeliveryIndividual DeliveryMode = "individual"
)

// ParseDeliveryMode returns the mode for s and whether it is known.
func ParseDeliveryMode(s string) (DeliveryMode, bool) {
	switch DeliveryMode(s) {
	case DeliveryArchive, DeliveryIndividual:
		return DeliveryMode(s), true
	}

	return "", false
}

// JobSpec is the immutable description of one batch.
type JobSpec struct {
	BatchID      string
	RequesterID  int64
	ChatID       int64
	URLs         []string
	OutputFormat OutputFormat
	DeliveryMode DeliveryMode
	// CredentialsPath points to a cookies file; empty for public sources.
	CredentialsPath string
	// ArchiveName is the file name used for DeliveryArchive.
	ArchiveName string
	// WorkDir and TempDir are set once the batch owns its directories.
	WorkDir string
	TempDir string
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j JobSpec) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("batch_id", j.BatchID),
		slog.Int64("requester_id", j.RequesterID),
		slog.Int("urls", len(j.URLs)),
		slog.String("format", string(j.OutputFormat)),
		slog.String("delivery", string(j.DeliveryMode)),
		slog.Bool("credentials", j.CredentialsPath != ""),
	)
}

// QueueItem is one URL waiting to be fetched.
type QueueItem struct {
	Index  int
	URL    string
	Format OutputFormat
}

// FileKind is the presentation chosen for a produced file.
type FileKind string

const (
	FileVideo   FileKind = "video"
	FileImage   FileKind = "image"
	FileAudio   FileKind = "audio"
	FileGeneric FileKind = "generic"
)

// DeliverableFile is a file produced by the fetcher and owned by the delivery phase.
type DeliverableFile struct {
	Path string
	Kind FileKind
	Size int64
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (f DeliverableFile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", f.Path),
		slog.String("kind", string(f.Kind)),
		slog.Int64("size", f.Size),
	)
}

// BatchReport summarises one finished batch.
type BatchReport struct {
	BatchID        string
	Attempted      int
	Succeeded      int
	Failed         int
	Skipped        int
	Delivered      int
	DeliveryFailed int
	Bytes          int64
	Aborted        bool
	AbortReason    string
	Duration       time.Duration
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r BatchReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("batch_id", r.BatchID),
		slog.Int("attempted", r.Attempted),
		slog.Int("succeeded", r.Succeeded),
		slog.Int("failed", r.Failed),
		slog.Int("skipped", r.Skipped),
		slog.Int("delivered", r.Delivered),
		slog.Int("delivery_failed", r.DeliveryFailed),
		slog.Int64("bytes", r.Bytes),
		slog.Bool("aborted", r.Aborted),
		slog.String("abort_reason", r.AbortReason),
		slog.Duration("duration", r.Duration),
	)
}
