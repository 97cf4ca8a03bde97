// Package transport defines the chat boundary the bot talks through.
package transport

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"bulkdl/internal/entity"
)

// MessageRef identifies a sent message so it can be edited or deleted.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline button; Token is echoed back in a ButtonPress event.
type Button struct {
	Label string
	Token string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// OutgoingFile describes one file to send.
type OutgoingFile struct {
	Path    string
	Kind    entity.FileKind
	Caption string
	// ThumbPath is optional and only used for videos.
	ThumbPath string
	Duration  time.Duration
	// Progress, if set, is called as the file body is read.
	Progress func(current, total int64)
}

// Transport sends messages and files.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Delete(ctx context.Context, ref MessageRef) error
	SendFile(ctx context.Context, chatID int64, file OutgoingFile) error
}

// EventKind tells which fields of an Event are set.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventFile    EventKind = "file"
	EventButton  EventKind = "button"
)

// Event is one inbound interaction.
type Event struct {
	Kind     EventKind
	SenderID int64
	ChatID   int64

	// EventCommand
	Command string
	Args    string

	// EventText
	Text string

	// EventFile. FileID names the upload on the transport; FilePath is the
	// local copy, set once Source.Fetch has stored it. The copy is owned by the receiver.
	FileID   string
	FilePath string
	FileName string

	// EventButton
	Token      string
	CallbackID string
	MessageID  int
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.Int64("sender_id", e.SenderID),
		slog.Int64("chat_id", e.ChatID),
	}

	switch e.Kind {
	case EventCommand:
		attrs = append(attrs, slog.String("command", e.Command))
	case EventFile:
		attrs = append(attrs, slog.String("file_name", e.FileName))
	case EventButton:
		attrs = append(attrs, slog.String("token", e.Token))
	case EventText:
		attrs = append(attrs, slog.Int("text_len", len(e.Text)))
	}

	return slog.GroupValue(attrs...)
}

// Source delivers inbound events until ctx is done, then closes the channel.
type Source interface {
	Events(ctx context.Context) <-chan Event
	// Answer acknowledges a button press so the client stops its spinner.
	Answer(ctx context.Context, callbackID string) error
	// Fetch stores the upload of an EventFile locally and returns its path.
	Fetch(ctx context.Context, ev Event) (string, error)
}

// ProgressReader counts bytes read from an underlying reader.
type ProgressReader struct {
	r     io.Reader
	total int64
	read  atomic.Int64
	fn    func(current, total int64)
}

// NewProgressReader wraps r; fn may be nil.
func NewProgressReader(r io.Reader, total int64, fn func(current, total int64)) *ProgressReader {
	return &ProgressReader{r: r, total: total, fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		current := p.read.Add(int64(n))
		if p.fn != nil {
			p.fn(current, p.total)
		}
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (p *ProgressReader) BytesRead() int64 {
	return p.read.Load()
}
