// Package telegram implements the transport boundary on the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"bulkdl/internal/config"
	"bulkdl/internal/consts"
	"bulkdl/internal/entity"
	"bulkdl/internal/errs"
	"bulkdl/internal/transport"
	"bulkdl/pkg/maths"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	dirPerm       = 0o750
	uploadPattern = "upload-*"
)

// Bot is a transport.Transport and transport.Source backed by a bot account.
type Bot struct {
	log     *slog.Logger
	api     *tgbotapi.BotAPI
	tempDir string

	// fileURL resolves a file id to a download link.
	fileURL  func(fileID string) (string, error)
	stopOnce sync.Once
}

// New connects to the Bot API with the configured token.
func New(log *slog.Logger, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}

	bot := &Bot{
		log:     log.With(slog.String("package", "telegram")),
		api:     api,
		tempDir: cfg.Dir.Temp,
	}
	bot.fileURL = api.GetFileDirectURL

	bot.log.Info("authorized", slog.String("username", api.Self.UserName))

	return bot, nil
}

// Send posts text with an optional inline keyboard.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, keyboard transport.Keyboard) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = markup(keyboard)
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("send message: %w", err)
	}

	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text of a sent message.
func (b *Bot) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrTransportEdit, err)
	}

	return nil
}

// Delete removes a sent message.
func (b *Bot) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// SendFile uploads file with the presentation matching its kind.
// The body streams through a counting reader so file.Progress sees real bytes.
func (b *Bot) SendFile(ctx context.Context, chatID int64, file transport.OutgoingFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(file.Path)

	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrDelivery, name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrDelivery, name, err)
	}

	body := tgbotapi.FileReader{
		Name:   name,
		Reader: transport.NewProgressReader(f, info.Size(), file.Progress),
	}
	seconds := maths.RoundFloat64ToInt(file.Duration.Seconds())

	var msg tgbotapi.Chattable

	switch file.Kind {
	case entity.FileVideo:
		video := tgbotapi.NewVideo(chatID, body)
		video.Caption = file.Caption
		video.Duration = seconds
		video.SupportsStreaming = true

		if file.ThumbPath != "" {
			video.Thumb = tgbotapi.FilePath(file.ThumbPath)
		}

		msg = video
	case entity.FileAudio:
		audio := tgbotapi.NewAudio(chatID, body)
		audio.Caption = file.Caption
		audio.Duration = seconds
		msg = audio
	case entity.FileImage:
		photo := tgbotapi.NewPhoto(chatID, body)
		photo.Caption = file.Caption
		msg = photo
	default:
		doc := tgbotapi.NewDocument(chatID, body)
		doc.Caption = file.Caption
		msg = doc
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("%w: %s: %w", errs.ErrDelivery, name, err)
	}

	b.log.DebugContext(ctx, "file sent",
		slog.Int64("chat_id", chatID),
		slog.String("file", name),
		slog.String("kind", string(file.Kind)),
		slog.Int64("size", info.Size()))

	return nil
}

// Answer acknowledges a button press.
func (b *Bot) Answer(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	return nil
}

// Events long-polls for updates until ctx is done. Uploaded documents are
// downloaded to temp/<senderId>/ before the event is emitted. The channel is
// closed once the poller has stopped, which may lag ctx by one poll.
func (b *Bot) Events(ctx context.Context) <-chan transport.Event {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = consts.UpdatesTimeout

	updates := b.api.GetUpdatesChan(cfg)
	out := make(chan transport.Event)

	go func() {
		<-ctx.Done()
		b.stopOnce.Do(b.api.StopReceivingUpdates)
	}()

	go func() {
		defer close(out)

		for update := range updates {
			ev, ok := b.translate(update)
			if !ok {
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				b.log.DebugContext(ctx, "event dropped on shutdown", slog.Any("event", ev))
			}
		}
	}()

	return out
}

// translate maps one update to an event; false means the update is ignored.
// Documents are not downloaded here; the receiver calls Fetch.
func (b *Bot) translate(update tgbotapi.Update) (transport.Event, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		ev := transport.Event{
			Kind:       transport.EventButton,
			SenderID:   cb.From.ID,
			ChatID:     cb.From.ID,
			Token:      cb.Data,
			CallbackID: cb.ID,
		}

		if cb.Message != nil {
			ev.MessageID = cb.Message.MessageID
			if cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}

		return ev, true
	case update.Message != nil && update.Message.From != nil:
		return translateMessage(update.Message)
	default:
		return transport.Event{}, false
	}
}

func translateMessage(msg *tgbotapi.Message) (transport.Event, bool) {
	ev := transport.Event{SenderID: msg.From.ID, ChatID: msg.From.ID}
	if msg.Chat != nil {
		ev.ChatID = msg.Chat.ID
	}

	switch {
	case msg.IsCommand():
		ev.Kind = transport.EventCommand
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
	case msg.Document != nil:
		ev.Kind = transport.EventFile
		ev.FileID = msg.Document.FileID
		ev.FileName = msg.Document.FileName
	case msg.Text != "":
		ev.Kind = transport.EventText
		ev.Text = msg.Text
	default:
		return transport.Event{}, false
	}

	return ev, true
}

// Fetch downloads the document of ev into temp/<senderId>/ under a fresh
// name, so an upload never overwrites a file already stored there.
func (b *Bot) Fetch(ctx context.Context, ev transport.Event) (string, error) {
	if ev.FileID == "" {
		return "", errors.New("event carries no file")
	}

	link, err := b.fileURL(ev.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := b.api.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get file: status %s", resp.Status)
	}

	dir := filepath.Join(b.tempDir, strconv.FormatInt(ev.SenderID, 10))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	f, err := os.CreateTemp(dir, uploadPattern+filepath.Ext(filepath.Base(ev.FileName)))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	_, copyErr := io.Copy(f, resp.Body)
	if err := errors.Join(copyErr, f.Close()); err != nil {
		_ = os.Remove(f.Name())

		return "", fmt.Errorf("write file: %w", err)
	}

	b.log.DebugContext(ctx, "upload stored",
		slog.Int64("sender_id", ev.SenderID),
		slog.String("file_name", ev.FileName),
		slog.String("path", f.Name()))

	return f.Name(), nil
}

func markup(keyboard transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))

	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Token))
		}

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
