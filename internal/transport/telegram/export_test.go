package telegram

import (
	"bulkdl/internal/transport"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SetFileURL replaces the file id resolver.
func (b *Bot) SetFileURL(fn func(fileID string) (string, error)) {
	b.fileURL = fn
}

// Translate exposes update translation.
func (b *Bot) Translate(update tgbotapi.Update) (transport.Event, bool) {
	return b.translate(update)
}
