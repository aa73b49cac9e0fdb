// Package telegram wraps the Telegram Bot API for outbound traffic:
// sending replies and keyboards, answering callbacks, downloading voice
// files, and managing the webhook registration.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"togglbot/internal/bot"
	"togglbot/internal/httpclient"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram caps messages at 4096 chars; stay under it so Markdown entities
// near the boundary don't get cut mid-token.
const maxMsgLen = 4000

// Bot implements bot.Messenger over the Telegram Bot API.
type Bot struct {
	api       *tgbotapi.BotAPI
	parseMode string
	files     *http.Client
	logger    *slog.Logger
}

type Config struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

// New connects to the Bot API (one getMe call) and returns the wrapper.
func New(cfg Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	cfg.Logger.Info("telegram bot connected",
		"username", api.Self.UserName,
		"id", api.Self.ID,
	)
	return &Bot{
		api:       api,
		parseMode: cfg.ParseMode,
		files:     httpclient.New(60 * time.Second),
		logger:    cfg.Logger,
	}, nil
}

// Username returns the bot's Telegram handle.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SendText delivers text to a chat, chunked to Telegram's length limit.
// Errors are logged, not returned: a failed reply must never fail the
// webhook handler.
func (b *Bot) SendText(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMsgLen) {
		b.sendChunk(chatID, chunk)
	}
}

// sendChunk tries the configured parse mode first; on a Markdown parse
// error it falls back to plain text.
func (b *Bot) sendChunk(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode

	_, err := b.api.Send(msg)
	if err == nil {
		return
	}
	if b.parseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		b.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
		plain := tgbotapi.NewMessage(chatID, text)
		if _, err2 := b.api.Send(plain); err2 == nil {
			return
		}
	}
	b.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
}

// SendKeyboard sends text with one inline button per row.
func (b *Bot) SendKeyboard(chatID int64, text string, buttons []bot.Button) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard(buttons)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("telegram keyboard send failed", "chat_id", chatID, "err", err)
	}
}

// EditText replaces a previously sent message's text and drops its keyboard.
func (b *Bot) EditText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("telegram edit failed", "chat_id", chatID, "message_id", messageID, "err", err)
	}
}

// EditKeyboard replaces a previously sent message with new text and buttons.
func (b *Bot) EditKeyboard(chatID int64, messageID int, text string, buttons []bot.Button) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard(buttons))
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("telegram edit failed", "chat_id", chatID, "message_id", messageID, "err", err)
	}
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (b *Bot) AnswerCallback(callbackID string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		b.logger.Warn("telegram callback answer failed", "err", err)
	}
}

// SendTyping shows the "typing…" indicator while downstream calls run.
func (b *Bot) SendTyping(chatID int64) {
	_, _ = b.api.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

// DownloadVoice fetches the raw bytes of a voice message file.
func (b *Bot) DownloadVoice(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := b.files.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download voice file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download voice file: status %d", resp.StatusCode)
	}
	// Telegram voice notes are small; cap at 20MB, the Bot API file limit.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("read voice file: %w", err)
	}
	return data, nil
}

// RegisterWebhook points Telegram's delivery at the public URL.
func (b *Bot) RegisterWebhook(publicURL string) error {
	wh, err := tgbotapi.NewWebhook(publicURL)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	info, err := b.api.GetWebhookInfo()
	if err == nil && info.LastErrorDate != 0 {
		b.logger.Warn("telegram reports webhook delivery errors",
			"last_error", info.LastErrorMessage,
		)
	}
	return nil
}

// DeleteWebhook removes the registration (useful when switching hosts).
func (b *Bot) DeleteWebhook() error {
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	return err
}

func keyboard(buttons []bot.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitMessage chunks text at maxLen, preferring newline boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
