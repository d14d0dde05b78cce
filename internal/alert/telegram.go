// Package alert fans rendered alerts out to whitelisted recipients
// through pluggable sinks.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
	pkghttp "whale_watcher/pkg/http"
)

const (
	defaultTelegramAPI  = "https://api.telegram.org"
	telegramSendTimeout = 5 * time.Second
)

// TelegramSink delivers alert text to a telegram chat via the bot API.
// The recipient passed to Send is the chat id.
type TelegramSink struct {
	client *pkghttp.Client
	token  string
	logger core.ILogger
}

// NewTelegramSink builds a sink against the bot API. baseURL overrides
// the public endpoint, mainly for tests.
func NewTelegramSink(token, baseURL string, logger core.ILogger) *TelegramSink {
	if baseURL == "" {
		baseURL = defaultTelegramAPI
	}
	return &TelegramSink{
		client: pkghttp.NewClient(baseURL, telegramSendTimeout),
		token:  token,
		logger: logger.WithField("component", "telegram_sink"),
	}
}

func (t *TelegramSink) Name() string {
	return "telegram"
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramSink) Send(ctx context.Context, recipient, text string) error {
	if t.token == "" {
		return fmt.Errorf("%w: telegram bot token not configured", apperrors.ErrSink)
	}

	path := fmt.Sprintf("/bot%s/sendMessage", t.token)
	raw, err := t.client.Post(ctx, path, sendMessageRequest{ChatID: recipient, Text: text})
	if err != nil {
		return fmt.Errorf("%w: telegram: %v", apperrors.ErrSink, err)
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: telegram response: %v", apperrors.ErrSink, err)
	}
	if !resp.OK {
		return fmt.Errorf("%w: telegram: %s", apperrors.ErrSink, resp.Description)
	}
	return nil
}
