// Package notify delivers operator messages over Telegram and enforces
// the per-category rate limit that keeps a misbehaving venue from
// spamming the chat.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Telegram sends messages through the bot API.
type Telegram struct {
	client *resty.Client
	chatID string
	logger *zap.Logger
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
	Logger   *zap.Logger

	// BaseURL overrides the bot API endpoint in tests.
	BaseURL string
}

func NewTelegram(cfg *TelegramConfig) *Telegram {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", base, cfg.BotToken)).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Telegram{
		client: client,
		chatID: cfg.ChatID,
		logger: cfg.Logger.Named("telegram"),
	}
}

type sendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts one message, prefixed with its category tag.
func (t *Telegram) Send(ctx context.Context, category, text string) error {
	var out sendResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": t.chatID,
			"text":    fmt.Sprintf("[%s] %s", category, text),
		}).
		SetResult(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode(), out.Description)
	}
	t.logger.Debug("notification-sent", zap.String("category", category))
	return nil
}
