// Package telegram adapts the Telegram Bot API to the bridge.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vovakirdan/ttbridge/internal/bridge"
	"github.com/vovakirdan/ttbridge/internal/core"
)

// Messenger sends messages through a bot account.
type Messenger struct {
	api  *tgbotapi.BotAPI
	http *http.Client
}

var _ bridge.Messenger = (*Messenger)(nil)

// NewMessenger wraps an authorized bot.
func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{api: api, http: http.DefaultClient}
}

// Send delivers text to chatID. Terminal delivery failures are reported as
// core sentinel errors.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string, opts bridge.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableNotification = opts.Silent
	msg.ReplyToMessageID = opts.ReplyTo
	msg.ParseMode = opts.ParseMode

	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

// classify maps Bot API errors onto core sentinels. Only the three terminal
// conditions are mapped; everything else stays transient.
func classify(err error) error {
	desc := err.Error()
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		desc = apiErr.Message
	}
	lower := strings.ToLower(desc)

	switch {
	case strings.Contains(lower, "bot was blocked by the user"):
		return fmt.Errorf("%w: %s", core.ErrRecipientBlocked, desc)
	case strings.Contains(lower, "user is deactivated"):
		return fmt.Errorf("%w: %s", core.ErrRecipientDeactivated, desc)
	case strings.Contains(lower, "chat not found"):
		return fmt.Errorf("%w: %s", core.ErrChatNotFound, desc)
	default:
		return fmt.Errorf("send message: %w", err)
	}
}

// DownloadFile stores a Telegram file under dir and returns its path.
func (m *Messenger) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	url, err := m.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	return download(ctx, m.http, url, dir)
}

func download(ctx context.Context, client *http.Client, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	ext := filepath.Ext(req.URL.Path)
	if ext == "" {
		ext = ".ogg"
	}
	f, err := os.CreateTemp(dir, "tg-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close media file: %w", err)
	}
	return f.Name(), nil
}
