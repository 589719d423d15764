package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/bridge"
	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/store"
)

// Store is the storage surface the bot needs.
type Store interface {
	ConsumeDeeplink(ctx context.Context, token string) (*store.Deeplink, error)
	UpsertSubscriber(ctx context.Context, sub store.Subscriber) error
	GetSubscriber(ctx context.Context, telegramID int64) (*store.Subscriber, error)
	DeleteUserProfile(ctx context.Context, telegramID int64) error
	SetMute(ctx context.Context, telegramID int64, username string, muted bool) error
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	PendingReply(ctx context.Context, chatID int64, messageID int) (*store.PendingReply, error)
}

// Downloader fetches Telegram files to local disk.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID, dir string) (string, error)
}

// BotConfig tunes the update loop.
type BotConfig struct {
	WebhookURL  string
	PollTimeout int
	MediaDir    string
	DefaultLang string
}

// Bot handles incoming Telegram updates.
type Bot struct {
	cfg      BotConfig
	api      *tgbotapi.BotAPI
	msg      bridge.Messenger
	files    Downloader
	store    Store
	commands bridge.CommandSender
	catalog  *i18n.Catalog
	shutdown func()
	webhook  chan tgbotapi.Update
	log      *zerolog.Logger
}

// NewBot builds a bot. api may be nil when updates are fed through
// HandleUpdate only. shutdown is called for the admin /exit command.
func NewBot(cfg BotConfig, api *tgbotapi.BotAPI, msg bridge.Messenger, files Downloader, st Store, commands bridge.CommandSender, catalog *i18n.Catalog, shutdown func(), logger *zerolog.Logger) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &Bot{
		cfg:      cfg,
		api:      api,
		msg:      msg,
		files:    files,
		store:    st,
		commands: commands,
		catalog:  catalog,
		shutdown: shutdown,
		webhook:  make(chan tgbotapi.Update, 64),
		log:      &l,
	}
}

// Run receives updates until ctx is done, by long polling or from the webhook.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram api is not configured")
	}

	if b.cfg.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(b.cfg.WebhookURL)
		if err != nil {
			return fmt.Errorf("build webhook: %w", err)
		}
		if _, err := b.api.Request(wh); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		b.log.Info().Str("url", b.cfg.WebhookURL).Msg("webhook registered")
		for {
			select {
			case <-ctx.Done():
				return nil
			case upd := <-b.webhook:
				b.HandleUpdate(ctx, upd)
			}
		}
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.log.Warn().Err(err).Msg("delete webhook failed")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Str("bot", b.api.Self.UserName).Msg("long polling started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleWebhook parses a webhook request and queues the update for Run.
func (b *Bot) HandleWebhook(r *http.Request) error {
	if b.api == nil {
		return errors.New("telegram api is not configured")
	}
	upd, err := b.api.HandleUpdate(r)
	if err != nil {
		return fmt.Errorf("parse update: %w", err)
	}
	select {
	case b.webhook <- *upd:
		return nil
	case <-r.Context().Done():
		return r.Context().Err()
	}
}

// HandleUpdate processes one update.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	lang := b.lang(ctx, msg)

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, lang)
	case msg.ReplyToMessage != nil && msg.Text != "":
		b.handleReply(ctx, msg, lang)
	case msg.Voice != nil || msg.Audio != nil:
		b.handleMedia(ctx, msg, lang)
	default:
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyBotHelp))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, lang string) {
	chatID := msg.Chat.ID
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		if arg == "" {
			b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyBotHelp))
			return
		}
		b.consumeDeeplink(ctx, chatID, arg, lang)
	case "who":
		b.command(ctx, core.Who(chatID, lang, msg.MessageID))
	case "mute", "unmute":
		if arg == "" {
			b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyBotHelp))
			return
		}
		muted := msg.Command() == "mute"
		if err := b.store.SetMute(ctx, chatID, arg, muted); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("set mute failed")
			b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyCommandFailed))
			return
		}
		key := i18n.KeyUnmuted
		if muted {
			key = i18n.KeyMuted
		}
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, key, "username", arg))
	case "quiet":
		b.toggleQuiet(ctx, chatID, msg.MessageID, lang)
	case "skip":
		if !b.requireAdmin(ctx, msg, lang) {
			return
		}
		b.command(ctx, core.Command{Kind: core.CommandSkipStream})
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeySkipped))
	case "exit":
		if !b.requireAdmin(ctx, msg, lang) {
			return
		}
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyShuttingDown))
		b.log.Info().Int64("chat_id", chatID).Msg("shutdown requested by admin")
		if b.shutdown != nil {
			b.shutdown()
		}
	default:
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyBotHelp))
	}
}

func (b *Bot) consumeDeeplink(ctx context.Context, chatID int64, token, lang string) {
	link, err := b.store.ConsumeDeeplink(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("consume deeplink failed")
		}
		b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyLinkInvalid))
		return
	}

	switch link.Action {
	case store.DeeplinkSubscribe:
		sub := store.Subscriber{
			TelegramID:     chatID,
			Lang:           lang,
			LinkedUsername: link.TalkUsername,
			NotifyJoin:     true,
			NotifyLeave:    true,
		}
		if old, err := b.store.GetSubscriber(ctx, chatID); err == nil {
			sub.NotOnOnline = old.NotOnOnline
			sub.NotifyJoin = old.NotifyJoin
			sub.NotifyLeave = old.NotifyLeave
		}
		if err := b.store.UpsertSubscriber(ctx, sub); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("subscribe failed")
			b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyCommandFailed))
			return
		}
		b.log.Info().Int64("chat_id", chatID).Str("username", link.TalkUsername).Msg("subscribed")
		b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeySubscribed))
	case store.DeeplinkUnsubscribe:
		if err := b.store.DeleteUserProfile(ctx, chatID); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("unsubscribe failed")
			b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyCommandFailed))
			return
		}
		b.log.Info().Int64("chat_id", chatID).Msg("unsubscribed")
		b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyUnsubscribed))
	default:
		b.reply(ctx, chatID, 0, b.catalog.Render(lang, i18n.KeyLinkInvalid))
	}
}

func (b *Bot) toggleQuiet(ctx context.Context, chatID int64, replyTo int, lang string) {
	sub, err := b.store.GetSubscriber(ctx, chatID)
	if err != nil {
		b.reply(ctx, chatID, replyTo, b.catalog.Render(lang, i18n.KeyNotSubscribed))
		return
	}
	sub.NotOnOnline = !sub.NotOnOnline
	if err := b.store.UpsertSubscriber(ctx, *sub); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("toggle quiet failed")
		b.reply(ctx, chatID, replyTo, b.catalog.Render(lang, i18n.KeyCommandFailed))
		return
	}
	key := i18n.KeyQuietOff
	if sub.NotOnOnline {
		key = i18n.KeyQuietOn
	}
	b.reply(ctx, chatID, replyTo, b.catalog.Render(lang, key))
}

// handleReply routes an admin's reply to a forwarded alert back to its origin.
func (b *Bot) handleReply(ctx context.Context, msg *tgbotapi.Message, lang string) {
	chatID := msg.Chat.ID
	pr, err := b.store.PendingReply(ctx, chatID, msg.ReplyToMessage.MessageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("pending reply lookup failed")
		}
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyBotHelp))
		return
	}
	if !b.requireAdmin(ctx, msg, lang) {
		return
	}

	if pr.ChannelID != 0 {
		b.command(ctx, core.SendToChannel(pr.ChannelID, msg.Text))
	} else {
		b.command(ctx, core.ReplyToUser(pr.TalkUserID, msg.Text))
	}
	b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyReplySent))
}

// handleMedia downloads an admin's voice or audio message and queues it.
func (b *Bot) handleMedia(ctx context.Context, msg *tgbotapi.Message, lang string) {
	if !b.requireAdmin(ctx, msg, lang) {
		return
	}
	chatID := msg.Chat.ID

	var fileID string
	var seconds int
	switch {
	case msg.Voice != nil:
		fileID, seconds = msg.Voice.FileID, msg.Voice.Duration
	case msg.Audio != nil:
		fileID, seconds = msg.Audio.FileID, msg.Audio.Duration
	}

	path, err := b.files.DownloadFile(ctx, fileID, b.cfg.MediaDir)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("media download failed")
		b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyCommandFailed))
		return
	}

	nick := "admin"
	if msg.From != nil {
		nick = msg.From.FirstName
		if nick == "" {
			nick = msg.From.UserName
		}
	}
	b.command(ctx, core.EnqueueStream(core.StreamRequest{
		FilePath: path,
		Duration: time.Duration(seconds) * time.Second,
		Announce: b.catalog.Render(b.cfg.DefaultLang, i18n.KeyStreamAnnounce, "nick", nick),
	}))
	b.reply(ctx, chatID, msg.MessageID, b.catalog.Render(lang, i18n.KeyQueued))
}

func (b *Bot) requireAdmin(ctx context.Context, msg *tgbotapi.Message, lang string) bool {
	if msg.From != nil {
		ok, err := b.store.IsAdmin(ctx, msg.From.ID)
		if err != nil {
			b.log.Warn().Err(err).Int64("chat_id", msg.From.ID).Msg("admin check failed")
		}
		if ok {
			return true
		}
	}
	b.reply(ctx, msg.Chat.ID, msg.MessageID, b.catalog.Render(lang, i18n.KeyUnauthorized))
	return false
}

// lang prefers the stored subscriber language over the client's language.
func (b *Bot) lang(ctx context.Context, msg *tgbotapi.Message) string {
	if sub, err := b.store.GetSubscriber(ctx, msg.Chat.ID); err == nil && sub.Lang != "" {
		return b.catalog.Lang(sub.Lang)
	}
	if msg.From != nil && msg.From.LanguageCode != "" {
		return b.catalog.Lang(msg.From.LanguageCode)
	}
	return b.catalog.Lang(b.cfg.DefaultLang)
}

func (b *Bot) reply(ctx context.Context, chatID int64, replyTo int, text string) {
	if _, err := b.msg.Send(ctx, chatID, text, bridge.SendOptions{ReplyTo: replyTo}); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("bot reply failed")
	}
}

func (b *Bot) command(ctx context.Context, cmd core.Command) {
	if err := b.commands.SendCommand(ctx, cmd); err != nil {
		b.log.Warn().Err(err).Stringer("command", cmd.Kind).Msg("command to talk worker dropped")
	}
}
