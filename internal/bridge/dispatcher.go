// Package bridge turns worker events into Telegram messages.
package bridge

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/store"
)

// SendOptions tune a single outgoing message.
type SendOptions struct {
	// Silent delivers without a notification sound.
	Silent    bool
	ReplyTo   int
	ParseMode string
}

// Messenger sends chat messages and returns the id of the sent message.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error)
}

// PresenceChecker reports whether a talk user is connected right now.
type PresenceChecker interface {
	IsOnline(username string) bool
}

// CommandSender delivers commands back to the worker.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd core.Command) error
}

// CommandQueue accepts commands for the worker without blocking. The worker
// may itself be blocked handing events to the dispatcher, so replies from
// the dispatcher must never wait on a full queue.
type CommandQueue interface {
	TrySendCommand(cmd core.Command) error
}

// Store is the storage surface the dispatcher needs.
type Store interface {
	RecipientsForEvent(ctx context.Context, username string, event core.NotificationType) ([]store.Recipient, error)
	DeleteUserProfile(ctx context.Context, telegramID int64) error
	GetSubscriber(ctx context.Context, telegramID int64) (*store.Subscriber, error)
	LangByTalkUser(ctx context.Context, username string) (string, error)
	ListAdmins(ctx context.Context) ([]int64, error)
	AddPendingReply(ctx context.Context, r store.PendingReply) error
	AddPendingChannelReply(ctx context.Context, r store.PendingReply) error
}

// Config tunes the dispatcher.
type Config struct {
	// Concurrency bounds parallel sends of one broadcast.
	Concurrency int
	DefaultLang string
}

// Dispatcher consumes core events one at a time. A broadcast is fully
// delivered before the next event is read.
type Dispatcher struct {
	cfg      Config
	events   <-chan core.Event
	commands CommandQueue
	msg      Messenger
	store    Store
	presence PresenceChecker
	catalog  *i18n.Catalog
	render   func(lang, key string, kv ...string) string
	log      *zerolog.Logger
}

// New builds a dispatcher.
func New(cfg Config, events <-chan core.Event, commands CommandQueue, msg Messenger, st Store, presence PresenceChecker, catalog *i18n.Catalog, logger *zerolog.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	l := logger.With().Str("component", "bridge").Logger()
	return &Dispatcher{
		cfg:      cfg,
		events:   events,
		commands: commands,
		msg:      msg,
		store:    st,
		presence: presence,
		catalog:  catalog,
		render:   catalog.Render,
		log:      &l,
	}
}

// Run dispatches events until ctx is done or the event channel is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopped")
			return nil
		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle executes one event.
func (d *Dispatcher) Handle(ctx context.Context, ev core.Event) {
	switch ev.Kind {
	case core.EventBroadcast:
		if ev.Broadcast != nil {
			d.broadcast(ctx, *ev.Broadcast)
		}
	case core.EventToAdmin:
		if ev.Admin != nil {
			d.toAdmin(ctx, *ev.Admin)
		}
	case core.EventToAdminChannel:
		if ev.AdminChannel != nil {
			d.toAdminChannel(ctx, *ev.AdminChannel)
		}
	case core.EventWhoReport:
		if ev.Who != nil {
			d.whoReport(ctx, *ev.Who)
		}
	default:
		d.log.Warn().Stringer("event", ev.Kind).Msg("unknown bridge event")
	}
}

func (d *Dispatcher) broadcast(ctx context.Context, b core.BroadcastEvent) {
	recipients, err := d.store.RecipientsForEvent(ctx, b.RelatedUsername, b.Type)
	if err != nil {
		d.log.Error().Err(err).Str("username", b.RelatedUsername).Msg("load recipients failed")
		return
	}
	if len(recipients) == 0 {
		return
	}

	key := i18n.KeyBroadcastJoin
	if b.Type == core.NotificationLeave {
		key = i18n.KeyBroadcastLeave
	}

	// one render per language, not per recipient
	texts := make(map[string]string)
	for _, r := range recipients {
		lang := d.catalog.Lang(r.Lang)
		if _, ok := texts[lang]; !ok {
			texts[lang] = d.render(lang, key, "nick", b.Nickname, "server", b.ServerName)
		}
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, r := range recipients {
		r := r
		text := texts[d.catalog.Lang(r.Lang)]
		g.Go(func() error {
			d.deliver(ctx, r, text)
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug().Str("username", b.RelatedUsername).Str("type", string(b.Type)).Int("recipients", len(recipients)).Msg("broadcast delivered")
}

// deliver sends one notification. Presence is checked here, at send time.
func (d *Dispatcher) deliver(ctx context.Context, r store.Recipient, text string) {
	silent := r.NotOnOnline && d.presence.IsOnline(r.LinkedUsername)
	if _, err := d.msg.Send(ctx, r.TelegramID, text, SendOptions{Silent: silent}); err != nil {
		d.handleDeliveryError(ctx, r.TelegramID, err)
	}
}

// handleDeliveryError deregisters the recipient only for terminal errors.
func (d *Dispatcher) handleDeliveryError(ctx context.Context, chatID int64, err error) {
	if !core.IsTerminalDelivery(err) {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("delivery failed")
		return
	}
	if delErr := d.store.DeleteUserProfile(ctx, chatID); delErr != nil {
		d.log.Error().Err(delErr).Int64("chat_id", chatID).Msg("delete unreachable recipient failed")
		return
	}
	d.log.Info().Err(err).Int64("chat_id", chatID).Msg("unreachable recipient removed")
}

func (d *Dispatcher) toAdmin(ctx context.Context, m core.AdminMessage) {
	delivered := d.sendToAdmins(ctx, func(lang string) string {
		return d.render(lang, i18n.KeyAdminForward,
			"nick", m.Nickname,
			"username", m.Username,
			"server", m.ServerName,
			"content", m.Content,
		)
	}, func(chatID int64, messageID int) error {
		return d.store.AddPendingReply(ctx, store.PendingReply{
			ChatID:       chatID,
			MessageID:    messageID,
			TalkUserID:   m.UserID,
			TalkUsername: m.Username,
		})
	})

	lang := d.cfg.DefaultLang
	if m.Username != "" {
		if l, err := d.store.LangByTalkUser(ctx, m.Username); err == nil && l != "" {
			lang = l
		}
	}
	key := i18n.KeyAdminUndelivered
	if delivered {
		key = i18n.KeyAdminDelivered
	}
	d.command(core.ReplyToUser(m.UserID, d.render(lang, key)))
}

func (d *Dispatcher) toAdminChannel(ctx context.Context, m core.AdminChannelMessage) {
	delivered := d.sendToAdmins(ctx, func(lang string) string {
		return d.render(lang, i18n.KeyAdminForwardChannel,
			"channel", m.ChannelName,
			"server", m.ServerName,
			"content", m.Content,
		)
	}, func(chatID int64, messageID int) error {
		return d.store.AddPendingChannelReply(ctx, store.PendingReply{
			ChatID:    chatID,
			MessageID: messageID,
			ChannelID: m.ChannelID,
		})
	})

	key := i18n.KeyAdminUndelivered
	if delivered {
		key = i18n.KeyAdminDelivered
	}
	d.command(core.SendToChannel(m.ChannelID, d.render(d.cfg.DefaultLang, key)))
}

// sendToAdmins renders per admin language, sends, and records a pending reply
// for every message that went out. It reports whether any admin got it.
func (d *Dispatcher) sendToAdmins(ctx context.Context, text func(lang string) string, record func(chatID int64, messageID int) error) bool {
	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("list admins failed")
		return false
	}

	delivered := false
	texts := make(map[string]string)
	for _, id := range admins {
		lang := d.adminLang(ctx, id)
		body, ok := texts[lang]
		if !ok {
			body = text(lang)
			texts[lang] = body
		}

		msgID, err := d.msg.Send(ctx, id, body, SendOptions{})
		if err != nil {
			d.log.Warn().Err(err).Int64("chat_id", id).Msg("admin delivery failed")
			continue
		}
		delivered = true
		if err := record(id, msgID); err != nil {
			d.log.Warn().Err(err).Int64("chat_id", id).Msg("record pending reply failed")
		}
	}
	return delivered
}

func (d *Dispatcher) adminLang(ctx context.Context, chatID int64) string {
	sub, err := d.store.GetSubscriber(ctx, chatID)
	if err != nil || sub.Lang == "" {
		return d.catalog.Lang(d.cfg.DefaultLang)
	}
	return d.catalog.Lang(sub.Lang)
}

func (d *Dispatcher) whoReport(ctx context.Context, r core.WhoReport) {
	if _, err := d.msg.Send(ctx, r.ChatID, r.Text, SendOptions{ReplyTo: r.ReplyTo}); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", r.ChatID).Msg("who report failed")
	}
}

// command hands a best-effort reply back to the worker. A full queue drops
// the reply.
func (d *Dispatcher) command(cmd core.Command) {
	if err := d.commands.TrySendCommand(cmd); err != nil {
		d.log.Warn().Err(err).Stringer("command", cmd.Kind).Msg("reply to talk server dropped")
	}
}
