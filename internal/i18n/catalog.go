// Package i18n renders the bridge's user-facing strings.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Message keys.
const (
	KeyBroadcastJoin       = "broadcast.join"
	KeyBroadcastLeave      = "broadcast.leave"
	KeyAdminForward        = "admin.forward"
	KeyAdminForwardChannel = "admin.forward_channel"
	KeyAdminDelivered      = "admin.delivered"
	KeyAdminUndelivered    = "admin.undelivered"
	KeyWhoHeader           = "who.header"
	KeyWhoEmpty            = "who.empty"
	KeyWhoNoChannel        = "who.no_channel"
	KeyHelp                = "cmd.help"
	KeyUnauthorized        = "cmd.unauthorized"
	KeySubLink             = "cmd.sub_link"
	KeyUnsubLink           = "cmd.unsub_link"
	KeyAdminsAdded         = "cmd.admins_added"
	KeyAdminsRemoved       = "cmd.admins_removed"
	KeySkipped             = "cmd.skipped"
	KeyCommandFailed       = "cmd.failed"
	KeySubscribed          = "bot.subscribed"
	KeyUnsubscribed        = "bot.unsubscribed"
	KeyLinkInvalid         = "bot.link_invalid"
	KeyQueued              = "bot.queued"
	KeyReplySent           = "bot.reply_sent"
	KeyShuttingDown        = "bot.shutting_down"
	KeyStreamAnnounce      = "stream.announce"
	KeyBotHelp             = "bot.help"
	KeyMuted               = "bot.muted"
	KeyUnmuted             = "bot.unmuted"
	KeyQuietOn             = "bot.quiet_on"
	KeyQuietOff            = "bot.quiet_off"
	KeyNotSubscribed       = "bot.not_subscribed"
)

var builtin = map[string]map[string]string{
	"en": {
		KeyBroadcastJoin:       "{nick} joined {server}",
		KeyBroadcastLeave:      "{nick} left {server}",
		KeyAdminForward:        "Message from {nick} ({username}) on {server}:\n{content}",
		KeyAdminForwardChannel: "Message in {channel} on {server}:\n{content}",
		KeyAdminDelivered:      "Your message has been delivered to the administrators.",
		KeyAdminUndelivered:    "Your message could not be delivered, please try again later.",
		KeyWhoHeader:           "{server}: {count} online",
		KeyWhoEmpty:            "Nobody is online on {server}.",
		KeyWhoNoChannel:        "(not in a channel)",
		KeyHelp:                "Commands:\n/sub - subscribe to notifications in Telegram\n/unsub - unsubscribe\n/help - this message\nAny other text is forwarded to the administrators.",
		KeyUnauthorized:        "You are not allowed to use this command.",
		KeySubLink:             "Open this link to subscribe: {link}",
		KeyUnsubLink:           "Open this link to unsubscribe: {link}",
		KeyAdminsAdded:         "Admins added: {ok}, already admins: {dup}, invalid ids: {bad}",
		KeyAdminsRemoved:       "Admins removed: {ok}, not admins: {dup}, invalid ids: {bad}",
		KeySkipped:             "Skipped.",
		KeyCommandFailed:       "Command failed, please try again later.",
		KeySubscribed:          "You are now subscribed to join/leave notifications.",
		KeyUnsubscribed:        "You are unsubscribed.",
		KeyLinkInvalid:         "This link is invalid or has expired.",
		KeyQueued:              "Queued for playback.",
		KeyReplySent:           "Reply sent.",
		KeyShuttingDown:        "Shutting down.",
		KeyStreamAnnounce:      "Playing a voice message from {nick}",
		KeyBotHelp:             "Send /sub to the bridge on the talk server to get a subscription link.\n/who - who is online\n/mute <username> - stop notifications about a user\n/unmute <username> - resume them\n/quiet - toggle silent notifications while you are online",
		KeyMuted:               "Notifications about {username} are muted.",
		KeyUnmuted:             "Notifications about {username} are back on.",
		KeyQuietOn:             "Notifications will be silent while you are online.",
		KeyQuietOff:            "Notifications will always make a sound.",
		KeyNotSubscribed:       "You are not subscribed.",
	},
	"ru": {
		KeyBroadcastJoin:       "{nick} зашёл на {server}",
		KeyBroadcastLeave:      "{nick} вышел с {server}",
		KeyAdminForward:        "Сообщение от {nick} ({username}) на {server}:\n{content}",
		KeyAdminForwardChannel: "Сообщение в {channel} на {server}:\n{content}",
		KeyAdminDelivered:      "Ваше сообщение доставлено администраторам.",
		KeyAdminUndelivered:    "Не удалось доставить сообщение, попробуйте позже.",
		KeyWhoHeader:           "{server}: в сети {count}",
		KeyWhoEmpty:            "На {server} никого нет.",
		KeyWhoNoChannel:        "(вне канала)",
		KeyHelp:                "Команды:\n/sub - подписаться на уведомления в Telegram\n/unsub - отписаться\n/help - эта справка\nЛюбой другой текст пересылается администраторам.",
		KeyUnauthorized:        "У вас нет прав на эту команду.",
		KeySubLink:             "Откройте ссылку, чтобы подписаться: {link}",
		KeyUnsubLink:           "Откройте ссылку, чтобы отписаться: {link}",
		KeyAdminsAdded:         "Добавлено админов: {ok}, уже были: {dup}, неверных id: {bad}",
		KeyAdminsRemoved:       "Удалено админов: {ok}, не были админами: {dup}, неверных id: {bad}",
		KeySkipped:             "Пропущено.",
		KeyCommandFailed:       "Команда не выполнена, попробуйте позже.",
		KeySubscribed:          "Вы подписаны на уведомления о входе и выходе.",
		KeyUnsubscribed:        "Вы отписаны.",
		KeyLinkInvalid:         "Ссылка недействительна или устарела.",
		KeyQueued:              "Добавлено в очередь.",
		KeyReplySent:           "Ответ отправлен.",
		KeyShuttingDown:        "Завершение работы.",
		KeyStreamAnnounce:      "Голосовое сообщение от {nick}",
		KeyBotHelp:             "Отправьте /sub мосту на сервере, чтобы получить ссылку для подписки.\n/who - кто в сети\n/mute <username> - не уведомлять о пользователе\n/unmute <username> - снова уведомлять\n/quiet - беззвучные уведомления, пока вы в сети",
		KeyMuted:               "Уведомления о {username} отключены.",
		KeyUnmuted:             "Уведомления о {username} снова включены.",
		KeyQuietOn:             "Уведомления будут беззвучными, пока вы в сети.",
		KeyQuietOff:            "Уведомления всегда со звуком.",
		KeyNotSubscribed:       "Вы не подписаны.",
	},
}

// Catalog looks up messages by language with fallback to a default language.
type Catalog struct {
	tags     []language.Tag
	codes    []string
	matcher  language.Matcher
	messages map[string]map[string]string
}

// New builds a catalog with the built-in languages. defaultLang is tried
// first when nothing matches; unknown values fall back to English.
func New(defaultLang string) *Catalog {
	def := "en"
	if _, ok := builtin[defaultLang]; ok {
		def = defaultLang
	}

	codes := []string{def}
	for code := range builtin {
		if code != def {
			codes = append(codes, code)
		}
	}
	tags := make([]language.Tag, len(codes))
	for i, code := range codes {
		tags[i] = language.Make(code)
	}

	return &Catalog{
		tags:     tags,
		codes:    codes,
		matcher:  language.NewMatcher(tags),
		messages: builtin,
	}
}

// Lang resolves any language code (e.g. "ru-RU", "pt") to a supported one.
func (c *Catalog) Lang(code string) string {
	if code == "" {
		return c.codes[0]
	}
	tag, err := language.Parse(code)
	if err != nil {
		return c.codes[0]
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return c.codes[0]
	}
	return c.codes[idx]
}

// Render returns the message for key in lang with {name} placeholders filled
// from kv pairs.
func (c *Catalog) Render(lang, key string, kv ...string) string {
	msgs := c.messages[c.Lang(lang)]
	tmpl, ok := msgs[key]
	if !ok {
		tmpl, ok = c.messages[c.codes[0]][key]
		if !ok {
			return key
		}
	}
	if len(kv) < 2 {
		return tmpl
	}

	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
