package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/store"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

// maxTextLength is the longest text message the talk server accepts, in runes.
const maxTextLength = 512

// sender is the talk user behind a text message.
type sender struct {
	id       int32
	nickname string
	username string
}

func (w *Worker) handleText(msg talk.TextMessage) {
	if msg.FromID == w.client.MyUserID() {
		return
	}
	from := sender{id: msg.FromID, username: msg.FromName}
	if u, ok := w.presence.Get(msg.FromID); ok {
		from.nickname = u.Nickname
		if u.Username != "" {
			from.username = u.Username
		}
	}

	switch msg.Type {
	case talk.MessageChannel:
		w.handleChannelText(from, msg)
	case talk.MessageUser:
		w.handleUserText(from, msg)
	default:
		w.log.Debug().Int("type", int(msg.Type)).Int32("user_id", msg.FromID).Msg("ignored text message")
	}
}

func (w *Worker) handleChannelText(from sender, msg talk.TextMessage) {
	name, arg := parseCommand(msg.Content)
	switch name {
	case "/skip":
		w.adminOnly(from, func(ctx context.Context, _ string) {
			w.send(ctx, core.Command{Kind: core.CommandSkipStream})
		})
	case "/pm":
		if arg == "" {
			return
		}
		w.emit(core.NewToAdminChannel(core.AdminChannelMessage{
			ChannelID:   msg.ChannelID,
			ChannelName: w.channelName(msg.ChannelID),
			ServerName:  w.serverName,
			Content:     arg,
		}))
	}
}

func (w *Worker) handleUserText(from sender, msg talk.TextMessage) {
	name, arg := parseCommand(msg.Content)
	switch name {
	case "/help":
		w.spawn(func(ctx context.Context) {
			lang := w.langFor(ctx, from.username)
			w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, i18n.KeyHelp)))
		})
	case "/sub":
		w.replyDeeplink(from, store.DeeplinkSubscribe, i18n.KeySubLink)
	case "/unsub":
		w.replyDeeplink(from, store.DeeplinkUnsubscribe, i18n.KeyUnsubLink)
	case "/skip":
		w.adminOnly(from, func(ctx context.Context, lang string) {
			w.send(ctx, core.Command{Kind: core.CommandSkipStream})
			w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, i18n.KeySkipped)))
		})
	case "/add_admin":
		w.adminOnly(from, func(ctx context.Context, lang string) {
			w.changeAdmins(ctx, from, lang, arg, w.store.AddAdmin, i18n.KeyAdminsAdded)
		})
	case "/remove_admin":
		w.adminOnly(from, func(ctx context.Context, lang string) {
			w.changeAdmins(ctx, from, lang, arg, w.store.RemoveAdmin, i18n.KeyAdminsRemoved)
		})
	default:
		if strings.TrimSpace(msg.Content) == "" {
			return
		}
		w.emit(core.NewToAdmin(core.AdminMessage{
			UserID:     from.id,
			Nickname:   displayName(from.nickname, from.username),
			Username:   from.username,
			Content:    msg.Content,
			ServerName: w.serverName,
		}))
	}
}

// adminOnly resolves admin rights off the worker goroutine and runs fn only
// for admins. Everyone else gets a localized refusal.
func (w *Worker) adminOnly(from sender, fn func(ctx context.Context, lang string)) {
	w.spawn(func(ctx context.Context) {
		lang := w.langFor(ctx, from.username)
		ok, err := w.isAdmin(ctx, from.username)
		if err != nil {
			w.log.Warn().Err(err).Str("username", from.username).Msg("admin check failed")
			w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, i18n.KeyCommandFailed)))
			return
		}
		if !ok {
			w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, i18n.KeyUnauthorized)))
			return
		}
		fn(ctx, lang)
	})
}

func (w *Worker) isAdmin(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	tgID, err := w.store.TelegramIDByTalkUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return w.store.IsAdmin(ctx, tgID)
}

func (w *Worker) langFor(ctx context.Context, username string) string {
	if username == "" {
		return w.catalog.Lang(w.opts.DefaultLang)
	}
	lang, err := w.store.LangByTalkUser(ctx, username)
	if err != nil || lang == "" {
		return w.catalog.Lang(w.opts.DefaultLang)
	}
	return w.catalog.Lang(lang)
}

func (w *Worker) replyDeeplink(from sender, action store.DeeplinkAction, key string) {
	w.spawn(func(ctx context.Context) {
		lang := w.langFor(ctx, from.username)
		token, err := w.store.CreateDeeplink(ctx, action, from.username, w.opts.DeeplinkTTL)
		if err != nil {
			w.log.Warn().Err(err).Str("username", from.username).Msg("create deeplink failed")
			w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, i18n.KeyCommandFailed)))
			return
		}
		link := "https://t.me/" + w.opts.BotUsername + "?start=" + token
		w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, key, "link", link)))
	})
}

// changeAdmins applies op to every id in arg. Malformed ids are skipped and
// reported separately from successes and no-ops.
func (w *Worker) changeAdmins(ctx context.Context, from sender, lang, arg string, op func(context.Context, int64) (bool, error), key string) {
	var ok, dup, bad int
	for _, field := range strings.Fields(arg) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil || id <= 0 {
			bad++
			continue
		}
		changed, err := op(ctx, id)
		if err != nil {
			w.log.Warn().Err(err).Int64("chat_id", id).Msg("admin update failed")
			bad++
			continue
		}
		if changed {
			ok++
		} else {
			dup++
		}
	}
	w.send(ctx, core.ReplyToUser(from.id, w.catalog.Render(lang, key,
		"ok", strconv.Itoa(ok),
		"dup", strconv.Itoa(dup),
		"bad", strconv.Itoa(bad),
	)))
}

// parseCommand splits "/cmd rest" into a lowercased command and its argument.
// Plain text yields an empty command.
func parseCommand(text string) (name, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, arg, _ = strings.Cut(text, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline or space in the second half of a chunk. Chunks that
// are only whitespace are dropped.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' || runes[i-1] == ' ' {
				cut = i
				break
			}
		}
		if part := strings.Trim(string(runes[:cut]), " \n"); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if tail := strings.Trim(string(runes), " \n"); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}
