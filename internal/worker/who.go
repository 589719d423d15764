package worker

import (
	"strconv"
	"strings"

	"github.com/vovakirdan/ttbridge/internal/i18n"
)

// whoReport renders the online list grouped by channel.
func (w *Worker) whoReport(lang string) string {
	self := w.client.MyUserID()
	users := w.presence.Snapshot()

	online := users[:0]
	for _, u := range users {
		if u.ID != self {
			online = append(online, u)
		}
	}
	if len(online) == 0 {
		return w.catalog.Render(lang, i18n.KeyWhoEmpty, "server", w.serverName)
	}

	var b strings.Builder
	b.WriteString(w.catalog.Render(lang, i18n.KeyWhoHeader,
		"server", w.serverName,
		"count", strconv.Itoa(len(online)),
	))

	channel := "\x00"
	var names []string
	flush := func() {
		if len(names) == 0 {
			return
		}
		title := channel
		if title == "" {
			title = w.catalog.Render(lang, i18n.KeyWhoNoChannel)
		}
		b.WriteString("\n\n")
		b.WriteString(title)
		b.WriteString(":\n")
		b.WriteString(strings.Join(names, ", "))
		names = names[:0]
	}
	for _, u := range online {
		if u.ChannelName != channel {
			flush()
			channel = u.ChannelName
		}
		names = append(names, displayName(u.Nickname, u.Username))
	}
	flush()
	return b.String()
}
