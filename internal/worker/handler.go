package worker

import (
	"path/filepath"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

// handleEvent maps one client event to presence changes, commands and
// bridge events. Runs on the worker goroutine only.
func (w *Worker) handleEvent(ev talk.Event) {
	if ev.Kind.IsDisconnect() {
		w.handleDisconnect(ev.Kind.String())
		return
	}

	switch ev.Kind {
	case talk.EventConnectSuccess:
		w.onConnected()
	case talk.EventMyselfLoggedIn:
		w.onLoggedIn()
	case talk.EventCmdError:
		if ce, ok := ev.Err(); ok {
			w.log.Warn().Int("code", ce.Code).Str("error", ce.Message).Msg("talk command failed")
		}
	case talk.EventCmdProcessing:
	case talk.EventUserLoggedIn:
		if u, ok := ev.User(); ok {
			w.onUserLoggedIn(u)
		}
	case talk.EventUserLoggedOut:
		if u, ok := ev.User(); ok {
			w.onUserLoggedOut(u)
		}
	case talk.EventUserUpdate:
		if u, ok := ev.User(); ok {
			if !w.presence.Rename(u.ID, u.Nickname, u.Username) {
				w.presence.Upsert(w.liteUser(u))
			}
		}
	case talk.EventUserJoined:
		if u, ok := ev.User(); ok {
			if !w.presence.SetChannel(u.ID, w.channelName(u.ChannelID)) {
				w.presence.Upsert(w.liteUser(u))
			}
		}
	case talk.EventUserLeft:
		if u, ok := ev.User(); ok {
			w.presence.SetChannel(u.ID, "")
		}
	case talk.EventUserTextMessage:
		if msg, ok := ev.Text(); ok {
			w.handleText(msg)
		}
	case talk.EventUserAccountNew, talk.EventUserAccountRemove:
		w.schedule(core.Command{Kind: core.CommandLoadAccounts})
	case talk.EventStreamMediaFile:
		if info, ok := ev.MediaFile(); ok {
			w.onMediaFile(info)
		}
	case talk.EventServerUpdate:
		w.refreshServerName()
	default:
		w.log.Debug().Stringer("event", ev.Kind).Msg("ignored talk event")
	}
}

func (w *Worker) onConnected() {
	w.policy.MarkConnected()
	if err := w.client.Login(w.opts.Nickname, w.opts.Username, w.opts.Password, w.opts.ClientName); err != nil {
		w.handleDisconnect("login request failed: " + err.Error())
		return
	}
	w.setState(StateLoggedIn)
	w.log.Info().Str("username", w.opts.Username).Msg("connected, logging in")
}

func (w *Worker) onLoggedIn() {
	w.setState(StateReady)
	w.readyAt = w.now()

	if err := w.client.SetStatus(talk.StatusAvailable, w.opts.StatusText); err != nil {
		w.log.Warn().Err(err).Msg("set status failed")
	}
	if w.opts.Channel != "" {
		if err := w.client.JoinChannel(w.opts.Channel, w.opts.ChannelPassword); err != nil {
			w.log.Warn().Err(err).Str("channel", w.opts.Channel).Msg("join channel failed")
		}
	}
	w.schedule(core.Command{Kind: core.CommandLoadAccounts})
	w.refreshServerName()
	w.loadPresence()

	w.streams.Resume()
	w.log.Info().Str("server", w.serverName).Int("users", w.presence.Len()).Msg("logged in")
}

// loadPresence fills the indexes with users already online. No broadcasts.
func (w *Worker) loadPresence() {
	users, err := w.client.ServerUsers()
	if err != nil {
		w.log.Warn().Err(err).Msg("list server users failed")
		return
	}
	self := w.client.MyUserID()
	for _, u := range users {
		if u.ID == self {
			continue
		}
		w.presence.Upsert(w.liteUser(u))
	}
}

func (w *Worker) refreshServerName() {
	if w.opts.ServerName != "" {
		w.serverName = w.opts.ServerName
		return
	}
	props, err := w.client.ServerProperties()
	if err != nil {
		w.log.Debug().Err(err).Msg("server properties unavailable")
		return
	}
	w.serverName = props.Name
}

func (w *Worker) onUserLoggedIn(u talk.User) {
	if u.ID == w.client.MyUserID() {
		return
	}
	w.presence.Upsert(w.liteUser(u))
	if !w.shouldBroadcast(u) {
		return
	}
	w.emit(core.NewBroadcast(core.BroadcastEvent{
		Type:            core.NotificationJoin,
		Nickname:        displayName(u.Nickname, u.Username),
		ServerName:      w.serverName,
		RelatedUsername: u.Username,
	}))
}

func (w *Worker) onUserLoggedOut(u talk.User) {
	if old, ok := w.presence.Remove(u.ID); ok {
		if u.Nickname == "" {
			u.Nickname = old.Nickname
		}
		if u.Username == "" {
			u.Username = old.Username
		}
	}
	if !w.shouldBroadcast(u) {
		return
	}
	w.emit(core.NewBroadcast(core.BroadcastEvent{
		Type:            core.NotificationLeave,
		Nickname:        displayName(u.Nickname, u.Username),
		ServerName:      w.serverName,
		RelatedUsername: u.Username,
	}))
}

// shouldBroadcast gates join/leave notifications: only when ready, past the
// warm-up window, and never for ignored accounts or the bot itself.
func (w *Worker) shouldBroadcast(u talk.User) bool {
	if w.State() != StateReady || w.readyAt.IsZero() {
		return false
	}
	if w.now().Sub(w.readyAt) < w.opts.Warmup {
		return false
	}
	if u.ID == w.client.MyUserID() {
		return false
	}
	if _, ignored := w.ignore[u.Username]; ignored {
		return false
	}
	return true
}

func (w *Worker) onMediaFile(info talk.MediaFileInfo) {
	cur, playing := w.streams.Current()
	// events for a file we already moved past
	if playing && info.FileName != "" && filepath.Base(info.FileName) != filepath.Base(cur.FilePath) {
		w.log.Debug().Str("file", info.FileName).Msg("stale media event")
		return
	}

	switch {
	case info.Status == talk.MediaFilePaused:
		w.setStreaming(true, true)
	case info.Status == talk.MediaFileStarted, info.Status == talk.MediaFilePlaying:
		w.setStreaming(true, false)
	case info.Status.Ended():
		w.setStreaming(false, false)
		if playing {
			w.streams.StopIf(cur.ID)
			return
		}
		if err := w.client.StopStreaming(); err != nil {
			w.log.Debug().Err(err).Msg("stop streaming after media end")
		}
	}
}

func (w *Worker) liteUser(u talk.User) LiteUser {
	return LiteUser{
		ID:          u.ID,
		Nickname:    u.Nickname,
		Username:    u.Username,
		ChannelName: w.channelName(u.ChannelID),
	}
}

// channelName resolves and caches channel paths for the current session.
func (w *Worker) channelName(id int32) string {
	if id == 0 {
		return ""
	}
	if name, ok := w.channels[id]; ok {
		return name
	}
	ch, err := w.client.Channel(id)
	if err != nil {
		w.log.Debug().Err(err).Int32("channel_id", id).Msg("channel lookup failed")
		return ""
	}
	name := ch.Path
	if name == "" {
		name = ch.Name
	}
	w.channels[id] = name
	return name
}

func displayName(nickname, username string) string {
	if nickname != "" {
		return nickname
	}
	if username != "" {
		return username
	}
	return "?"
}
