// Package worker runs the talk-server client on a dedicated OS thread and
// bridges it to the rest of the process through core.Bus.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/store"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

// State is the connection state of the worker.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggedIn
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "logged_in"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Options configure a worker run.
type Options struct {
	Nickname        string
	Username        string
	Password        string
	ClientName      string
	Channel         string
	ChannelPassword string
	StatusText      string
	// ServerName overrides the name reported by the server.
	ServerName      string
	IgnoreUsernames []string
	Warmup          time.Duration
	LoginTimeout    time.Duration

	ReconnectMin       time.Duration
	ReconnectMax       time.Duration
	ReconnectStability time.Duration

	PollBatch   int
	PollTimeout time.Duration

	CleanupGrace    time.Duration
	CleanupAttempts int
	CleanupBackoff  time.Duration
	Playback        talk.PlaybackOptions

	BotUsername  string
	DeeplinkTTL  time.Duration
	DefaultLang  string
	AsyncTimeout time.Duration
}

// DefaultOptions returns the stock tuning values.
func DefaultOptions() Options {
	return Options{
		ClientName:         "ttbridge",
		Channel:            "/",
		Warmup:             2 * time.Second,
		LoginTimeout:       30 * time.Second,
		ReconnectMin:       5 * time.Second,
		ReconnectMax:       5 * time.Minute,
		ReconnectStability: time.Minute,
		PollBatch:          50,
		PollTimeout:        100 * time.Millisecond,
		CleanupGrace:       10 * time.Second,
		CleanupAttempts:    10,
		CleanupBackoff:     30 * time.Second,
		Playback:           talk.PlaybackOptions{Volume: 1000},
		DeeplinkTTL:        10 * time.Minute,
		DefaultLang:        "en",
		AsyncTimeout:       10 * time.Second,
	}
}

// Worker exclusively owns a talk.Client. Everything except Presence,
// Accounts, State and Streaming must only be touched by the worker goroutine.
type Worker struct {
	opts     Options
	client   talk.Client
	bus      *core.Bus
	store    store.Store
	catalog  *i18n.Catalog
	presence *Presence
	accounts *Accounts
	log      *zerolog.Logger

	policy  *ReconnectPolicy
	streams *StreamQueue
	janitor *Janitor
	ignore  map[string]struct{}

	state       atomic.Int32
	streaming   atomic.Bool
	stateSince  time.Time
	readyAt     time.Time
	nextAttempt time.Time
	serverName  string
	channels    map[int32]string

	ctx    context.Context
	cancel context.CancelFunc
	async  sync.WaitGroup
	done   chan struct{}
	now    func() time.Time
	handle func(talk.Event)
}

// New builds a worker. Nothing runs until Start.
func New(opts Options, client talk.Client, bus *core.Bus, st store.Store, catalog *i18n.Catalog, presence *Presence, logger *zerolog.Logger) *Worker {
	l := logger.With().Str("component", "worker").Logger()
	w := &Worker{
		opts:     opts,
		client:   client,
		bus:      bus,
		store:    st,
		catalog:  catalog,
		presence: presence,
		accounts: NewAccounts(),
		log:      &l,
		policy:   NewReconnectPolicy(opts.ReconnectMin, opts.ReconnectMax, opts.ReconnectStability),
		janitor:  NewJanitor(opts.CleanupGrace, opts.CleanupAttempts, opts.CleanupBackoff, &l),
		ignore:   make(map[string]struct{}, len(opts.IgnoreUsernames)),
		channels: make(map[int32]string),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	w.handle = w.handleEvent
	for _, name := range opts.IgnoreUsernames {
		w.ignore[name] = struct{}{}
	}
	streamer := &clientStreamer{client: client, opts: opts.Playback, log: &l}
	w.streams = NewStreamQueue(streamer, w.armStreamTimer, w.janitor.Schedule, &l)
	return w
}

// Start launches the worker goroutine and waits for its init result.
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	initResult := make(chan error, 1)

	go func() {
		defer close(w.done)
		// the client handle stays on one OS thread for its whole life
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := w.init(); err != nil {
			initResult <- err
			return
		}
		initResult <- nil
		w.loop()
	}()

	select {
	case err := <-initResult:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Presence returns the shared presence indexes.
func (w *Worker) Presence() *Presence {
	return w.presence
}

// Accounts returns the shared account cache.
func (w *Worker) Accounts() *Accounts {
	return w.accounts
}

// State returns the current connection state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Streaming reports whether the client is streaming a media file.
func (w *Worker) Streaming() bool {
	return w.streaming.Load()
}

func (w *Worker) init() error {
	if w.client == nil {
		return errors.New("talk client is nil")
	}
	if w.opts.Username == "" && w.opts.Nickname == "" {
		return errors.New("talk nickname or username is required")
	}
	if w.opts.PollBatch <= 0 {
		w.opts.PollBatch = 50
	}
	if w.opts.PollTimeout <= 0 {
		w.opts.PollTimeout = 100 * time.Millisecond
	}
	w.setState(StateDisconnected)
	return nil
}

func (w *Worker) loop() {
	w.log.Info().Msg("worker started")
	for {
		if w.State() == StateDisconnected {
			w.reconnectStep()
		} else {
			w.checkLoginTimeout()
		}

		if w.drainCommands() {
			w.shutdown()
			return
		}

		seen := 0
		for seen < w.opts.PollBatch {
			ev, ok := w.client.Poll(0)
			if !ok {
				break
			}
			seen++
			w.dispatch(ev)
		}

		if seen == 0 {
			if ev, ok := w.client.Poll(w.opts.PollTimeout); ok {
				w.dispatch(ev)
			}
		}
	}
}

// dispatch forwards an event to the handler, swallowing processing noise
// while a stream is active.
func (w *Worker) dispatch(ev talk.Event) {
	if ev.Kind == talk.EventCmdProcessing && w.streaming.Load() {
		return
	}
	w.handle(ev)
}

// drainCommands handles every queued command. It reports true once Shutdown is seen.
func (w *Worker) drainCommands() bool {
	for {
		cmd, ok := w.bus.TryReceiveCommand()
		if !ok {
			return false
		}
		if cmd.Kind == core.CommandShutdown {
			w.log.Info().Msg("shutdown requested")
			return true
		}
		w.handleCommand(cmd)
	}
}

func (w *Worker) handleCommand(cmd core.Command) {
	l := w.log.With().Stringer("command", cmd.Kind).Logger()

	switch cmd.Kind {
	case core.CommandReplyToUser:
		for _, part := range splitMessage(cmd.Text, maxTextLength) {
			if err := w.client.SendToUser(cmd.UserID, part); err != nil {
				l.Warn().Err(err).Int32("user_id", cmd.UserID).Msg("send to user failed")
				return
			}
		}
	case core.CommandSendToChannel:
		channelID := cmd.ChannelID
		if channelID == 0 {
			channelID = w.client.MyChannelID()
		}
		for _, part := range splitMessage(cmd.Text, maxTextLength) {
			if err := w.client.SendToChannel(channelID, part); err != nil {
				l.Warn().Err(err).Int32("channel_id", channelID).Msg("send to channel failed")
				return
			}
		}
	case core.CommandEnqueueStream:
		if cmd.Stream == nil {
			l.Warn().Msg("enqueue without stream request")
			return
		}
		if w.State() != StateReady {
			w.streams.Hold(*cmd.Stream)
			return
		}
		w.streams.Enqueue(*cmd.Stream)
	case core.CommandStopStreamingIf:
		if !w.streams.StopIf(cmd.StreamID) {
			l.Debug().Uint64("stream_id", cmd.StreamID).Msg("stale stop ignored")
		}
	case core.CommandSkipStream:
		w.streams.Skip()
	case core.CommandSetStreamingStatus:
		w.setStreaming(cmd.Streaming, false)
	case core.CommandKickUser:
		if err := w.client.KickUser(cmd.UserID, 0); err != nil {
			l.Warn().Err(err).Int32("user_id", cmd.UserID).Msg("kick failed")
		}
	case core.CommandBanUser:
		if err := w.client.BanUser(cmd.UserID); err != nil {
			l.Warn().Err(err).Int32("user_id", cmd.UserID).Msg("ban failed")
			return
		}
		if err := w.client.KickUser(cmd.UserID, 0); err != nil {
			l.Warn().Err(err).Int32("user_id", cmd.UserID).Msg("kick after ban failed")
		}
	case core.CommandWho:
		w.emit(core.NewWhoReport(core.WhoReport{
			ChatID:  cmd.ChatID,
			Text:    w.whoReport(cmd.Lang),
			ReplyTo: cmd.ReplyTo,
		}))
	case core.CommandLoadAccounts:
		w.loadAccounts()
	default:
		l.Warn().Msg("unknown command")
	}
}

// reconnectStep connects when the backoff delay has passed.
func (w *Worker) reconnectStep() {
	if w.now().Before(w.nextAttempt) {
		return
	}

	w.setState(StateConnecting)
	if err := w.client.Connect(w.ctx); err != nil {
		delay := w.policy.NextDelay()
		w.nextAttempt = w.now().Add(delay)
		w.setState(StateDisconnected)
		w.log.Warn().Err(err).Int("attempt", w.policy.Attempts()).Dur("delay", delay).Msg("connect failed")
		return
	}
	w.log.Info().Msg("connecting to talk server")
}

func (w *Worker) checkLoginTimeout() {
	if w.opts.LoginTimeout <= 0 {
		return
	}
	switch w.State() {
	case StateConnecting, StateLoggedIn:
		if w.now().Sub(w.stateSince) > w.opts.LoginTimeout {
			w.handleDisconnect("login timeout")
		}
	}
}

// handleDisconnect tears down session state and schedules the next attempt.
func (w *Worker) handleDisconnect(reason string) {
	w.policy.MarkDisconnected()
	w.presence.Clear()
	w.readyAt = time.Time{}
	w.channels = make(map[int32]string)
	w.streams.Reset()
	w.streaming.Store(false)

	if err := w.client.Disconnect(); err != nil {
		w.log.Debug().Err(err).Msg("disconnect after connection loss")
	}

	delay := w.policy.NextDelay()
	w.nextAttempt = w.now().Add(delay)
	w.setState(StateDisconnected)
	w.log.Warn().Str("reason", reason).Int("attempt", w.policy.Attempts()).Dur("delay", delay).Msg("disconnected from talk server")
}

// shutdown runs every teardown step even if earlier ones fail.
func (w *Worker) shutdown() {
	w.streams.Close()

	if w.State() == StateLoggedIn || w.State() == StateReady {
		if err := w.client.Logout(); err != nil {
			w.log.Warn().Err(err).Msg("logout failed")
		}
	}
	if err := w.client.Disconnect(); err != nil {
		w.log.Warn().Err(err).Msg("disconnect failed")
	}

	w.presence.Clear()
	w.setState(StateDisconnected)
	w.cancel()
	w.async.Wait()
	w.log.Info().Msg("worker stopped")
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.stateSince = w.now()
}

// emit hands an event to the dispatcher, blocking while the channel is full.
func (w *Worker) emit(ev core.Event) {
	if err := w.bus.SendEvent(w.ctx, ev); err != nil {
		w.log.Warn().Err(err).Stringer("event", ev.Kind).Msg("bridge event dropped")
	}
}

// schedule queues a command for the worker itself without blocking.
func (w *Worker) schedule(cmd core.Command) {
	if err := w.bus.TrySendCommand(cmd); err != nil {
		w.log.Warn().Err(err).Stringer("command", cmd.Kind).Msg("self-scheduled command dropped")
	}
}

// armStreamTimer emits StopStreamingIf once the stream's duration has passed.
func (w *Worker) armStreamTimer(d time.Duration, streamID uint64) {
	if d <= 0 {
		return
	}
	time.AfterFunc(d, func() {
		if err := w.bus.SendCommand(w.ctx, core.StopStreamingIf(streamID)); err != nil {
			w.log.Debug().Err(err).Uint64("stream_id", streamID).Msg("stream timer dropped")
		}
	})
}

// spawn runs fn on a helper goroutine. Helpers may use the store and send
// commands, but never touch the client or worker-owned state.
func (w *Worker) spawn(fn func(ctx context.Context)) {
	w.async.Add(1)
	go func() {
		defer w.async.Done()
		ctx, cancel := context.WithTimeout(w.ctx, w.opts.AsyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// send delivers a command from a helper goroutine.
func (w *Worker) send(ctx context.Context, cmd core.Command) {
	if err := w.bus.SendCommand(ctx, cmd); err != nil {
		w.log.Warn().Err(err).Stringer("command", cmd.Kind).Msg("command delivery failed")
	}
}

func (w *Worker) setStreaming(on bool, paused bool) {
	w.streaming.Store(on)
	mode := talk.StatusAvailable
	switch {
	case on && paused:
		mode |= talk.StatusPaused
	case on:
		mode |= talk.StatusStreaming
	}
	if w.State() != StateReady {
		return
	}
	if err := w.client.SetStatus(mode, w.opts.StatusText); err != nil {
		w.log.Debug().Err(err).Msg("set status failed")
	}
}

func (w *Worker) loadAccounts() {
	accounts, err := w.client.ListUserAccounts()
	if err != nil {
		w.log.Warn().Err(err).Msg("list user accounts failed")
		return
	}
	w.accounts.Replace(accounts)
	w.log.Debug().Int("accounts", len(accounts)).Msg("accounts loaded")
}

// Accounts caches server accounts by username.
type Accounts struct {
	mu sync.RWMutex
	m  map[string]talk.Account
}

// NewAccounts returns an empty cache.
func NewAccounts() *Accounts {
	return &Accounts{m: make(map[string]talk.Account)}
}

// Replace swaps the whole cache.
func (a *Accounts) Replace(list []talk.Account) {
	m := make(map[string]talk.Account, len(list))
	for _, acc := range list {
		m[acc.Username] = acc
	}
	a.mu.Lock()
	a.m = m
	a.mu.Unlock()
}

// Get returns an account by username.
func (a *Accounts) Get(username string) (talk.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.m[username]
	return acc, ok
}

// List returns every cached account.
func (a *Accounts) List() []talk.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]talk.Account, 0, len(a.m))
	for _, acc := range a.m {
		out = append(out, acc)
	}
	return out
}
