package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/ttbridge/internal/auth"
	"github.com/vovakirdan/ttbridge/internal/bridge"
	"github.com/vovakirdan/ttbridge/internal/config"
	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/proto"
	"github.com/vovakirdan/ttbridge/internal/store/sqlite"
	"github.com/vovakirdan/ttbridge/internal/talk"
	"github.com/vovakirdan/ttbridge/internal/talk/gateway"
	"github.com/vovakirdan/ttbridge/internal/telegram"
	transporthttp "github.com/vovakirdan/ttbridge/internal/transport/http"
	"github.com/vovakirdan/ttbridge/internal/worker"
)

const workerStopTimeout = 10 * time.Second

// App wires together the worker, the Telegram side and the operator API.
type App struct {
	cfg        config.Config
	store      *sqlite.SQLiteStore
	bus        *core.Bus
	worker     *worker.Worker
	dispatcher *bridge.Dispatcher
	bot        *telegram.Bot
	server     *stdhttp.Server
	stop       chan struct{}
	stopOnce   sync.Once
	log        *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.Database.Path).Msg("database initialized")

	if err := seedAdmins(context.Background(), st, cfg.Telegram.AdminIDs); err != nil {
		_ = st.Close()
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info().Str("bot", api.Self.UserName).Msg("telegram bot authorized")

	a := &App{
		cfg:   *cfg,
		store: st,
		bus:   core.NewBus(cfg.Talk.CommandBuffer, cfg.Talk.EventBuffer),
		stop:  make(chan struct{}),
		log:   logger,
	}

	catalog := i18n.New(cfg.Telegram.DefaultLang)
	presence := worker.NewPresence()

	client := gateway.New(gateway.Config{
		URL:    cfg.Talk.GatewayURL,
		Secret: cfg.Talk.GatewaySecret,
		Server: proto.ConnectParams{
			Host:      cfg.Talk.Host,
			TCPPort:   cfg.Talk.TCPPort,
			UDPPort:   cfg.Talk.UDPPort,
			Encrypted: cfg.Talk.Encrypted,
		},
		EventBuffer: cfg.Talk.EventBuffer,
	}, logger)

	opts := workerOptions(cfg)
	if opts.BotUsername == "" {
		opts.BotUsername = api.Self.UserName
	}
	a.worker = worker.New(opts, client, a.bus, st, catalog, presence, logger)

	messenger := telegram.NewMessenger(api)
	a.dispatcher = bridge.New(bridge.Config{
		Concurrency: cfg.Telegram.SendConcurrency,
		DefaultLang: cfg.Telegram.DefaultLang,
	}, a.bus.Events(), a.bus, messenger, st, presence, catalog, logger)

	a.bot = telegram.NewBot(telegram.BotConfig{
		WebhookURL:  cfg.Telegram.WebhookURL,
		PollTimeout: cfg.Telegram.PollTimeout,
		MediaDir:    cfg.Telegram.MediaDir,
		DefaultLang: cfg.Telegram.DefaultLang,
	}, api, messenger, messenger, st, a.bus, catalog, a.RequestShutdown, logger)

	if cfg.HTTP.Enabled {
		authService := auth.NewService(cfg.HTTP.AdminUsername, cfg.HTTP.AdminPasswordHash, &auth.JWTConfig{
			Secret:   []byte(cfg.HTTP.JWTSecret),
			Issuer:   cfg.HTTP.JWTIssuer,
			Audience: cfg.HTTP.JWTAudience,
			TTL:      cfg.HTTP.TokenTTL,
		})
		deps := transporthttp.Deps{
			Auth:     authService,
			Worker:   a.worker,
			Commands: a.bus,
			Shutdown: a.RequestShutdown,
		}
		if cfg.Telegram.WebhookURL != "" {
			deps.Webhook = a.bot
		}
		a.server = transporthttp.NewServer(deps, cfg.HTTP, logger)
	}

	return a, nil
}

// workerOptions maps configuration onto worker options.
func workerOptions(cfg *config.Config) worker.Options {
	opts := worker.DefaultOptions()
	t := cfg.Talk

	opts.Nickname = t.Nickname
	opts.Username = t.Username
	opts.Password = t.Password
	if t.ClientName != "" {
		opts.ClientName = t.ClientName
	}
	if t.Channel != "" {
		opts.Channel = t.Channel
	}
	opts.ChannelPassword = t.ChannelPassword
	opts.StatusText = t.StatusText
	opts.ServerName = t.ServerName
	opts.IgnoreUsernames = t.IgnoreUsernames
	opts.Warmup = t.Warmup
	if t.LoginTimeout > 0 {
		opts.LoginTimeout = t.LoginTimeout
	}
	if t.ReconnectMin > 0 {
		opts.ReconnectMin = t.ReconnectMin
	}
	if t.ReconnectMax > 0 {
		opts.ReconnectMax = t.ReconnectMax
	}
	if t.ReconnectStability > 0 {
		opts.ReconnectStability = t.ReconnectStability
	}
	if t.PollBatch > 0 {
		opts.PollBatch = t.PollBatch
	}
	if t.PollTimeout > 0 {
		opts.PollTimeout = t.PollTimeout
	}
	opts.CleanupGrace = t.CleanupGrace
	if t.CleanupAttempts > 0 {
		opts.CleanupAttempts = t.CleanupAttempts
	}
	opts.CleanupBackoff = t.CleanupBackoff
	if t.StreamVolume > 0 {
		opts.Playback = talk.PlaybackOptions{Volume: t.StreamVolume}
	}
	if t.DeeplinkTTL > 0 {
		opts.DeeplinkTTL = t.DeeplinkTTL
	}
	opts.BotUsername = cfg.Telegram.BotUsername
	if cfg.Telegram.DefaultLang != "" {
		opts.DefaultLang = cfg.Telegram.DefaultLang
	}
	return opts
}

type adminSeeder interface {
	AddAdmin(ctx context.Context, telegramID int64) (bool, error)
}

func seedAdmins(ctx context.Context, st adminSeeder, ids []int64) error {
	for _, id := range ids {
		if _, err := st.AddAdmin(ctx, id); err != nil {
			return fmt.Errorf("seed admin %d: %w", id, err)
		}
	}
	return nil
}

// RequestShutdown asks Run to stop. Safe to call more than once.
func (a *App) RequestShutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Run starts every component and blocks until context cancellation,
// a shutdown request, or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	// the worker outlives ctx so it can log out cleanly
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if err := a.worker.Start(workerCtx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		if err := a.bot.Run(gctx); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
			defer done()
			a.log.Info().Msg("shutting down http server")
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.stop:
			a.log.Info().Msg("shutdown requested")
		case <-a.worker.Done():
		}
		a.stopWorker(cancelWorker)
		cancel()
		return nil
	})

	return g.Wait()
}

// stopWorker sends Shutdown and waits for the loop to finish its teardown.
func (a *App) stopWorker(cancelWorker context.CancelFunc) {
	sendCtx, done := context.WithTimeout(context.Background(), workerStopTimeout)
	defer done()
	if err := a.bus.SendCommand(sendCtx, core.Command{Kind: core.CommandShutdown}); err != nil {
		a.log.Warn().Err(err).Msg("shutdown command not delivered")
	}
	// pending event sends fail fast from here on
	cancelWorker()

	select {
	case <-a.worker.Done():
	case <-time.After(workerStopTimeout):
		a.log.Warn().Msg("worker did not stop in time")
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
