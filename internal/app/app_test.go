package app

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/ttbridge/internal/config"
	"github.com/vovakirdan/ttbridge/internal/store/sqlite"
	"github.com/vovakirdan/ttbridge/internal/worker"
)

func TestWorkerOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Talk.Username = "bridge"
	cfg.Talk.Warmup = 0
	cfg.Talk.ReconnectMin = time.Second
	cfg.Talk.StreamVolume = 500
	cfg.Talk.IgnoreUsernames = []string{"recorder"}
	cfg.Telegram.BotUsername = "ttbot"
	cfg.Telegram.DefaultLang = "ru"

	opts := workerOptions(&cfg)

	if opts.Username != "bridge" || opts.Nickname != cfg.Talk.Nickname {
		t.Fatalf("identity not mapped: %+v", opts)
	}
	if opts.Warmup != 0 {
		t.Fatalf("zero warm-up must be kept, got %s", opts.Warmup)
	}
	if opts.ReconnectMin != time.Second || opts.ReconnectMax != cfg.Talk.ReconnectMax {
		t.Fatalf("reconnect bounds %s/%s", opts.ReconnectMin, opts.ReconnectMax)
	}
	if opts.Playback.Volume != 500 {
		t.Fatalf("volume %d", opts.Playback.Volume)
	}
	if len(opts.IgnoreUsernames) != 1 || opts.BotUsername != "ttbot" || opts.DefaultLang != "ru" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.AsyncTimeout != worker.DefaultOptions().AsyncTimeout {
		t.Fatalf("async timeout default lost: %s", opts.AsyncTimeout)
	}
}

func TestSeedAdmins(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.EnsureSchema)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	// seeding twice is harmless
	for i := 0; i < 2; i++ {
		if err := seedAdmins(ctx, st, []int64{5, 7}); err != nil {
			t.Fatalf("seedAdmins: %v", err)
		}
	}

	admins, err := st.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("admins %v", admins)
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	a := &App{stop: make(chan struct{})}

	a.RequestShutdown()
	a.RequestShutdown()

	select {
	case <-a.stop:
	default:
		t.Fatal("stop channel not closed")
	}
}
