package http

import (
	"bytes"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/auth"
	"github.com/vovakirdan/ttbridge/internal/config"
	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/worker"
)

const testPassword = "correct-horse"

type fakeWorker struct {
	presence *worker.Presence
	accounts *worker.Accounts
}

func (f *fakeWorker) State() worker.State        { return worker.StateReady }
func (f *fakeWorker) Streaming() bool            { return true }
func (f *fakeWorker) Presence() *worker.Presence { return f.presence }
func (f *fakeWorker) Accounts() *worker.Accounts { return f.accounts }

type fakeWebhook struct {
	calls atomic.Int32
}

func (f *fakeWebhook) HandleWebhook(r *stdhttp.Request) error {
	f.calls.Add(1)
	return nil
}

type testServer struct {
	ts        *httptest.Server
	bus       *core.Bus
	worker    *fakeWorker
	shutdowns atomic.Int32
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, jwtSecret string) *auth.Service {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService("admin", hash, jwtConfig)
}

func newTestServer(t *testing.T, webhook WebhookReceiver, rateLimit int) *testServer {
	t.Helper()

	s := &testServer{
		bus:    core.NewBus(8, 8),
		worker: &fakeWorker{presence: worker.NewPresence(), accounts: worker.NewAccounts()},
	}
	logger := zerolog.Nop()
	cfg := config.Default().HTTP
	cfg.LoginRateLimit = rateLimit

	server := NewServer(Deps{
		Auth:     createTestAuthService(t, "test-secret-0123456789"),
		Worker:   s.worker,
		Commands: s.bus,
		Webhook:  webhook,
		Shutdown: func() { s.shutdowns.Add(1) },
	}, cfg, &logger)

	s.ts = httptest.NewServer(server.Handler)
	t.Cleanup(s.ts.Close)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, s.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()

	resp := s.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{Username: "admin", Password: testPassword})
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Token
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
