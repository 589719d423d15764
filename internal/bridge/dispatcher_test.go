package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/i18n"
	"github.com/vovakirdan/ttbridge/internal/store"
)

type sent struct {
	chatID int64
	text   string
	opts   SendOptions
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sent
	errs   map[int64]error
	nextID int
}

func (m *fakeMessenger) Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[chatID]; err != nil {
		return 0, err
	}
	m.nextID++
	m.sent = append(m.sent, sent{chatID: chatID, text: text, opts: opts})
	return m.nextID, nil
}

func (m *fakeMessenger) byChat() map[int64]sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]sent, len(m.sent))
	for _, s := range m.sent {
		out[s.chatID] = s
	}
	return out
}

type fakeStore struct {
	mu         sync.Mutex
	recipients []store.Recipient
	subs       map[int64]store.Subscriber
	admins     []int64
	deleted    []int64
	pending    []store.PendingReply
	links      map[string]string
}

func (s *fakeStore) RecipientsForEvent(ctx context.Context, username string, event core.NotificationType) ([]store.Recipient, error) {
	return s.recipients, nil
}

func (s *fakeStore) DeleteUserProfile(ctx context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, telegramID)
	return nil
}

func (s *fakeStore) GetSubscriber(ctx context.Context, telegramID int64) (*store.Subscriber, error) {
	sub, ok := s.subs[telegramID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sub, nil
}

func (s *fakeStore) LangByTalkUser(ctx context.Context, username string) (string, error) {
	lang, ok := s.links[username]
	if !ok {
		return "", store.ErrNotFound
	}
	return lang, nil
}

func (s *fakeStore) ListAdmins(ctx context.Context) ([]int64, error) {
	return s.admins, nil
}

func (s *fakeStore) AddPendingReply(ctx context.Context, r store.PendingReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, r)
	return nil
}

func (s *fakeStore) AddPendingChannelReply(ctx context.Context, r store.PendingReply) error {
	return s.AddPendingReply(ctx, r)
}

type onlineSet map[string]bool

func (o onlineSet) IsOnline(username string) bool {
	return o[username]
}

type harness struct {
	d        *Dispatcher
	msg      *fakeMessenger
	store    *fakeStore
	bus      *core.Bus
	online   onlineSet
	mu       sync.Mutex
	rendered []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		msg:    &fakeMessenger{errs: map[int64]error{}},
		store:  &fakeStore{subs: map[int64]store.Subscriber{}, links: map[string]string{}},
		bus:    core.NewBus(16, 16),
		online: onlineSet{},
	}
	logger := zerolog.Nop()
	catalog := i18n.New("en")
	h.d = New(Config{Concurrency: 4, DefaultLang: "en"}, h.bus.Events(), h.bus, h.msg, h.store, h.online, catalog, &logger)
	h.d.render = func(lang, key string, kv ...string) string {
		h.mu.Lock()
		h.rendered = append(h.rendered, lang)
		h.mu.Unlock()
		return catalog.Render(lang, key, kv...)
	}
	return h
}

func joinEvent(username string) core.Event {
	return core.NewBroadcast(core.BroadcastEvent{
		Type:            core.NotificationJoin,
		Nickname:        "Alice",
		ServerName:      "Home",
		RelatedUsername: username,
	})
}

func TestBroadcastRendersOncePerLanguage(t *testing.T) {
	h := newHarness(t)
	h.store.recipients = []store.Recipient{
		{TelegramID: 1, Lang: "en"},
		{TelegramID: 2, Lang: "ru"},
		{TelegramID: 3, Lang: "en-GB"},
	}

	h.d.Handle(context.Background(), joinEvent("alice"))

	sort.Strings(h.rendered)
	if len(h.rendered) != 2 || h.rendered[0] != "en" || h.rendered[1] != "ru" {
		t.Fatalf("rendered %v, want one en and one ru", h.rendered)
	}

	got := h.msg.byChat()
	if len(got) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(got))
	}
	if got[1].text != "Alice joined Home" || got[3].text != got[1].text {
		t.Fatalf("unexpected en text %q / %q", got[1].text, got[3].text)
	}
	if got[2].text != "Alice зашёл на Home" {
		t.Fatalf("unexpected ru text %q", got[2].text)
	}
}

func TestBroadcastWithoutRecipientsIsNoop(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), joinEvent("alice"))

	if len(h.rendered) != 0 || len(h.msg.byChat()) != 0 {
		t.Fatal("empty recipient list must not render or send")
	}
}

func TestTerminalErrorsRemoveRecipient(t *testing.T) {
	h := newHarness(t)
	h.store.recipients = []store.Recipient{
		{TelegramID: 1, Lang: "en"},
		{TelegramID: 2, Lang: "en"},
		{TelegramID: 3, Lang: "en"},
		{TelegramID: 4, Lang: "en"},
	}
	h.msg.errs[1] = fmt.Errorf("send message: %w", core.ErrChatNotFound)
	h.msg.errs[2] = errors.New("dial tcp: i/o timeout")
	h.msg.errs[3] = fmt.Errorf("send message: %w", core.ErrRecipientBlocked)

	h.d.Handle(context.Background(), joinEvent("alice"))

	sort.Slice(h.store.deleted, func(i, j int) bool { return h.store.deleted[i] < h.store.deleted[j] })
	if len(h.store.deleted) != 2 || h.store.deleted[0] != 1 || h.store.deleted[1] != 3 {
		t.Fatalf("deleted %v, want [1 3]", h.store.deleted)
	}
	if _, ok := h.msg.byChat()[4]; !ok {
		t.Fatal("healthy recipient did not get the message")
	}
}

func TestSilentWhenLinkedUserOnline(t *testing.T) {
	h := newHarness(t)
	h.store.recipients = []store.Recipient{
		{TelegramID: 1, Lang: "en", NotOnOnline: true, LinkedUsername: "bob"},
		{TelegramID: 2, Lang: "en", NotOnOnline: true, LinkedUsername: "carol"},
		{TelegramID: 3, Lang: "en", NotOnOnline: false, LinkedUsername: "bob"},
	}
	h.online["bob"] = true

	h.d.Handle(context.Background(), joinEvent("alice"))

	got := h.msg.byChat()
	if !got[1].opts.Silent {
		t.Fatal("recipient 1 should be silent while bob is online")
	}
	if got[2].opts.Silent {
		t.Fatal("recipient 2 should not be silent, carol is offline")
	}
	if got[3].opts.Silent {
		t.Fatal("recipient 3 did not opt in to silence")
	}
}

func TestToAdminRecordsPendingReplies(t *testing.T) {
	h := newHarness(t)
	h.store.admins = []int64{10, 20, 30}
	h.store.subs[20] = store.Subscriber{TelegramID: 20, Lang: "ru"}
	h.store.links["alice"] = "ru"
	h.msg.errs[30] = errors.New("network down")

	h.d.Handle(context.Background(), core.NewToAdmin(core.AdminMessage{
		UserID: 7, Nickname: "Alice", Username: "alice", Content: "hi", ServerName: "Home",
	}))

	got := h.msg.byChat()
	if got[10].text != "Message from Alice (alice) on Home:\nhi" {
		t.Fatalf("unexpected en admin text %q", got[10].text)
	}
	if got[20].text != "Сообщение от Alice (alice) на Home:\nhi" {
		t.Fatalf("unexpected ru admin text %q", got[20].text)
	}

	if len(h.store.pending) != 2 {
		t.Fatalf("expected 2 pending replies, got %+v", h.store.pending)
	}
	for _, p := range h.store.pending {
		if p.TalkUserID != 7 || p.TalkUsername != "alice" || p.MessageID == 0 {
			t.Fatalf("bad pending reply %+v", p)
		}
	}

	cmd, ok := h.bus.TryReceiveCommand()
	if !ok || cmd.Kind != core.CommandReplyToUser || cmd.UserID != 7 {
		t.Fatalf("expected ack to talk user, got %+v", cmd)
	}
	if cmd.Text != "Ваше сообщение доставлено администраторам." {
		t.Fatalf("unexpected ack %q", cmd.Text)
	}
}

func TestToAdminAckDroppedWhenQueueFull(t *testing.T) {
	h := newHarness(t)
	h.store.admins = []int64{10}
	for {
		if err := h.bus.TrySendCommand(core.Command{Kind: core.CommandSkipStream}); err != nil {
			break
		}
	}
	full := h.bus.PendingCommands()

	done := make(chan struct{})
	go func() {
		h.d.Handle(context.Background(), core.NewToAdmin(core.AdminMessage{UserID: 7, Content: "hi"}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on a full command queue")
	}

	if _, ok := h.msg.byChat()[10]; !ok {
		t.Fatal("expected admin to receive the message")
	}
	if got := h.bus.PendingCommands(); got != full {
		t.Fatalf("expected queue to stay at %d, got %d", full, got)
	}
	for {
		cmd, ok := h.bus.TryReceiveCommand()
		if !ok {
			break
		}
		if cmd.Kind == core.CommandReplyToUser {
			t.Fatal("ack should have been dropped")
		}
	}
}

func TestToAdminWithoutAdminsIsUndelivered(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), core.NewToAdmin(core.AdminMessage{UserID: 7, Content: "hi"}))

	cmd, ok := h.bus.TryReceiveCommand()
	if !ok || cmd.Text != "Your message could not be delivered, please try again later." {
		t.Fatalf("expected undelivered ack, got %+v", cmd)
	}
}

func TestToAdminChannel(t *testing.T) {
	h := newHarness(t)
	h.store.admins = []int64{10}

	h.d.Handle(context.Background(), core.NewToAdminChannel(core.AdminChannelMessage{
		ChannelID: 4, ChannelName: "/lobby/", ServerName: "Home", Content: "help",
	}))

	if got := h.msg.byChat()[10].text; got != "Message in /lobby/ on Home:\nhelp" {
		t.Fatalf("unexpected channel alert %q", got)
	}
	if len(h.store.pending) != 1 || h.store.pending[0].ChannelID != 4 {
		t.Fatalf("unexpected pending %+v", h.store.pending)
	}
	cmd, ok := h.bus.TryReceiveCommand()
	if !ok || cmd.Kind != core.CommandSendToChannel || cmd.ChannelID != 4 {
		t.Fatalf("expected channel ack, got %+v", cmd)
	}
}

func TestWhoReportReply(t *testing.T) {
	h := newHarness(t)

	h.d.Handle(context.Background(), core.NewWhoReport(core.WhoReport{ChatID: 5, Text: "nobody", ReplyTo: 9}))

	got := h.msg.byChat()[5]
	if got.text != "nobody" || got.opts.ReplyTo != 9 {
		t.Fatalf("unexpected who send %+v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.d.Run(ctx) }()

	if err := h.bus.SendEvent(ctx, core.NewWhoReport(core.WhoReport{ChatID: 1, Text: "x"})); err != nil {
		t.Fatalf("send event: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(h.msg.byChat()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(h.msg.byChat()) != 1 {
		t.Fatal("event not dispatched")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
