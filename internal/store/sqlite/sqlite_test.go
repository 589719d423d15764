package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/ttbridge/internal/core"
	"github.com/vovakirdan/ttbridge/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", EnsureSchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecipientsForEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	subs := []store.Subscriber{
		{TelegramID: 1, Lang: "en", NotifyJoin: true, NotifyLeave: true},
		{TelegramID: 2, Lang: "ru", NotifyJoin: true, NotifyLeave: false, NotOnOnline: true, LinkedUsername: "bob"},
		{TelegramID: 3, Lang: "en", NotifyJoin: false, NotifyLeave: true},
		{TelegramID: 4, Lang: "ru", NotifyJoin: true, NotifyLeave: true, LinkedUsername: "alice"},
		{TelegramID: 5, Lang: "en", NotifyJoin: true, NotifyLeave: true},
	}
	for _, sub := range subs {
		if err := s.UpsertSubscriber(ctx, sub); err != nil {
			t.Fatalf("upsert %d: %v", sub.TelegramID, err)
		}
	}
	if err := s.SetMute(ctx, 5, "alice", true); err != nil {
		t.Fatalf("mute: %v", err)
	}

	tests := []struct {
		name     string
		username string
		event    core.NotificationType
		want     []int64
	}{
		{"join skips self and muted", "alice", core.NotificationJoin, []int64{1, 2}},
		{"leave skips opted out", "alice", core.NotificationLeave, []int64{1, 3}},
		{"join for other user", "carol", core.NotificationJoin, []int64{1, 2, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.RecipientsForEvent(ctx, tt.username, tt.event)
			if err != nil {
				t.Fatalf("RecipientsForEvent: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d recipients, got %+v", len(tt.want), got)
			}
			for i, r := range got {
				if r.TelegramID != tt.want[i] {
					t.Errorf("recipient %d = %d, want %d", i, r.TelegramID, tt.want[i])
				}
			}
		})
	}

	got, _ := s.RecipientsForEvent(ctx, "carol", core.NotificationJoin)
	if !got[1].NotOnOnline || got[1].LinkedUsername != "bob" || got[1].Lang != "ru" {
		t.Fatalf("recipient fields not loaded: %+v", got[1])
	}

	if err := s.SetMute(ctx, 5, "alice", false); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	got, _ = s.RecipientsForEvent(ctx, "alice", core.NotificationJoin)
	if len(got) != 3 {
		t.Fatalf("unmute should restore recipient, got %+v", got)
	}
}

func TestDeleteUserProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSubscriber(ctx, store.Subscriber{TelegramID: 7, NotifyJoin: true, LinkedUsername: "dave"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AddPendingReply(ctx, store.PendingReply{ChatID: 7, MessageID: 1, TalkUserID: 3}); err != nil {
		t.Fatalf("pending reply: %v", err)
	}

	if err := s.DeleteUserProfile(ctx, 7); err != nil {
		t.Fatalf("DeleteUserProfile: %v", err)
	}

	if _, err := s.GetSubscriber(ctx, 7); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PendingReply(ctx, 7, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("pending reply survived profile delete: %v", err)
	}
	if _, err := s.TelegramIDByTalkUser(ctx, "dave"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("link survived profile delete: %v", err)
	}
}

func TestLinkLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSubscriber(ctx, store.Subscriber{TelegramID: 11, Lang: "ru", LinkedUsername: "erin"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	id, err := s.TelegramIDByTalkUser(ctx, "erin")
	if err != nil || id != 11 {
		t.Fatalf("TelegramIDByTalkUser = %d, %v", id, err)
	}
	lang, err := s.LangByTalkUser(ctx, "erin")
	if err != nil || lang != "ru" {
		t.Fatalf("LangByTalkUser = %q, %v", lang, err)
	}
	if _, err := s.TelegramIDByTalkUser(ctx, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty username must not match unlinked subscribers: %v", err)
	}
}

func TestAdmins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddAdmin(ctx, 42)
	if err != nil || !added {
		t.Fatalf("AddAdmin = %v, %v", added, err)
	}
	added, err = s.AddAdmin(ctx, 42)
	if err != nil || added {
		t.Fatalf("second AddAdmin = %v, %v; want false", added, err)
	}
	if _, err := s.AddAdmin(ctx, 7); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}

	ids, err := s.ListAdmins(ctx)
	if err != nil || len(ids) != 2 || ids[0] != 7 || ids[1] != 42 {
		t.Fatalf("ListAdmins = %v, %v", ids, err)
	}
	if ok, _ := s.IsAdmin(ctx, 42); !ok {
		t.Fatal("42 should be admin")
	}

	removed, err := s.RemoveAdmin(ctx, 42)
	if err != nil || !removed {
		t.Fatalf("RemoveAdmin = %v, %v", removed, err)
	}
	removed, _ = s.RemoveAdmin(ctx, 42)
	if removed {
		t.Fatal("removing a non-admin should report false")
	}
	if ok, _ := s.IsAdmin(ctx, 42); ok {
		t.Fatal("42 should not be admin anymore")
	}
}

func TestDeeplinkSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.CreateDeeplink(ctx, store.DeeplinkSubscribe, "frank", time.Minute)
	if err != nil {
		t.Fatalf("CreateDeeplink: %v", err)
	}

	link, err := s.ConsumeDeeplink(ctx, token)
	if err != nil {
		t.Fatalf("ConsumeDeeplink: %v", err)
	}
	if link.Action != store.DeeplinkSubscribe || link.TalkUsername != "frank" {
		t.Fatalf("unexpected link %+v", link)
	}

	if _, err := s.ConsumeDeeplink(ctx, token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second consume should fail with ErrNotFound, got %v", err)
	}
}

func TestDeeplinkExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	token, err := s.CreateDeeplink(ctx, store.DeeplinkUnsubscribe, "gina", time.Minute)
	if err != nil {
		t.Fatalf("CreateDeeplink: %v", err)
	}

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := s.ConsumeDeeplink(ctx, token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired link should be ErrNotFound, got %v", err)
	}
}

func TestPendingReplies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddPendingReply(ctx, store.PendingReply{ChatID: 1, MessageID: 10, TalkUserID: 5, TalkUsername: "hank", ChannelID: 9}); err != nil {
		t.Fatalf("AddPendingReply: %v", err)
	}
	if err := s.AddPendingChannelReply(ctx, store.PendingReply{ChatID: 1, MessageID: 11, TalkUserID: 5, ChannelID: 3}); err != nil {
		t.Fatalf("AddPendingChannelReply: %v", err)
	}

	r, err := s.PendingReply(ctx, 1, 10)
	if err != nil {
		t.Fatalf("PendingReply: %v", err)
	}
	if r.TalkUserID != 5 || r.TalkUsername != "hank" || r.ChannelID != 0 {
		t.Fatalf("user reply row = %+v", r)
	}

	r, err = s.PendingReply(ctx, 1, 11)
	if err != nil {
		t.Fatalf("PendingReply: %v", err)
	}
	if r.TalkUserID != 0 || r.ChannelID != 3 {
		t.Fatalf("channel reply row = %+v", r)
	}

	if _, err := s.PendingReply(ctx, 2, 10); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := EnsureSchema(s.db); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}
