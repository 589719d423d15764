package gateway

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/proto"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

type fakeGateway struct {
	t      *testing.T
	secret string

	mu      sync.Mutex
	methods []string

	// reply returns the data for a request; a non-nil error is sent as a gateway error.
	reply func(req proto.Request) (any, *proto.Error)
	// after is called once the reply for req has been written.
	after func(ctx context.Context, conn *websocket.Conn, req proto.Request)
}

func (g *fakeGateway) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if g.secret != "" {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return []byte(g.secret), nil })
		if err != nil {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := r.Context()
	for {
		var req proto.Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}
		g.mu.Lock()
		g.methods = append(g.methods, req.Method)
		g.mu.Unlock()

		var data any
		var gwErr *proto.Error
		if g.reply != nil {
			data, gwErr = g.reply(req)
		}
		out := proto.Inbound{Type: proto.InboundTypeReply, ID: req.ID, Error: gwErr}
		if data != nil {
			raw, _ := json.Marshal(data)
			out.Data = raw
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return
		}
		if g.after != nil {
			g.after(ctx, conn, req)
		}
	}
}

func (g *fakeGateway) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.methods...)
}

func writeEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, name string, data proto.EventData) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeEvent, Event: name, Data: raw}); err != nil {
		t.Errorf("write event: %v", err)
	}
}

func newTestClient(t *testing.T, gw *fakeGateway) *Client {
	t.Helper()
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	logger := zerolog.Nop()
	c := New(Config{
		URL:         "ws" + strings.TrimPrefix(ts.URL, "http"),
		Secret:      gw.secret,
		CallTimeout: time.Second,
	}, &logger)
	return c
}

func mustPoll(t *testing.T, c *Client, kind talk.EventKind) talk.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := c.Poll(50 * time.Millisecond)
		if ok && ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("expected event %v not received", kind)
	return talk.Event{}
}

func TestConnectAndCall(t *testing.T) {
	gw := &fakeGateway{t: t, secret: "gw-secret"}
	gw.reply = func(req proto.Request) (any, *proto.Error) {
		if req.Method == proto.MethodGetServerUsers {
			return []talk.User{{ID: 1, Nickname: "Alice", Username: "alice", ChannelID: 2}}, nil
		}
		return nil, nil
	}
	c := newTestClient(t, gw)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })

	users, err := c.ServerUsers()
	if err != nil {
		t.Fatalf("server users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" || users[0].ChannelID != 2 {
		t.Fatalf("unexpected users: %+v", users)
	}

	got := gw.seen()
	want := []string{proto.MethodHello, proto.MethodConnect, proto.MethodGetServerUsers}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", got, want)
	}
}

func TestConnectRejectedToken(t *testing.T) {
	gw := &fakeGateway{t: t, secret: "right"}
	c := newTestClient(t, gw)
	c.cfg.Secret = "wrong"

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error with wrong secret")
	}
	if _, err := c.ServerUsers(); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestEventsTrackSelf(t *testing.T) {
	gw := &fakeGateway{t: t}
	gw.after = func(ctx context.Context, conn *websocket.Conn, req proto.Request) {
		if req.Method != proto.MethodConnect {
			return
		}
		writeEvent(ctx, t, conn, "connect_success", proto.EventData{})
		writeEvent(ctx, t, conn, "myself_logged_in", proto.EventData{Source: 7})
		user, _ := json.Marshal(talk.User{ID: 7, Username: "bot", ChannelID: 3})
		writeEvent(ctx, t, conn, "user_joined", proto.EventData{Source: 7, User: user})
	}
	c := newTestClient(t, gw)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })

	mustPoll(t, c, talk.EventConnectSuccess)
	mustPoll(t, c, talk.EventMyselfLoggedIn)
	joined := mustPoll(t, c, talk.EventUserJoined)

	u, ok := joined.User()
	if !ok || u.ChannelID != 3 {
		t.Fatalf("unexpected join payload: %+v ok=%v", u, ok)
	}
	if c.MyUserID() != 7 || c.MyChannelID() != 3 {
		t.Fatalf("self ids = %d/%d, want 7/3", c.MyUserID(), c.MyChannelID())
	}
}

func TestCallError(t *testing.T) {
	gw := &fakeGateway{t: t}
	gw.reply = func(req proto.Request) (any, *proto.Error) {
		if req.Method == proto.MethodKickUser {
			return nil, &proto.Error{Code: "not_authorized", Msg: "no rights"}
		}
		return nil, nil
	}
	c := newTestClient(t, gw)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })

	err := c.KickUser(5, 0)
	if err == nil || !strings.Contains(err.Error(), "not_authorized") {
		t.Fatalf("expected not_authorized error, got %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	gw := &fakeGateway{t: t}
	gw.after = func(ctx context.Context, conn *websocket.Conn, req proto.Request) {
		if req.Method == proto.MethodConnect {
			_ = conn.Close(websocket.StatusGoingAway, "server restart")
		}
	}
	c := newTestClient(t, gw)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	mustPoll(t, c, talk.EventConnectionLost)
}
