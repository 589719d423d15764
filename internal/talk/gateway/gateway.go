// Package gateway implements talk.Client over a JSON WebSocket gateway that
// fronts the native talk-server SDK.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/ttbridge/internal/proto"
	"github.com/vovakirdan/ttbridge/internal/talk"
)

var (
	// ErrNotConnected is returned by calls made without an open gateway session.
	ErrNotConnected = errors.New("gateway not connected")
	// ErrCallTimeout is returned when the gateway does not reply in time.
	ErrCallTimeout = errors.New("gateway call timed out")
)

const clientName = "ttbridge"

// Config holds gateway connection settings.
type Config struct {
	URL         string
	Secret      string
	Server      proto.ConnectParams
	DialTimeout time.Duration
	CallTimeout time.Duration
	EventBuffer int
}

// Client talks to the gateway. All methods except the reader goroutine's
// internals must be called from a single goroutine.
type Client struct {
	cfg Config
	log *zerolog.Logger

	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool

	events chan talk.Event
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan proto.Inbound

	myUserID    atomic.Int32
	myChannelID atomic.Int32
}

// New builds a gateway client. No connection is made until Connect.
func New(cfg Config, logger *zerolog.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	l := logger.With().Str("component", "gateway").Logger()
	return &Client{
		cfg:     cfg,
		log:     &l,
		events:  make(chan talk.Event, cfg.EventBuffer),
		pending: make(map[uint64]chan proto.Inbound),
	}
}

// Connect dials the gateway and asks it to connect to the talk server.
// Success or failure of the talk-server connection arrives as an event.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		c.closeConn(websocket.StatusNormalClosure, "reconnect")
	}

	header := stdhttp.Header{}
	if c.cfg.Secret != "" {
		token, err := signToken(c.cfg.Secret)
		if err != nil {
			return fmt.Errorf("sign gateway token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	readCtx, readCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = readCancel
	c.done = make(chan struct{})
	c.closing.Store(false)
	c.myUserID.Store(0)
	c.myChannelID.Store(0)
	go c.readLoop(readCtx, conn, c.done)

	if err := c.call(proto.MethodHello, proto.HelloParams{Protocol: proto.ProtocolVersion, Client: clientName}, nil); err != nil {
		c.closeConn(websocket.StatusProtocolError, "hello failed")
		return fmt.Errorf("gateway hello: %w", err)
	}
	if err := c.call(proto.MethodConnect, c.cfg.Server, nil); err != nil {
		c.closeConn(websocket.StatusNormalClosure, "connect failed")
		return fmt.Errorf("gateway connect: %w", err)
	}
	return nil
}

// Login sends the account credentials.
func (c *Client) Login(nickname, username, password, client string) error {
	return c.call(proto.MethodLogin, proto.LoginParams{
		Nickname:   nickname,
		Username:   username,
		Password:   password,
		ClientName: client,
	}, nil)
}

// Logout ends the server session while keeping the gateway session.
func (c *Client) Logout() error {
	return c.call(proto.MethodLogout, nil, nil)
}

// Disconnect drops the server connection and closes the gateway session.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.call(proto.MethodDisconnect, nil, nil)
	c.closeConn(websocket.StatusNormalClosure, "disconnect")
	return err
}

func (c *Client) JoinChannel(path, password string) error {
	return c.call(proto.MethodJoinChannel, proto.JoinChannelParams{Path: path, Password: password}, nil)
}

func (c *Client) JoinChannelByID(id int32, password string) error {
	return c.call(proto.MethodJoinChannel, proto.JoinChannelParams{ChannelID: id, Password: password}, nil)
}

func (c *Client) SetStatus(mode talk.StatusMode, text string) error {
	return c.call(proto.MethodSetStatus, proto.SetStatusParams{Mode: int(mode), Text: text}, nil)
}

func (c *Client) ListUserAccounts() ([]talk.Account, error) {
	var accounts []talk.Account
	if err := c.call(proto.MethodListUserAccounts, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Poll returns the next buffered event, waiting at most timeout.
func (c *Client) Poll(timeout time.Duration) (talk.Event, bool) {
	if timeout <= 0 {
		select {
		case ev := <-c.events:
			return ev, true
		default:
			return talk.Event{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-c.events:
		return ev, true
	case <-timer.C:
		return talk.Event{}, false
	}
}

func (c *Client) SendToUser(userID int32, text string) error {
	return c.call(proto.MethodSendText, proto.SendTextParams{
		Type:    int(talk.MessageUser),
		ToID:    userID,
		Content: text,
	}, nil)
}

func (c *Client) SendToChannel(channelID int32, text string) error {
	return c.call(proto.MethodSendText, proto.SendTextParams{
		Type:      int(talk.MessageChannel),
		ChannelID: channelID,
		Content:   text,
	}, nil)
}

func (c *Client) KickUser(userID, channelID int32) error {
	return c.call(proto.MethodKickUser, proto.UserParams{UserID: userID, ChannelID: channelID}, nil)
}

func (c *Client) BanUser(userID int32) error {
	return c.call(proto.MethodBanUser, proto.UserParams{UserID: userID}, nil)
}

func (c *Client) StartStreaming(path string, opts talk.PlaybackOptions) error {
	return c.call(proto.MethodStartStreaming, proto.StreamParams{
		Path:      path,
		Volume:    opts.Volume,
		Paused:    opts.Paused,
		OffsetMs:  opts.OffsetMs,
		ChannelID: opts.ChannelID,
	}, nil)
}

func (c *Client) StopStreaming() error {
	return c.call(proto.MethodStopStreaming, nil, nil)
}

func (c *Client) Channel(id int32) (talk.Channel, error) {
	var ch talk.Channel
	err := c.call(proto.MethodGetChannel, proto.ChannelParams{ChannelID: id}, &ch)
	return ch, err
}

func (c *Client) ServerUsers() ([]talk.User, error) {
	var users []talk.User
	if err := c.call(proto.MethodGetServerUsers, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) ServerProperties() (talk.ServerProperties, error) {
	var props talk.ServerProperties
	err := c.call(proto.MethodGetServerProps, nil, &props)
	return props, err
}

func (c *Client) MyUserID() int32 {
	return c.myUserID.Load()
}

func (c *Client) MyChannelID() int32 {
	return c.myChannelID.Load()
}

// call sends a request and waits for the matching reply.
func (c *Client) call(method string, params, out any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	id := c.nextID.Add(1)
	replyCh := make(chan proto.Inbound, 1)
	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, c.conn, proto.Request{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return ErrNotConnected
		}
		if reply.Error != nil {
			return fmt.Errorf("%s: %w", method, reply.Error)
		}
		if out != nil && len(reply.Data) > 0 {
			if err := json.Unmarshal(reply.Data, out); err != nil {
				return fmt.Errorf("decode %s reply: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ErrCallTimeout)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var in proto.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			c.failPending()
			if !c.closing.Load() {
				c.log.Warn().Err(err).Msg("gateway read failed")
				c.push(talk.NewEvent(talk.EventConnectionLost, 0))
			}
			return
		}

		switch in.Type {
		case proto.InboundTypeReply:
			c.mu.Lock()
			ch, ok := c.pending[in.ID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- in:
				default:
				}
			}
		case proto.InboundTypeEvent:
			ev, err := decodeEvent(in)
			if err != nil {
				c.log.Warn().Err(err).Str("event", in.Event).Msg("decode gateway event")
				continue
			}
			c.track(ev)
			c.push(ev)
		default:
			c.log.Debug().Str("type", in.Type).Msg("ignoring gateway frame")
		}
	}
}

func (c *Client) push(ev talk.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Stringer("event", ev.Kind).Msg("event buffer full, dropping event")
	}
}

// track keeps the cached own ids in sync with self-related events.
func (c *Client) track(ev talk.Event) {
	switch ev.Kind {
	case talk.EventMyselfLoggedIn:
		c.myUserID.Store(ev.Source)
	case talk.EventUserJoined:
		if u, ok := ev.User(); ok && u.ID == c.myUserID.Load() {
			c.myChannelID.Store(u.ChannelID)
		}
	case talk.EventUserLeft:
		if u, ok := ev.User(); ok && u.ID == c.myUserID.Load() {
			c.myChannelID.Store(0)
		}
	case talk.EventConnectionLost, talk.EventConnectFailed, talk.EventMyselfLoggedOut, talk.EventMyselfKicked:
		c.myUserID.Store(0)
		c.myChannelID.Store(0)
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) closeConn(status websocket.StatusCode, reason string) {
	if c.conn == nil {
		return
	}
	c.closing.Store(true)
	_ = c.conn.Close(status, reason)
	c.cancel()
	<-c.done
	c.conn = nil
}

func decodeEvent(in proto.Inbound) (talk.Event, error) {
	kind := talk.ParseEventKind(in.Event)
	if kind == talk.EventNone {
		return talk.Event{}, fmt.Errorf("unknown event %q", in.Event)
	}

	var data proto.EventData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return talk.Event{}, fmt.Errorf("decode event data: %w", err)
		}
	}

	switch kind {
	case talk.EventUserLoggedIn, talk.EventUserLoggedOut, talk.EventUserUpdate,
		talk.EventUserJoined, talk.EventUserLeft:
		var u talk.User
		if err := json.Unmarshal(data.User, &u); err != nil {
			return talk.Event{}, fmt.Errorf("decode user: %w", err)
		}
		return talk.NewUserEvent(kind, u), nil
	case talk.EventUserTextMessage:
		var msg talk.TextMessage
		if err := json.Unmarshal(data.Text, &msg); err != nil {
			return talk.Event{}, fmt.Errorf("decode text: %w", err)
		}
		return talk.NewTextEvent(msg), nil
	case talk.EventStreamMediaFile:
		var info talk.MediaFileInfo
		if err := json.Unmarshal(data.Media, &info); err != nil {
			return talk.Event{}, fmt.Errorf("decode media: %w", err)
		}
		return talk.NewMediaFileEvent(data.Source, info), nil
	case talk.EventUserAccountNew, talk.EventUserAccountRemove:
		var acc talk.Account
		if err := json.Unmarshal(data.Account, &acc); err != nil {
			return talk.Event{}, fmt.Errorf("decode account: %w", err)
		}
		return talk.NewAccountEvent(kind, acc), nil
	case talk.EventCmdError:
		var ce talk.ClientError
		if len(data.Error) > 0 {
			if err := json.Unmarshal(data.Error, &ce); err != nil {
				return talk.Event{}, fmt.Errorf("decode error: %w", err)
			}
		}
		return talk.NewErrorEvent(data.Source, ce), nil
	default:
		return talk.NewEvent(kind, data.Source), nil
	}
}

func signToken(secret string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   clientName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Ensure Client implements talk.Client
var _ talk.Client = (*Client)(nil)
