// Package talk defines the contract of the talk-server client owned by the worker.
package talk

import (
	"context"
	"time"
)

// StatusMode is the presence mode shown next to the bot's nickname.
type StatusMode int

const (
	StatusAvailable StatusMode = 0
	StatusAway      StatusMode = 1
	StatusStreaming StatusMode = 0x200
	StatusPaused    StatusMode = 0x400
)

// User is a connected talk-server user as reported by the server.
type User struct {
	ID         int32  `json:"id"`
	Nickname   string `json:"nickname"`
	Username   string `json:"username"`
	ChannelID  int32  `json:"channel_id"`
	StatusMode int    `json:"status_mode"`
}

// Channel is a talk-server channel.
type Channel struct {
	ID       int32  `json:"id"`
	ParentID int32  `json:"parent_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// Account is a registered server account.
type Account struct {
	Username string `json:"username"`
	UserType int    `json:"user_type"`
	Note     string `json:"note"`
}

// ServerProperties holds the server-wide settings the bridge cares about.
type ServerProperties struct {
	Name string `json:"name"`
	MOTD string `json:"motd"`
}

// PlaybackOptions tune media-file streaming.
type PlaybackOptions struct {
	Volume    int  `json:"volume"`
	Paused    bool `json:"paused"`
	OffsetMs  int  `json:"offset_ms"`
	ChannelID int  `json:"channel_id,omitempty"`
}

// Client is the talk-server SDK surface the worker uses. Implementations are
// not safe for concurrent use; exactly one goroutine may own a Client.
type Client interface {
	Connect(ctx context.Context) error
	Login(nickname, username, password, clientName string) error
	Logout() error
	Disconnect() error

	JoinChannel(path, password string) error
	JoinChannelByID(id int32, password string) error
	SetStatus(mode StatusMode, text string) error
	ListUserAccounts() ([]Account, error)

	// Poll waits up to timeout for the next event. ok is false on timeout.
	Poll(timeout time.Duration) (ev Event, ok bool)

	SendToUser(userID int32, text string) error
	SendToChannel(channelID int32, text string) error
	KickUser(userID, channelID int32) error
	BanUser(userID int32) error

	StartStreaming(path string, opts PlaybackOptions) error
	StopStreaming() error

	Channel(id int32) (Channel, error)
	ServerUsers() ([]User, error)
	ServerProperties() (ServerProperties, error)
	MyUserID() int32
	MyChannelID() int32
}
