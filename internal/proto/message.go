// Package proto holds the JSON frames exchanged with the talk-server gateway.
package proto

import "encoding/json"

const (
	ProtocolVersion = 1

	InboundTypeEvent = "event"
	InboundTypeReply = "reply"
)

// Gateway methods.
const (
	MethodHello            = "hello"
	MethodConnect          = "connect"
	MethodDisconnect       = "disconnect"
	MethodLogin            = "login"
	MethodLogout           = "logout"
	MethodJoinChannel      = "join_channel"
	MethodSetStatus        = "set_status"
	MethodListUserAccounts = "list_user_accounts"
	MethodSendText         = "send_text"
	MethodKickUser         = "kick_user"
	MethodBanUser          = "ban_user"
	MethodStartStreaming   = "start_streaming"
	MethodStopStreaming    = "stop_streaming"
	MethodGetChannel       = "get_channel"
	MethodGetServerUsers   = "get_server_users"
	MethodGetServerProps   = "get_server_properties"
)

// Request is sent from the bridge to the gateway. Every request gets exactly
// one reply carrying the same ID.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Inbound is the envelope for frames coming from the gateway.
type Inbound struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error describes a gateway-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// HelloParams opens the session.
type HelloParams struct {
	Protocol int    `json:"protocol"`
	Client   string `json:"client"`
}

// ConnectParams tells the gateway which talk server to reach.
type ConnectParams struct {
	Host      string `json:"host"`
	TCPPort   int    `json:"tcp_port"`
	UDPPort   int    `json:"udp_port"`
	Encrypted bool   `json:"encrypted"`
}

// LoginParams carries the account credentials.
type LoginParams struct {
	Nickname   string `json:"nickname"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	ClientName string `json:"client_name"`
}

// JoinChannelParams selects a channel by path or id.
type JoinChannelParams struct {
	Path      string `json:"path,omitempty"`
	ChannelID int32  `json:"channel_id,omitempty"`
	Password  string `json:"password,omitempty"`
}

// SetStatusParams updates the presence status.
type SetStatusParams struct {
	Mode int    `json:"mode"`
	Text string `json:"text"`
}

// SendTextParams sends a text message to a user or a channel.
type SendTextParams struct {
	Type      int    `json:"type"`
	ToID      int32  `json:"to_id,omitempty"`
	ChannelID int32  `json:"channel_id,omitempty"`
	Content   string `json:"content"`
}

// UserParams targets a user, optionally within a channel.
type UserParams struct {
	UserID    int32 `json:"user_id"`
	ChannelID int32 `json:"channel_id,omitempty"`
}

// StreamParams starts a media-file stream.
type StreamParams struct {
	Path      string `json:"path"`
	Volume    int    `json:"volume"`
	Paused    bool   `json:"paused"`
	OffsetMs  int    `json:"offset_ms"`
	ChannelID int    `json:"channel_id,omitempty"`
}

// ChannelParams targets a channel.
type ChannelParams struct {
	ChannelID int32 `json:"channel_id"`
}

// EventData is the payload of an event frame. Only the field matching the
// event name is set.
type EventData struct {
	Source  int32           `json:"source"`
	User    json.RawMessage `json:"user,omitempty"`
	Text    json.RawMessage `json:"text,omitempty"`
	Media   json.RawMessage `json:"media,omitempty"`
	Account json.RawMessage `json:"account,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}
