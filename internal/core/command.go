package core

import "time"

// CommandKind describes what the async side wants the worker to do.
type CommandKind int

const (
	// CommandReplyToUser sends a private text message to a talk user.
	CommandReplyToUser CommandKind = iota
	// CommandSendToChannel sends a text message to a talk channel.
	CommandSendToChannel
	// CommandEnqueueStream queues an audio file for playback.
	CommandEnqueueStream
	// CommandStopStreamingIf stops the current stream only if its id matches.
	CommandStopStreamingIf
	// CommandSkipStream stops whatever is playing and starts the next item.
	CommandSkipStream
	// CommandSetStreamingStatus updates the presence status to streaming/idle.
	CommandSetStreamingStatus
	// CommandKickUser kicks a user from the server.
	CommandKickUser
	// CommandBanUser bans a user from the server.
	CommandBanUser
	// CommandWho builds a presence report for a Telegram chat.
	CommandWho
	// CommandLoadAccounts refreshes the server account cache.
	CommandLoadAccounts
	// CommandShutdown makes the worker stop its loop.
	CommandShutdown
)

var commandNames = map[CommandKind]string{
	CommandReplyToUser:        "reply_to_user",
	CommandSendToChannel:      "send_to_channel",
	CommandEnqueueStream:      "enqueue_stream",
	CommandStopStreamingIf:    "stop_streaming_if",
	CommandSkipStream:         "skip_stream",
	CommandSetStreamingStatus: "set_streaming_status",
	CommandKickUser:           "kick_user",
	CommandBanUser:            "ban_user",
	CommandWho:                "who",
	CommandLoadAccounts:       "load_accounts",
	CommandShutdown:           "shutdown",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a one-shot instruction for the worker. Only the fields relevant
// to Kind are set; there is no response channel.
type Command struct {
	Kind      CommandKind
	UserID    int32
	ChannelID int32
	Text      string
	Stream    *StreamRequest // CommandEnqueueStream
	StreamID  uint64         // CommandStopStreamingIf
	Streaming bool           // CommandSetStreamingStatus
	ChatID    int64          // CommandWho
	Lang      string         // CommandWho
	ReplyTo   int            // CommandWho
}

// StreamRequest describes an audio file to play into a channel.
// ChannelID 0 means the worker's current channel at start time.
type StreamRequest struct {
	ChannelID int32
	FilePath  string
	Duration  time.Duration
	Announce  string
}

// ReplyToUser builds a CommandReplyToUser.
func ReplyToUser(userID int32, text string) Command {
	return Command{Kind: CommandReplyToUser, UserID: userID, Text: text}
}

// SendToChannel builds a CommandSendToChannel.
func SendToChannel(channelID int32, text string) Command {
	return Command{Kind: CommandSendToChannel, ChannelID: channelID, Text: text}
}

// EnqueueStream builds a CommandEnqueueStream.
func EnqueueStream(req StreamRequest) Command {
	return Command{Kind: CommandEnqueueStream, Stream: &req}
}

// StopStreamingIf builds a CommandStopStreamingIf.
func StopStreamingIf(streamID uint64) Command {
	return Command{Kind: CommandStopStreamingIf, StreamID: streamID}
}

// Who builds a CommandWho.
func Who(chatID int64, lang string, replyTo int) Command {
	return Command{Kind: CommandWho, ChatID: chatID, Lang: lang, ReplyTo: replyTo}
}
