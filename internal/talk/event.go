package talk

// EventKind enumerates the client events the bridge understands.
type EventKind int

const (
	EventNone EventKind = iota
	EventConnectSuccess
	EventConnectFailed
	EventConnectionLost
	EventMyselfLoggedIn
	EventMyselfLoggedOut
	EventMyselfKicked
	EventCmdError
	EventCmdProcessing
	EventUserLoggedIn
	EventUserLoggedOut
	EventUserUpdate
	EventUserJoined
	EventUserLeft
	EventUserTextMessage
	EventUserAccountNew
	EventUserAccountRemove
	EventStreamMediaFile
	EventServerUpdate
)

var eventNames = map[string]EventKind{
	"connect_success":     EventConnectSuccess,
	"connect_failed":      EventConnectFailed,
	"connection_lost":     EventConnectionLost,
	"myself_logged_in":    EventMyselfLoggedIn,
	"myself_logged_out":   EventMyselfLoggedOut,
	"myself_kicked":       EventMyselfKicked,
	"cmd_error":           EventCmdError,
	"cmd_processing":      EventCmdProcessing,
	"user_logged_in":      EventUserLoggedIn,
	"user_logged_out":     EventUserLoggedOut,
	"user_update":         EventUserUpdate,
	"user_joined":         EventUserJoined,
	"user_left":           EventUserLeft,
	"user_text_message":   EventUserTextMessage,
	"user_account_new":    EventUserAccountNew,
	"user_account_remove": EventUserAccountRemove,
	"stream_media_file":   EventStreamMediaFile,
	"server_update":       EventServerUpdate,
}

// ParseEventKind maps a wire name to an EventKind. Unknown names map to EventNone.
func ParseEventKind(name string) EventKind {
	return eventNames[name]
}

func (k EventKind) String() string {
	for name, kind := range eventNames {
		if kind == k {
			return name
		}
	}
	return "none"
}

// IsDisconnect reports whether the event ends the current session.
func (k EventKind) IsDisconnect() bool {
	switch k {
	case EventConnectFailed, EventConnectionLost, EventMyselfKicked, EventMyselfLoggedOut:
		return true
	default:
		return false
	}
}

// MessageType tells where a text message was addressed.
type MessageType int

const (
	MessageUser      MessageType = 1
	MessageChannel   MessageType = 2
	MessageBroadcast MessageType = 3
	MessageCustom    MessageType = 4
)

// TextMessage is a chat message received from the server.
type TextMessage struct {
	Type      MessageType `json:"type"`
	FromID    int32       `json:"from_id"`
	FromName  string      `json:"from_username"`
	ToID      int32       `json:"to_id"`
	ChannelID int32       `json:"channel_id"`
	Content   string      `json:"content"`
}

// MediaFileStatus is the state of a media file being streamed.
type MediaFileStatus int

const (
	MediaFileClosed MediaFileStatus = iota
	MediaFileError
	MediaFileStarted
	MediaFileFinished
	MediaFileAborted
	MediaFilePaused
	MediaFilePlaying
)

// Ended reports whether the status means playback is over.
func (s MediaFileStatus) Ended() bool {
	switch s {
	case MediaFileClosed, MediaFileError, MediaFileFinished, MediaFileAborted:
		return true
	default:
		return false
	}
}

// MediaFileInfo describes a media-file status change.
type MediaFileInfo struct {
	Status     MediaFileStatus `json:"status"`
	FileName   string          `json:"file_name"`
	DurationMs int             `json:"duration_ms"`
	ElapsedMs  int             `json:"elapsed_ms"`
}

// ClientError is an error reported asynchronously by the server.
type ClientError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e ClientError) Error() string {
	return e.Message
}

// Event is a single client event. The payload is only reachable through the
// accessor matching Kind.
type Event struct {
	Kind    EventKind
	Source  int32
	payload any
}

// NewEvent builds an event without payload.
func NewEvent(kind EventKind, source int32) Event {
	return Event{Kind: kind, Source: source}
}

// NewUserEvent builds an event carrying a User.
func NewUserEvent(kind EventKind, u User) Event {
	return Event{Kind: kind, Source: u.ID, payload: u}
}

// NewTextEvent builds a text-message event.
func NewTextEvent(msg TextMessage) Event {
	return Event{Kind: EventUserTextMessage, Source: msg.FromID, payload: msg}
}

// NewMediaFileEvent builds a media-file status event.
func NewMediaFileEvent(source int32, info MediaFileInfo) Event {
	return Event{Kind: EventStreamMediaFile, Source: source, payload: info}
}

// NewAccountEvent builds an account add/remove event.
func NewAccountEvent(kind EventKind, acc Account) Event {
	return Event{Kind: kind, payload: acc}
}

// NewErrorEvent builds a command-error event.
func NewErrorEvent(source int32, e ClientError) Event {
	return Event{Kind: EventCmdError, Source: source, payload: e}
}

// User returns the user payload.
func (e Event) User() (User, bool) {
	u, ok := e.payload.(User)
	return u, ok
}

// Text returns the text-message payload.
func (e Event) Text() (TextMessage, bool) {
	m, ok := e.payload.(TextMessage)
	return m, ok
}

// MediaFile returns the media-file payload.
func (e Event) MediaFile() (MediaFileInfo, bool) {
	m, ok := e.payload.(MediaFileInfo)
	return m, ok
}

// Account returns the account payload.
func (e Event) Account() (Account, bool) {
	a, ok := e.payload.(Account)
	return a, ok
}

// Err returns the error payload.
func (e Event) Err() (ClientError, bool) {
	ce, ok := e.payload.(ClientError)
	return ce, ok
}
