package core

// EventKind is a notification the worker emits to the bridge dispatcher.
type EventKind int

const (
	// EventBroadcast fans a join/leave notification out to subscribers.
	EventBroadcast EventKind = iota
	// EventToAdmin forwards a private talk message to admins.
	EventToAdmin
	// EventToAdminChannel forwards a channel message to admins.
	EventToAdminChannel
	// EventWhoReport delivers a presence report to a chat.
	EventWhoReport
)

func (k EventKind) String() string {
	switch k {
	case EventBroadcast:
		return "broadcast"
	case EventToAdmin:
		return "to_admin"
	case EventToAdminChannel:
		return "to_admin_channel"
	case EventWhoReport:
		return "who_report"
	default:
		return "unknown"
	}
}

// NotificationType is the kind of presence change being broadcast.
type NotificationType string

const (
	NotificationJoin  NotificationType = "join"
	NotificationLeave NotificationType = "leave"
)

// Event is sent from the worker to describe what happened on the talk server.
// Exactly one payload pointer is non-nil, matching Kind.
type Event struct {
	Kind         EventKind
	Broadcast    *BroadcastEvent
	Admin        *AdminMessage
	AdminChannel *AdminChannelMessage
	Who          *WhoReport
}

// BroadcastEvent announces a user logging in or out.
type BroadcastEvent struct {
	Type            NotificationType
	Nickname        string
	ServerName      string
	RelatedUsername string
}

// AdminMessage is a private message a talk user sent to the bot.
type AdminMessage struct {
	UserID     int32
	Nickname   string
	Username   string
	Content    string
	ServerName string
}

// AdminChannelMessage is a /pm message posted in a talk channel.
type AdminChannelMessage struct {
	ChannelID   int32
	ChannelName string
	ServerName  string
	Content     string
}

// WhoReport is a rendered presence list for a Telegram chat.
type WhoReport struct {
	ChatID  int64
	Text    string
	ReplyTo int
}

// NewBroadcast wraps a BroadcastEvent.
func NewBroadcast(ev BroadcastEvent) Event {
	return Event{Kind: EventBroadcast, Broadcast: &ev}
}

// NewToAdmin wraps an AdminMessage.
func NewToAdmin(msg AdminMessage) Event {
	return Event{Kind: EventToAdmin, Admin: &msg}
}

// NewToAdminChannel wraps an AdminChannelMessage.
func NewToAdminChannel(msg AdminChannelMessage) Event {
	return Event{Kind: EventToAdminChannel, AdminChannel: &msg}
}

// NewWhoReport wraps a WhoReport.
func NewWhoReport(r WhoReport) Event {
	return Event{Kind: EventWhoReport, Who: &r}
}
