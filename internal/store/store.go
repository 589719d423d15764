package store

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/ttbridge/internal/core"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Subscriber is a Telegram user receiving join/leave notifications.
type Subscriber struct {
	TelegramID int64
	Lang       string
	// NotOnOnline delivers notifications silently while the linked talk user is online.
	NotOnOnline bool
	// LinkedUsername is the talk-server account tied to this subscriber, if any.
	LinkedUsername string
	NotifyJoin     bool
	NotifyLeave    bool
	CreatedAt      time.Time
}

// Recipient is a subscriber selected for one notification.
type Recipient struct {
	TelegramID     int64
	Lang           string
	NotOnOnline    bool
	LinkedUsername string
}

// DeeplinkAction is what a deeplink does when consumed.
type DeeplinkAction string

const (
	DeeplinkSubscribe   DeeplinkAction = "subscribe"
	DeeplinkUnsubscribe DeeplinkAction = "unsubscribe"
)

// Deeplink is a one-time token that ties a talk user to a Telegram chat.
type Deeplink struct {
	Token        string
	Action       DeeplinkAction
	TalkUsername string
	ExpiresAt    time.Time
}

// PendingReply correlates a forwarded Telegram message with its talk-server origin.
// Exactly one of TalkUserID and ChannelID is set.
type PendingReply struct {
	ChatID       int64
	MessageID    int
	TalkUserID   int32
	TalkUsername string
	ChannelID    int32
	CreatedAt    time.Time
}

// RecipientStore resolves and cleans up notification recipients.
type RecipientStore interface {
	// RecipientsForEvent returns subscribers that want this notification about username.
	RecipientsForEvent(ctx context.Context, username string, event core.NotificationType) ([]Recipient, error)

	// DeleteUserProfile removes a subscriber and everything tied to it.
	DeleteUserProfile(ctx context.Context, telegramID int64) error

	// UpsertSubscriber creates or updates a subscriber.
	UpsertSubscriber(ctx context.Context, sub Subscriber) error

	// GetSubscriber returns a subscriber by Telegram id.
	GetSubscriber(ctx context.Context, telegramID int64) (*Subscriber, error)

	// SetMute stops (or resumes) notifications about one talk username.
	SetMute(ctx context.Context, telegramID int64, username string, muted bool) error
}

// LinkStore maps talk-server accounts to Telegram users.
type LinkStore interface {
	// TelegramIDByTalkUser returns the Telegram id linked to a talk username.
	TelegramIDByTalkUser(ctx context.Context, username string) (int64, error)

	// LangByTalkUser returns the preferred language of the linked subscriber.
	LangByTalkUser(ctx context.Context, username string) (string, error)
}

// AdminStore handles the admin set.
type AdminStore interface {
	ListAdmins(ctx context.Context) ([]int64, error)
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	// AddAdmin reports false if the id was already an admin.
	AddAdmin(ctx context.Context, telegramID int64) (bool, error)
	// RemoveAdmin reports false if the id was not an admin.
	RemoveAdmin(ctx context.Context, telegramID int64) (bool, error)
}

// DeeplinkStore issues and consumes one-time tokens.
type DeeplinkStore interface {
	CreateDeeplink(ctx context.Context, action DeeplinkAction, talkUsername string, ttl time.Duration) (string, error)
	// ConsumeDeeplink returns the link and deletes it. Expired links return ErrNotFound.
	ConsumeDeeplink(ctx context.Context, token string) (*Deeplink, error)
}

// PendingReplyStore records forwarded messages awaiting a human reply.
type PendingReplyStore interface {
	AddPendingReply(ctx context.Context, r PendingReply) error
	AddPendingChannelReply(ctx context.Context, r PendingReply) error
	// PendingReply returns the correlation row for a Telegram message.
	PendingReply(ctx context.Context, chatID int64, messageID int) (*PendingReply, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RecipientStore
	LinkStore
	AdminStore
	DeeplinkStore
	PendingReplyStore

	// Close closes the underlying database connection.
	Close() error
}
