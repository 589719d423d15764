package core

import "errors"

// Delivery error classes. Messenger implementations wrap platform errors with
// one of these so the dispatcher can tell terminal failures from transient ones.
var (
	ErrRecipientBlocked     = errors.New("recipient blocked the bot")
	ErrRecipientDeactivated = errors.New("recipient account deactivated")
	ErrChatNotFound         = errors.New("chat not found")
)

// ErrQueueFull is returned when a non-blocking send finds the channel full.
var ErrQueueFull = errors.New("queue full")

// IsTerminalDelivery reports whether err proves the recipient is permanently
// unreachable.
func IsTerminalDelivery(err error) bool {
	return errors.Is(err, ErrRecipientBlocked) ||
		errors.Is(err, ErrRecipientDeactivated) ||
		errors.Is(err, ErrChatNotFound)
}
