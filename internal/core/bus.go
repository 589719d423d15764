package core

import "context"

// Default channel capacities.
const (
	DefaultCommandBuffer = 256
	DefaultEventBuffer   = 256
)

// Bus holds the two bounded channels between the worker and the async side:
// commands flow into the worker, events flow out of it.
type Bus struct {
	commands chan Command
	events   chan Event
}

// NewBus constructs a bus with the given capacities.
func NewBus(commandBuffer, eventBuffer int) *Bus {
	if commandBuffer <= 0 {
		commandBuffer = DefaultCommandBuffer
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Bus{
		commands: make(chan Command, commandBuffer),
		events:   make(chan Event, eventBuffer),
	}
}

// SendCommand blocks until the command is queued or ctx is done.
func (b *Bus) SendCommand(ctx context.Context, cmd Command) error {
	select {
	case b.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySendCommand queues the command without blocking.
func (b *Bus) TrySendCommand(cmd Command) error {
	select {
	case b.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryReceiveCommand returns the next queued command, if any.
func (b *Bus) TryReceiveCommand() (Command, bool) {
	select {
	case cmd := <-b.commands:
		return cmd, true
	default:
		return Command{}, false
	}
}

// SendEvent blocks until the event is queued or ctx is done.
func (b *Bus) SendEvent(ctx context.Context, ev Event) error {
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side of the event channel.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// PendingCommands reports how many commands are waiting.
func (b *Bus) PendingCommands() int {
	return len(b.commands)
}
