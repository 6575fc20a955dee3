// Package media arbitrates which audio channel may be audible and carries
// remote commands and bus events between independent playback features.
package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Command is a remote transport command.
type Command string

const (
	CommandPlay     Command = "play"
	CommandPause    Command = "pause"
	CommandStop     Command = "stop"
	CommandNext     Command = "next"
	CommandPrevious Command = "previous"
	CommandSeekTo   Command = "seekTo"
)

// Bus events published by the coordinator itself. The payload is the
// channel name.
const (
	EventChannelActivated = "channel.activated"
	EventChannelReleased  = "channel.released"
)

var ErrUnknownCommand = errors.New("unknown remote command")

// ParseCommand maps a command name to a Command.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CommandPlay, CommandPause, CommandStop, CommandNext, CommandPrevious, CommandSeekTo:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Handlers are the remote command handlers of one channel. Any may be nil.
type Handlers struct {
	Play     func() error
	Pause    func() error
	Stop     func() error
	Next     func() error
	Previous func() error
	SeekTo   func(time.Duration) error
}

// Coordinator holds the channel registry, the active channel and the event
// bus. The zero value is not usable; use NewCoordinator.
type Coordinator struct {
	mu       sync.Mutex
	channels map[string]Handlers
	active   string
	subs     map[string][]subscription
	nextSub  uint64
}

type subscription struct {
	id uint64
	fn func(payload any)
}

// NewCoordinator creates a coordinator with no channels and no active channel.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		channels: make(map[string]Handlers),
		subs:     make(map[string][]subscription),
	}
}

// Register sets the handlers for a channel, replacing any previous set.
func (c *Coordinator) Register(channel string, h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = h
}

// Unregister removes a channel's handlers. It does not release the channel.
func (c *Coordinator) Unregister(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// SetActiveChannel makes channel the active one (last write wins). An empty
// name clears it. Callers about to use the shared playback surface must
// claim first.
func (c *Coordinator) SetActiveChannel(channel string) {
	c.mu.Lock()
	prev := c.active
	c.active = channel
	c.mu.Unlock()

	if channel == prev {
		return
	}
	slog.Debug("active channel changed", "channel", channel, "previous", prev)
	if channel != "" {
		c.Publish(EventChannelActivated, channel)
	} else {
		c.Publish(EventChannelReleased, prev)
	}
}

// Claim is SetActiveChannel for a non-empty channel.
func (c *Coordinator) Claim(channel string) {
	c.SetActiveChannel(channel)
}

// Release clears the active channel only if channel holds it.
func (c *Coordinator) Release(channel string) bool {
	c.mu.Lock()
	if c.active != channel || channel == "" {
		c.mu.Unlock()
		return false
	}
	c.active = ""
	c.mu.Unlock()

	slog.Debug("active channel released", "channel", channel)
	c.Publish(EventChannelReleased, channel)
	return true
}

// ActiveChannel returns the active channel, empty if none.
func (c *Coordinator) ActiveChannel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// IsActive reports whether channel is the active one.
func (c *Coordinator) IsActive(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channel != "" && c.active == channel
}

// Dispatch runs cmd on the active channel's handler. It returns false when
// there is no active channel, no handler, a bad argument, or the handler
// failed. It never panics.
func (c *Coordinator) Dispatch(cmd Command, args ...any) (ok bool) {
	c.mu.Lock()
	channel := c.active
	h, registered := c.channels[channel]
	c.mu.Unlock()

	if channel == "" || !registered {
		return false
	}

	var run func() error
	switch cmd {
	case CommandPlay:
		run = h.Play
	case CommandPause:
		run = h.Pause
	case CommandStop:
		run = h.Stop
	case CommandNext:
		run = h.Next
	case CommandPrevious:
		run = h.Previous
	case CommandSeekTo:
		if h.SeekTo == nil || len(args) != 1 {
			return false
		}
		d, isDuration := args[0].(time.Duration)
		if !isDuration {
			return false
		}
		run = func() error { return h.SeekTo(d) }
	}
	if run == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("remote command handler panicked", "channel", channel, "command", string(cmd), "panic", r)
			ok = false
		}
	}()

	if err := run(); err != nil {
		slog.Warn("remote command failed", "channel", channel, "command", string(cmd), "error", err)
		return false
	}
	return true
}

// Subscribe registers fn for event and returns an id for Unsubscribe.
func (c *Coordinator) Subscribe(event string, fn func(payload any)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs[event] = append(c.subs[event], subscription{id: c.nextSub, fn: fn})
	return c.nextSub
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (c *Coordinator) Unsubscribe(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[event]
	for i, s := range subs {
		if s.id == id {
			c.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber of event synchronously in registration
// order. A panicking subscriber is logged and skipped.
func (c *Coordinator) Publish(event string, payload any) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subs[event]...)
	c.mu.Unlock()

	for _, s := range subs {
		c.deliver(event, s, payload)
	}
}

func (c *Coordinator) deliver(event string, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "event", event, "subscription", s.id, "panic", r)
		}
	}()
	s.fn(payload)
}

// Reset drops every channel, subscription and the active channel.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = make(map[string]Handlers)
	c.subs = make(map[string][]subscription)
	c.active = ""
}
