// Package bot implements the user-facing behavior of the primary bot
// and of every clone: command handling, file serving, uploads, and the
// settings menu. Routing goes through an explicit dispatch table built
// at startup.
package bot

import (
	"context"
	"strings"

	"github.com/tealstack/filefleet/internal/gateway"
)

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg gateway.Message)

// CallbackHandler processes one inline-keyboard callback.
type CallbackHandler func(ctx context.Context, cb gateway.Callback)

// Dispatcher routes updates: commands by name, callbacks by the prefix
// before the first ':', everything else to the fallback.
type Dispatcher struct {
	commands  map[string]MessageHandler
	callbacks map[string]CallbackHandler
	fallback  MessageHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		commands:  make(map[string]MessageHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// Command registers a handler for /name.
func (d *Dispatcher) Command(name string, h MessageHandler) {
	d.commands[name] = h
}

// Callback registers a handler for callback data starting with
// "prefix:".
func (d *Dispatcher) Callback(prefix string, h CallbackHandler) {
	d.callbacks[prefix] = h
}

// Fallback registers the handler for non-command messages.
func (d *Dispatcher) Fallback(h MessageHandler) {
	d.fallback = h
}

// Dispatch routes one update.
func (d *Dispatcher) Dispatch(ctx context.Context, upd gateway.Update) {
	switch {
	case upd.Message != nil:
		msg := *upd.Message
		if msg.Command != "" {
			if h, ok := d.commands[msg.Command]; ok {
				h(ctx, msg)
				return
			}
		}
		if d.fallback != nil {
			d.fallback(ctx, msg)
		}
	case upd.Callback != nil:
		cb := *upd.Callback
		prefix, _, _ := strings.Cut(cb.Data, ":")
		if h, ok := d.callbacks[prefix]; ok {
			h(ctx, cb)
		}
	}
}
