package relay

import (
	"fmt"

	"PolyChat/protocol"
)

// Handler processes one inbound event type. Handlers run on the owning
// connection's read goroutine, so events from a single connection are handled
// strictly in arrival order.
type Handler interface {
	Event() string
	Handle(ctx *Context, f *protocol.Frame, c *Conn) error
}

// Context is passed to every handler invocation.
type Context struct {
	S *Server
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Event()] = h }

func (d *Dispatcher) Dispatch(ctx *Context, f *protocol.Frame, c *Conn) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return fmt.Errorf("no handler for event=%s", f.Event)
	}
	return h.Handle(ctx, f, c)
}

func (d *Dispatcher) GetHandler(event string) Handler {
	return d.handlers[event]
}
