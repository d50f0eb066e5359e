// Package transport defines the capability the hub client needs from a push
// connection implementation.
package transport

import (
	"context"
	"net/http"
)

// RawEvent is one server-sent event as delivered by a connection.
type RawEvent struct {
	Type string // "message" when the frame names no event type
	ID   string
	Data string
}

// Handler receives raw events for one event type.
type Handler func(RawEvent)

// Conn is an open push connection.
type Conn interface {
	// AddListener attaches h to events of the given type. Attaching the same
	// handler twice is allowed; callers de-duplicate.
	AddListener(eventType string, h Handler)
	Close() error
}

// Starter is implemented by connections that buffer nothing until told to
// read. The client calls Start once every listener is attached.
type Starter interface {
	Start()
}

// Doner is implemented by connections that can end on their own. Done is
// closed once the connection delivers no more events, whether it was closed
// or gave up.
type Doner interface {
	Done() <-chan struct{}
}

// OpenOptions customise a single Open call.
type OpenOptions struct {
	// Token overrides the opener's configured credential, when the opener
	// uses one.
	Token   string
	Headers http.Header
}

// Opener opens push connections.
type Opener interface {
	Open(ctx context.Context, url string, opts OpenOptions) (Conn, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string, opts OpenOptions) (Conn, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string, opts OpenOptions) (Conn, error) {
	return f(ctx, url, opts)
}
