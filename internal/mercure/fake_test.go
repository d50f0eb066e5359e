package mercure

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/nfrund/herald/internal/transport"
)

// fakeConn records listeners and lets tests emit events synchronously.
type fakeConn struct {
	url      string
	mu       sync.Mutex
	handlers map[string][]transport.Handler
	closed   bool
	started  bool
	closeErr error
}

func (c *fakeConn) AddListener(eventType string, h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string][]transport.Handler)
	}
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeConn) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

func (c *fakeConn) emit(eventType, id, data string) {
	c.mu.Lock()
	handlers := append([]transport.Handler(nil), c.handlers[eventType]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(transport.RawEvent{Type: eventType, ID: id, Data: data})
	}
}

func (c *fakeConn) handlerCount(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[eventType])
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeOpener hands out fakeConns and remembers them.
type fakeOpener struct {
	mu    sync.Mutex
	conns []*fakeConn
	opts  []transport.OpenOptions
}

func (o *fakeOpener) Open(_ context.Context, url string, opts transport.OpenOptions) (transport.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	conn := &fakeConn{url: url}
	o.conns = append(o.conns, conn)
	o.opts = append(o.opts, opts)
	return conn, nil
}

func (o *fakeOpener) last() *fakeConn {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.conns) == 0 {
		return nil
	}
	return o.conns[len(o.conns)-1]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns)
}

// mockOpener is a testify mock for error paths.
type mockOpener struct{ mock.Mock }

func (m *mockOpener) Open(ctx context.Context, url string, opts transport.OpenOptions) (transport.Conn, error) {
	args := m.Called(ctx, url, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transport.Conn), args.Error(1)
}

// endingConn is a fakeConn that can end on its own.
type endingConn struct {
	fakeConn
	done chan struct{}
}

func (c *endingConn) Done() <-chan struct{} { return c.done }

func (c *endingConn) end() { close(c.done) }

// endingOpener hands out endingConns.
func endingOpener(conns *[]*endingConn) transport.OpenerFunc {
	return func(_ context.Context, url string, _ transport.OpenOptions) (transport.Conn, error) {
		conn := &endingConn{fakeConn: fakeConn{url: url}, done: make(chan struct{})}
		*conns = append(*conns, conn)
		return conn, nil
	}
}
