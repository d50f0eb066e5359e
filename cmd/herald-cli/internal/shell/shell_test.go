package shell

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/transport"
)

type stubConn struct {
	mu       sync.Mutex
	url      string
	handlers map[string][]transport.Handler
	closed   bool
}

func (c *stubConn) AddListener(eventType string, h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string][]transport.Handler)
	}
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) emit(eventType, id, data string) {
	c.mu.Lock()
	handlers := c.handlers[eventType]
	c.mu.Unlock()
	for _, h := range handlers {
		h(transport.RawEvent{Type: eventType, ID: id, Data: data})
	}
}

// session connects without credentials and remembers every connection.
type session struct {
	client *mercure.Client
	conns  []*stubConn
}

func (s *session) Connect(ctx context.Context) (transport.Conn, error) {
	return s.client.Connect(ctx, transport.OpenOptions{})
}

func (s *session) Reconnect(ctx context.Context) (transport.Conn, error) {
	return s.client.Reconnect(ctx, transport.OpenOptions{})
}

func (s *session) last() *stubConn {
	return s.conns[len(s.conns)-1]
}

func newShell(t *testing.T) (*Shell, *session, *bytes.Buffer) {
	t.Helper()
	sess := &session{}
	opener := transport.OpenerFunc(func(_ context.Context, url string, _ transport.OpenOptions) (transport.Conn, error) {
		conn := &stubConn{url: url}
		sess.conns = append(sess.conns, conn)
		return conn, nil
	})
	client, err := mercure.New("https://hub.example.com/.well-known/mercure", mercure.Options{
		Opener: opener,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	sess.client = client

	var out bytes.Buffer
	return New(client, sess, &out), sess, &out
}

func TestShell_SubscribeAndConnect(t *testing.T) {
	sh, sess, out := newShell(t)
	ctx := context.Background()

	assert.True(t, sh.Exec(ctx, "subscribe /books/1 /books/2"))
	assert.Contains(t, out.String(), "desired topics: /books/1,/books/2")
	assert.Empty(t, sess.conns)

	sh.Exec(ctx, "connect")
	require.Len(t, sess.conns, 1)
	assert.Contains(t, out.String(), "connected to /books/1,/books/2")

	sh.Exec(ctx, "sub -r /authors/1")
	sh.Exec(ctx, "connect")
	require.Len(t, sess.conns, 2)
	assert.True(t, sess.conns[0].closed)
	assert.Contains(t, sess.last().url, "topic=%2Fauthors%2F1")
}

func TestShell_Unsubscribe(t *testing.T) {
	sh, sess, out := newShell(t)
	ctx := context.Background()
	sh.Exec(ctx, "subscribe a b")
	sh.Exec(ctx, "connect")

	sh.Exec(ctx, "unsubscribe b")
	require.Len(t, sess.conns, 2)
	assert.Contains(t, sess.last().url, "topic=a")

	sh.Exec(ctx, "unsubscribe a")
	assert.Contains(t, out.String(), "disconnected")
	assert.True(t, sess.last().closed)

	out.Reset()
	sh.Exec(ctx, "unsubscribe a")
	assert.Contains(t, out.String(), "error: ")
}

func TestShell_PrintsEvents(t *testing.T) {
	sh, sess, out := newShell(t)
	ctx := context.Background()
	sh.Exec(ctx, "subscribe *")
	sh.Exec(ctx, "on delete")
	sh.Exec(ctx, "connect")
	out.Reset()

	sess.last().emit("message", "1", `{"@id":"/books/1"}`)
	sess.last().emit("delete", "2", `{"@id":"/books/2"}`)

	assert.Contains(t, out.String(), `{"id":"1","type":"message","data":{"@id":"/books/1"}}`)
	assert.Contains(t, out.String(), `{"id":"2","type":"delete","data":{"@id":"/books/2"}}`)

	out.Reset()
	sh.Exec(ctx, "off delete")
	sess.last().emit("delete", "3", `{}`)
	assert.NotContains(t, out.String(), `"id":"3"`)

	sh.Exec(ctx, "off delete")
	assert.Contains(t, out.String(), "delete: unchanged")
}

func TestShell_StatusDisconnectReconnect(t *testing.T) {
	sh, sess, out := newShell(t)
	ctx := context.Background()
	sh.Exec(ctx, "subscribe a")
	sh.Exec(ctx, "connect")
	sess.last().emit("message", "42", "x")

	out.Reset()
	sh.Exec(ctx, "status")
	assert.Contains(t, out.String(), "connected:     true")
	assert.Contains(t, out.String(), "last event id: 42")
	assert.Contains(t, out.String(), "lastEventID=42")

	sh.Exec(ctx, "disconnect")
	assert.True(t, sess.last().closed)

	sh.Exec(ctx, "reconnect")
	assert.Len(t, sess.conns, 2)
	assert.Contains(t, sess.last().url, "lastEventID=42")
}

func TestShell_Misc(t *testing.T) {
	sh, _, out := newShell(t)
	ctx := context.Background()

	assert.True(t, sh.Exec(ctx, ""))
	assert.True(t, sh.Exec(ctx, "bogus"))
	assert.Contains(t, out.String(), "Unknown command: bogus")

	assert.True(t, sh.Exec(ctx, "subscribe"))
	assert.Contains(t, out.String(), "usage: subscribe")

	assert.True(t, sh.Exec(ctx, "connect"))
	assert.Contains(t, out.String(), mercure.ErrNoTopics.Error())

	assert.True(t, sh.Exec(ctx, "help"))
	assert.Contains(t, out.String(), "herald commands:")

	assert.False(t, sh.Exec(ctx, "QUIT"))
}
