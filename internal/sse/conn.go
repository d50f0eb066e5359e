package sse

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	r3sse "github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/nfrund/herald/internal/transport"
)

// ErrStreamClosed is reported when the hub ended the stream and it could not
// be resumed.
var ErrStreamClosed = errors.New("hub closed the event stream")

// Conn is a server-sent events stream. Reading begins on Start and stops on
// Close. When the hub ends the response the stream is resumed from the last
// received event id, like a browser EventSource.
type Conn struct {
	url     string
	client  *r3sse.Client
	logger  *slog.Logger
	onError func(url string, err error)

	resume   backoff.BackOff
	received atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers map[string][]transport.Handler

	once sync.Once
	done chan struct{}
}

var _ transport.Conn = (*Conn)(nil)
var _ transport.Starter = (*Conn)(nil)
var _ transport.Doner = (*Conn)(nil)

func newConn(rawURL string, logger *slog.Logger, onError func(string, error)) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		url:      rawURL,
		logger:   logger,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string][]transport.Handler),
		done:     make(chan struct{}),
	}
}

// URL returns the stream URL, credentials included.
func (c *Conn) URL() string {
	return c.url
}

// AddListener attaches h to events of eventType. Frames without an event
// field have type "message".
func (c *Conn) AddListener(eventType string, h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

// Start begins reading the stream in the background.
func (c *Conn) Start() {
	c.once.Do(func() {
		go c.run()
	})
}

// Close stops the stream. It does not wait for the reader to exit; use Done
// for that.
func (c *Conn) Close() error {
	c.cancel()
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// Done is closed once the reader has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) run() {
	defer close(c.done)

	c.logger.Debug("SSE stream starting")
	for {
		c.received.Store(false)
		err := c.client.SubscribeRawWithContext(c.ctx, c.dispatch)
		if c.ctx.Err() != nil {
			c.logger.Debug("SSE stream closed")
			return
		}
		if err != nil {
			c.fail(err)
			return
		}

		// A nil error means the hub ended the response.
		if c.received.Load() {
			c.resume.Reset()
		}
		wait := c.resume.NextBackOff()
		if wait == backoff.Stop {
			c.fail(ErrStreamClosed)
			return
		}
		lastID := c.lastEventID()
		c.logger.Info("Hub ended stream, resuming", "after", wait, "last_event_id", lastID)

		timer := time.NewTimer(wait)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			c.logger.Debug("SSE stream closed")
			return
		case <-timer.C:
		}
		c.client.URL = withLastEventID(c.client.URL, lastID)
	}
}

func (c *Conn) fail(err error) {
	c.logger.Error("SSE stream failed", "error", err)
	if c.onError != nil {
		c.onError(c.url, err)
	}
}

// lastEventID returns the id of the last event the stream carried.
func (c *Conn) lastEventID() string {
	id, _ := c.client.LastEventID.Load().([]byte)
	return string(id)
}

// withLastEventID points the lastEventID query parameter of rawURL at id, so
// a resumed request does not replay from the cursor it was first opened with.
func withLastEventID(rawURL, id string) string {
	if id == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("lastEventID", id)
	u.RawQuery = strings.ReplaceAll(q.Encode(), "%2A", "*")
	return u.String()
}

func (c *Conn) dispatch(msg *r3sse.Event) {
	if c.ctx.Err() != nil {
		return
	}

	event := transport.RawEvent{
		Type: string(msg.Event),
		ID:   string(msg.ID),
		Data: string(msg.Data),
	}
	if event.Type == "" {
		event.Type = "message"
	}
	c.received.Store(true)

	c.mu.RLock()
	handlers := c.handlers[event.Type]
	c.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
