package mercure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nfrund/herald/internal/reconcile"
	"github.com/nfrund/herald/internal/topics"
	"github.com/nfrund/herald/internal/transport"
)

var (
	// ErrNoTopics is returned by Connect when there is nothing to subscribe
	// to and no connection to close.
	ErrNoTopics = reconcile.ErrNoTopics

	// ErrSuperseded is returned by Connect when a concurrent call replaced the
	// connection while it was being opened.
	ErrSuperseded = errors.New("connection superseded before it was established")

	errNoOpener = errors.New("mercure: an Opener is required")
)

// Client manages one hub connection and the listeners attached to it.
type Client struct {
	hub    *url.URL
	opener transport.Opener
	logger *slog.Logger

	mu          sync.Mutex
	desired     topics.Set
	applied     topics.Set
	lastEventID string
	conn        transport.Conn
	connID      string
	generation  uint64
	attached    map[string]bool
	listeners   *registry
	// openOpts are the options of the last Connect, reused by Unsubscribe.
	openOpts transport.OpenOptions
}

// New returns an idle client for the hub at hubURL.
func New(hubURL string, opts Options) (*Client, error) {
	if opts.Opener == nil {
		return nil, errNoOpener
	}
	hub, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("invalid hub url %q: %w", hubURL, err)
	}
	if hub.Scheme == "" || hub.Host == "" {
		return nil, fmt.Errorf("invalid hub url %q: must be absolute", hubURL)
	}

	opts = opts.withDefaults()
	c := &Client{
		hub:         hub,
		opener:      opts.Opener,
		logger:      opts.Logger.With("hub", hub.Redacted()),
		lastEventID: opts.LastEventID,
		listeners:   newRegistry(),
	}
	if opts.Handler != nil {
		for _, t := range opts.EventTypes {
			c.listeners.add(t, opts.Handler)
		}
	}
	return c, nil
}

// Subscribe changes the desired topic set. By default the topics are added to
// it; WithAppend(false) replaces it. Nothing is opened until Connect.
func (c *Client) Subscribe(topicList []string, opts ...SubscribeOption) {
	o := subscribeOptions{append: true}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if o.append {
		c.desired = c.desired.Union(topicList...)
	} else {
		c.desired = topics.Normalize(topicList...)
	}
}

// Unsubscribe removes topics from the desired set and connects with the
// options of the previous Connect. Removing the last topic closes the
// connection; doing so while idle returns ErrNoTopics.
func (c *Client) Unsubscribe(ctx context.Context, topicList ...string) (transport.Conn, error) {
	c.mu.Lock()
	c.desired = c.desired.Without(topicList...)
	opts := c.openOpts
	c.mu.Unlock()

	return c.Connect(ctx, opts)
}

// Connect brings the connection in line with the desired topics. It returns
// the open connection, or nil when the change closed it.
//
// Errors from the transport are returned as is.
func (c *Client) Connect(ctx context.Context, opts transport.OpenOptions) (transport.Conn, error) {
	c.mu.Lock()
	c.openOpts = opts
	decision, err := reconcile.Decide(c.applied, c.desired, c.conn != nil)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if decision == reconcile.Reuse {
		conn, connID := c.conn, c.connID
		c.mu.Unlock()
		c.logger.Debug("Reusing hub connection", "conn_id", connID)
		return conn, nil
	}

	old, oldID := c.detachLocked()
	gen := c.generation
	desired := slices.Clone(c.desired)
	rawURL := c.urlLocked(desired)
	if decision == reconcile.CloseOnly {
		c.applied = nil
	}
	c.mu.Unlock()

	if old != nil {
		c.logger.Info("Closing hub connection", "conn_id", oldID, "decision", decision.String())
		if err := old.Close(); err != nil {
			return nil, err
		}
	}
	if !decision.Opens() {
		return nil, nil
	}

	connID := uuid.NewString()
	c.logger.Info("Opening hub connection",
		"conn_id", connID,
		"topics", desired.String(),
		"generation", gen,
		"decision", decision.String(),
	)
	conn, err := c.opener.Open(ctx, rawURL, opts)
	if err != nil {
		c.logger.Error("Failed to open hub connection", "conn_id", connID, "error", err)
		return nil, err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Warn("Discarding superseded hub connection", "conn_id", connID, "generation", gen)
		_ = conn.Close()
		return nil, ErrSuperseded
	}
	c.conn = conn
	c.connID = connID
	c.applied = desired
	c.attached = make(map[string]bool)
	eventTypes := append([]string{DefaultEventType}, c.listeners.eventTypes()...)
	var attach []string
	for _, t := range eventTypes {
		if !c.attached[t] {
			c.attached[t] = true
			attach = append(attach, t)
		}
	}
	c.mu.Unlock()

	for _, t := range attach {
		conn.AddListener(t, c.dispatcher(gen, t))
	}
	if s, ok := conn.(transport.Starter); ok {
		s.Start()
	}
	if d, ok := conn.(transport.Doner); ok {
		go c.watch(gen, connID, conn, d.Done())
	}
	return conn, nil
}

// watch forgets a connection that ends on its own, so the next Connect opens
// a fresh one from the cursor instead of reusing a dead stream.
func (c *Client) watch(gen uint64, connID string, conn transport.Conn, done <-chan struct{}) {
	<-done

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	cursor := c.lastEventID
	c.mu.Unlock()

	c.logger.Warn("Hub connection ended", "conn_id", connID, "last_event_id", cursor)
	_ = conn.Close()
}

// Disconnect closes the connection, if any. The desired and applied topics
// are kept so a later Connect resumes the same subscription.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	old, oldID := c.detachLocked()
	c.mu.Unlock()

	if old == nil {
		return nil
	}
	c.logger.Info("Closing hub connection", "conn_id", oldID)
	return old.Close()
}

// Reconnect forces a fresh connection, e.g. after credentials changed.
func (c *Client) Reconnect(ctx context.Context, opts transport.OpenOptions) (transport.Conn, error) {
	if err := c.Disconnect(); err != nil {
		return nil, err
	}
	return c.Connect(ctx, opts)
}

// detachLocked forgets the current connection and invalidates its callbacks.
func (c *Client) detachLocked() (transport.Conn, string) {
	old, oldID := c.conn, c.connID
	c.conn = nil
	c.connID = ""
	c.attached = nil
	c.generation++
	return old, oldID
}

// On registers l for eventType. A listener already registered for the type is
// ignored. When a connection is open the listener receives its events at once.
func (c *Client) On(eventType string, l *Listener) bool {
	if l == nil {
		return false
	}

	c.mu.Lock()
	added := c.listeners.add(eventType, l)
	conn, gen := c.conn, c.generation
	attach := conn != nil && !c.attached[eventType]
	if attach {
		c.attached[eventType] = true
	}
	c.mu.Unlock()

	if attach {
		conn.AddListener(eventType, c.dispatcher(gen, eventType))
	}
	return added
}

// Off removes l from eventType.
func (c *Client) Off(eventType string, l *Listener) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners.remove(eventType, l)
}

// Listeners returns the listeners for eventType in delivery order.
func (c *Client) Listeners(eventType string) []*Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeners.list(eventType)
}

// dispatcher returns the transport handler for one event type of the
// connection opened as generation gen.
func (c *Client) dispatcher(gen uint64, eventType string) transport.Handler {
	return func(raw transport.RawEvent) {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		if raw.ID != "" {
			c.lastEventID = raw.ID
		}
		listeners := c.listeners.list(eventType)
		c.mu.Unlock()

		event := eventFromRaw(raw)
		if event.Type == "" {
			event.Type = eventType
		}
		for _, l := range listeners {
			c.invoke(l, event)
		}
	}
}

func (c *Client) invoke(l *Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Listener panicked",
				"event_type", event.Type,
				"last_event_id", event.ID,
				"panic", r,
			)
		}
	}()
	l.fn(event)
}

// LastEventID returns the resumption cursor.
func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// Topics returns the desired topic set.
func (c *Client) Topics() topics.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.desired)
}

// AppliedTopics returns the topics the last opened connection was made for.
func (c *Client) AppliedTopics() topics.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.applied)
}

// Connected reports whether a connection is open. A connection that ended on
// its own is no longer reported.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// URL returns the subscription URL the next opened connection would use.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.urlLocked(c.desired)
}

// urlLocked builds the hub URL for set. Query parameters already on the hub
// URL are preserved.
func (c *Client) urlLocked(set topics.Set) string {
	u := *c.hub
	q := u.Query()
	q.Set("topic", set.String())
	if c.lastEventID != "" {
		q.Set("lastEventID", c.lastEventID)
	}
	u.RawQuery = strings.ReplaceAll(q.Encode(), "%2A", "*")
	return u.String()
}
