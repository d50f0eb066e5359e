package mercure

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nfrund/herald/internal/topics"
	"github.com/nfrund/herald/internal/transport"
)

const testHub = "https://example.com/hub"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	if opts.Opener == nil {
		opts.Opener = opener
	}
	client, err := New(testHub, opts)
	require.NoError(t, err)
	return client, opener
}

func connect(t *testing.T, c *Client) transport.Conn {
	t.Helper()
	conn, err := c.Connect(context.Background(), transport.OpenOptions{})
	require.NoError(t, err)
	return conn
}

func queryOf(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestNew(t *testing.T) {
	_, err := New(testHub, Options{})
	assert.Error(t, err, "an opener is required")

	_, err = New("/relative", Options{Opener: &fakeOpener{}})
	assert.Error(t, err)

	_, err = New("http://[::1", Options{Opener: &fakeOpener{}})
	assert.Error(t, err)
}

func TestClient_SubscribeAppendAndReplace(t *testing.T) {
	t.Run("append", func(t *testing.T) {
		c, _ := newTestClient(t, Options{})
		c.Subscribe([]string{"a"})
		c.Subscribe([]string{"b"}, WithAppend(true))
		assert.Equal(t, topics.Set{"a", "b"}, c.Topics())
	})

	t.Run("replace", func(t *testing.T) {
		c, _ := newTestClient(t, Options{})
		c.Subscribe([]string{"a"})
		c.Subscribe([]string{"b"}, WithAppend(false))
		assert.Equal(t, topics.Set{"b"}, c.Topics())
	})

	t.Run("wildcard collapses", func(t *testing.T) {
		c, _ := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1", "*", "topic2"})
		assert.Equal(t, topics.Set{"*"}, c.Topics())
	})

	t.Run("subscribe does not connect", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"a"})
		assert.False(t, c.Connected())
		assert.Zero(t, opener.count())
	})
}

func TestClient_ConnectURL(t *testing.T) {
	tests := []struct {
		name   string
		topics []string
		want   string
	}{
		{name: "single topic", topics: []string{"/books/1"}, want: "topic=%2Fbooks%2F1"},
		{name: "multiple topics", topics: []string{"topic1", "topic2"}, want: "topic=topic1%2Ctopic2"},
		{name: "wildcard sent literally", topics: []string{"*"}, want: "topic=*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, opener := newTestClient(t, Options{})
			c.Subscribe(tt.topics)
			connect(t, c)

			assert.Contains(t, opener.last().url, tt.want)
			assert.Contains(t, opener.last().url, testHub+"?")
			assert.NotContains(t, opener.last().url, "lastEventID")
		})
	}
}

func TestClient_ConnectPreservesHubQuery(t *testing.T) {
	opener := &fakeOpener{}
	c, err := New("https://example.com/hub?jwt=abc", Options{Opener: opener})
	require.NoError(t, err)

	c.Subscribe([]string{"x"})
	connect(t, c)

	q := queryOf(t, opener.last().url)
	assert.Equal(t, "abc", q.Get("jwt"))
	assert.Equal(t, "x", q.Get("topic"))
}

func TestClient_ConnectWithoutTopics(t *testing.T) {
	c, opener := newTestClient(t, Options{})

	_, err := c.Connect(context.Background(), transport.OpenOptions{})

	assert.ErrorIs(t, err, ErrNoTopics)
	assert.Zero(t, opener.count(), "no connection should be attempted")
}

func TestClient_Reconciliation(t *testing.T) {
	t.Run("same topics in another order reuse the connection", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1", "topic2"})
		first := connect(t, c)

		c.Subscribe([]string{"topic2", "topic1"}, WithAppend(false))
		second := connect(t, c)

		assert.Same(t, first, second)
		assert.Equal(t, 1, opener.count())
		assert.False(t, opener.last().isClosed())
	})

	t.Run("changed topics reopen", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1"})
		connect(t, c)
		first := opener.last()

		c.Subscribe([]string{"topic2"}, WithAppend(false))
		connect(t, c)

		assert.True(t, first.isClosed())
		assert.NotSame(t, first, opener.last())
		assert.Equal(t, "topic2", queryOf(t, opener.last().url).Get("topic"))
		assert.Equal(t, topics.Set{"topic2"}, c.AppliedTopics())
	})

	t.Run("unsubscribing from everything closes only", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1"})
		connect(t, c)
		first := opener.last()

		conn, err := c.Unsubscribe(context.Background(), "topic1")
		require.NoError(t, err)

		assert.Nil(t, conn)
		assert.True(t, first.isClosed())
		assert.Equal(t, 1, opener.count())
		assert.False(t, c.Connected())
		assert.Empty(t, c.AppliedTopics())
	})

	t.Run("unsubscribing some topics reopens", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1", "topic2", "topic3"})
		connect(t, c)

		_, err := c.Unsubscribe(context.Background(), "topic1", "topic3")
		require.NoError(t, err)

		assert.Equal(t, 2, opener.count())
		assert.Equal(t, "topic2", queryOf(t, opener.last().url).Get("topic"))
	})

	t.Run("unsubscribing while idle with nothing left", func(t *testing.T) {
		c, _ := newTestClient(t, Options{})
		c.Subscribe([]string{"topic1"})

		_, err := c.Unsubscribe(context.Background(), "topic1")
		assert.ErrorIs(t, err, ErrNoTopics)
	})
}

func TestClient_DisconnectKeepsSubscription(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	c.Subscribe([]string{"a"})
	connect(t, c)

	require.NoError(t, c.Disconnect())
	assert.True(t, opener.last().isClosed())
	assert.False(t, c.Connected())
	assert.Equal(t, topics.Set{"a"}, c.Topics())
	assert.Equal(t, topics.Set{"a"}, c.AppliedTopics())

	connect(t, c)
	assert.Equal(t, 2, opener.count())
	assert.True(t, c.Connected())

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect(), "disconnecting twice is a no-op")
}

func TestClient_ReconnectOpensFreshConnection(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	c.Subscribe([]string{"a"})
	first := connect(t, c)

	second, err := c.Reconnect(context.Background(), transport.OpenOptions{Token: "rotated"})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.(*fakeConn).isClosed())
	assert.Equal(t, "rotated", opener.opts[1].Token)
}

func TestClient_UnsubscribeReusesOpenOptions(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	c.Subscribe([]string{"a", "b"})
	_, err := c.Connect(context.Background(), transport.OpenOptions{Token: "secret"})
	require.NoError(t, err)

	_, err = c.Unsubscribe(context.Background(), "b")
	require.NoError(t, err)

	require.Equal(t, 2, opener.count())
	assert.Equal(t, "secret", opener.opts[1].Token)
}

func TestClient_ResumptionCursor(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	c.Subscribe([]string{"topic"})
	connect(t, c)

	opener.last().emit(DefaultEventType, "42", `{}`)
	assert.Equal(t, "42", c.LastEventID())

	opener.last().emit(DefaultEventType, "", `{}`)
	assert.Equal(t, "42", c.LastEventID(), "events without id keep the cursor")

	_, err := c.Reconnect(context.Background(), transport.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "42", queryOf(t, opener.last().url).Get("lastEventID"))

	c.Subscribe([]string{"topic2"})
	connect(t, c)
	assert.Contains(t, opener.last().url, "lastEventID=42")
}

func TestClient_ForgetsConnectionThatEnded(t *testing.T) {
	var conns []*endingConn
	c, _ := newTestClient(t, Options{Opener: endingOpener(&conns)})
	c.Subscribe([]string{"x"})
	connect(t, c)

	conns[0].emit(DefaultEventType, "1", `{}`)
	conns[0].end()

	assert.Eventually(t, func() bool { return !c.Connected() && conns[0].isClosed() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, topics.Set{"x"}, c.AppliedTopics())

	second := connect(t, c)
	require.Len(t, conns, 2)
	assert.Same(t, conns[1], second)
	assert.Equal(t, "1", queryOf(t, conns[1].url).Get("lastEventID"))

	require.NoError(t, c.Disconnect())
	conns[1].end()
}

func TestClient_EndOfReplacedConnectionIsIgnored(t *testing.T) {
	var conns []*endingConn
	c, _ := newTestClient(t, Options{Opener: endingOpener(&conns)})
	c.Subscribe([]string{"x"})
	connect(t, c)

	_, err := c.Reconnect(context.Background(), transport.OpenOptions{})
	require.NoError(t, err)
	conns[0].end()

	assert.Never(t, func() bool { return !c.Connected() }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, c.Disconnect())
	conns[1].end()
}

func TestClient_LogsConnectionLifecycle(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestClient(t, Options{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	c.Subscribe([]string{"x"})
	connect(t, c)
	require.NoError(t, c.Disconnect())

	assert.Contains(t, buf.String(), `msg="Opening hub connection"`)
	assert.Contains(t, buf.String(), `msg="Closing hub connection"`)
}

func TestClient_InitialCursor(t *testing.T) {
	c, opener := newTestClient(t, Options{LastEventID: "urn:uuid:1"})
	c.Subscribe([]string{"x"})
	connect(t, c)

	assert.Equal(t, "urn:uuid:1", queryOf(t, opener.last().url).Get("lastEventID"))
}

func TestClient_CursorAdvancesBeforeListeners(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	var seen string
	c.On(DefaultEventType, NewListener(func(Event) {
		seen = c.LastEventID()
		panic("listener failure")
	}))
	after := 0
	c.On(DefaultEventType, NewListener(func(Event) { after++ }))
	c.Subscribe([]string{"x"})
	connect(t, c)

	assert.NotPanics(t, func() { opener.last().emit(DefaultEventType, "7", "{}") })

	assert.Equal(t, "7", seen)
	assert.Equal(t, "7", c.LastEventID())
	assert.Equal(t, 1, after, "a panicking listener must not stop later ones")
}

func TestClient_Listeners(t *testing.T) {
	t.Run("duplicates are suppressed and order kept", func(t *testing.T) {
		c, _ := newTestClient(t, Options{})
		l1 := NewListener(func(Event) {})
		l2 := NewListener(func(Event) {})

		assert.True(t, c.On("update", l1))
		assert.True(t, c.On("update", l2))
		assert.False(t, c.On("update", l1))
		assert.False(t, c.On("update", nil))

		assert.Equal(t, []*Listener{l1, l2}, c.Listeners("update"))

		assert.True(t, c.Off("update", l1))
		assert.False(t, c.Off("update", l1))
		assert.Equal(t, []*Listener{l2}, c.Listeners("update"))
	})

	t.Run("listeners survive reconnects without duplication", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		var got []string
		l := NewListener(func(e Event) { got = append(got, e.ID) })
		c.On("update", l)
		c.Subscribe([]string{"x"})
		connect(t, c)

		_, err := c.Reconnect(context.Background(), transport.OpenOptions{})
		require.NoError(t, err)
		c.On("update", l)

		conn := opener.last()
		assert.Equal(t, 1, conn.handlerCount("update"))
		conn.emit("update", "1", "{}")
		assert.Equal(t, []string{"1"}, got)
	})

	t.Run("registering on an open connection attaches immediately", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		c.Subscribe([]string{"x"})
		connect(t, c)

		var got []Event
		c.On("delete", NewListener(func(e Event) { got = append(got, e) }))
		c.On("delete", NewListener(func(e Event) { got = append(got, e) }))

		conn := opener.last()
		assert.Equal(t, 1, conn.handlerCount("delete"))
		conn.emit("delete", "9", `{"@id":"/books/1"}`)

		require.Len(t, got, 2)
		assert.Equal(t, "delete", got[0].Type)
		assert.Equal(t, "9", got[0].ID)
	})

	t.Run("removed listeners stop receiving", func(t *testing.T) {
		c, opener := newTestClient(t, Options{})
		calls := 0
		l := NewListener(func(Event) { calls++ })
		c.On(DefaultEventType, l)
		c.Subscribe([]string{"x"})
		connect(t, c)

		c.Off(DefaultEventType, l)
		opener.last().emit(DefaultEventType, "1", "{}")

		assert.Zero(t, calls)
	})
}

func TestClient_HandlerOption(t *testing.T) {
	var types []string
	handler := NewListener(func(e Event) { types = append(types, e.Type) })

	c, opener := newTestClient(t, Options{Handler: handler, EventTypes: []string{"message", "update", "delete"}})
	c.Subscribe([]string{"topic"})
	connect(t, c)

	conn := opener.last()
	conn.emit("message", "1", `{"foo":"bar"}`)
	conn.emit("update", "2", `{"foo":"updated"}`)
	conn.emit("delete", "3", `{"id":"123"}`)
	conn.emit("custom", "4", `{}`)

	assert.Equal(t, []string{"message", "update", "delete"}, types)
}

func TestClient_DefaultHandlerListensToMessagesOnly(t *testing.T) {
	calls := 0
	c, opener := newTestClient(t, Options{Handler: NewListener(func(Event) { calls++ })})
	c.Subscribe([]string{"topic"})
	connect(t, c)

	opener.last().emit(DefaultEventType, "1", `{"test":"data"}`)
	opener.last().emit("custom", "2", `{"ignored":true}`)

	assert.Equal(t, 1, calls)
}

func TestClient_StartsConnectionAfterAttaching(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	c.On("update", NewListener(func(Event) {}))
	c.Subscribe([]string{"x"})
	connect(t, c)

	conn := opener.last()
	assert.True(t, conn.started)
	assert.Equal(t, 1, conn.handlerCount("update"))
	assert.Equal(t, 1, conn.handlerCount(DefaultEventType))
}

func TestClient_IgnoresSupersededConnections(t *testing.T) {
	c, opener := newTestClient(t, Options{})
	calls := 0
	c.On(DefaultEventType, NewListener(func(Event) { calls++ }))
	c.Subscribe([]string{"a"})
	connect(t, c)
	stale := opener.last()

	c.Subscribe([]string{"b"}, WithAppend(false))
	connect(t, c)

	stale.emit(DefaultEventType, "late", "{}")

	assert.Zero(t, calls)
	assert.Empty(t, c.LastEventID())
}

func TestClient_DiscardsConnectionOpenedDuringDisconnect(t *testing.T) {
	stale := &fakeConn{}
	var c *Client
	opener := transport.OpenerFunc(func(context.Context, string, transport.OpenOptions) (transport.Conn, error) {
		// A concurrent Disconnect lands while the open is in flight.
		require.NoError(t, c.Disconnect())
		return stale, nil
	})

	var err error
	c, err = New(testHub, Options{Opener: opener})
	require.NoError(t, err)
	c.Subscribe([]string{"a"})

	_, err = c.Connect(context.Background(), transport.OpenOptions{})

	assert.ErrorIs(t, err, ErrSuperseded)
	assert.True(t, stale.isClosed())
	assert.False(t, c.Connected())
}

func TestClient_TransportErrorsPropagate(t *testing.T) {
	openErr := errors.New("dial tcp: connection refused")
	opener := &mockOpener{}
	opener.On("Open", mock.Anything, mock.MatchedBy(func(u string) bool {
		return queryOf(t, u).Get("topic") == "a"
	}), transport.OpenOptions{}).Return(nil, openErr)

	c, err := New(testHub, Options{Opener: opener})
	require.NoError(t, err)
	c.Subscribe([]string{"a"})

	_, err = c.Connect(context.Background(), transport.OpenOptions{})

	assert.Same(t, openErr, err)
	assert.False(t, c.Connected())
	opener.AssertExpectations(t)
}

func TestClient_CloseErrorsPropagate(t *testing.T) {
	closeErr := errors.New("close failed")
	conn := &fakeConn{closeErr: closeErr}
	opener := &mockOpener{}
	opener.On("Open", mock.Anything, mock.Anything, mock.Anything).Return(conn, nil).Once()

	c, err := New(testHub, Options{Opener: opener})
	require.NoError(t, err)
	c.Subscribe([]string{"a"})
	_, err = c.Connect(context.Background(), transport.OpenOptions{})
	require.NoError(t, err)

	assert.Same(t, closeErr, c.Disconnect())
}

func TestClient_URL(t *testing.T) {
	c, _ := newTestClient(t, Options{LastEventID: "5"})
	c.Subscribe([]string{"/books/1", "/books/2"})

	q := queryOf(t, c.URL())
	assert.Equal(t, "/books/1,/books/2", q.Get("topic"))
	assert.Equal(t, "5", q.Get("lastEventID"))
}

func TestEvent_Decode(t *testing.T) {
	var v map[string]any
	require.NoError(t, Event{Data: `{"title":"T"}`}.Decode(&v))
	assert.Equal(t, "T", v["title"])

	assert.Error(t, Event{Data: "not json"}.Decode(&v))
}
