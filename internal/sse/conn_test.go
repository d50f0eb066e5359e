package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/nfrund/herald/internal/transport"
)

// endingServer answers the first request with one event and ends the
// response. Later requests are held open and reported on the channel.
func endingServer(t *testing.T) (*httptest.Server, <-chan *http.Request) {
	t.Helper()
	var calls atomic.Int32
	resumed := make(chan *http.Request, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if calls.Add(1) == 1 {
			fmt.Fprint(w, "id: 1\ndata: {}\n\n")
			return
		}
		resumed <- r.Clone(context.Background())
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv, resumed
}

func TestConn_ResumesWhenHubEndsStream(t *testing.T) {
	srv, resumed := endingServer(t)

	d := Dialer{ReconnectStrategy: func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }}
	conn, err := NewDefaultOpener(d).Open(context.Background(), srv.URL+"?topic=x&lastEventID=0", transport.OpenOptions{})
	require.NoError(t, err)
	events := collect(conn, "message")
	conn.(transport.Starter).Start()

	assert.Equal(t, "1", receive(t, events).ID)

	select {
	case req := <-resumed:
		assert.Equal(t, "1", req.URL.Query().Get("lastEventID"))
		assert.Equal(t, "x", req.URL.Query().Get("topic"))
		assert.Equal(t, "1", req.Header.Get("Last-Event-ID"))
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not resumed")
	}

	select {
	case <-conn.(*Conn).Done():
		t.Fatal("resumed stream should still be running")
	default:
	}
	closeAndWait(t, conn)
}

func TestConn_ReportsEndOfStreamWithoutResume(t *testing.T) {
	srv, _ := endingServer(t)

	failed := make(chan error, 1)
	d := Dialer{
		ReconnectStrategy: func() backoff.BackOff { return &backoff.StopBackOff{} },
		OnError:           func(_ string, err error) { failed <- err },
	}
	conn, err := NewDefaultOpener(d).Open(context.Background(), srv.URL, transport.OpenOptions{})
	require.NoError(t, err)
	conn.(transport.Starter).Start()

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("end of stream was not reported")
	}
	select {
	case <-conn.(*Conn).Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not exit")
	}
	require.NoError(t, conn.Close())
}

func TestConn_CloseStopsRetries(t *testing.T) {
	requests := make(chan struct{}, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- struct{}{}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	conn, err := NewDefaultOpener(Dialer{}).Open(context.Background(), srv.URL, transport.OpenOptions{})
	require.NoError(t, err)
	conn.(transport.Starter).Start()

	select {
	case <-requests:
	case <-time.After(5 * time.Second):
		t.Fatal("stream was never requested")
	}

	require.NoError(t, conn.Close())
	select {
	case <-conn.(*Conn).Done():
	case <-time.After(time.Second):
		t.Fatal("reader kept retrying after Close")
	}
}

func TestWithLastEventID(t *testing.T) {
	assert.Equal(t, "https://example.com/hub?lastEventID=7&topic=*", withLastEventID("https://example.com/hub?topic=*&lastEventID=3", "7"))
	assert.Equal(t, "https://example.com/hub?topic=x", withLastEventID("https://example.com/hub?topic=x", ""))
}
