// Package sse opens hub connections over server-sent events.
package sse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	r3sse "github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/nfrund/herald/internal/transport"
)

// Dialer holds what every opener shares.
type Dialer struct {
	// HTTPClient defaults to a client without timeout.
	HTTPClient *http.Client

	// Headers are sent with every request.
	Headers http.Header

	// ReconnectStrategy returns the backoff governing reconnects after a
	// failed request or after the hub ends the stream. nil keeps the
	// exponential default. Either way retries end when the connection is
	// closed.
	ReconnectStrategy func() backoff.BackOff

	// OnError is called when a stream gives up. A stream the hub ended that
	// could not be resumed reports ErrStreamClosed.
	OnError func(url string, err error)

	Logger *slog.Logger
}

func (d Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Dialer) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{}
}

func (d Dialer) strategy() backoff.BackOff {
	if d.ReconnectStrategy != nil {
		return d.ReconnectStrategy()
	}
	return backoff.NewExponentialBackOff()
}

func (d Dialer) dial(rawURL string, httpClient *http.Client, headers http.Header) (*Conn, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}

	logger := d.logger().With("url", redact(rawURL))
	conn := newConn(rawURL, logger, d.OnError)
	conn.resume = backoff.WithContext(d.strategy(), conn.ctx)

	conn.client = r3sse.NewClient(rawURL, func(c *r3sse.Client) {
		c.Connection = httpClient
		c.ReconnectStrategy = backoff.WithContext(d.strategy(), conn.ctx)
	})
	for k := range d.Headers {
		conn.client.Headers[k] = d.Headers.Get(k)
	}
	for k := range headers {
		conn.client.Headers[k] = headers.Get(k)
	}
	return conn, nil
}

// DefaultOpener opens plain streams. A token in OpenOptions is sent as a
// bearer Authorization header.
type DefaultOpener struct {
	dialer Dialer
}

// NewDefaultOpener returns an opener without credentials of its own.
func NewDefaultOpener(d Dialer) *DefaultOpener {
	return &DefaultOpener{dialer: d}
}

// Open implements transport.Opener.
func (o *DefaultOpener) Open(_ context.Context, rawURL string, opts transport.OpenOptions) (transport.Conn, error) {
	headers := opts.Headers.Clone()
	if opts.Token != "" {
		if headers == nil {
			headers = make(http.Header)
		}
		headers.Set("Authorization", "Bearer "+opts.Token)
	}
	return o.dialer.dial(rawURL, o.dialer.httpClient(), headers)
}

// CookieOpener sends the cookies held in a jar with every stream request,
// typically the hub's mercureAuthorization cookie.
type CookieOpener struct {
	dialer Dialer
	jar    http.CookieJar
}

// NewCookieOpener returns an opener using jar. A nil jar gets an empty one.
func NewCookieOpener(d Dialer, jar http.CookieJar) *CookieOpener {
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	return &CookieOpener{dialer: d, jar: jar}
}

// Jar returns the opener's cookie jar.
func (o *CookieOpener) Jar() http.CookieJar {
	return o.jar
}

// Open implements transport.Opener.
func (o *CookieOpener) Open(_ context.Context, rawURL string, opts transport.OpenOptions) (transport.Conn, error) {
	client := *o.dialer.httpClient()
	client.Jar = o.jar
	return o.dialer.dial(rawURL, &client, opts.Headers)
}

// QueryTokenOpener passes a token in the authorization query parameter, for
// hubs that cannot read headers or cookies.
type QueryTokenOpener struct {
	dialer Dialer

	mu    sync.RWMutex
	token string
}

// NewQueryTokenOpener returns an opener sending token.
func NewQueryTokenOpener(d Dialer, token string) *QueryTokenOpener {
	return &QueryTokenOpener{dialer: d, token: token}
}

// SetToken replaces the token used by later Open calls.
func (o *QueryTokenOpener) SetToken(token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.token = token
}

// Token returns the current token.
func (o *QueryTokenOpener) Token() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.token
}

// Open implements transport.Opener. OpenOptions.Token takes precedence over
// the configured token.
func (o *QueryTokenOpener) Open(_ context.Context, rawURL string, opts transport.OpenOptions) (transport.Conn, error) {
	token := opts.Token
	if token == "" {
		token = o.Token()
	}
	withToken, err := WithQueryToken(rawURL, token)
	if err != nil {
		return nil, err
	}
	return o.dialer.dial(withToken, o.dialer.httpClient(), opts.Headers)
}

// WithQueryToken appends an authorization parameter to rawURL, leaving the
// existing query untouched.
func WithQueryToken(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	if token == "" {
		return rawURL, nil
	}
	param := "authorization=" + url.QueryEscape(token)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), nil
}

// redact hides the authorization parameter in logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("authorization") {
		q.Set("authorization", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
