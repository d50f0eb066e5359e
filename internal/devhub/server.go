// Package devhub is a small in-process Mercure hub for local development
// and tests. It implements publishing, subscribing with topic selectors and
// history replay. Authorization is a shared token per direction rather than
// JWTs.
package devhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/herald/internal/middleware"
	"github.com/nfrund/herald/internal/topics"
)

// Path is where the hub is mounted.
const Path = "/.well-known/mercure"

var (
	// ErrClosed is returned when publishing to a hub that has stopped.
	ErrClosed = errors.New("devhub: hub is closed")
	// ErrNoTopics is returned when an update has no topic.
	ErrNoTopics = errors.New("devhub: update has no topic")
)

// Options configures a Server.
type Options struct {
	// History is the number of updates kept for replay.
	History int
	// PublishToken and SubscribeToken guard each direction. Empty disables
	// the check.
	PublishToken   string
	SubscribeToken string
	// PublishRate limits publishes per second per client. Zero disables it.
	PublishRate float64
	// Buffer is the per-subscriber queue on top of History.
	Buffer int
	// Heartbeat is the interval of keep-alive comments. Zero disables them.
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// Server is the development hub.
type Server struct {
	e      *echo.Echo
	b      *broadcaster
	opts   Options
	logger *slog.Logger
}

// New builds a hub. Run (or Start) must be called before it serves updates.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	logger := opts.Logger.With("component", "devhub")

	s := &Server{
		b:      newBroadcaster(opts.History, logger),
		opts:   opts,
		logger: logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))

	publish := []echo.MiddlewareFunc{middleware.Auth(opts.PublishToken)}
	if opts.PublishRate > 0 {
		publish = append(publish, middleware.RateLimiter(opts.PublishRate))
	}
	e.POST(Path, s.handlePublish, publish...)
	e.GET(Path, s.handleSubscribe, middleware.Auth(opts.SubscribeToken))

	s.e = e
	return s
}

// Handler returns the HTTP handler, for mounting or httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run fans updates out until ctx is done. Open streams are closed when it
// returns.
func (s *Server) Run(ctx context.Context) {
	s.b.run(ctx)
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Development hub listening", "addr", addr, "path", Path)
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Close streams first so Shutdown does not wait on them.
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down devhub: %w", err)
	}
	return nil
}

// Publish sends an update to matching subscribers and returns its id. A
// missing id is generated.
func (s *Server) Publish(ctx context.Context, u Update) (string, error) {
	u.Topics = topics.Normalize(u.Topics...).Strings()
	if len(u.Topics) == 0 {
		return "", ErrNoTopics
	}
	if u.ID == "" {
		u.ID = "urn:uuid:" + uuid.NewString()
	}

	select {
	case s.b.publish <- u:
		return u.ID, nil
	case <-s.b.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) handlePublish(c echo.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.hasLineBreak() {
		return echo.NewHTTPError(http.StatusBadRequest, "id and type must be single-line")
	}

	ctx := c.Request().Context()
	id, err := s.Publish(ctx, Update{ID: req.ID, Type: req.Type, Data: req.Data, Topics: req.Topics})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	middleware.FromContext(ctx).Debug("Published update", "id", id, "topics", req.Topics)
	return c.String(http.StatusOK, id)
}

func (s *Server) handleSubscribe(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()
	logger := middleware.FromContext(ctx)

	raw := splitTopics(r.URL.Query()["topic"])
	sel := newSelector(raw)
	if !sel.all && len(sel.exact) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, `missing "topic" parameter`)
	}

	lastEventID := r.URL.Query().Get("lastEventID")
	if lastEventID == "" {
		lastEventID = r.Header.Get("Last-Event-ID")
	}

	sub := &subscriber{
		send:     make(chan Update, s.opts.Buffer+s.opts.History),
		selector: sel,
	}
	reg := registration{sub: sub, lastEventID: lastEventID, done: make(chan string, 1)}
	select {
	case s.b.register <- reg:
	case <-s.b.done:
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrClosed.Error())
	case <-ctx.Done():
		return nil
	}
	defer func() {
		select {
		case s.b.unregister <- sub:
		case <-s.b.done:
		}
	}()
	newest := <-reg.done

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	if newest != "" {
		res.Header().Set("Last-Event-ID", newest)
	}
	res.WriteHeader(http.StatusOK)
	if err := writeComment(res, ""); err != nil {
		return nil
	}
	res.Flush()
	logger.Info("Subscriber connected", "topics", raw, "last_event_id", lastEventID)

	var heartbeat <-chan time.Time
	if s.opts.Heartbeat > 0 {
		ticker := time.NewTicker(s.opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Subscriber disconnected")
			return nil
		case <-heartbeat:
			if err := writeComment(res, ""); err != nil {
				return nil
			}
			res.Flush()
		case u, ok := <-sub.send:
			if !ok {
				logger.Info("Subscriber stream closed by hub")
				return nil
			}
			if err := writeEvent(res, u); err != nil {
				logger.Debug("Failed to write event", "error", err)
				return nil
			}
			res.Flush()
		}
	}
}
