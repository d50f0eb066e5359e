package mercure

import (
	"log/slog"

	"github.com/nfrund/herald/internal/transport"
)

// Options configure a Client. Every field has an independent default.
type Options struct {
	// Opener opens hub connections. Required.
	Opener transport.Opener

	// LastEventID seeds the resumption cursor.
	LastEventID string

	// Handler, when set, is registered for each of EventTypes.
	Handler *Listener

	// EventTypes the Handler listens to. Defaults to "message".
	EventTypes []string

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.EventTypes) == 0 {
		o.EventTypes = []string{DefaultEventType}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type subscribeOptions struct {
	append bool
}

// SubscribeOption customises Subscribe.
type SubscribeOption func(*subscribeOptions)

// WithAppend selects between extending the desired topics (the default) and
// replacing them.
func WithAppend(enabled bool) SubscribeOption {
	return func(o *subscribeOptions) {
		o.append = enabled
	}
}
