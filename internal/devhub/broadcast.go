package devhub

import (
	"context"
	"log/slog"
)

// Update is one published event.
type Update struct {
	ID     string
	Type   string
	Data   string
	Topics []string
}

// subscriber is a single stream waiting for updates.
type subscriber struct {
	// send is buffered; the broadcaster never blocks on it.
	send     chan Update
	selector selector
}

type registration struct {
	sub         *subscriber
	lastEventID string
	// done receives the id of the newest update known at registration.
	done chan string
}

// EarliestEventID asks for a replay of the whole history.
const EarliestEventID = "earliest"

// broadcaster fans updates out to subscribers and keeps a bounded history
// for replays. All state is owned by the Run goroutine.
type broadcaster struct {
	subscribers map[*subscriber]bool
	history     []Update
	maxHistory  int
	logger      *slog.Logger

	publish    chan Update
	register   chan registration
	unregister chan *subscriber
	// done is closed once run has returned.
	done chan struct{}
}

func newBroadcaster(maxHistory int, logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[*subscriber]bool),
		maxHistory:  maxHistory,
		logger:      logger,
		publish:     make(chan Update),
		register:    make(chan registration),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
	}
}

// run processes registrations and updates until ctx is done, then closes
// every subscriber.
func (b *broadcaster) run(ctx context.Context) {
	defer func() {
		close(b.done)
		for sub := range b.subscribers {
			close(sub.send)
			delete(b.subscribers, sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case reg := <-b.register:
			b.subscribers[reg.sub] = true
			b.replay(reg.sub, reg.lastEventID)
			reg.done <- b.lastID()
			b.logger.Info("New subscriber registered", "total_subscribers", len(b.subscribers))

		case sub := <-b.unregister:
			if _, ok := b.subscribers[sub]; ok {
				delete(b.subscribers, sub)
				close(sub.send)
				b.logger.Info("Subscriber unregistered", "total_subscribers", len(b.subscribers))
			}

		case update := <-b.publish:
			b.remember(update)
			b.logger.Debug("Broadcasting update", "id", update.ID, "recipient_count", len(b.subscribers))
			for sub := range b.subscribers {
				b.deliver(sub, update)
			}
		}
	}
}

// deliver sends without blocking. A full buffer means the subscriber is
// lagging, so it is dropped.
func (b *broadcaster) deliver(sub *subscriber, update Update) {
	if !sub.selector.matchesAny(update.Topics) {
		return
	}
	select {
	case sub.send <- update:
	default:
		close(sub.send)
		delete(b.subscribers, sub)
		b.logger.Warn("Unregistering slow subscriber", "total_subscribers", len(b.subscribers))
	}
}

func (b *broadcaster) remember(update Update) {
	if b.maxHistory <= 0 {
		return
	}
	b.history = append(b.history, update)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}

// replay sends the history after lastEventID. An unknown id replays nothing.
func (b *broadcaster) replay(sub *subscriber, lastEventID string) {
	if lastEventID == "" {
		return
	}
	start := -1
	if lastEventID == EarliestEventID {
		start = 0
	} else {
		for i, u := range b.history {
			if u.ID == lastEventID {
				start = i + 1
				break
			}
		}
	}
	if start < 0 {
		b.logger.Debug("Unknown last event id, nothing to replay", "last_event_id", lastEventID)
		return
	}
	for _, u := range b.history[start:] {
		b.deliver(sub, u)
		if !b.subscribers[sub] {
			return
		}
	}
}

func (b *broadcaster) lastID() string {
	if len(b.history) == 0 {
		return ""
	}
	return b.history[len(b.history)-1].ID
}
