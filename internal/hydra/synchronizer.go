// Package hydra keeps API Platform (Hydra) resources in sync with updates
// pushed by a Mercure hub.
//
// Events are routed by the identifier field of their JSON payload. In the
// deletion-aware strategy, a payload carrying only metadata keys (by default
// those starting with "@") is treated as a deletion. A publisher that sends
// an empty partial update would be misread as a deletion.
package hydra

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/transport"
)

// ErrNoResourceID is returned when syncing a resource without an identifier.
var ErrNoResourceID = errors.New("resource has no identifier")

// Strategy selects how incoming payloads are dispatched.
type Strategy int

const (
	// StrategyDefault routes every object payload to update listeners.
	StrategyDefault Strategy = iota
	// StrategyDeletionAware routes metadata-only payloads to delete listeners.
	StrategyDeletionAware
)

// Options configure a Synchronizer.
type Options struct {
	Strategy Strategy

	// EventType is the hub event type carrying resource updates.
	// Defaults to "message".
	EventType string

	// IDField names the payload field holding the resource identifier.
	// Defaults to "@id".
	IDField string

	// MetaPrefix marks metadata keys for deletion detection. Defaults to "@".
	MetaPrefix string

	// ResourceListener defaults to MergeResource.
	ResourceListener ResourceListener

	// Subscribe options applied by Sync. Topics are appended by default.
	Subscribe []mercure.SubscribeOption

	// Open options passed to Connect by Sync.
	Open transport.OpenOptions

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.EventType == "" {
		o.EventType = mercure.DefaultEventType
	}
	if o.IDField == "" {
		o.IDField = "@id"
	}
	if o.MetaPrefix == "" {
		o.MetaPrefix = "@"
	}
	if o.ResourceListener == nil {
		o.ResourceListener = MergeResource
	}
	if o.Subscribe == nil {
		o.Subscribe = []mercure.SubscribeOption{mercure.WithAppend(true)}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Synchronizer routes hub events to per-resource listeners.
type Synchronizer struct {
	client   *mercure.Client
	opts     Options
	logger   *slog.Logger
	listener *mercure.Listener

	mu      sync.Mutex
	updates map[string][]*Listener
	deletes map[string][]*Listener
}

// New attaches a synchronizer to client.
func New(client *mercure.Client, opts Options) *Synchronizer {
	opts = opts.withDefaults()
	s := &Synchronizer{
		client:  client,
		opts:    opts,
		logger:  opts.Logger,
		updates: make(map[string][]*Listener),
		deletes: make(map[string][]*Listener),
	}
	s.listener = mercure.NewListener(s.handle)
	client.On(opts.EventType, s.listener)
	return s
}

// Client returns the underlying hub client.
func (s *Synchronizer) Client() *mercure.Client {
	return s.client
}

// Close detaches the synchronizer from its client.
func (s *Synchronizer) Close() {
	s.client.Off(s.opts.EventType, s.listener)
}

// Sync keeps resource up to date with events published on topic, which
// defaults to the resource identifier. Syncing an identifier twice is a no-op.
// When Connect fails the resource is left unsynced, so Sync can be retried.
func (s *Synchronizer) Sync(ctx context.Context, resource Resource, topic string) error {
	id := resource.ResourceID()
	if id == "" {
		return ErrNoResourceID
	}

	s.mu.Lock()
	if _, synced := s.updates[id]; synced {
		s.mu.Unlock()
		return nil
	}
	merge := NewListener(s.opts.ResourceListener(resource))
	s.updates[id] = []*Listener{merge}
	s.mu.Unlock()

	if topic == "" {
		topic = id
	}
	s.client.Subscribe([]string{topic}, s.opts.Subscribe...)
	if _, err := s.client.Connect(ctx, s.opts.Open); err != nil {
		// Forget the merge listener so a retried Sync connects again.
		s.remove(s.updates, id, merge)
		return err
	}
	return nil
}

// Unsync drops every listener of the resource. The hub subscription is kept.
func (s *Synchronizer) Unsync(resource Resource) {
	id := resource.ResourceID()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.updates, id)
	delete(s.deletes, id)
}

// OnUpdate registers l for updates of resource.
func (s *Synchronizer) OnUpdate(resource Resource, l *Listener) bool {
	return s.add(s.updates, resource.ResourceID(), l)
}

// OnDelete registers l for deletions of resource. Only the deletion-aware
// strategy emits deletions.
func (s *Synchronizer) OnDelete(resource Resource, l *Listener) bool {
	return s.add(s.deletes, resource.ResourceID(), l)
}

func (s *Synchronizer) add(set map[string][]*Listener, id string, l *Listener) bool {
	if l == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(set[id], l) {
		return false
	}
	set[id] = append(set[id], l)
	return true
}

func (s *Synchronizer) remove(set map[string][]*Listener, id string, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rest := slices.DeleteFunc(slices.Clone(set[id]), func(x *Listener) bool { return x == l })
	if len(rest) == 0 {
		delete(set, id)
		return
	}
	set[id] = rest
}

// UpdateListeners returns the update listeners of the resource with id.
func (s *Synchronizer) UpdateListeners(id string) []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.updates[id])
}

// DeleteListeners returns the delete listeners of the resource with id.
func (s *Synchronizer) DeleteListeners(id string) []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deletes[id])
}

// IsDeletion reports whether payload is a JSON object with only metadata
// keys.
func (s *Synchronizer) IsDeletion(payload string) bool {
	return isDeletion(gjson.Parse(payload), s.opts.MetaPrefix)
}

func isDeletion(obj gjson.Result, prefix string) bool {
	deletion := true
	obj.ForEach(func(key, _ gjson.Result) bool {
		if !strings.HasPrefix(key.String(), prefix) {
			deletion = false
		}
		return deletion
	})
	return deletion
}

func (s *Synchronizer) handle(event mercure.Event) {
	if !gjson.Valid(event.Data) {
		s.ignore(event, "payload is not valid JSON")
		return
	}
	obj := gjson.Parse(event.Data)
	if !obj.IsObject() {
		s.ignore(event, "payload is not a JSON object")
		return
	}

	// ForEach avoids gjson treating "@"-prefixed paths as modifiers.
	var id string
	obj.ForEach(func(key, value gjson.Result) bool {
		if key.String() == s.opts.IDField {
			id = value.String()
			return false
		}
		return true
	})
	if id == "" {
		s.logger.Debug("Hub event without resource identifier",
			"event_type", event.Type,
			"last_event_id", event.ID,
		)
		return
	}

	doc, _ := obj.Value().(map[string]any)

	set := s.updates
	kind := "update"
	if s.opts.Strategy == StrategyDeletionAware && isDeletion(obj, s.opts.MetaPrefix) {
		set = s.deletes
		kind = "delete"
	}

	s.mu.Lock()
	listeners := slices.Clone(set[id])
	s.mu.Unlock()

	for _, l := range listeners {
		if err := l.fn(Document(doc), event); err != nil {
			s.logger.Error("Resource listener failed",
				"resource", id,
				"kind", kind,
				"last_event_id", event.ID,
				"error", err,
			)
		}
	}
}

func (s *Synchronizer) ignore(event mercure.Event, reason string) {
	if s.opts.Strategy == StrategyDeletionAware {
		return
	}
	s.logger.Warn("Ignoring hub event",
		"reason", reason,
		"event_type", event.Type,
		"last_event_id", event.ID,
	)
}
