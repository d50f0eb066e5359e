package mercure

import (
	"encoding/json"
	"slices"

	"github.com/nfrund/herald/internal/transport"
)

// DefaultEventType is the type of events whose frame names no type.
const DefaultEventType = "message"

// Event is a hub event delivered to listeners.
type Event struct {
	Type string
	ID   string
	Data string
}

func eventFromRaw(raw transport.RawEvent) Event {
	return Event{Type: raw.Type, ID: raw.ID, Data: raw.Data}
}

// Decode unmarshals the JSON payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal([]byte(e.Data), v)
}

// Listener wraps a callback. Registries compare listeners by pointer, so keep
// the *Listener around to remove it later.
type Listener struct {
	fn func(Event)
}

// NewListener returns a listener calling fn.
func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

// registry maps event types to ordered, duplicate-free listener lists. It is
// not safe for concurrent use; the client guards it.
type registry struct {
	types  []string
	byType map[string][]*Listener
}

func newRegistry() *registry {
	return &registry{byType: make(map[string][]*Listener)}
}

// add appends l unless it is already registered for eventType.
func (r *registry) add(eventType string, l *Listener) bool {
	list, known := r.byType[eventType]
	if slices.Contains(list, l) {
		return false
	}
	if !known {
		r.types = append(r.types, eventType)
	}
	r.byType[eventType] = append(list, l)
	return true
}

func (r *registry) remove(eventType string, l *Listener) bool {
	list := r.byType[eventType]
	i := slices.Index(list, l)
	if i < 0 {
		return false
	}
	r.byType[eventType] = slices.Delete(slices.Clone(list), i, i+1)
	return true
}

// list returns a copy safe to iterate without the client lock.
func (r *registry) list(eventType string) []*Listener {
	return slices.Clone(r.byType[eventType])
}

// eventTypes returns every type that ever had a listener, in first
// registration order.
func (r *registry) eventTypes() []string {
	return slices.Clone(r.types)
}
