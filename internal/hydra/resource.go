package hydra

import (
	"maps"

	"github.com/nfrund/herald/internal/mercure"
)

// Resource is anything addressable by an IRI.
type Resource interface {
	ResourceID() string
}

// Document is a JSON-LD object as pushed by the hub.
type Document map[string]any

// ResourceID returns the document's "@id".
func (d Document) ResourceID() string {
	id, _ := d["@id"].(string)
	return id
}

// Handler receives the decoded payload of an event routed to one resource.
type Handler func(doc Document, event mercure.Event) error

// Listener wraps a Handler. Listeners are compared by pointer.
type Listener struct {
	fn Handler
}

// NewListener returns a listener calling fn.
func NewListener(fn Handler) *Listener {
	return &Listener{fn: fn}
}

// ResourceListener builds the handler that keeps a synced resource current.
type ResourceListener func(resource Resource) Handler

// MergeResource is the default ResourceListener. A Document receives the
// update's keys; any other resource has the raw payload unmarshalled onto it,
// so it must be a pointer.
func MergeResource(resource Resource) Handler {
	return func(doc Document, event mercure.Event) error {
		if d, ok := resource.(Document); ok {
			maps.Copy(d, doc)
			return nil
		}
		return event.Decode(resource)
	}
}
