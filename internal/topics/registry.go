package topics

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry is a named catalog of topic definitions.
type Registry struct {
	topics map[string]*Topic
	mu     sync.RWMutex
}

// NewRegistry creates a new, empty topic registry
func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*Topic),
	}
}

// Register adds a topic to the registry
func (r *Registry) Register(topic *Topic) error {
	if topic == nil {
		return &Error{Type: ErrorValidationFailed, Message: "cannot register nil topic"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := topic.Name()
	if _, exists := r.topics[name]; exists {
		return &Error{
			Type:    ErrorDuplicateRegistration,
			Topic:   name,
			Message: "topic already registered: " + name,
		}
	}

	r.topics[name] = topic
	return nil
}

// MustRegister registers a topic and panics if registration fails
func (r *Registry) MustRegister(topic *Topic) {
	if err := r.Register(topic); err != nil {
		panic(fmt.Sprintf("failed to register topic: %v", err))
	}
}

// Get returns a topic by name
func (r *Registry) Get(name string) (*Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topic, exists := r.topics[name]
	return topic, exists
}

// Lookup is like Get but returns a typed not-found error.
func (r *Registry) Lookup(name string) (*Topic, error) {
	topic, ok := r.Get(name)
	if !ok {
		return nil, &Error{Type: ErrorTopicNotFound, Topic: name, Message: "topic not found: " + name}
	}
	return topic, nil
}

// List returns the registered topics sorted by name
func (r *Registry) List() []*Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]*Topic, 0, len(r.topics))
	for _, topic := range r.topics {
		topics = append(topics, topic)
	}
	slices.SortFunc(topics, func(a, b *Topic) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return topics
}

// Match returns every registered topic whose pattern matches the concrete
// topic, sorted by name.
func (r *Registry) Match(topic string) []*Topic {
	var matched []*Topic
	for _, t := range r.List() {
		if t.Matches(topic) {
			matched = append(matched, t)
		}
	}
	return matched
}

// Count returns the number of registered topics
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.topics)
}

// Reset removes all registered topics
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.topics = make(map[string]*Topic)
}
