package topics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nfrund/herald/internal/uritemplate"
)

var topicNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Definition describes a named family of topics.
type Definition struct {
	Name        string `yaml:"name" json:"name"`               // Unique identifier, e.g. "book" or "shop.order"
	Description string `yaml:"description" json:"description"` // Human-readable description
	Pattern     string `yaml:"pattern" json:"pattern"`         // RFC 6570 URI template
	Example     string `yaml:"example,omitempty" json:"example,omitempty"`
}

// Topic is a validated Definition with its compiled pattern.
type Topic struct {
	def      Definition
	template *uritemplate.Template
}

// Define validates def and compiles its pattern.
func Define(def Definition) (*Topic, error) {
	if !topicNameRegex.MatchString(def.Name) {
		return nil, &Error{
			Type:    ErrorValidationFailed,
			Topic:   def.Name,
			Message: "topic name must be lowercase dot-separated identifiers, e.g. 'shop.order'",
		}
	}
	if strings.TrimSpace(def.Description) == "" {
		return nil, &Error{Type: ErrorValidationFailed, Topic: def.Name, Message: "topic is missing a description"}
	}
	if strings.TrimSpace(def.Pattern) == "" {
		return nil, &Error{Type: ErrorInvalidPattern, Topic: def.Name, Message: "topic is missing a pattern"}
	}

	tpl, err := uritemplate.Compile(def.Pattern)
	if err != nil {
		return nil, &Error{Type: ErrorInvalidPattern, Topic: def.Name, Message: "topic pattern does not compile", Cause: err}
	}

	if def.Example != "" && !tpl.Matches(def.Example) {
		return nil, &Error{
			Type:    ErrorValidationFailed,
			Topic:   def.Name,
			Message: fmt.Sprintf("example %q does not match pattern %q", def.Example, def.Pattern),
		}
	}

	return &Topic{def: def, template: tpl}, nil
}

// MustDefine is like Define but panics on an invalid definition. Meant for
// package-level topic variables.
func MustDefine(def Definition) *Topic {
	t, err := Define(def)
	if err != nil {
		panic(fmt.Sprintf("failed to define topic: %v", err))
	}
	return t
}

// Name returns the topic's name
func (t *Topic) Name() string {
	return t.def.Name
}

// Description returns the topic's description
func (t *Topic) Description() string {
	return t.def.Description
}

// Pattern returns the topic's URI template
func (t *Topic) Pattern() string {
	return t.def.Pattern
}

// Example returns an example concrete topic
func (t *Topic) Example() string {
	return t.def.Example
}

// Definition returns a copy of the source definition.
func (t *Topic) Definition() Definition {
	return t.def
}

// Template returns the compiled pattern.
func (t *Topic) Template() *uritemplate.Template {
	return t.template
}

// Format expands the pattern with vars. Every variable referenced by the
// pattern must be present.
func (t *Topic) Format(vars map[string]any) (string, error) {
	var missing []string
	for _, v := range t.template.Variables() {
		if val, ok := vars[v.Name]; !ok || val == nil {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return "", &Error{
			Type:    ErrorValidationFailed,
			Topic:   t.def.Name,
			Message: "missing required parameters in topic format: " + strings.Join(missing, ", "),
		}
	}
	return t.template.Expand(vars), nil
}

// Matches reports whether a concrete topic has this topic's shape.
func (t *Topic) Matches(topic string) bool {
	return t.template.Matches(topic)
}

// String returns the topic name for easy debugging
func (t *Topic) String() string {
	return t.def.Name
}
