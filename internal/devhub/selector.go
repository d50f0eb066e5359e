package devhub

import (
	"strings"

	"github.com/nfrund/herald/internal/topics"
	"github.com/nfrund/herald/internal/uritemplate"
)

// selector decides which topics a subscriber receives. Each entry is the
// wildcard, an exact topic or a URI template.
type selector struct {
	all       bool
	exact     map[string]bool
	templates []*uritemplate.Template
}

func newSelector(raw []string) selector {
	s := selector{exact: make(map[string]bool)}
	for _, t := range topics.Normalize(raw...) {
		if t == topics.Wildcard {
			s.all = true
			continue
		}
		s.exact[t] = true
		if tpl, err := uritemplate.Compile(t); err == nil && len(tpl.Variables()) > 0 {
			s.templates = append(s.templates, tpl)
		}
	}
	return s
}

func (s selector) matches(topic string) bool {
	if s.all || s.exact[topic] {
		return true
	}
	for _, tpl := range s.templates {
		if tpl.Matches(topic) {
			return true
		}
	}
	return false
}

func (s selector) matchesAny(topicList []string) bool {
	for _, t := range topicList {
		if s.matches(t) {
			return true
		}
	}
	return false
}

// splitTopics splits comma-joined topic parameters. Commas inside template
// expressions such as {?a,b} do not split.
func splitTopics(values []string) []string {
	var out []string
	for _, v := range values {
		depth, start := 0, 0
		for i, r := range v {
			switch r {
			case '{':
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					out = append(out, strings.TrimSpace(v[start:i]))
					start = i + 1
				}
			}
		}
		out = append(out, strings.TrimSpace(v[start:]))
	}
	return out
}
