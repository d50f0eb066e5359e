package topics

import (
	"slices"
	"strings"
)

// Wildcard subscribes to every topic the hub publishes.
const Wildcard = "*"

// Set is a duplicate-free collection of topics. Insertion order is kept for
// diagnostics and URL building; equality ignores it.
type Set []string

// Normalize canonicalises topics: duplicates and empty strings are dropped and
// a set containing the wildcard collapses to {"*"}.
func Normalize(topics ...string) Set {
	if slices.Contains(topics, Wildcard) {
		return Set{Wildcard}
	}

	set := make(Set, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		set = append(set, t)
	}
	return set
}

// Compare orders two topic lists regardless of element order: both are sorted
// and compared element-wise, a shorter common prefix sorting first. It returns
// 0 when both hold the same topics.
func Compare(a, b []string) int {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Compare(x, y)
}

// Equal reports whether s and other hold the same topics.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && Compare(s, other) == 0
}

// Contains reports whether topic is a member of s.
func (s Set) Contains(topic string) bool {
	return slices.Contains(s, topic)
}

// IsEmpty reports whether s has no topics.
func (s Set) IsEmpty() bool {
	return len(s) == 0
}

// Union returns s extended with topics, normalised.
func (s Set) Union(topics ...string) Set {
	return Normalize(append(slices.Clone(s), topics...)...)
}

// Without returns s minus the given topics.
func (s Set) Without(topics ...string) Set {
	out := make(Set, 0, len(s))
	for _, t := range s {
		if !slices.Contains(topics, t) {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns a copy of the topics as a plain slice.
func (s Set) Strings() []string {
	return slices.Clone([]string(s))
}

// Join concatenates the topics with sep.
func (s Set) Join(sep string) string {
	return strings.Join(s, sep)
}

// String joins the topics with commas, the form used on the wire.
func (s Set) String() string {
	return s.Join(",")
}
