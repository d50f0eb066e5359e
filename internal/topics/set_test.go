package topics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nfrund/herald/internal/topics"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  topics.Set
	}{
		{name: "empty", input: nil, want: topics.Set{}},
		{name: "drops duplicates keeping order", input: []string{"b", "a", "b"}, want: topics.Set{"b", "a"}},
		{name: "drops empty strings", input: []string{"", "a", ""}, want: topics.Set{"a"}},
		{name: "wildcard collapses", input: []string{"a", "*", "b"}, want: topics.Set{"*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, topics.Normalize(tt.input...))
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, topics.Compare([]string{"a", "b"}, []string{"b", "a"}))
	assert.Equal(t, 0, topics.Compare(nil, []string{}))
	assert.Equal(t, -1, topics.Compare([]string{"a"}, []string{"a", "b"}))
	assert.Equal(t, 1, topics.Compare([]string{"c"}, []string{"a", "b"}))
}

func TestSet_Operations(t *testing.T) {
	s := topics.Normalize("a", "b")

	assert.True(t, s.Equal(topics.Set{"b", "a"}))
	assert.False(t, s.Equal(topics.Set{"a"}))
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.False(t, s.IsEmpty())
	assert.True(t, topics.Set{}.IsEmpty())

	assert.Equal(t, topics.Set{"a", "b", "c"}, s.Union("c", "a"))
	assert.Equal(t, topics.Set{"*"}, s.Union("*"))
	assert.Equal(t, topics.Set{"b"}, s.Without("a", "z"))
	assert.Equal(t, "a,b", s.String())

	plain := s.Strings()
	plain[0] = "mutated"
	assert.Equal(t, "a", s[0], "Strings should return a copy")
}
