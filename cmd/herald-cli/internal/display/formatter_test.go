package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/topics"
)

func sampleTopics() []*topics.Topic {
	return []*topics.Topic{
		topics.MustDefine(topics.Definition{
			Name:        "book",
			Description: "A single book",
			Pattern:     "https://example.com/books/{id}",
			Example:     "https://example.com/books/1",
		}),
		topics.MustDefine(topics.Definition{
			Name:        "search",
			Description: "Search results for a query string that is rather long to display",
			Pattern:     "/search{?q,lang}",
		}),
	}
}

func TestTopicsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TopicsTable(&buf, sampleTopics()))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "https://example.com/books/{id}")
	assert.Contains(t, out, "Search results for a query string tha...")
	assert.Contains(t, out, "-\n")

	buf.Reset()
	require.NoError(t, TopicsTable(&buf, nil))
	assert.Contains(t, buf.String(), "No topics found")
}

func TestTopicsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TopicsJSON(&buf, sampleTopics()[:1]))

	assert.JSONEq(t, `{
		"topics": [{
			"name": "book",
			"description": "A single book",
			"pattern": "https://example.com/books/{id}",
			"example": "https://example.com/books/1",
			"variables": ["id"]
		}],
		"count": 1
	}`, buf.String())
}

func TestEvent(t *testing.T) {
	tests := []struct {
		name  string
		event mercure.Event
		want  string
	}{
		{
			name:  "json data",
			event: mercure.Event{ID: "1", Type: "message", Data: "{\"@id\": \"/books/1\"}"},
			want:  `{"id":"1","type":"message","data":{"@id":"/books/1"}}`,
		},
		{
			name:  "text data",
			event: mercure.Event{ID: "2", Type: "ping", Data: "hello"},
			want:  `{"id":"2","type":"ping","data":"hello"}`,
		},
		{
			name:  "empty data",
			event: mercure.Event{Type: "message"},
			want:  `{"type":"message","data":""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Event(&buf, tt.event))
			assert.JSONEq(t, tt.want, buf.String())
		})
	}
}

func TestParseVars(t *testing.T) {
	vars, err := ParseVars([]string{"id=7", "tag=a", "tag=b", "tag=c", "q=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":  "7",
		"tag": []string{"a", "b", "c"},
		"q":   "x=y",
	}, vars)

	_, err = ParseVars([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseVars([]string{"=x"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
