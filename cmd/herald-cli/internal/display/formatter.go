// Package display renders catalog topics and hub events for the terminal.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/topics"
)

// TopicDisplay represents a topic for display purposes
type TopicDisplay struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Pattern     string   `json:"pattern"`
	Example     string   `json:"example,omitempty"`
	Variables   []string `json:"variables"`
}

func toDisplay(topic *topics.Topic) TopicDisplay {
	vars := topic.Template().Variables()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return TopicDisplay{
		Name:        topic.Name(),
		Description: topic.Description(),
		Pattern:     topic.Pattern(),
		Example:     topic.Example(),
		Variables:   names,
	}
}

// TopicsTable writes topics as an aligned table.
func TopicsTable(w io.Writer, list []*topics.Topic) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "NAME\tPATTERN\tDESCRIPTION\tEXAMPLE")
	fmt.Fprintln(tw, "----\t-------\t-----------\t-------")

	if len(list) == 0 {
		fmt.Fprintln(tw, "No topics found")
	}
	for _, topic := range list {
		example := topic.Example()
		if example == "" {
			example = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			topic.Name(),
			topic.Pattern(),
			truncate(topic.Description(), 40),
			truncate(example, 40))
	}
	return tw.Flush()
}

// TopicsJSON writes topics with a count.
func TopicsJSON(w io.Writer, list []*topics.Topic) error {
	displays := make([]TopicDisplay, len(list))
	for i, topic := range list {
		displays[i] = toDisplay(topic)
	}

	output := struct {
		Topics []TopicDisplay `json:"topics"`
		Count  int            `json:"count"`
	}{
		Topics: displays,
		Count:  len(displays),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// EventLine is the JSON line printed for each hub event.
type EventLine struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event writes e as one JSON line. Data that is valid JSON is embedded as
// is, anything else as a string.
func Event(w io.Writer, e mercure.Event) error {
	line := EventLine{ID: e.ID, Type: e.Type, Data: json.RawMessage(e.Data)}
	if !json.Valid(line.Data) {
		quoted, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		line.Data = quoted
	}
	return json.NewEncoder(w).Encode(line)
}

// ParseVars turns key=value arguments into template variables. A key given
// more than once becomes a list.
func ParseVars(args []string) (map[string]any, error) {
	vars := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", arg)
		}
		switch prev := vars[key].(type) {
		case nil:
			vars[key] = value
		case string:
			vars[key] = []string{prev, value}
		case []string:
			vars[key] = append(prev, value)
		}
	}
	return vars, nil
}

// truncate truncates a string to the specified length with ellipsis
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
