package devhub

import (
	"fmt"
	"io"
	"strings"
)

// writeEvent writes u as one SSE frame. Multi-line data becomes one data
// field per line.
func writeEvent(w io.Writer, u Update) error {
	var b strings.Builder
	if u.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", u.ID)
	}
	if u.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", u.Type)
	}
	for _, line := range strings.Split(u.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ":%s\n\n", text)
	return err
}
