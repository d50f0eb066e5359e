// Package shell is the interactive herald-cli session.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/nfrund/herald/cmd/herald-cli/internal/display"
	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/transport"
)

// Session opens connections with the configured credentials.
type Session interface {
	Connect(ctx context.Context) (transport.Conn, error)
	Reconnect(ctx context.Context) (transport.Conn, error)
}

// Shell interprets commands against one hub client.
type Shell struct {
	client  *mercure.Client
	session Session
	out     io.Writer
	printer *mercure.Listener
}

// New returns a shell printing "message" events to out.
func New(client *mercure.Client, session Session, out io.Writer) *Shell {
	s := &Shell{client: client, session: session, out: out}
	s.printer = mercure.NewListener(func(e mercure.Event) {
		if err := display.Event(s.out, e); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	})
	client.On(mercure.DefaultEventType, s.printer)
	return s
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "herald> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if !s.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the shell should go on.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "subscribe", "sub":
		err = s.cmdSubscribe(args)
	case "unsubscribe", "unsub":
		err = s.cmdUnsubscribe(ctx, args)
	case "connect":
		err = s.report(s.session.Connect(ctx))
	case "reconnect":
		err = s.report(s.session.Reconnect(ctx))
	case "disconnect":
		err = s.client.Disconnect()
		if err == nil {
			fmt.Fprintln(s.out, "disconnected")
		}
	case "on":
		s.cmdOn(args, true)
	case "off":
		s.cmdOn(args, false)
	case "status":
		s.printStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return true
}

func (s *Shell) cmdSubscribe(args []string) error {
	replace := false
	var list []string
	for _, a := range args {
		if a == "-r" || a == "--replace" {
			replace = true
			continue
		}
		list = append(list, a)
	}
	if len(list) == 0 {
		return errors.New("usage: subscribe [-r] <topic>...")
	}
	s.client.Subscribe(list, mercure.WithAppend(!replace))
	fmt.Fprintf(s.out, "desired topics: %s (run 'connect' to apply)\n", s.client.Topics())
	return nil
}

func (s *Shell) cmdUnsubscribe(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: unsubscribe <topic>...")
	}
	return s.report(s.client.Unsubscribe(ctx, args...))
}

func (s *Shell) cmdOn(eventTypes []string, attach bool) {
	for _, t := range eventTypes {
		var changed bool
		if attach {
			changed = s.client.On(t, s.printer)
		} else {
			changed = s.client.Off(t, s.printer)
		}
		if !changed {
			fmt.Fprintf(s.out, "%s: unchanged\n", t)
		}
	}
}

func (s *Shell) report(conn transport.Conn, err error) error {
	if err != nil {
		return err
	}
	if conn == nil {
		fmt.Fprintln(s.out, "disconnected")
		return nil
	}
	fmt.Fprintf(s.out, "connected to %s\n", s.client.AppliedTopics())
	return nil
}

func (s *Shell) printStatus() {
	fmt.Fprintf(s.out, "connected:     %t\n", s.client.Connected())
	fmt.Fprintf(s.out, "topics:        %s\n", s.client.Topics())
	fmt.Fprintf(s.out, "applied:       %s\n", s.client.AppliedTopics())
	fmt.Fprintf(s.out, "last event id: %s\n", s.client.LastEventID())
	fmt.Fprintf(s.out, "url:           %s\n", s.client.URL())
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
herald commands:
  subscribe [-r] <topic>...  Add topics to the desired set (-r replaces it)
  unsubscribe <topic>...     Remove topics and apply the change
  connect                    Apply the desired topics
  reconnect                  Open a fresh connection
  disconnect                 Close the connection, keeping the topics
  on|off <event-type>...     Print or stop printing an event type
  status                     Show the subscription state
  quit                       Leave the shell`)
}
