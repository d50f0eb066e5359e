// Package reconcile decides what to do with the open hub connection when the
// requested topic set changes.
package reconcile

import (
	"errors"

	"github.com/nfrund/herald/internal/topics"
)

// ErrNoTopics is returned when a connection is requested without topics and
// none is open. The hub URL needs at least one topic.
var ErrNoTopics = errors.New("no topics to subscribe to")

// Decision is the outcome of comparing applied and desired topic sets.
type Decision int

const (
	// Reuse keeps the open connection as is.
	Reuse Decision = iota
	// Reopen closes the open connection and opens one for the desired set.
	Reopen
	// CloseOnly closes the open connection without opening another.
	CloseOnly
	// OpenFresh opens a connection where none exists.
	OpenFresh
)

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case Reopen:
		return "reopen"
	case CloseOnly:
		return "close_only"
	case OpenFresh:
		return "open_fresh"
	default:
		return "unknown"
	}
}

// Opens reports whether the decision requires a new connection.
func (d Decision) Opens() bool {
	return d == Reopen || d == OpenFresh
}

// Closes reports whether the decision requires closing the open connection.
func (d Decision) Closes() bool {
	return d == Reopen || d == CloseOnly
}

// Decide compares the applied set with the desired one. Set equality ignores
// order.
func Decide(current, desired topics.Set, open bool) (Decision, error) {
	switch {
	case !open && desired.IsEmpty():
		return 0, ErrNoTopics
	case !open:
		return OpenFresh, nil
	case desired.IsEmpty():
		return CloseOnly, nil
	case topics.Compare(current, desired) == 0:
		return Reuse, nil
	default:
		return Reopen, nil
	}
}
