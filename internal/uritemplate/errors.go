package uritemplate

import (
	"errors"
	"fmt"
)

var (
	// ErrExplodeWithPrefix is returned when a varspec carries both "*" and ":N".
	ErrExplodeWithPrefix = errors.New("explode modifier cannot be combined with a prefix")

	// ErrInvalidPrefix is returned when a prefix length is not an integer in 1..9999.
	ErrInvalidPrefix = errors.New("prefix length must be an integer between 1 and 9999")

	// ErrInvalidVarName is returned for a variable name outside the RFC 6570
	// varname grammar.
	ErrInvalidVarName = errors.New("invalid variable name")
)

// Error reports a template that could not be compiled.
type Error struct {
	Template   string
	Expression string
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("uritemplate: %q: %v", e.Template, e.Err)
	}
	return fmt.Sprintf("uritemplate: %q: expression %s: %v", e.Template, e.Expression, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}
