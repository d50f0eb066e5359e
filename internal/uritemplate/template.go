// Package uritemplate compiles RFC 6570 URI templates.
//
// A compiled Template offers two independent read-only views over the same
// parsed structure: Expand substitutes variables to build a concrete URI, and
// Matches reports whether a concrete URI conforms to the template. A topic
// template can therefore be used both to construct a subscription topic and to
// recognise which resource an incoming event belongs to, without re-parsing.
//
// Usage:
//
//	tpl := uritemplate.MustCompile("/books/{id}{?fields*}")
//	tpl.Expand(map[string]any{"id": 7, "fields": []string{"title", "isbn"}})
//	// "/books/7?fields=title&fields=isbn"
//	tpl.Matches("/books/7") // true
package uritemplate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VarSpec is a single variable reference inside an expression.
type VarSpec struct {
	Name    string
	Explode bool
	// Prefix is the maximum number of characters kept from a string value.
	// Zero means no prefix modifier.
	Prefix int
}

type expression struct {
	raw  string
	op   operator
	vars []VarSpec
}

// part is either literal text or an expression.
type part struct {
	literal string
	expr    *expression
}

// Template is an immutable compiled URI template. It is safe for concurrent use.
type Template struct {
	raw     string
	parts   []part
	pattern *regexp.Regexp
}

// Compile parses a template string.
//
// Braces that do not form a well-formed expression are kept as literal text.
// An expression combining the explode modifier with a prefix, or carrying a
// prefix that is not an integer in 1..9999, is rejected, as is a variable name
// outside the varname grammar.
func Compile(template string) (*Template, error) {
	t := &Template{raw: template}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	rest := template
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			lit.WriteString(rest)
			break
		}
		lit.WriteString(rest[:open])
		rest = rest[open:]

		end := strings.IndexAny(rest[1:], "{}")
		if end < 0 {
			// No closing brace anywhere: the remainder is literal.
			lit.WriteString(rest)
			break
		}
		end++
		if rest[end] == '{' {
			// Nested opening brace; the first one is literal.
			lit.WriteString(rest[:end])
			rest = rest[end:]
			continue
		}

		raw := rest[:end+1]
		expr, ok, err := parseExpression(raw)
		if err != nil {
			return nil, &Error{Template: template, Expression: raw, Err: err}
		}
		if !ok {
			lit.WriteString(raw)
		} else {
			flush()
			t.parts = append(t.parts, part{expr: expr})
		}
		rest = rest[end+1:]
	}
	flush()

	pattern, err := regexp.Compile(t.matchPattern())
	if err != nil {
		return nil, &Error{Template: template, Err: err}
	}
	t.pattern = pattern

	return t, nil
}

// MustCompile is like Compile but panics if the template cannot be compiled.
// It simplifies safe initialization of global variables.
func MustCompile(template string) *Template {
	t, err := Compile(template)
	if err != nil {
		panic(err)
	}
	return t
}

// parseExpression parses a braced expression. ok is false when the text is
// not a usable expression and should be kept verbatim.
func parseExpression(raw string) (*expression, bool, error) {
	body := raw[1 : len(raw)-1]
	if body == "" {
		return nil, false, nil
	}

	op := operators[0]
	if o, found := operators[body[0]]; found {
		op = o
		body = body[1:]
	}
	if body == "" {
		return nil, false, nil
	}

	expr := &expression{raw: raw, op: op}
	for _, spec := range strings.Split(body, ",") {
		v := VarSpec{Name: spec}
		if name, length, found := strings.Cut(spec, ":"); found {
			if strings.HasSuffix(name, "*") || strings.HasSuffix(length, "*") {
				return nil, false, ErrExplodeWithPrefix
			}
			n, err := strconv.Atoi(length)
			if err != nil || n < 1 || n > 9999 {
				return nil, false, ErrInvalidPrefix
			}
			v.Name = name
			v.Prefix = n
		} else if strings.HasSuffix(spec, "*") {
			v.Name = strings.TrimSuffix(spec, "*")
			v.Explode = true
		}
		if v.Name == "" {
			return nil, false, nil
		}
		if !validVarName(v.Name) {
			return nil, false, fmt.Errorf("%w: %q", ErrInvalidVarName, v.Name)
		}
		expr.vars = append(expr.vars, v)
	}

	return expr, true, nil
}

// matchPattern builds the anchored regular expression used by Matches.
func (t *Template) matchPattern() string {
	var b strings.Builder
	b.WriteByte('^')
	for _, p := range t.parts {
		if p.expr == nil {
			b.WriteString(regexp.QuoteMeta(p.literal))
			continue
		}
		b.WriteString("(?:")
		b.WriteString(p.expr.op.pattern)
		b.WriteByte(')')
	}
	b.WriteByte('$')
	return b.String()
}

// Matches reports whether candidate conforms to the whole template.
func (t *Template) Matches(candidate string) bool {
	return t.pattern.MatchString(candidate)
}

// Pattern returns the regular expression Matches uses.
func (t *Template) Pattern() string {
	return t.pattern.String()
}

// Variables returns the variable references in template order.
func (t *Template) Variables() []VarSpec {
	var vars []VarSpec
	for _, p := range t.parts {
		if p.expr != nil {
			vars = append(vars, p.expr.vars...)
		}
	}
	return vars
}

// String returns the source template.
func (t *Template) String() string {
	return t.raw
}

// validVarName reports whether name is a varname: varchars (ALPHA, DIGIT, "_"
// or a percent-encoded triplet) optionally separated by single dots.
func validVarName(name string) bool {
	if name[0] == '.' || name[len(name)-1] == '.' || strings.Contains(name, "..") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '.' || c == '_':
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '%' && i+2 < len(name) && isHex(name[i+1]) && isHex(name[i+2]):
			i += 2
		default:
			return false
		}
	}
	return true
}
