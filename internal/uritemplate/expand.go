package uritemplate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// operator describes how an expression renders and what it matches.
type operator struct {
	first         string
	sep           string
	named         bool
	ifEmpty       string
	allowReserved bool
	pattern       string
}

var operators = map[byte]operator{
	0:   {first: "", sep: ",", pattern: `[^/]+`},
	'+': {first: "", sep: ",", allowReserved: true, pattern: `.+`},
	'#': {first: "#", sep: ",", allowReserved: true, pattern: `#.+`},
	'.': {first: ".", sep: ".", pattern: `\..+`},
	'/': {first: "/", sep: "/", pattern: `/[^/]*`},
	';': {first: ";", sep: ";", named: true, pattern: `;.+`},
	'?': {first: "?", sep: "&", named: true, ifEmpty: "=", pattern: `\?[^#]*`},
	'&': {first: "&", sep: "&", named: true, ifEmpty: "=", pattern: `&.+`},
}

// Expand substitutes vars into the template.
//
// Variables that are absent, nil, or empty lists and maps are undefined and
// contribute nothing, including the operator prefix. Map values are rendered
// in sorted key order.
func (t *Template) Expand(vars map[string]any) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.expr == nil {
			b.WriteString(p.literal)
			continue
		}
		p.expr.expand(&b, vars)
	}
	return b.String()
}

func (e *expression) expand(b *strings.Builder, vars map[string]any) {
	first := true
	for _, spec := range e.vars {
		v, ok := resolve(vars[spec.Name])
		if !ok {
			continue
		}
		if first {
			b.WriteString(e.op.first)
			first = false
		} else {
			b.WriteString(e.op.sep)
		}
		e.expandValue(b, spec, v)
	}
}

func (e *expression) expandValue(b *strings.Builder, spec VarSpec, v value) {
	op := e.op
	switch {
	case v.list == nil && v.pairs == nil:
		s := v.scalar
		if spec.Prefix > 0 && v.isString {
			s = truncate(s, spec.Prefix)
		}
		e.writeNamed(b, spec.Name, s)

	case v.list != nil && !spec.Explode:
		if op.named {
			b.WriteString(spec.Name)
			b.WriteByte('=')
		}
		for i, item := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encode(item, op.allowReserved))
		}

	case v.list != nil:
		for i, item := range v.list {
			if i > 0 {
				b.WriteString(op.sep)
			}
			e.writeNamed(b, spec.Name, item)
		}

	case !spec.Explode:
		if op.named {
			b.WriteString(spec.Name)
			b.WriteByte('=')
		}
		for i, kv := range v.pairs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encode(kv[0], op.allowReserved))
			b.WriteByte(',')
			b.WriteString(encode(kv[1], op.allowReserved))
		}

	default:
		for i, kv := range v.pairs {
			if i > 0 {
				b.WriteString(op.sep)
			}
			b.WriteString(encode(kv[0], op.allowReserved))
			if kv[1] == "" && op.named {
				b.WriteString(op.ifEmpty)
				continue
			}
			b.WriteByte('=')
			b.WriteString(encode(kv[1], op.allowReserved))
		}
	}
}

// writeNamed writes a single value, prefixed by "name=" for named operators.
func (e *expression) writeNamed(b *strings.Builder, name, s string) {
	if e.op.named {
		b.WriteString(name)
		if s == "" {
			b.WriteString(e.op.ifEmpty)
			return
		}
		b.WriteByte('=')
	}
	b.WriteString(encode(s, e.op.allowReserved))
}

// value is a variable value classified as scalar, list, or associative array.
type value struct {
	scalar   string
	isString bool
	list     []string
	pairs    [][2]string
}

// resolve classifies v. ok is false when v is undefined.
func resolve(v any) (value, bool) {
	if v == nil {
		return value{}, false
	}
	switch s := v.(type) {
	case string:
		return value{scalar: s, isString: true}, true
	case []byte:
		return value{scalar: string(s), isString: true}, true
	case fmt.Stringer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return value{}, false
		}
		return value{scalar: s.String(), isString: true}, true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return value{}, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return value{scalar: rv.String(), isString: true}, true

	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return value{}, false
		}
		list := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			list = append(list, fmt.Sprint(rv.Index(i).Interface()))
		}
		return value{list: list}, true

	case reflect.Map:
		if rv.Len() == 0 {
			return value{}, false
		}
		pairs := make([][2]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, [2]string{
				fmt.Sprint(iter.Key().Interface()),
				fmt.Sprint(iter.Value().Interface()),
			})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
		return value{pairs: pairs}, true
	}

	return value{scalar: fmt.Sprint(rv.Interface())}, true
}

// truncate keeps the first n characters of s. Invalid UTF-8 bytes count as
// one character each and are kept as they are.
func truncate(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
