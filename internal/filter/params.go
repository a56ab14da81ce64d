package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
)

// Params is the parameter table of one compiled query.
// Names are allocated from a counter and never reused, so two leaves holding the
// same literal still get distinct placeholders.
type Params struct {
	values  map[string]any
	counter int
}

// NewParams creates an empty parameter table
func NewParams() *Params {
	return &Params{
		values: make(map[string]any),
	}
}

// Add records a copy of value under a fresh name and returns the name (without
// the $ prefix). Later changes to the caller's slices or maps do not reach the table.
func (p *Params) Add(value any) string {
	name := fmt.Sprintf("p%d", p.counter)
	p.counter++
	p.values[name] = CopyValue(value)
	return name
}

// CopyValue returns v with every slice and map copied recursively, keeping
// their types
func CopyValue(v any) any {
	if v == nil {
		return nil
	}
	return copyReflect(reflect.ValueOf(v)).Interface()
}

func copyReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyReflect(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(copyReflect(rv.Elem()))
		return out
	}
	return rv
}

// Placeholder records value and returns its $-prefixed placeholder
func (p *Params) Placeholder(value any) string {
	return "$" + p.Add(value)
}

// Get returns the literal bound to name
func (p *Params) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Len returns the number of bound parameters
func (p *Params) Len() int {
	return len(p.values)
}

// Names returns the parameter names in allocation order
func (p *Params) Names() []string {
	names := make([]string, 0, len(p.values))
	for name := range p.values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return paramIndex(names[i]) < paramIndex(names[j])
	})
	return names
}

// Map returns a copy of the table suitable for handing to a driver
func (p *Params) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func paramIndex(name string) int {
	var i int
	fmt.Sscanf(name, "p%d", &i)
	return i
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier validates that a string can be safely used as a Cypher identifier
// (property key, label, relationship type, variable). Only letters, digits and
// underscores are allowed, and it must not start with a digit.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// QuoteAlias returns s usable as a RETURN alias, backtick-escaping it when it is
// not a plain identifier.
func QuoteAlias(s string) string {
	if IsValidIdentifier(s) {
		return s
	}
	escaped := make([]byte, 0, len(s)+2)
	escaped = append(escaped, '`')
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			escaped = append(escaped, '`')
		}
		escaped = append(escaped, s[i])
	}
	escaped = append(escaped, '`')
	return string(escaped)
}
