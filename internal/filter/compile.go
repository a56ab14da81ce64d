package filter

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/rohankatakam/graphogm/internal/errors"
)

// Context is the kind of entity a filter is evaluated against.
type Context int

const (
	NodeContext Context = iota
	RelationshipContext
)

// Option configures a single Compile call
type Option func(*scope)

// ForRelationships compiles the filter against a relationship: $type is allowed,
// $labels is not.
func ForRelationships() Option {
	return func(s *scope) { s.ctx = RelationshipContext }
}

// AllowMultiHop accepts a $multiHop key at the root. Only the connected-node
// traversal passes this.
func AllowMultiHop() Option {
	return func(s *scope) { s.multiHop = true }
}

type scope struct {
	ctx      Context
	root     bool
	multiHop bool
	// logical is set below a root-level logical operator, where $patterns
	// stays valid but $multiHop does not
	logical  bool
}

func (s scope) nested(ctx Context) scope {
	return scope{ctx: ctx}
}

func (s scope) inLogical() scope {
	return scope{ctx: s.ctx, root: s.root, logical: true}
}

// Compiler compiles filter specs into expressions. Every compilation through the
// same Compiler shares one parameter table and one pattern counter, so several
// filters can feed one query.
type Compiler struct {
	params   *Params
	patterns int
}

// NewCompiler creates a compiler writing into params (a fresh table when nil)
func NewCompiler(params *Params) *Compiler {
	if params == nil {
		params = NewParams()
	}
	return &Compiler{params: params}
}

// Params returns the parameter table the compiler writes into
func (c *Compiler) Params() *Params {
	return c.params
}

// Compile compiles spec with a fresh parameter table.
// A nil expression means the filter matches everything.
func Compile(spec Spec, opts ...Option) (Expr, *Params, error) {
	c := NewCompiler(nil)
	e, err := c.Compile(spec, opts...)
	if err != nil {
		return nil, nil, err
	}
	return e, c.params, nil
}

// Compile compiles spec into the compiler's parameter table
func (c *Compiler) Compile(spec Spec, opts ...Option) (Expr, error) {
	s := scope{ctx: NodeContext, root: true}
	for _, opt := range opts {
		opt(&s)
	}
	return c.compileSpec(spec, "", s)
}

func (c *Compiler) compileSpec(spec map[string]any, path string, s scope) (Expr, error) {
	children := make([]Expr, 0, len(spec))

	for _, key := range sortedKeys(spec) {
		value := spec[key]
		keyPath := joinPath(path, key)

		if !IsOperator(key) {
			if !IsValidIdentifier(key) {
				return nil, errors.MalformedFilterf(keyPath, "invalid property name %q (must be alphanumeric + underscore)", key)
			}
			e, err := c.compileProperty(key, value, keyPath)
			if err != nil {
				return nil, err
			}
			children = append(children, e)
			continue
		}

		switch key {
		case KeyPatterns:
			if !s.root {
				return nil, errors.NestedPatternNotAllowed(keyPath, KeyPatterns)
			}
			if s.ctx != NodeContext {
				return nil, errors.MalformedFilterf(keyPath, "%s is only valid in node filters", KeyPatterns)
			}
			patterns, err := c.compilePatterns(value, keyPath)
			if err != nil {
				return nil, err
			}
			children = append(children, patterns...)
			continue
		case KeyMultiHop:
			if !s.root || s.logical {
				return nil, errors.NestedPatternNotAllowed(keyPath, KeyMultiHop)
			}
			if !s.multiHop {
				return nil, errors.MalformedFilterf(keyPath, "%s is only valid for connected-node traversal", KeyMultiHop)
			}
			hop, err := c.compileMultiHop(value, keyPath)
			if err != nil {
				return nil, err
			}
			children = append(children, hop)
			continue
		}

		op := Operator(key)
		var (
			e   Expr
			err error
		)
		switch FamilyOf(op) {
		case FamilyLogical:
			e, err = c.compileLogical(op, value, keyPath, s.inLogical())
		case FamilyElement:
			e, err = c.compileElement(op, value, keyPath, s.ctx)
		case FamilyUnknown:
			err = errors.UnsupportedOperator(keyPath, key)
		default:
			err = errors.MalformedFilterf(keyPath, "operator %s must be applied to a property", key)
		}
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}

	return combine(And, children), nil
}

// compileProperty handles both the equality shorthand and operator mappings
func (c *Compiler) compileProperty(prop string, value any, path string) (Expr, error) {
	m, isMap := asMap(value)
	if !isMap {
		return c.compileComparison(prop, OpEq, value, path)
	}
	return c.compilePropertyOps(prop, m, path)
}

func (c *Compiler) compilePropertyOps(prop string, ops map[string]any, path string) (Expr, error) {
	if len(ops) == 0 {
		return nil, errors.MalformedFilterf(path, "empty operator mapping")
	}
	children := make([]Expr, 0, len(ops))
	for _, key := range sortedKeys(ops) {
		if !IsOperator(key) {
			return nil, errors.MalformedFilterf(joinPath(path, key), "nested documents are not supported, expected an operator")
		}
		e, err := c.compilePropertyOp(prop, Operator(key), ops[key], joinPath(path, key))
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return combine(And, children), nil
}

func (c *Compiler) compilePropertyOp(prop string, op Operator, value any, path string) (Expr, error) {
	switch FamilyOf(op) {
	case FamilyComparison:
		return c.compileComparison(prop, op, value, path)
	case FamilyString:
		s, ok := value.(string)
		if !ok {
			return nil, errors.MalformedFilterf(path, "%s expects a string, got %T", op, value)
		}
		info := stringOperators[op]
		return StringMatch{
			Property:        prop,
			Op:              op,
			Param:           c.params.Add(s),
			CaseInsensitive: info.caseInsensitive,
		}, nil
	case FamilyList:
		if op == OpSize {
			return c.compileSize(prop, value, path)
		}
		list, ok := asList(value)
		if !ok {
			return nil, errors.MalformedFilterf(path, "%s expects a list, got %T", op, value)
		}
		if err := checkScalars(list, path); err != nil {
			return nil, err
		}
		return ListPredicate{Property: prop, Op: op, Param: c.params.Add(value)}, nil
	case FamilyLogical:
		return c.compilePropertyLogical(prop, op, value, path)
	case FamilyElement:
		return nil, errors.MalformedFilterf(path, "%s cannot be applied to a property", op)
	}
	return nil, errors.UnsupportedOperator(path, string(op))
}

func (c *Compiler) compileComparison(prop string, op Operator, value any, path string) (Expr, error) {
	if op == OpExists {
		b, ok := value.(bool)
		if !ok {
			return nil, errors.MalformedFilterf(path, "%s expects a boolean, got %T", op, value)
		}
		return Comparison{Property: prop, Op: OpExists, Exists: b}, nil
	}

	if _, isMap := asMap(value); isMap {
		return nil, errors.MalformedFilterf(path, "%s expects a scalar, got a mapping", op)
	}
	if list, isList := asList(value); isList {
		if op != OpEq && op != OpNeq {
			return nil, errors.MalformedFilterf(path, "%s expects a scalar, got a list", op)
		}
		if err := checkScalars(list, path); err != nil {
			return nil, err
		}
	}

	if value == nil {
		switch op {
		case OpEq:
			return Comparison{Property: prop, Op: OpExists, Exists: false}, nil
		case OpNeq:
			return Comparison{Property: prop, Op: OpExists, Exists: true}, nil
		default:
			return nil, errors.MalformedFilterf(path, "%s cannot compare against null", op)
		}
	}

	return Comparison{Property: prop, Op: op, Param: c.params.Add(value)}, nil
}

// compileSize accepts an exact length or a mapping of comparison operators
func (c *Compiler) compileSize(prop string, value any, path string) (Expr, error) {
	if m, ok := asMap(value); ok {
		if len(m) == 0 {
			return nil, errors.MalformedFilterf(path, "%s expects a non-empty comparison", OpSize)
		}
		comps := make([]Comparison, 0, len(m))
		for _, key := range sortedKeys(m) {
			op := Operator(key)
			keyPath := joinPath(path, key)
			if _, ok := comparisonSymbols[op]; !ok {
				if FamilyOf(op) == FamilyUnknown {
					return nil, errors.UnsupportedOperator(keyPath, key)
				}
				return nil, errors.MalformedFilterf(keyPath, "%s only accepts comparison operators, got %s", OpSize, key)
			}
			if !isInteger(m[key]) {
				return nil, errors.MalformedFilterf(keyPath, "%s expects an integer length, got %T", OpSize, m[key])
			}
			comps = append(comps, Comparison{Property: prop, Op: op, Param: c.params.Add(m[key])})
		}
		return ListPredicate{Property: prop, Op: OpSize, Size: comps}, nil
	}

	if !isInteger(value) {
		return nil, errors.MalformedFilterf(path, "%s expects an integer or a comparison, got %T", OpSize, value)
	}
	return ListPredicate{
		Property: prop,
		Op:       OpSize,
		Size:     []Comparison{{Property: prop, Op: OpEq, Param: c.params.Add(value)}},
	}, nil
}

// compilePropertyLogical handles {"age": {"$or": [{"$lt": 5}, {"$gt": 10}]}}
func (c *Compiler) compilePropertyLogical(prop string, op Operator, value any, path string) (Expr, error) {
	entries, err := logicalEntries(op, value, path)
	if err != nil {
		return nil, err
	}
	children := make([]Expr, 0, len(entries))
	for i, entry := range entries {
		entryPath := indexPath(path, i)
		m, ok := asMap(entry)
		if !ok {
			return nil, errors.MalformedFilterf(entryPath, "%s expects operator mappings, got %T", op, entry)
		}
		e, err := c.compilePropertyOps(prop, m, entryPath)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return Logical{Op: logicalOps[op], Children: children}, nil
}

// compileLogical handles root-level {"$or": [spec, spec]}
func (c *Compiler) compileLogical(op Operator, value any, path string, s scope) (Expr, error) {
	entries, err := logicalEntries(op, value, path)
	if err != nil {
		return nil, err
	}
	children := make([]Expr, 0, len(entries))
	for i, entry := range entries {
		entryPath := indexPath(path, i)
		m, ok := asMap(entry)
		if !ok {
			return nil, errors.MalformedFilterf(entryPath, "%s expects filter mappings, got %T", op, entry)
		}
		e, err := c.compileSpec(m, entryPath, s)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, errors.MalformedFilterf(entryPath, "empty filter inside %s", op)
		}
		children = append(children, e)
	}
	return Logical{Op: logicalOps[op], Children: children}, nil
}

// logicalEntries normalizes the operands of a logical operator: $not takes one
// mapping (or a one-element list), the others a list of at least two.
func logicalEntries(op Operator, value any, path string) ([]any, error) {
	if op == OpNot {
		if m, ok := asMap(value); ok {
			return []any{m}, nil
		}
		list, ok := asList(value)
		if !ok || len(list) != 1 {
			return nil, errors.MalformedFilterf(path, "%s expects exactly one mapping", op)
		}
		return list, nil
	}
	list, ok := asList(value)
	if !ok {
		return nil, errors.MalformedFilterf(path, "%s expects a list, got %T", op, value)
	}
	if len(list) < 2 {
		return nil, errors.MalformedFilterf(path, "%s expects at least two entries, got %d", op, len(list))
	}
	return list, nil
}

func (c *Compiler) compileElement(op Operator, value any, path string, ctx Context) (Expr, error) {
	var target ElementTarget
	switch op {
	case OpElementID:
		target = TargetElementID
	case OpID:
		target = TargetID
	case OpLabels:
		if ctx != NodeContext {
			return nil, errors.MalformedFilterf(path, "%s is only valid in node filters", op)
		}
		target = TargetLabels
	case OpType:
		if ctx != RelationshipContext {
			return nil, errors.MalformedFilterf(path, "%s is only valid in relationship filters", op)
		}
		target = TargetType
	}

	check := func(v any) bool {
		if target == TargetID {
			return isInteger(v)
		}
		_, ok := v.(string)
		return ok
	}

	if list, ok := asList(value); ok {
		if len(list) == 0 {
			return nil, errors.MalformedFilterf(path, "%s expects a non-empty list", op)
		}
		for i, v := range list {
			if !check(v) {
				return nil, errors.MalformedFilterf(indexPath(path, i), "invalid %s value %v (%T)", op, v, v)
			}
		}
		return ElementPredicate{Target: target, Param: c.params.Add(value), Many: true}, nil
	}
	if !check(value) {
		return nil, errors.MalformedFilterf(path, "invalid %s value %v (%T)", op, value, value)
	}
	return ElementPredicate{Target: target, Param: c.params.Add(value)}, nil
}

func (c *Compiler) compilePatterns(value any, path string) ([]Expr, error) {
	list, ok := asList(value)
	if !ok {
		return nil, errors.MalformedFilterf(path, "%s expects a list of patterns, got %T", KeyPatterns, value)
	}

	patterns := make([]Expr, 0, len(list))
	for i, entry := range list {
		entryPath := indexPath(path, i)
		m, ok := asMap(entry)
		if !ok {
			return nil, errors.MalformedFilterf(entryPath, "pattern must be a mapping, got %T", entry)
		}

		p := Pattern{Index: c.patterns, Direction: Both, Exists: true}
		c.patterns++

		for _, key := range sortedKeys(m) {
			keyPath := joinPath(entryPath, key)
			v := m[key]
			switch key {
			case string(OpExists):
				b, ok := v.(bool)
				if !ok {
					return nil, errors.MalformedFilterf(keyPath, "%s expects a boolean, got %T", OpExists, v)
				}
				p.Exists = b
			case KeyDirection:
				d, err := direction(v, keyPath)
				if err != nil {
					return nil, err
				}
				p.Direction = d
			case KeyNode:
				e, err := c.compileNested(v, keyPath, NodeContext)
				if err != nil {
					return nil, err
				}
				p.Node = e
			case KeyRelationship:
				e, err := c.compileNested(v, keyPath, RelationshipContext)
				if err != nil {
					return nil, err
				}
				p.Relationship = e
			default:
				if IsOperator(key) {
					return nil, errors.UnsupportedOperator(keyPath, key)
				}
				return nil, errors.MalformedFilterf(keyPath, "unexpected key %q in pattern", key)
			}
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func (c *Compiler) compileMultiHop(value any, path string) (Expr, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, errors.MalformedFilterf(path, "%s expects a mapping, got %T", KeyMultiHop, value)
	}

	for _, key := range sortedKeys(m) {
		switch key {
		case KeyMinHops, KeyMaxHops, KeyDirection, KeyNode, KeyRelationships:
		default:
			if IsOperator(key) {
				return nil, errors.UnsupportedOperator(joinPath(path, key), key)
			}
			return nil, errors.MalformedFilterf(joinPath(path, key), "unexpected key %q in %s", key, KeyMultiHop)
		}
	}

	hop := MultiHop{MinHops: 1, Unbounded: true, Direction: Both}

	if v, ok := m[KeyMinHops]; ok {
		keyPath := joinPath(path, KeyMinHops)
		n, ok := toInt(v)
		if !ok {
			return nil, errors.MalformedFilterf(keyPath, "%s expects an integer, got %T", KeyMinHops, v)
		}
		if n < 1 {
			return nil, errors.InvalidHopRangef(keyPath, "%s must be at least 1, got %d", KeyMinHops, n)
		}
		hop.MinHops = n
	}

	if v, ok := m[KeyMaxHops]; ok && v != UnboundedHops {
		keyPath := joinPath(path, KeyMaxHops)
		n, ok := toInt(v)
		if !ok {
			return nil, errors.MalformedFilterf(keyPath, "%s expects an integer or %q, got %v", KeyMaxHops, UnboundedHops, v)
		}
		if n < 2 {
			return nil, errors.InvalidHopRangef(keyPath, "%s must be at least 2, got %d", KeyMaxHops, n)
		}
		if hop.MinHops > n {
			return nil, errors.InvalidHopRangef(keyPath, "%s (%d) exceeds %s (%d)", KeyMinHops, hop.MinHops, KeyMaxHops, n)
		}
		hop.MaxHops = n
		hop.Unbounded = false
	}

	if v, ok := m[KeyDirection]; ok {
		d, err := direction(v, joinPath(path, KeyDirection))
		if err != nil {
			return nil, err
		}
		hop.Direction = d
	}

	if v, ok := m[KeyNode]; ok {
		e, err := c.compileNested(v, joinPath(path, KeyNode), NodeContext)
		if err != nil {
			return nil, err
		}
		hop.Node = e
	}

	if v, ok := m[KeyRelationships]; ok {
		relPath := joinPath(path, KeyRelationships)
		list, ok := asList(v)
		if !ok {
			return nil, errors.MalformedFilterf(relPath, "%s expects a list, got %T", KeyRelationships, v)
		}
		for i, entry := range list {
			hf, err := c.compileHopFilter(entry, indexPath(relPath, i))
			if err != nil {
				return nil, err
			}
			hop.Relationships = append(hop.Relationships, hf)
		}
	}

	return hop, nil
}

func (c *Compiler) compileHopFilter(entry any, path string) (HopFilter, error) {
	m, ok := asMap(entry)
	if !ok {
		return HopFilter{}, errors.MalformedFilterf(path, "relationship filter must be a mapping, got %T", entry)
	}

	var hf HopFilter
	rest := make(map[string]any, len(m))
	for k, v := range m {
		if k != string(OpType) {
			rest[k] = v
		}
	}

	if t, ok := m[string(OpType)]; ok {
		e, err := c.compileElement(OpType, t, joinPath(path, string(OpType)), RelationshipContext)
		if err != nil {
			return HopFilter{}, err
		}
		pred := e.(ElementPredicate)
		hf.Type = &pred
	}

	e, err := c.compileSpec(rest, path, scope{ctx: RelationshipContext})
	if err != nil {
		return HopFilter{}, err
	}
	hf.Filter = e

	if hf.Type == nil && hf.Filter == nil {
		return HopFilter{}, errors.MalformedFilterf(path, "empty relationship filter")
	}
	return hf, nil
}

func (c *Compiler) compileNested(value any, path string, ctx Context) (Expr, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, errors.MalformedFilterf(path, "expected a filter mapping, got %T", value)
	}
	return c.compileSpec(m, path, scope{ctx: ctx})
}

func direction(v any, path string) (Direction, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.MalformedFilterf(path, "%s expects a string, got %T", KeyDirection, v)
	}
	d, ok := ParseDirection(s)
	if !ok {
		return "", errors.MalformedFilterf(path, "invalid direction %q (expected %s, %s or %s)", s, Incoming, Outgoing, Both)
	}
	return d, nil
}

// checkScalars rejects nested lists and mappings inside list literals
func checkScalars(list []any, path string) error {
	for i, v := range list {
		if _, ok := asMap(v); ok {
			return errors.MalformedFilterf(indexPath(path, i), "list entries must be scalars, got a mapping")
		}
		if _, ok := asList(v); ok {
			return errors.MalformedFilterf(indexPath(path, i), "list entries must be scalars, got a list")
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// asMap accepts any map keyed by strings
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asList accepts any slice or array except byte slices
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsList reports whether v is a list of any element type and returns its items
func AsList(v any) ([]any, bool) {
	return asList(v)
}

// ToInt converts an integer literal, accepting integral floats as decoded from JSON
func ToInt(v any) (int, bool) {
	return toInt(v)
}

func isInteger(v any) bool {
	_, ok := toInt(v)
	return ok
}

// toInt accepts integer kinds and integral floats (JSON numbers decode as float64)
func toInt(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}
