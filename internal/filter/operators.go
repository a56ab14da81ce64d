// Package filter compiles MongoDB-style filter specifications into parameterized
// Cypher predicates.
//
// A filter is a nested map. Keys are property names, $-prefixed operator tokens
// or one of the structural keys $patterns and $multiHop:
//
//	{"age": {"$gte": 21, "$lt": 45}, "$patterns": [{"$exists": false, "$node": {"$labels": ["Coffee"]}}]}
//
// Compile turns the map into an Expr tree and records every literal in a Params
// table. Render turns the tree into Cypher that references the literals only
// through $-placeholders.
package filter

// Operator is a filter operator token as it appears on the wire.
type Operator string

// Comparison operators
const (
	OpEq  Operator = "$eq"
	OpNeq Operator = "$neq"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"

	// OpExists renders IS NOT NULL / IS NULL and binds no parameter.
	OpExists Operator = "$exists"
)

// String operators
const (
	OpContains    Operator = "$contains"
	OpIContains   Operator = "$icontains"
	OpStartsWith  Operator = "$startsWith"
	OpIStartsWith Operator = "$istartsWith"
	OpEndsWith    Operator = "$endsWith"
	OpIEndsWith   Operator = "$iendsWith"
	OpRegex       Operator = "$regex"
)

// List operators
const (
	OpIn   Operator = "$in"
	OpNin  Operator = "$nin"
	OpAll  Operator = "$all"
	OpSize Operator = "$size"
)

// Logical operators
const (
	OpAnd Operator = "$and"
	OpOr  Operator = "$or"
	OpXor Operator = "$xor"
	OpNot Operator = "$not"
)

// Element operators target the entity itself rather than one of its properties.
const (
	OpElementID Operator = "$elementId"
	OpID        Operator = "$id"
	OpLabels    Operator = "$labels"
	OpType      Operator = "$type"
)

// Structural keys
const (
	KeyPatterns      = "$patterns"
	KeyMultiHop      = "$multiHop"
	KeyNode          = "$node"
	KeyRelationship  = "$relationship"
	KeyRelationships = "$relationships"
	KeyDirection     = "$direction"
	KeyMinHops       = "$minHops"
	KeyMaxHops       = "$maxHops"

	// UnboundedHops is the $maxHops sentinel for a path without an upper bound.
	UnboundedHops = "*"
)

// Family groups operators that share a value contract.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyComparison
	FamilyString
	FamilyList
	FamilyLogical
	FamilyElement
)

var families = map[Operator]Family{
	OpEq:     FamilyComparison,
	OpNeq:    FamilyComparison,
	OpGt:     FamilyComparison,
	OpGte:    FamilyComparison,
	OpLt:     FamilyComparison,
	OpLte:    FamilyComparison,
	OpExists: FamilyComparison,

	OpContains:    FamilyString,
	OpIContains:   FamilyString,
	OpStartsWith:  FamilyString,
	OpIStartsWith: FamilyString,
	OpEndsWith:    FamilyString,
	OpIEndsWith:   FamilyString,
	OpRegex:       FamilyString,

	OpIn:   FamilyList,
	OpNin:  FamilyList,
	OpAll:  FamilyList,
	OpSize: FamilyList,

	OpAnd: FamilyLogical,
	OpOr:  FamilyLogical,
	OpXor: FamilyLogical,
	OpNot: FamilyLogical,

	OpElementID: FamilyElement,
	OpID:        FamilyElement,
	OpLabels:    FamilyElement,
	OpType:      FamilyElement,
}

// FamilyOf returns the family of op, FamilyUnknown for unsupported tokens.
func FamilyOf(op Operator) Family {
	return families[op]
}

// IsOperator reports whether key uses the operator prefix.
func IsOperator(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// cypher comparison symbols
var comparisonSymbols = map[Operator]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// string operators: cypher keyword and whether both sides are lower-cased
var stringOperators = map[Operator]struct {
	keyword         string
	caseInsensitive bool
}{
	OpContains:    {"CONTAINS", false},
	OpIContains:   {"CONTAINS", true},
	OpStartsWith:  {"STARTS WITH", false},
	OpIStartsWith: {"STARTS WITH", true},
	OpEndsWith:    {"ENDS WITH", false},
	OpIEndsWith:   {"ENDS WITH", true},
	OpRegex:       {"=~", false},
}

// LogicalOp is the boolean connective of a Logical node.
type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
	Xor LogicalOp = "XOR"
	Not LogicalOp = "NOT"
)

var logicalOps = map[Operator]LogicalOp{
	OpAnd: And,
	OpOr:  Or,
	OpXor: Xor,
	OpNot: Not,
}

// Direction of a relationship relative to the matched entity.
type Direction string

const (
	Incoming Direction = "INCOMING"
	Outgoing Direction = "OUTGOING"
	Both     Direction = "BOTH"
)

// ParseDirection validates a wire direction; empty means Both.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case "":
		return Both, true
	case Incoming, Outgoing, Both:
		return Direction(s), true
	}
	return "", false
}

// Arrows returns the left and right relationship arrow parts for d.
func (d Direction) Arrows() (string, string) {
	switch d {
	case Incoming:
		return "<-", "-"
	case Outgoing:
		return "-", "->"
	default:
		return "-", "-"
	}
}
