package filter

// Spec is the wire shape of a filter: a JSON-compatible nested map.
type Spec = map[string]any

// Expr is a compiled filter node. The set of implementations is closed.
type Expr interface {
	isExpr()
}

// Comparison compares a property with a bound parameter. OpExists carries no
// parameter and checks for (non-)null instead.
type Comparison struct {
	Property string
	Op       Operator
	Param    string
	Exists   bool
}

// StringMatch is a CONTAINS / STARTS WITH / ENDS WITH / regex predicate.
type StringMatch struct {
	Property        string
	Op              Operator
	Param           string
	CaseInsensitive bool
}

// ListPredicate is an $in, $nin, $all or $size predicate. For $size the nested
// comparisons apply to the length of the property and Param is empty.
type ListPredicate struct {
	Property string
	Op       Operator
	Param    string
	Size     []Comparison
}

// Logical combines children. Not always has exactly one child.
type Logical struct {
	Op       LogicalOp
	Children []Expr
}

// ElementTarget is what an ElementPredicate inspects.
type ElementTarget string

const (
	TargetElementID ElementTarget = "elementId"
	TargetID        ElementTarget = "id"
	TargetLabels    ElementTarget = "labels"
	TargetType      ElementTarget = "type"
)

// ElementPredicate matches the element id, legacy id, labels or type of the entity.
// Many is set when the bound parameter is a list.
type ElementPredicate struct {
	Target ElementTarget
	Param  string
	Many   bool
}

// Pattern asserts that a one-hop connection exists (or does not exist).
// Index makes the variables of the sub-pattern unique within the query.
type Pattern struct {
	Index        int
	Direction    Direction
	Node         Expr
	Relationship Expr
	Exists       bool
}

// HopFilter constrains the relationships of a multi-hop path. Type selects the
// hops the Filter applies to; either may be nil, not both.
type HopFilter struct {
	Type   *ElementPredicate
	Filter Expr
}

// MultiHop bounds a variable-length path from the matched node to a target node.
type MultiHop struct {
	MinHops       int
	MaxHops       int
	Unbounded     bool
	Direction     Direction
	Node          Expr
	Relationships []HopFilter
}

func (Comparison) isExpr()       {}
func (StringMatch) isExpr()      {}
func (ListPredicate) isExpr()    {}
func (Logical) isExpr()          {}
func (ElementPredicate) isExpr() {}
func (Pattern) isExpr()          {}
func (MultiHop) isExpr()         {}

// ExtractMultiHop separates a root-level MultiHop from the rest of the tree.
// MultiHop nodes only ever appear as the root or as a direct child of the root AND.
func ExtractMultiHop(e Expr) (Expr, *MultiHop) {
	switch n := e.(type) {
	case MultiHop:
		return nil, &n
	case Logical:
		if n.Op != And {
			return e, nil
		}
		var hop *MultiHop
		rest := make([]Expr, 0, len(n.Children))
		for _, child := range n.Children {
			if m, ok := child.(MultiHop); ok {
				hop = &m
				continue
			}
			rest = append(rest, child)
		}
		if hop == nil {
			return e, nil
		}
		return combine(And, rest), hop
	}
	return e, nil
}

// Conjunction ANDs the non-nil expressions.
func Conjunction(exprs ...Expr) Expr {
	children := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			children = append(children, e)
		}
	}
	return combine(And, children)
}

func combine(op LogicalOp, children []Expr) Expr {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Logical{Op: op, Children: children}
}
