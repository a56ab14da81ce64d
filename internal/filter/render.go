package filter

import (
	"fmt"
	"strings"
)

// rendered is a predicate fragment plus the connective it was joined with, so the
// parent can decide whether it needs parentheses. op is empty for atoms.
type rendered struct {
	text string
	op   LogicalOp
}

// Render renders e as a Cypher predicate over the variable ref. A nil expression
// and a bare MultiHop render as the empty string; multi-hop predicates are
// produced by RenderHops instead.
func Render(e Expr, ref string) string {
	return render(e, ref).text
}

// RenderConjunct renders e for use as one operand of an AND, parenthesizing it
// when its top-level connective is OR or XOR.
func RenderConjunct(e Expr, ref string) string {
	return parenthesize(render(e, ref), And)
}

func render(e Expr, ref string) rendered {
	switch n := e.(type) {
	case nil:
		return rendered{}
	case Comparison:
		return rendered{text: renderComparison(n, ref)}
	case StringMatch:
		return rendered{text: renderStringMatch(n, ref)}
	case ListPredicate:
		return renderList(n, ref)
	case Logical:
		return renderLogical(n, ref)
	case ElementPredicate:
		return rendered{text: renderElement(n, ref)}
	case Pattern:
		return rendered{text: renderPattern(n, ref)}
	case MultiHop:
		return rendered{}
	}
	panic(fmt.Sprintf("filter: unknown expression %T", e))
}

func property(ref, prop string) string {
	return ref + "." + prop
}

func renderComparison(c Comparison, ref string) string {
	if c.Op == OpExists {
		if c.Exists {
			return property(ref, c.Property) + " IS NOT NULL"
		}
		return property(ref, c.Property) + " IS NULL"
	}
	return fmt.Sprintf("%s %s $%s", property(ref, c.Property), comparisonSymbols[c.Op], c.Param)
}

func renderStringMatch(s StringMatch, ref string) string {
	keyword := stringOperators[s.Op].keyword
	if s.CaseInsensitive {
		return fmt.Sprintf("toLower(%s) %s toLower($%s)", property(ref, s.Property), keyword, s.Param)
	}
	return fmt.Sprintf("%s %s $%s", property(ref, s.Property), keyword, s.Param)
}

func renderList(l ListPredicate, ref string) rendered {
	prop := property(ref, l.Property)
	switch l.Op {
	case OpIn:
		return rendered{text: fmt.Sprintf("%s IN $%s", prop, l.Param)}
	case OpNin:
		return rendered{text: fmt.Sprintf("NOT (%s IN $%s)", prop, l.Param)}
	case OpAll:
		return rendered{text: fmt.Sprintf("ALL(_v IN $%s WHERE _v IN %s)", l.Param, prop)}
	case OpSize:
		terms := make([]string, len(l.Size))
		for i, c := range l.Size {
			terms[i] = fmt.Sprintf("size(%s) %s $%s", prop, comparisonSymbols[c.Op], c.Param)
		}
		r := rendered{text: strings.Join(terms, " AND ")}
		if len(terms) > 1 {
			r.op = And
		}
		return r
	}
	return rendered{}
}

func renderLogical(l Logical, ref string) rendered {
	if l.Op == Not {
		if len(l.Children) == 0 {
			return rendered{}
		}
		child := render(l.Children[0], ref)
		if child.text == "" {
			return rendered{}
		}
		return rendered{text: "NOT (" + child.text + ")"}
	}

	parts := make([]rendered, 0, len(l.Children))
	for _, c := range l.Children {
		r := render(c, ref)
		if r.text != "" {
			parts = append(parts, r)
		}
	}
	switch len(parts) {
	case 0:
		return rendered{}
	case 1:
		return parts[0]
	}

	texts := make([]string, len(parts))
	for i, p := range parts {
		if p.op != "" && p.op != l.Op {
			texts[i] = "(" + p.text + ")"
		} else {
			texts[i] = p.text
		}
	}
	return rendered{text: strings.Join(texts, " "+string(l.Op)+" "), op: l.Op}
}

func renderElement(p ElementPredicate, ref string) string {
	switch p.Target {
	case TargetElementID:
		return equalOrIn(fmt.Sprintf("elementId(%s)", ref), p)
	case TargetID:
		return equalOrIn(fmt.Sprintf("id(%s)", ref), p)
	case TargetType:
		return equalOrIn(fmt.Sprintf("type(%s)", ref), p)
	case TargetLabels:
		if p.Many {
			return fmt.Sprintf("ALL(_l IN $%s WHERE _l IN labels(%s))", p.Param, ref)
		}
		return fmt.Sprintf("$%s IN labels(%s)", p.Param, ref)
	}
	return ""
}

func equalOrIn(lhs string, p ElementPredicate) string {
	if p.Many {
		return fmt.Sprintf("%s IN $%s", lhs, p.Param)
	}
	return fmt.Sprintf("%s = $%s", lhs, p.Param)
}

// PatternVariables returns the relationship and node variables of a pattern
// sub-query.
func PatternVariables(p Pattern) (string, string) {
	return fmt.Sprintf("_r%d", p.Index), fmt.Sprintf("_n%d", p.Index)
}

func renderPattern(p Pattern, ref string) string {
	relVar, nodeVar := PatternVariables(p)
	left, right := p.Direction.Arrows()

	var sb strings.Builder
	if !p.Exists {
		sb.WriteString("NOT ")
	}
	fmt.Fprintf(&sb, "EXISTS { MATCH (%s)%s[%s]%s(%s)", ref, left, relVar, right, nodeVar)

	where := make([]rendered, 0, 2)
	if r := render(p.Relationship, relVar); r.text != "" {
		where = append(where, r)
	}
	if r := render(p.Node, nodeVar); r.text != "" {
		where = append(where, r)
	}
	if len(where) > 0 {
		texts := make([]string, len(where))
		for i, w := range where {
			texts[i] = parenthesize(w, And)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(texts, " AND "))
	}
	sb.WriteString(" }")
	return sb.String()
}

func parenthesize(r rendered, parent LogicalOp) string {
	if r.op != "" && r.op != parent {
		return "(" + r.text + ")"
	}
	return r.text
}

// hopVar is the per-relationship variable of the path quantifiers
const hopVar = "_h"

// RenderHops renders one predicate per relationship filter of m over the
// relationships of pathVar:
//
//	type and filter: every hop of that type satisfies the filter
//	type only:       at least one hop has that type
//	filter only:     every hop satisfies the filter
func RenderHops(m *MultiHop, pathVar string) []string {
	if m == nil {
		return nil
	}
	rels := fmt.Sprintf("relationships(%s)", pathVar)
	out := make([]string, 0, len(m.Relationships))
	for _, hf := range m.Relationships {
		filter := render(hf.Filter, hopVar)
		switch {
		case hf.Type != nil && filter.text != "":
			out = append(out, fmt.Sprintf("ALL(%s IN %s WHERE NOT (%s) OR (%s))",
				hopVar, rels, renderElement(*hf.Type, hopVar), filter.text))
		case hf.Type != nil:
			out = append(out, fmt.Sprintf("ANY(%s IN %s WHERE %s)", hopVar, rels, renderElement(*hf.Type, hopVar)))
		case filter.text != "":
			out = append(out, fmt.Sprintf("ALL(%s IN %s WHERE %s)", hopVar, rels, filter.text))
		}
	}
	return out
}

// Bounds renders the variable-length quantifier of m, e.g. "*1..3" or "*2..".
// The bounds are validated integers; Cypher does not accept parameters here.
func (m MultiHop) Bounds() string {
	if m.Unbounded {
		return fmt.Sprintf("*%d..", m.MinHops)
	}
	return fmt.Sprintf("*%d..%d", m.MinHops, m.MaxHops)
}
