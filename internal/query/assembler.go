package query

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// Variables of the assembled statements
const (
	nodeVar   = "n"
	relVar    = "r"
	targetVar = "m"
	pathVar   = "path"
)

// Request is the input of one statement. Filter, Projection and Options use
// the JSON wire shape; Values holds the properties to SET for updates.
type Request struct {
	Target     Target
	Filter     filter.Spec
	Projection map[string]any
	Options    map[string]any
	Values     map[string]any
}

// Assembler builds statements, optionally memoizing them in a PlanCache
type Assembler struct {
	cache *PlanCache
}

// AssemblerOption configures an Assembler
type AssemblerOption func(*Assembler)

// WithPlanCache memoizes assembled statements in c
func WithPlanCache(c *PlanCache) AssemblerOption {
	return func(a *Assembler) { a.cache = c }
}

// NewAssembler creates an assembler
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Find matches the target, filters it and returns it, or the projection of it:
//
//	MATCH (n:Developer) WHERE n.age >= $p0 RETURN DISTINCT n ORDER BY n.age DESC SKIP $p1 LIMIT $p2
func (a *Assembler) Find(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationFind, req)
}

// AdHoc is Find over labels that no registered model has to declare
func (a *Assembler) AdHoc(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationAdHoc, req)
}

// Count counts the distinct matches of the target
func (a *Assembler) Count(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationCount, req)
}

// Update sets req.Values on every match and returns the updated entities
func (a *Assembler) Update(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationUpdate, req)
}

// Delete deletes every match, detaching nodes first, and returns the count
func (a *Assembler) Delete(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationDelete, req)
}

// Connected returns the nodes reachable from the matched source nodes through
// the variable-length path described by the $multiHop key of the filter
func (a *Assembler) Connected(req Request) (*ClauseSet, error) {
	return a.assemble(graph.OperationConnected, req)
}

func (a *Assembler) assemble(op string, req Request) (*ClauseSet, error) {
	if a.cache == nil {
		return build(op, req)
	}

	key := planKey(op, req)
	if cs, ok := a.cache.get(key); ok {
		return cs, nil
	}
	cs, err := build(op, req)
	if err != nil {
		return nil, err
	}
	a.cache.add(key, cs)
	return cs.Clone(), nil
}

func build(op string, req Request) (*ClauseSet, error) {
	if err := req.Target.validate(); err != nil {
		return nil, err
	}

	switch op {
	case graph.OperationFind:
		return buildFind(req)
	case graph.OperationAdHoc:
		cs, err := buildFind(req)
		if err != nil {
			return nil, err
		}
		cs.Operation = op
		return cs, nil
	case graph.OperationCount:
		return buildCount(req)
	case graph.OperationUpdate:
		return buildUpdate(req)
	case graph.OperationDelete:
		return buildDelete(req)
	case graph.OperationConnected:
		return buildConnected(req)
	}
	return nil, errors.InternalErrorf("unknown operation %q", op)
}

// base compiles the filter of req and binds the target
func base(op string, req Request) (*ClauseSet, *filter.Compiler, error) {
	c := filter.NewCompiler(nil)
	expr, err := c.Compile(req.Filter, req.Target.compileOptions()...)
	if err != nil {
		return nil, nil, err
	}
	return &ClauseSet{
		Operation: op,
		Match:     []string{req.Target.pattern()},
		Where:     filter.Render(expr, req.Target.Variable()),
	}, c, nil
}

func buildFind(req Request) (*ClauseSet, error) {
	cs, c, err := base(graph.OperationFind, req)
	if err != nil {
		return nil, err
	}
	if err := returnEntities(cs, req.Target.Variable(), req.Target, req, c.Params()); err != nil {
		return nil, err
	}
	cs.Params = c.Params().Map()
	return cs, nil
}

// returnEntities adds the RETURN, ORDER BY, SKIP and LIMIT clauses. A projection
// with options makes the entities distinct and paginates them in a WITH clause
// first, since ORDER BY after RETURN DISTINCT may only use projected values.
func returnEntities(cs *ClauseSet, variable string, t Target, req Request, params *filter.Params) error {
	projection, err := ParseProjection(req.Projection)
	if err != nil {
		return err
	}
	options, err := ParseOptions(req.Options)
	if err != nil {
		return err
	}
	order, skip, limit := options.render(variable, params)

	if projection == nil {
		cs.Return = []string{variable}
		cs.Distinct = true
		cs.OrderBy, cs.Skip, cs.Limit = order, skip, limit
		return nil
	}

	cs.Return = projection.render(variable, t)
	if len(order) == 0 && skip == "" && limit == "" {
		return nil
	}

	with := "WITH DISTINCT " + variable
	if len(order) > 0 {
		with += " ORDER BY " + strings.Join(order, ", ")
	}
	if skip != "" {
		with += " SKIP " + skip
	}
	if limit != "" {
		with += " LIMIT " + limit
	}
	cs.With = append(cs.With, with)
	return nil
}

func buildCount(req Request) (*ClauseSet, error) {
	cs, c, err := base(graph.OperationCount, req)
	if err != nil {
		return nil, err
	}
	cs.Return = []string{fmt.Sprintf("count(DISTINCT %s) AS count", req.Target.Variable())}
	cs.Params = c.Params().Map()
	return cs, nil
}

func buildUpdate(req Request) (*ClauseSet, error) {
	if len(req.Values) == 0 {
		return nil, errors.MalformedFilterf("", "update requires at least one property value")
	}
	cs, c, err := base(graph.OperationUpdate, req)
	if err != nil {
		return nil, err
	}

	variable := req.Target.Variable()
	params := c.Params()
	assignments := make([]string, 0, len(req.Values))
	for _, key := range sortedKeys(req.Values) {
		if !filter.IsValidIdentifier(key) {
			return nil, errors.MalformedFilterf(key, "invalid property name %q", key)
		}
		if !req.Target.declares(key) {
			return nil, errors.MalformedFilterf(key, "%q is not a declared property", key)
		}
		if _, isMap := req.Values[key].(map[string]any); isMap {
			return nil, errors.MalformedFilterf(key, "property values cannot be mappings")
		}
		assignments = append(assignments, fmt.Sprintf("%s.%s = %s", variable, key, params.Placeholder(req.Values[key])))
	}

	cs.Mutate = []string{"SET " + strings.Join(assignments, ", ")}
	cs.Return = []string{variable}
	cs.Distinct = true
	cs.Params = params.Map()
	return cs, nil
}

func buildDelete(req Request) (*ClauseSet, error) {
	cs, c, err := base(graph.OperationDelete, req)
	if err != nil {
		return nil, err
	}
	if req.Target.Kind == registry.KindRelationship {
		cs.Mutate = []string{"DELETE " + relVar}
	} else {
		cs.Mutate = []string{"DETACH DELETE " + nodeVar}
	}
	cs.Return = []string{"count(*) AS count"}
	cs.Params = c.Params().Map()
	return cs, nil
}

func buildConnected(req Request) (*ClauseSet, error) {
	if req.Target.Kind != registry.KindNode {
		return nil, errors.MalformedFilterf("", "connected-node traversal requires a node target")
	}

	c := filter.NewCompiler(nil)
	expr, err := c.Compile(req.Filter, filter.AllowMultiHop())
	if err != nil {
		return nil, err
	}
	source, hop := filter.ExtractMultiHop(expr)
	if hop == nil {
		return nil, errors.MalformedFilterf(filter.KeyMultiHop, "connected-node traversal requires %s", filter.KeyMultiHop)
	}

	left, right := hop.Direction.Arrows()
	path := fmt.Sprintf("%s = (%s)%s[%s]%s(%s)", pathVar, nodeVar, left, hop.Bounds(), right, targetVar)

	where := make([]string, 0, 3+len(hop.Relationships))
	if s := filter.RenderConjunct(source, nodeVar); s != "" {
		where = append(where, s)
	}
	if s := filter.RenderConjunct(hop.Node, targetVar); s != "" {
		where = append(where, s)
	}
	where = append(where, filter.RenderHops(hop, pathVar)...)
	where = append(where, fmt.Sprintf("%s <> %s", targetVar, nodeVar))

	cs := &ClauseSet{
		Operation: graph.OperationConnected,
		Match:     []string{req.Target.pattern(), path},
		Where:     strings.Join(where, " AND "),
	}
	// the reached nodes have no declared model here, so every projected property is kept
	if err := returnEntities(cs, targetVar, Target{Kind: registry.KindNode}, req, c.Params()); err != nil {
		return nil, err
	}
	cs.Params = c.Params().Map()
	return cs, nil
}

// AutoFetch builds the one-hop traversal loading the targets of rel for the
// node with element id sourceElementID:
//
//	MATCH (n)-[r:DRINKS]->(m:Coffee) WHERE elementId(n) = $p0 RETURN DISTINCT m
func AutoFetch(sourceElementID string, rel registry.RelationshipProperty, targetLabels []string) (*ClauseSet, error) {
	if !filter.IsValidIdentifier(rel.Type) {
		return nil, errors.MalformedFilterf(rel.Name, "invalid relationship type %q", rel.Type)
	}
	for _, l := range targetLabels {
		if !filter.IsValidIdentifier(l) {
			return nil, errors.MalformedFilterf(rel.Name, "invalid label %q", l)
		}
	}

	params := filter.NewParams()
	left, right := rel.Direction.Arrows()
	return &ClauseSet{
		Operation: graph.OperationAutoFetch,
		Match: []string{fmt.Sprintf("(%s)%s[%s:%s]%s%s",
			nodeVar, left, relVar, rel.Type, right, nodePattern(targetVar, targetLabels))},
		Where:    fmt.Sprintf("elementId(%s) = %s", nodeVar, params.Placeholder(sourceElementID)),
		Return:   []string{targetVar},
		Distinct: true,
		Params:   params.Map(),
	}, nil
}
