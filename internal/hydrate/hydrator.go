package hydrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/query"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// DefaultMaxConcurrency bounds the auto-fetch sub-queries in flight per call
const DefaultMaxConcurrency = 8

// Recorder observes hydration
type Recorder interface {
	RecordHydrated(kind string, n int)
	RecordAutoFetch(status string)
}

// Request selects what to hydrate from a result
type Request struct {
	// Column holds the primary entities. Empty means every graph value of every
	// column not named in Attach, in row order.
	Column string
	// Model is the requested model. When set, primary entities must match it.
	Model string
	// Attach maps result columns to relationship-property names: the graph
	// values of the column are attached to the primary entities of the same row.
	Attach map[string]string
	// AutoFetch loads declared relationship-properties; nil disables it
	AutoFetch *AutoFetch
}

// AutoFetch selects the relationship-properties to load
type AutoFetch struct {
	// Models restricts loading to relationship-properties targeting these
	// models. Empty loads every declared relationship-property.
	Models []string
}

func (a *AutoFetch) wants(rel registry.RelationshipProperty) bool {
	if len(a.Models) == 0 {
		return true
	}
	for _, m := range a.Models {
		if m == rel.Target {
			return true
		}
	}
	return false
}

// Hydrator turns results into entities
type Hydrator struct {
	registry *registry.Registry
	executor graph.Executor
	logger   logrus.FieldLogger
	recorder Recorder

	maxConcurrency int
	limiter        *rate.Limiter
}

// Option configures a Hydrator
type Option func(*Hydrator)

// WithExecutor sets the executor auto-fetch sub-queries run on
func WithExecutor(e graph.Executor) Option {
	return func(h *Hydrator) { h.executor = e }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Hydrator) { h.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(h *Hydrator) { h.recorder = r }
}

// WithConcurrency bounds the auto-fetch sub-queries in flight
func WithConcurrency(n int) Option {
	return func(h *Hydrator) {
		if n > 0 {
			h.maxConcurrency = n
		}
	}
}

// WithRateLimit throttles auto-fetch sub-queries to perSecond with the given
// burst. A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Hydrator) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New creates a hydrator resolving against reg. A nil or empty registry
// hydrates in relaxed mode.
func New(reg *registry.Registry, opts ...Option) *Hydrator {
	h := &Hydrator{
		registry:       reg,
		logger:         logrus.StandardLogger(),
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hydrate builds the entities of res. Rows referencing the same element yield
// one entity, in order of first appearance, carrying the attachments of every
// row. Nothing is returned unless every auto-fetch sub-query succeeded.
func (h *Hydrator) Hydrate(ctx context.Context, res *graph.Result, req Request) ([]*Entity, error) {
	if res == nil || len(res.Rows) == 0 {
		return nil, nil
	}

	expected, err := h.expected(req.Model)
	if err != nil {
		return nil, err
	}
	columns, err := primaryColumns(res, req)
	if err != nil {
		return nil, err
	}
	attachNames := sortedKeys(req.Attach)
	attachColumns := make([]int, len(attachNames))
	for i, col := range attachNames {
		if attachColumns[i] = res.Column(col); attachColumns[i] < 0 {
			return nil, errors.ValidationErrorf("result has no column %q to attach", col)
		}
	}

	primaries := newSet()
	related := newSet()
	for _, row := range res.Rows {
		var rowEntities []*Entity
		for _, col := range columns {
			for _, v := range graphValues(row[col]) {
				e, err := h.build(v, expected)
				if err != nil {
					return nil, err
				}
				rowEntities = append(rowEntities, primaries.add(e))
			}
		}

		for i, col := range attachColumns {
			name := req.Attach[attachNames[i]]
			for _, v := range graphValues(row[col]) {
				e, err := h.build(v, nil)
				if err != nil {
					return nil, err
				}
				e = related.add(e)
				for _, p := range rowEntities {
					p.attach(name, e)
				}
			}
		}
	}

	entities := primaries.list()
	if req.AutoFetch != nil {
		if err := h.autoFetch(ctx, entities, req.AutoFetch); err != nil {
			return nil, err
		}
	}

	h.record(entities)
	return entities, nil
}

// HydratePath returns the alternating node / relationship entities of p in
// traversal order, without de-duplication.
func (h *Hydrator) HydratePath(p graph.Path) ([]*Entity, error) {
	elements := p.Elements()
	out := make([]*Entity, 0, len(elements))
	for _, v := range elements {
		e, err := h.build(v, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Projections returns the rows of a projection result keyed by column
func Projections(res *graph.Result) []map[string]any {
	if res == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		m := make(map[string]any, len(res.Keys))
		for i, k := range res.Keys {
			if i < len(row) {
				m[k] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

func (h *Hydrator) expected(model string) (*registry.Descriptor, error) {
	if model == "" || h.registry.Empty() {
		return nil, nil
	}
	d, ok := h.registry.Get(model)
	if !ok {
		return nil, errors.UnregisteredEntityf("model %s is not registered", model)
	}
	return d, nil
}

func primaryColumns(res *graph.Result, req Request) ([]int, error) {
	if req.Column != "" {
		col := res.Column(req.Column)
		if col < 0 {
			return nil, errors.ValidationErrorf("result has no column %q", req.Column)
		}
		return []int{col}, nil
	}
	cols := make([]int, 0, len(res.Keys))
	for i, k := range res.Keys {
		if _, attached := req.Attach[k]; !attached {
			cols = append(cols, i)
		}
	}
	return cols, nil
}

// graphValues flattens a column value into its nodes and relationships. Paths
// decompose in traversal order; other values are skipped.
func graphValues(v any) []any {
	switch val := v.(type) {
	case graph.Node, graph.Relationship:
		return []any{val}
	case graph.Path:
		return val.Elements()
	case []any:
		var out []any
		for _, item := range val {
			out = append(out, graphValues(item)...)
		}
		return out
	}
	return nil
}

// build resolves one record. expected, when set, is the only model accepted.
func (h *Hydrator) build(v any, expected *registry.Descriptor) (*Entity, error) {
	switch rec := v.(type) {
	case graph.Node:
		d, err := h.resolveNode(rec, expected)
		if err != nil {
			return nil, err
		}
		return newNode(rec, d), nil
	case graph.Relationship:
		d, err := h.resolveRelationship(rec, expected)
		if err != nil {
			return nil, err
		}
		return newRelationship(rec, d), nil
	}
	return nil, errors.InternalErrorf("cannot hydrate %T", v)
}

func (h *Hydrator) resolveNode(n graph.Node, expected *registry.Descriptor) (*registry.Descriptor, error) {
	if h.registry.Empty() {
		return nil, nil
	}
	if expected != nil && expected.Kind == registry.KindNode {
		if !expected.MatchesLabels(n.Labels) {
			return nil, errors.UnregisteredEntityf("node %s with labels %v is not a %s", n.ElementID, n.Labels, expected.Name).
				WithContext("element_id", n.ElementID)
		}
		return expected, nil
	}
	d, ok := h.registry.LookupLabels(n.Labels)
	if !ok {
		return nil, errors.UnregisteredEntityf("no model registered for node labels %v", n.Labels).
			WithContext("element_id", n.ElementID)
	}
	return d, nil
}

func (h *Hydrator) resolveRelationship(r graph.Relationship, expected *registry.Descriptor) (*registry.Descriptor, error) {
	if h.registry.Empty() {
		return nil, nil
	}
	if expected != nil && expected.Kind == registry.KindRelationship {
		if expected.Type != r.Type {
			return nil, errors.UnregisteredEntityf("relationship %s of type %s is not a %s", r.ElementID, r.Type, expected.Name).
				WithContext("element_id", r.ElementID)
		}
		return expected, nil
	}
	d, ok := h.registry.LookupType(r.Type)
	if !ok {
		return nil, errors.UnregisteredEntityf("no model registered for relationship type %s", r.Type).
			WithContext("element_id", r.ElementID)
	}
	return d, nil
}

// fetchJob is one auto-fetch sub-query and its result slot
type fetchJob struct {
	entity *Entity
	rel    registry.RelationshipProperty
	target *registry.Descriptor
	out    []*Entity
}

func (h *Hydrator) autoFetch(ctx context.Context, entities []*Entity, af *AutoFetch) error {
	var jobs []*fetchJob
	for _, e := range entities {
		if e.Kind != registry.KindNode || e.Descriptor == nil {
			continue
		}
		for _, rel := range e.Descriptor.Relationships {
			if !af.wants(rel) {
				continue
			}
			target, _ := h.registry.Get(rel.Target)
			jobs = append(jobs, &fetchJob{entity: e, rel: rel, target: target})
		}
	}
	if len(jobs) == 0 {
		return nil
	}
	if h.executor == nil {
		return errors.ConfigError("auto-fetch requires an executor")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.maxConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			return h.fetch(gctx, job)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// every slot is filled; attach only now so a failed call leaves no entity half loaded
	for _, job := range jobs {
		job.entity.attach(job.rel.Name, job.out...)
	}
	h.logger.WithFields(logrus.Fields{
		"entities":    len(entities),
		"sub_queries": len(jobs),
	}).Debug("Auto-fetch completed")
	return nil
}

func (h *Hydrator) fetch(ctx context.Context, job *fetchJob) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	cs, err := query.AutoFetch(job.entity.ElementID, job.rel, h.registry.TargetLabels(job.rel))
	if err != nil {
		return err
	}

	res, err := h.executor.Execute(ctx, graph.Query{
		Text:      cs.Query(),
		Params:    cs.Params,
		Operation: cs.Operation,
	})
	if err != nil {
		h.recordAutoFetch("error")
		return fmt.Errorf("auto-fetch %s of %s: %w", job.rel.Name, job.entity.ElementID, err)
	}
	h.recordAutoFetch("success")

	set := newSet()
	for _, row := range res.Rows {
		for _, cell := range row {
			for _, v := range graphValues(cell) {
				e, err := h.build(v, job.target)
				if err != nil {
					return err
				}
				set.add(e)
			}
		}
	}
	job.out = set.list()
	return nil
}

func (h *Hydrator) record(entities []*Entity) {
	if h.recorder == nil {
		return
	}
	counts := make(map[registry.Kind]int, 2)
	for _, e := range entities {
		counts[e.Kind]++
	}
	for kind, n := range counts {
		h.recorder.RecordHydrated(kind.String(), n)
	}
}

func (h *Hydrator) recordAutoFetch(status string) {
	if h.recorder != nil {
		h.recorder.RecordAutoFetch(status)
	}
}

// set de-duplicates entities by element, keeping first-appearance order
type set struct {
	byKey map[string]*Entity
	order []*Entity
}

func newSet() *set {
	return &set{byKey: make(map[string]*Entity)}
}

// add returns the canonical entity for e's element
func (s *set) add(e *Entity) *Entity {
	if existing, ok := s.byKey[e.Key()]; ok {
		return existing
	}
	s.byKey[e.Key()] = e
	s.order = append(s.order, e)
	return e
}

func (s *set) list() []*Entity {
	return s.order
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
