// Package mapper is the entry point of the object-graph mapper: it resolves a
// model, runs its hooks, assembles the statement, executes it and hydrates the
// returned records.
package mapper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/hydrate"
	"github.com/rohankatakam/graphogm/internal/metrics"
	"github.com/rohankatakam/graphogm/internal/query"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// FindParams are the optional parts of a find
type FindParams struct {
	Filter     filter.Spec
	Projection map[string]any
	Options    map[string]any
	AutoFetch  *hydrate.AutoFetch
}

// Result is the outcome of a find: entities, or projection rows when a
// projection was requested
type Result struct {
	Entities []*hydrate.Entity `json:"entities,omitempty"`
	Rows     []map[string]any  `json:"rows,omitempty"`
}

// Config tunes the mapper
type Config struct {
	PlanCacheSize        int
	HydrationConcurrency int
	HydrationRateLimit   float64
	HydrationBurst       int
}

// Mapper runs operations against registered models
type Mapper struct {
	registry  *registry.Registry
	executor  graph.Executor
	assembler *query.Assembler
	hydrator  *hydrate.Hydrator
	metrics   *metrics.Registry
	logger    logrus.FieldLogger
}

// Option configures a Mapper
type Option func(*options)

type options struct {
	config  Config
	metrics *metrics.Registry
	logger  logrus.FieldLogger
}

// WithConfig sets plan cache and hydration tuning
func WithConfig(c Config) Option {
	return func(o *options) { o.config = c }
}

// WithMetrics records compile, cache and hydration metrics in m
func WithMetrics(m *metrics.Registry) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a mapper. reg may be nil, in which case model names are used as
// labels and records are hydrated in relaxed mode.
func New(reg *registry.Registry, executor graph.Executor, opts ...Option) (*Mapper, error) {
	o := options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithField("component", "mapper")

	var assemblerOpts []query.AssemblerOption
	if o.config.PlanCacheSize > 0 {
		var recorder query.CacheRecorder
		if o.metrics != nil {
			recorder = o.metrics
		}
		cache, err := query.NewPlanCache(o.config.PlanCacheSize, recorder)
		if err != nil {
			return nil, err
		}
		assemblerOpts = append(assemblerOpts, query.WithPlanCache(cache))
	}

	hydrateOpts := []hydrate.Option{
		hydrate.WithExecutor(executor),
		hydrate.WithLogger(logger),
		hydrate.WithConcurrency(o.config.HydrationConcurrency),
		hydrate.WithRateLimit(o.config.HydrationRateLimit, o.config.HydrationBurst),
	}
	if o.metrics != nil {
		hydrateOpts = append(hydrateOpts, hydrate.WithRecorder(o.metrics))
	}

	return &Mapper{
		registry:  reg,
		executor:  executor,
		assembler: query.NewAssembler(assemblerOpts...),
		hydrator:  hydrate.New(reg, hydrateOpts...),
		metrics:   o.metrics,
		logger:    logger,
	}, nil
}

// Registry returns the model registry
func (m *Mapper) Registry() *registry.Registry {
	return m.registry
}

// call is one operation in flight
type call struct {
	descriptor *registry.Descriptor
	target     query.Target
	event      *registry.HookEvent
}

// begin resolves model and runs its pre hooks, which may rewrite the filter and values
func (m *Mapper) begin(ctx context.Context, op registry.Operation, model string, spec filter.Spec, values map[string]any) (*call, error) {
	c := &call{
		event: &registry.HookEvent{
			Operation: op,
			Model:     model,
			Filter:    copyMap(spec),
			Values:    copyMap(values),
		},
	}

	if m.registry.Empty() {
		c.target = query.NodeTarget(model)
		return c, nil
	}
	d, ok := m.registry.Get(model)
	if !ok {
		return nil, errors.UnregisteredEntityf("model %s is not registered", model)
	}
	c.descriptor = d
	c.target = query.TargetFor(d)

	if err := d.Hooks.RunPre(ctx, c.event); err != nil {
		return nil, err
	}
	return c, nil
}

// end runs the post hooks with the result
func (m *Mapper) end(ctx context.Context, c *call, result any) error {
	if c.descriptor == nil {
		return nil
	}
	c.event.Result = result
	return c.descriptor.Hooks.RunPost(ctx, c.event)
}

// assembled records compile failures
func (m *Mapper) assembled(cs *query.ClauseSet, err error) (*query.ClauseSet, error) {
	if err != nil && m.metrics != nil {
		m.metrics.RecordCompileError(errors.TypeName(errors.GetType(err)))
	}
	return cs, err
}

func (m *Mapper) execute(ctx context.Context, cs *query.ClauseSet) (*graph.Result, error) {
	start := time.Now()
	res, err := m.executor.Execute(ctx, graph.Query{
		Text:      cs.Query(),
		Params:    cs.Params,
		Operation: cs.Operation,
	})
	log := m.logger.WithFields(logrus.Fields{
		"operation": cs.Operation,
		"params":    len(cs.Params),
		"duration":  time.Since(start),
	})
	if err != nil {
		log.WithError(err).Warn("Query failed")
		return nil, err
	}
	log.WithField("rows", len(res.Rows)).Debug("Query executed")
	return res, nil
}

// Find returns the entities of model matching params.Filter, or projection rows
func (m *Mapper) Find(ctx context.Context, model string, params FindParams) (*Result, error) {
	c, err := m.begin(ctx, registry.OpFind, model, params.Filter, nil)
	if err != nil {
		return nil, err
	}

	cs, err := m.assembled(m.assembler.Find(query.Request{
		Target:     c.target,
		Filter:     c.event.Filter,
		Projection: params.Projection,
		Options:    params.Options,
	}))
	if err != nil {
		return nil, err
	}

	result, err := m.run(ctx, cs, model, params)
	if err != nil {
		return nil, err
	}
	if err := m.end(ctx, c, result); err != nil {
		return nil, err
	}
	return result, nil
}

// FindOne returns the first entity of model matching spec, nil when none does
func (m *Mapper) FindOne(ctx context.Context, model string, params FindParams) (*hydrate.Entity, error) {
	opts := copyMap(params.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts[query.KeyLimit] = 1
	params.Options = opts
	params.Projection = nil

	result, err := m.Find(ctx, model, params)
	if err != nil {
		return nil, err
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}
	return result.Entities[0], nil
}

// FindConnected returns the nodes reachable from the matches of model along the
// path described by the $multiHop key of params.Filter
func (m *Mapper) FindConnected(ctx context.Context, model string, params FindParams) (*Result, error) {
	c, err := m.begin(ctx, registry.OpConnected, model, params.Filter, nil)
	if err != nil {
		return nil, err
	}

	cs, err := m.assembled(m.assembler.Connected(query.Request{
		Target:     c.target,
		Filter:     c.event.Filter,
		Projection: params.Projection,
		Options:    params.Options,
	}))
	if err != nil {
		return nil, err
	}

	// reached nodes may be of any registered model
	result, err := m.run(ctx, cs, "", params)
	if err != nil {
		return nil, err
	}
	if err := m.end(ctx, c, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Query finds nodes carrying every one of labels without a registered model.
// Hooks do not run.
func (m *Mapper) Query(ctx context.Context, labels []string, params FindParams) (*Result, error) {
	cs, err := m.assembled(m.assembler.AdHoc(query.Request{
		Target:     query.NodeTarget(labels...),
		Filter:     params.Filter,
		Projection: params.Projection,
		Options:    params.Options,
	}))
	if err != nil {
		return nil, err
	}
	return m.run(ctx, cs, "", params)
}

// run executes a find-shaped statement and hydrates the first column
func (m *Mapper) run(ctx context.Context, cs *query.ClauseSet, model string, params FindParams) (*Result, error) {
	res, err := m.execute(ctx, cs)
	if err != nil {
		return nil, err
	}
	if len(params.Projection) > 0 {
		return &Result{Rows: hydrate.Projections(res)}, nil
	}

	entities, err := m.hydrator.Hydrate(ctx, res, hydrate.Request{
		Column:    cs.Return[0],
		Model:     model,
		AutoFetch: params.AutoFetch,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Entities: entities}, nil
}

// Count returns the number of distinct matches of model
func (m *Mapper) Count(ctx context.Context, model string, spec filter.Spec) (int64, error) {
	c, err := m.begin(ctx, registry.OpCount, model, spec, nil)
	if err != nil {
		return 0, err
	}
	cs, err := m.assembled(m.assembler.Count(query.Request{Target: c.target, Filter: c.event.Filter}))
	if err != nil {
		return 0, err
	}
	n, err := m.scalar(ctx, cs)
	if err != nil {
		return 0, err
	}
	if err := m.end(ctx, c, n); err != nil {
		return 0, err
	}
	return n, nil
}

// Update sets values on every match of model and returns the updated entities
func (m *Mapper) Update(ctx context.Context, model string, spec filter.Spec, values map[string]any) ([]*hydrate.Entity, error) {
	c, err := m.begin(ctx, registry.OpUpdate, model, spec, values)
	if err != nil {
		return nil, err
	}
	cs, err := m.assembled(m.assembler.Update(query.Request{
		Target: c.target,
		Filter: c.event.Filter,
		Values: c.event.Values,
	}))
	if err != nil {
		return nil, err
	}

	result, err := m.run(ctx, cs, model, FindParams{})
	if err != nil {
		return nil, err
	}
	if err := m.end(ctx, c, result.Entities); err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"model":   model,
		"updated": len(result.Entities),
	}).Info("Entities updated")
	return result.Entities, nil
}

// Delete deletes every match of model, detaching nodes first, and returns the
// number of deleted entities
func (m *Mapper) Delete(ctx context.Context, model string, spec filter.Spec) (int64, error) {
	c, err := m.begin(ctx, registry.OpDelete, model, spec, nil)
	if err != nil {
		return 0, err
	}
	cs, err := m.assembled(m.assembler.Delete(query.Request{Target: c.target, Filter: c.event.Filter}))
	if err != nil {
		return 0, err
	}
	n, err := m.scalar(ctx, cs)
	if err != nil {
		return 0, err
	}
	if err := m.end(ctx, c, n); err != nil {
		return 0, err
	}
	m.logger.WithFields(logrus.Fields{
		"model":   model,
		"deleted": n,
	}).Info("Entities deleted")
	return n, nil
}

// scalar runs a statement returning a single count column
func (m *Mapper) scalar(ctx context.Context, cs *query.ClauseSet) (int64, error) {
	res, err := m.execute(ctx, cs)
	if err != nil {
		return 0, err
	}
	v, ok := res.Value(0, "count")
	if !ok {
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok {
		i, isInt := filter.ToInt(v)
		if !isInt {
			return 0, errors.InternalErrorf("count returned %T", v)
		}
		n = int64(i)
	}
	return n, nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
