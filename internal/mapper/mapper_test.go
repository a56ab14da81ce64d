package mapper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/hydrate"
	"github.com/rohankatakam/graphogm/internal/metrics"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// fakeExecutor records queries and answers them with canned results chosen by
// the first matching substring
type fakeExecutor struct {
	mu      sync.Mutex
	queries []graph.Query
	answers []answer
	err     error
}

type answer struct {
	contains string
	result   *graph.Result
}

func (f *fakeExecutor) on(contains string, res *graph.Result) *fakeExecutor {
	f.answers = append(f.answers, answer{contains: contains, result: res})
	return f
}

func (f *fakeExecutor) Execute(ctx context.Context, q graph.Query) (*graph.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.answers {
		if strings.Contains(q.Text, a.contains) {
			return a.result, nil
		}
	}
	return &graph.Result{}, nil
}

func (f *fakeExecutor) last() graph.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func developers() *registry.Registry {
	reg, err := registry.New(
		registry.Descriptor{
			Name:       "Developer",
			Kind:       registry.KindNode,
			Labels:     []string{"Developer"},
			Properties: []string{"name", "age"},
			Relationships: []registry.RelationshipProperty{
				{Name: "coffees", Direction: filter.Outgoing, Type: "DRINKS", Target: "Coffee"},
			},
		},
		registry.Descriptor{Name: "Coffee", Kind: registry.KindNode, Labels: []string{"Coffee"}},
	)
	if err != nil {
		panic(err)
	}
	return reg
}

func devNode(id, name string) graph.Node {
	return graph.Node{ElementID: id, Labels: []string{"Developer"}, Props: map[string]any{"name": name}}
}

func quietLogger() (logrus.FieldLogger, *logtest.Hook) {
	return logtest.NewNullLogger()
}

func TestFind(t *testing.T) {
	exec := (&fakeExecutor{}).on("RETURN DISTINCT n", &graph.Result{
		Keys: []string{"n"},
		Rows: [][]any{{devNode("4:d:1", "John")}, {devNode("4:d:2", "Jane")}},
	})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	result, err := m.Find(context.Background(), "Developer", FindParams{
		Filter: filter.Spec{"age": map[string]any{"$gte": 21, "$lt": 45}},
	})
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "John", result.Entities[0].Properties["name"])
	assert.Equal(t, "Developer", result.Entities[0].Model)

	q := exec.last()
	assert.Equal(t, "MATCH (n:Developer) WHERE n.age >= $p0 AND n.age < $p1 RETURN DISTINCT n", q.Text)
	assert.Equal(t, map[string]any{"p0": 21, "p1": 45}, q.Params)
	assert.Equal(t, graph.OperationFind, q.Operation)
}

func TestFind_Projection(t *testing.T) {
	exec := (&fakeExecutor{}).on("AS dev_name", &graph.Result{
		Keys: []string{"dev_name", "nick"},
		Rows: [][]any{{"John", nil}},
	})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	result, err := m.Find(context.Background(), "Developer", FindParams{
		Projection: map[string]any{"dev_name": "name", "nick": "nickname"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
	assert.Equal(t, []map[string]any{{"dev_name": "John", "nick": nil}}, result.Rows)
	assert.Equal(t, "MATCH (n:Developer) RETURN n.name AS dev_name, null AS nick", exec.last().Text)
}

func TestFind_AutoFetch(t *testing.T) {
	exec := (&fakeExecutor{}).
		on("[r:DRINKS]", &graph.Result{Keys: []string{"m"}, Rows: [][]any{
			{graph.Node{ElementID: "4:c:1", Labels: []string{"Coffee"}}},
		}}).
		on("RETURN DISTINCT n", &graph.Result{Keys: []string{"n"}, Rows: [][]any{{devNode("4:d:1", "John")}}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger), WithConfig(Config{HydrationConcurrency: 2}))
	require.NoError(t, err)

	result, err := m.Find(context.Background(), "Developer", FindParams{AutoFetch: &hydrate.AutoFetch{}})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	require.Len(t, result.Entities[0].Related["coffees"], 1)
	assert.Equal(t, "Coffee", result.Entities[0].Related["coffees"][0].Model)
	assert.Len(t, exec.queries, 2)
}

func TestFindOne(t *testing.T) {
	exec := (&fakeExecutor{}).on("LIMIT", &graph.Result{Keys: []string{"n"}, Rows: [][]any{{devNode("4:d:1", "John")}}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	e, err := m.FindOne(context.Background(), "Developer", FindParams{Filter: filter.Spec{"name": "John"}})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "4:d:1", e.ElementID)

	q := exec.last()
	assert.Equal(t, "MATCH (n:Developer) WHERE n.name = $p0 RETURN DISTINCT n LIMIT $p1", q.Text)
	assert.Equal(t, 1, q.Params["p1"])

	none, err := New(developers(), &fakeExecutor{}, WithLogger(logger))
	require.NoError(t, err)
	e, err = none.FindOne(context.Background(), "Developer", FindParams{})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestCountAndDelete(t *testing.T) {
	exec := (&fakeExecutor{}).
		on("count(DISTINCT n)", &graph.Result{Keys: []string{"count"}, Rows: [][]any{{int64(3)}}}).
		on("DETACH DELETE", &graph.Result{Keys: []string{"count"}, Rows: [][]any{{int64(2)}}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	n, err := m.Count(context.Background(), "Developer", filter.Spec{"age": map[string]any{"$gt": 30}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = m.Delete(context.Background(), "Developer", filter.Spec{"name": "John"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, graph.OperationDelete, exec.last().Operation)
}

func TestUpdate(t *testing.T) {
	exec := (&fakeExecutor{}).on("SET", &graph.Result{Keys: []string{"n"}, Rows: [][]any{{devNode("4:d:1", "Johnny")}}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	updated, err := m.Update(context.Background(), "Developer", filter.Spec{"name": "John"}, map[string]any{"name": "Johnny"})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Johnny", updated[0].Properties["name"])
	assert.Equal(t, "MATCH (n:Developer) WHERE n.name = $p0 SET n.name = $p1 RETURN DISTINCT n", exec.last().Text)

	_, err = m.Update(context.Background(), "Developer", nil, map[string]any{"salary": 1})
	assert.True(t, errors.Is(err, errors.ErrMalformedFilter))
}

func TestFindConnected(t *testing.T) {
	exec := (&fakeExecutor{}).on("path = ", &graph.Result{Keys: []string{"m"}, Rows: [][]any{
		{graph.Node{ElementID: "4:c:1", Labels: []string{"Coffee"}}},
		{devNode("4:d:2", "Jane")},
	}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	result, err := m.FindConnected(context.Background(), "Developer", FindParams{Filter: filter.Spec{
		"name":      "John",
		"$multiHop": map[string]any{"$maxHops": 2},
	}})
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, "Coffee", result.Entities[0].Model)
	assert.Equal(t, "Developer", result.Entities[1].Model)
	assert.Equal(t, graph.OperationConnected, exec.last().Operation)
}

func TestQuery_AdHocLabels(t *testing.T) {
	exec := (&fakeExecutor{}).on("(n:Robot)", &graph.Result{Keys: []string{"n"}, Rows: [][]any{
		{graph.Node{ElementID: "4:r:1", Labels: []string{"Robot"}}},
	}})
	logger, _ := quietLogger()

	m, err := New(nil, exec, WithLogger(logger))
	require.NoError(t, err)
	result, err := m.Query(context.Background(), []string{"Robot"}, FindParams{})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Nil(t, result.Entities[0].Descriptor)
	assert.Equal(t, graph.OperationAdHoc, exec.last().Operation)

	registered, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)
	_, err = registered.Query(context.Background(), []string{"Robot"}, FindParams{})
	assert.True(t, errors.Is(err, errors.ErrUnregisteredEntity))
}

func TestUnregisteredModel(t *testing.T) {
	logger, _ := quietLogger()
	m, err := New(developers(), &fakeExecutor{}, WithLogger(logger))
	require.NoError(t, err)

	_, err = m.Find(context.Background(), "Robot", FindParams{})
	assert.True(t, errors.Is(err, errors.ErrUnregisteredEntity))
}

func TestHooks(t *testing.T) {
	var calls []string
	desc := registry.Descriptor{Name: "Developer", Kind: registry.KindNode, Labels: []string{"Developer"}}
	desc.Hooks.AddPre(registry.OpFind, func(ctx context.Context, ev *registry.HookEvent) error {
		calls = append(calls, "pre")
		ev.Filter["deleted"] = false
		return nil
	})
	desc.Hooks.AddPost(registry.OpFind, func(ctx context.Context, ev *registry.HookEvent) error {
		calls = append(calls, fmt.Sprintf("post:%d", len(ev.Result.(*Result).Entities)))
		return nil
	})
	desc.Hooks.AddPre(registry.OpDelete, func(ctx context.Context, ev *registry.HookEvent) error {
		return fmt.Errorf("deletes are disabled")
	})
	reg, err := registry.New(desc)
	require.NoError(t, err)

	exec := (&fakeExecutor{}).on("RETURN DISTINCT n", &graph.Result{Keys: []string{"n"}, Rows: [][]any{{devNode("4:d:1", "John")}}})
	logger, _ := quietLogger()
	m, err := New(reg, exec, WithLogger(logger))
	require.NoError(t, err)

	spec := filter.Spec{"name": "John"}
	_, err = m.Find(context.Background(), "Developer", FindParams{Filter: spec})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "post:1"}, calls)
	assert.Equal(t, "MATCH (n:Developer) WHERE n.deleted = $p0 AND n.name = $p1 RETURN DISTINCT n", exec.last().Text)
	assert.NotContains(t, spec, "deleted")

	before := len(exec.queries)
	_, err = m.Delete(context.Background(), "Developer", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deletes are disabled")
	assert.Len(t, exec.queries, before)
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	exec := (&fakeExecutor{}).on("RETURN DISTINCT n", &graph.Result{Keys: []string{"n"}, Rows: [][]any{{devNode("4:d:1", "John")}}})
	logger, _ := quietLogger()
	m, err := New(developers(), exec, WithLogger(logger), WithMetrics(reg), WithConfig(Config{PlanCacheSize: 16}))
	require.NoError(t, err)

	params := FindParams{Filter: filter.Spec{"name": "John"}}
	for i := 0; i < 2; i++ {
		_, err := m.Find(context.Background(), "Developer", params)
		require.NoError(t, err)
	}
	_, err = m.Find(context.Background(), "Developer", FindParams{Filter: filter.Spec{"name": map[string]any{"$near": 1}}})
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.PlanCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.HydratedEntitiesTotal.WithLabelValues("node")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.CompileErrorsTotal.WithLabelValues("UNSUPPORTED_OPERATOR")))
}

func TestExecutorErrorsPropagate(t *testing.T) {
	logger, hook := quietLogger()
	exec := &fakeExecutor{err: errors.DatabaseError(fmt.Errorf("connection refused"), "query failed")}
	m, err := New(developers(), exec, WithLogger(logger))
	require.NoError(t, err)

	_, err = m.Count(context.Background(), "Developer", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatabase))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
