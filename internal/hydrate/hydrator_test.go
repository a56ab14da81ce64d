package hydrate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		registry.Descriptor{
			Name:       "Developer",
			Kind:       registry.KindNode,
			Labels:     []string{"Developer"},
			Properties: []string{"name", "age"},
			Relationships: []registry.RelationshipProperty{
				{Name: "coffees", Direction: filter.Outgoing, Type: "DRINKS", Target: "Coffee"},
				{Name: "teams", Direction: filter.Outgoing, Type: "MEMBER_OF", Target: "Team"},
			},
		},
		registry.Descriptor{Name: "Coffee", Kind: registry.KindNode, Labels: []string{"Coffee"}},
		registry.Descriptor{Name: "Team", Kind: registry.KindNode, Labels: []string{"Team"}},
		registry.Descriptor{Name: "Drinks", Kind: registry.KindRelationship, Type: "DRINKS"},
	)
	require.NoError(t, err)
	return reg
}

func node(elementID string, labels []string, props map[string]any) graph.Node {
	return graph.Node{ElementID: elementID, Labels: labels, Props: props}
}

func drinks(elementID, start, end string) graph.Relationship {
	return graph.Relationship{ElementID: elementID, StartElementID: start, EndElementID: end, Type: "DRINKS", Props: map[string]any{}}
}

// threeRows is a row-per-relationship result: one developer drinking three coffees
func threeRows() *graph.Result {
	dev := node("4:abc:1", []string{"Developer"}, map[string]any{"name": "John"})
	res := &graph.Result{Keys: []string{"n", "r", "m"}}
	for i := 0; i < 3; i++ {
		coffee := node(fmt.Sprintf("4:abc:%d", 10+i), []string{"Coffee"}, map[string]any{"brand": fmt.Sprintf("b%d", i)})
		res.Rows = append(res.Rows, []any{dev, drinks(fmt.Sprintf("5:abc:%d", i), dev.ElementID, coffee.ElementID), coffee})
	}
	return res
}

func TestHydrate_Deduplicates(t *testing.T) {
	h := New(testRegistry(t))

	entities, err := h.Hydrate(context.Background(), threeRows(), Request{
		Column: "n",
		Attach: map[string]string{"m": "coffees"},
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)

	dev := entities[0]
	assert.Equal(t, "4:abc:1", dev.ElementID)
	assert.Equal(t, "Developer", dev.Model)
	require.Len(t, dev.Related["coffees"], 3)
	for i, c := range dev.Related["coffees"] {
		assert.Equal(t, fmt.Sprintf("4:abc:%d", 10+i), c.ElementID)
		assert.Equal(t, "Coffee", c.Model)
	}
}

func TestHydrate_AttachRelationships(t *testing.T) {
	h := New(testRegistry(t))

	entities, err := h.Hydrate(context.Background(), threeRows(), Request{
		Column: "n",
		Attach: map[string]string{"r": "drinks"},
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Len(t, entities[0].Related["drinks"], 3)
	assert.Equal(t, registry.KindRelationship, entities[0].Related["drinks"][0].Kind)
	assert.Equal(t, "Drinks", entities[0].Related["drinks"][0].Model)
}

func TestHydrate_Idempotent(t *testing.T) {
	h := New(testRegistry(t))
	req := Request{Column: "n", Attach: map[string]string{"m": "coffees"}}

	first, err := h.Hydrate(context.Background(), threeRows(), req)
	require.NoError(t, err)
	second, err := h.Hydrate(context.Background(), threeRows(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHydrate_AllColumnsInRowOrder(t *testing.T) {
	h := New(testRegistry(t))

	entities, err := h.Hydrate(context.Background(), threeRows(), Request{})
	require.NoError(t, err)

	// developer, then relationship and coffee of each row
	require.Len(t, entities, 7)
	assert.Equal(t, "4:abc:1", entities[0].ElementID)
	assert.Equal(t, "5:abc:0", entities[1].ElementID)
	assert.Equal(t, "4:abc:10", entities[2].ElementID)
	assert.Equal(t, "5:abc:2", entities[5].ElementID)
}

func TestHydrate_Paths(t *testing.T) {
	h := New(testRegistry(t))

	dev := node("4:abc:1", []string{"Developer"}, nil)
	coffee := node("4:abc:2", []string{"Coffee"}, nil)
	p := graph.Path{
		Nodes:         []graph.Node{dev, coffee},
		Relationships: []graph.Relationship{drinks("5:abc:1", dev.ElementID, coffee.ElementID)},
	}

	entities, err := h.Hydrate(context.Background(), &graph.Result{Keys: []string{"path"}, Rows: [][]any{{p}, {p}}}, Request{})
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, []registry.Kind{registry.KindNode, registry.KindRelationship, registry.KindNode},
		[]registry.Kind{entities[0].Kind, entities[1].Kind, entities[2].Kind})

	t.Run("single path keeps every element", func(t *testing.T) {
		loop := graph.Path{
			Nodes:         []graph.Node{dev, coffee, dev},
			Relationships: []graph.Relationship{drinks("5:abc:1", dev.ElementID, coffee.ElementID), drinks("5:abc:2", coffee.ElementID, dev.ElementID)},
		}
		elements, err := h.HydratePath(loop)
		require.NoError(t, err)
		require.Len(t, elements, 5)
		assert.Equal(t, elements[0].Key(), elements[4].Key())
	})
}

func TestHydrate_Resolution(t *testing.T) {
	reg := testRegistry(t)

	t.Run("unregistered labels", func(t *testing.T) {
		res := &graph.Result{Keys: []string{"n"}, Rows: [][]any{{node("4:x:1", []string{"Robot"}, nil)}}}
		_, err := New(reg).Hydrate(context.Background(), res, Request{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnregisteredEntity))
	})

	t.Run("unregistered type", func(t *testing.T) {
		rel := graph.Relationship{ElementID: "5:x:1", Type: "LIKES"}
		res := &graph.Result{Keys: []string{"r"}, Rows: [][]any{{rel}}}
		_, err := New(reg).Hydrate(context.Background(), res, Request{})
		assert.True(t, errors.Is(err, errors.ErrUnregisteredEntity))
	})

	t.Run("labels superset resolves", func(t *testing.T) {
		res := &graph.Result{Keys: []string{"n"}, Rows: [][]any{{node("4:x:1", []string{"Developer", "Person"}, nil)}}}
		entities, err := New(reg).Hydrate(context.Background(), res, Request{})
		require.NoError(t, err)
		assert.Equal(t, "Developer", entities[0].Model)
	})

	t.Run("requested model must match", func(t *testing.T) {
		res := &graph.Result{Keys: []string{"n"}, Rows: [][]any{{node("4:x:1", []string{"Coffee"}, nil)}}}
		_, err := New(reg).Hydrate(context.Background(), res, Request{Model: "Developer"})
		assert.True(t, errors.Is(err, errors.ErrUnregisteredEntity))
	})

	t.Run("relaxed mode keeps data unchanged", func(t *testing.T) {
		n := node("4:x:1", []string{"Robot"}, map[string]any{"serial": "R2"})
		res := &graph.Result{Keys: []string{"n"}, Rows: [][]any{{n}}}
		entities, err := New(nil).Hydrate(context.Background(), res, Request{Model: "Robot"})
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Nil(t, entities[0].Descriptor)
		assert.Empty(t, entities[0].Model)
		assert.Equal(t, []string{"Robot"}, entities[0].Labels)
		assert.Equal(t, map[string]any{"serial": "R2"}, entities[0].Properties)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := New(reg).Hydrate(context.Background(), threeRows(), Request{Column: "x"})
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

// fakeExecutor answers auto-fetch queries with the targets keyed by source element id
type fakeExecutor struct {
	mu       sync.Mutex
	queries  []graph.Query
	targets  map[string][]graph.Node
	fail     bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeExecutor) Execute(ctx context.Context, q graph.Query) (*graph.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.fail {
		return nil, errors.DatabaseError(fmt.Errorf("connection reset"), "query failed")
	}
	res := &graph.Result{Keys: []string{"m"}}
	if !strings.Contains(q.Text, ":DRINKS]") {
		return res, nil
	}
	for _, n := range f.targets[q.Params["p0"].(string)] {
		res.Rows = append(res.Rows, []any{n})
	}
	return res, nil
}

func TestHydrate_AutoFetch(t *testing.T) {
	reg := testRegistry(t)
	exec := &fakeExecutor{targets: map[string][]graph.Node{
		"4:d:1": {node("4:c:1", []string{"Coffee"}, nil), node("4:c:2", []string{"Coffee"}, nil)},
		"4:d:2": {node("4:c:1", []string{"Coffee"}, nil)},
	}}
	h := New(reg, WithExecutor(exec), WithConcurrency(2), WithRateLimit(1000, 10))

	res := &graph.Result{Keys: []string{"n"}, Rows: [][]any{
		{node("4:d:1", []string{"Developer"}, nil)},
		{node("4:d:2", []string{"Developer"}, nil)},
	}}

	entities, err := h.Hydrate(context.Background(), res, Request{Column: "n", AutoFetch: &AutoFetch{}})
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Len(t, exec.queries, 4)
	assert.LessOrEqual(t, exec.peak.Load(), int32(2))
	var coffeeFetches int
	for _, q := range exec.queries {
		assert.Equal(t, graph.OperationAutoFetch, q.Operation)
		if strings.Contains(q.Text, "(m:Coffee)") {
			coffeeFetches++
		}
	}
	assert.Equal(t, 2, coffeeFetches)

	require.Len(t, entities[0].Related["coffees"], 2)
	assert.Equal(t, "Coffee", entities[0].Related["coffees"][0].Model)
	require.Len(t, entities[1].Related["coffees"], 1)
	// requested but empty relationship-properties are present
	teams, ok := entities[0].Related["teams"]
	assert.True(t, ok)
	assert.Empty(t, teams)

	t.Run("restricted to target models", func(t *testing.T) {
		exec.queries = nil
		entities, err := h.Hydrate(context.Background(), res, Request{Column: "n", AutoFetch: &AutoFetch{Models: []string{"Team"}}})
		require.NoError(t, err)
		assert.Len(t, exec.queries, 2)
		_, fetched := entities[0].Related["coffees"]
		assert.False(t, fetched)
	})

	t.Run("sub-query failure aborts the call", func(t *testing.T) {
		failing := &fakeExecutor{fail: true}
		entities, err := New(reg, WithExecutor(failing)).Hydrate(context.Background(), res, Request{AutoFetch: &AutoFetch{}})
		require.Error(t, err)
		assert.Nil(t, entities)
		assert.True(t, errors.Is(err, errors.ErrDatabase))
	})

	t.Run("requires an executor", func(t *testing.T) {
		_, err := New(reg).Hydrate(context.Background(), res, Request{AutoFetch: &AutoFetch{}})
		assert.True(t, errors.Is(err, errors.ErrConfig))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := New(reg, WithExecutor(exec), WithRateLimit(0.001, 1))
		_, err := slow.Hydrate(ctx, res, Request{AutoFetch: &AutoFetch{}})
		require.Error(t, err)
	})
}

type recorder struct {
	mu        sync.Mutex
	hydrated  map[string]int
	autoFetch map[string]int
}

func (r *recorder) RecordHydrated(kind string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hydrated[kind] += n
}

func (r *recorder) RecordAutoFetch(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoFetch[status]++
}

func TestHydrate_Records(t *testing.T) {
	rec := &recorder{hydrated: map[string]int{}, autoFetch: map[string]int{}}
	h := New(testRegistry(t), WithRecorder(rec))

	_, err := h.Hydrate(context.Background(), threeRows(), Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"node": 4, "relationship": 3}, rec.hydrated)
}

func TestProjections(t *testing.T) {
	res := &graph.Result{
		Keys: []string{"dev_name", "nick"},
		Rows: [][]any{{"John", nil}, {"Jane", "jj"}},
	}
	rows := Projections(res)
	assert.Equal(t, []map[string]any{
		{"dev_name": "John", "nick": nil},
		{"dev_name": "Jane", "nick": "jj"},
	}, rows)
	assert.Nil(t, Projections(nil))
}

func TestDecode(t *testing.T) {
	type developer struct {
		Name  string `graph:"name"`
		Age   int    `graph:"age"`
		Email string
	}

	e := &Entity{ElementID: "4:abc:1", Properties: map[string]any{"name": "John", "age": int64(31), "email": "j@x.io"}}
	var d developer
	require.NoError(t, Decode(e, &d))
	assert.Equal(t, developer{Name: "John", Age: 31, Email: "j@x.io"}, d)

	var bad developer
	err := Decode(&Entity{Properties: map[string]any{"age": "thirty"}}, &bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestEntityKey(t *testing.T) {
	keys := []string{
		(&Entity{Kind: registry.KindNode, ElementID: "4:a:1"}).Key(),
		(&Entity{Kind: registry.KindRelationship, ElementID: "4:a:1"}).Key(),
		(&Entity{Kind: registry.KindNode, ID: 7}).Key(),
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"node#7", "node:4:a:1", "relationship:4:a:1"}, keys)
}
