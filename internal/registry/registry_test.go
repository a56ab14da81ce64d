package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
)

func testModels() []Descriptor {
	return []Descriptor{
		{
			Name:       "Developer",
			Labels:     []string{"Developer"},
			Properties: []string{"name", "age"},
			Relationships: []RelationshipProperty{
				{Name: "coffees", Type: "DRINKS", Target: "Coffee"},
				{Name: "colleagues", Direction: filter.Both, Type: "WORKS_WITH", Target: "Developer"},
			},
		},
		{Name: "SeniorDeveloper", Labels: []string{"Developer", "Senior"}},
		{Name: "Coffee", Labels: []string{"Coffee"}, Properties: []string{"flavor"}},
		{Name: "Drinks", Kind: KindRelationship, Type: "DRINKS", Properties: []string{"since"}},
	}
}

func TestNew(t *testing.T) {
	reg, err := New(testModels()...)
	require.NoError(t, err)

	assert.False(t, reg.Empty())
	assert.Equal(t, []string{"Coffee", "Developer", "Drinks", "SeniorDeveloper"}, reg.Names())

	dev, ok := reg.Get("Developer")
	require.True(t, ok)
	rel, ok := dev.Relationship("coffees")
	require.True(t, ok)
	assert.Equal(t, filter.Outgoing, rel.Direction, "direction defaults to outgoing")
	assert.Equal(t, []string{"Coffee"}, reg.TargetLabels(rel))
}

func TestNew_CopiesDeclarations(t *testing.T) {
	models := testModels()
	reg, err := New(models...)
	require.NoError(t, err)

	models[0].Labels[0] = "Changed"
	dev, _ := reg.Get("Developer")
	assert.Equal(t, []string{"Developer"}, dev.Labels)
}

func TestLookupLabels(t *testing.T) {
	reg, err := New(testModels()...)
	require.NoError(t, err)

	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"exact", []string{"Developer"}, "Developer"},
		{"superset resolves", []string{"Developer", "Person"}, "Developer"},
		{"most specific wins", []string{"Senior", "Developer"}, "SeniorDeveloper"},
		{"coffee", []string{"Coffee"}, "Coffee"},
		{"no match", []string{"Tea"}, ""},
		{"subset does not resolve", []string{"Senior"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := reg.LookupLabels(tt.labels)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, d.Name)
		})
	}
}

func TestLookupType(t *testing.T) {
	reg, err := New(testModels()...)
	require.NoError(t, err)

	d, ok := reg.LookupType("DRINKS")
	require.True(t, ok)
	assert.Equal(t, "Drinks", d.Name)

	_, ok = reg.LookupType("drinks")
	assert.False(t, ok, "type match is exact")
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		descs []Descriptor
	}{
		{"missing name", []Descriptor{{Labels: []string{"A"}}}},
		{"node without labels", []Descriptor{{Name: "A"}}},
		{"invalid label", []Descriptor{{Name: "A", Labels: []string{"A-B"}}}},
		{"invalid property", []Descriptor{{Name: "A", Labels: []string{"A"}, Properties: []string{"1x"}}}},
		{"relationship without type", []Descriptor{{Name: "R", Kind: KindRelationship}}},
		{"relationship with labels", []Descriptor{{Name: "R", Kind: KindRelationship, Type: "R", Labels: []string{"X"}}}},
		{"duplicate name", []Descriptor{{Name: "A", Labels: []string{"A"}}, {Name: "A", Labels: []string{"B"}}}},
		{"duplicate labels", []Descriptor{{Name: "A", Labels: []string{"X", "Y"}}, {Name: "B", Labels: []string{"Y", "X"}}}},
		{"duplicate type", []Descriptor{{Name: "R", Kind: KindRelationship, Type: "T"}, {Name: "S", Kind: KindRelationship, Type: "T"}}},
		{"unknown target", []Descriptor{{Name: "A", Labels: []string{"A"}, Relationships: []RelationshipProperty{{Name: "r", Type: "T", Target: "Nope"}}}}},
		{"relationship target", []Descriptor{
			{Name: "A", Labels: []string{"A"}, Relationships: []RelationshipProperty{{Name: "r", Type: "T", Target: "R"}}},
			{Name: "R", Kind: KindRelationship, Type: "T"},
		}},
		{"bad direction", []Descriptor{{Name: "A", Labels: []string{"A"}, Relationships: []RelationshipProperty{{Name: "r", Direction: "UP", Type: "T", Target: "A"}}}}},
		{"duplicate relationship property", []Descriptor{{Name: "A", Labels: []string{"A"}, Relationships: []RelationshipProperty{
			{Name: "r", Type: "T", Target: "A"},
			{Name: "r", Type: "U", Target: "A"},
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.descs...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation), "got %v", err)
		})
	}
}

func TestEmptyRegistry(t *testing.T) {
	reg, err := New()
	require.NoError(t, err)
	assert.True(t, reg.Empty())

	var nilReg *Registry
	assert.True(t, nilReg.Empty())
	_, ok := nilReg.LookupLabels([]string{"A"})
	assert.False(t, ok)
}

func TestHasProperty(t *testing.T) {
	declared := &Descriptor{Properties: []string{"name"}}
	assert.True(t, declared.HasProperty("name"))
	assert.False(t, declared.HasProperty("age"))

	undeclared := &Descriptor{}
	assert.True(t, undeclared.HasProperty("anything"))
}

func TestHooks(t *testing.T) {
	var calls []string
	var h Hooks
	h.AddPre(OpFind, func(ctx context.Context, ev *HookEvent) error {
		calls = append(calls, "first")
		ev.Filter["injected"] = true
		return nil
	})
	h.AddPre(OpFind, func(ctx context.Context, ev *HookEvent) error {
		calls = append(calls, "second")
		return nil
	})
	h.AddPost(OpDelete, func(ctx context.Context, ev *HookEvent) error {
		return fmt.Errorf("refused")
	})

	ev := &HookEvent{Operation: OpFind, Model: "Developer", Filter: map[string]any{}}
	require.NoError(t, h.RunPre(context.Background(), ev))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, true, ev.Filter["injected"])

	require.NoError(t, h.RunPost(context.Background(), ev), "no post hooks for find")

	err := h.RunPost(context.Background(), &HookEvent{Operation: OpDelete, Model: "Developer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post-delete hook 0 of Developer")
}

func TestLoad(t *testing.T) {
	doc := `
models:
  - name: Developer
    labels: [Developer]
    properties: [name, age]
    relationships:
      - name: coffees
        direction: OUTGOING
        type: DRINKS
        target: Coffee
  - name: Coffee
    labels: [Coffee]
  - name: Drinks
    kind: relationship
    type: DRINKS
`
	reg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	d, ok := reg.LookupType("DRINKS")
	require.True(t, ok)
	assert.Equal(t, KindRelationship, d.Kind)

	out, err := reg.Marshal()
	require.NoError(t, err)
	again, err := Load(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, reg.Names(), again.Names())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader("models:\n  - name: A\n    lables: [A]\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))

	_, err = Load(strings.NewReader("models:\n  - name: A\n    kind: hyperedge\n"))
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - name: A\n    labels: [A]\n"), 0o600))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, reg.Names())
}
