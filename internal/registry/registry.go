package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return filter.IsValidIdentifier(fl.Field().String())
	})
}

// Registry maps label sets and relationship types to descriptors
type Registry struct {
	byName map[string]*Descriptor
	byType map[string]*Descriptor
	// node descriptors, most specific (most labels) first, then by name
	nodes []*Descriptor
}

// New validates descs and builds an immutable registry. Relationship-property
// targets must name a node model of the same registry.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Descriptor, len(descs)),
		byType: make(map[string]*Descriptor),
	}

	for i := range descs {
		d := descs[i].clone()
		if err := check(d); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, errors.ValidationErrorf("model %s is registered twice", d.Name)
		}
		r.byName[d.Name] = d

		switch d.Kind {
		case KindNode:
			for _, other := range r.nodes {
				if sameLabels(other.Labels, d.Labels) {
					return nil, errors.ValidationErrorf("models %s and %s declare the same labels %v", other.Name, d.Name, d.Labels)
				}
			}
			r.nodes = append(r.nodes, d)
		case KindRelationship:
			if other, dup := r.byType[d.Type]; dup {
				return nil, errors.ValidationErrorf("models %s and %s declare the same relationship type %s", other.Name, d.Name, d.Type)
			}
			r.byType[d.Type] = d
		}
	}

	for _, d := range r.byName {
		for _, rel := range d.Relationships {
			target, ok := r.byName[rel.Target]
			if !ok || target.Kind != KindNode {
				return nil, errors.ValidationErrorf("model %s: relationship property %s targets unknown node model %q", d.Name, rel.Name, rel.Target)
			}
		}
	}

	sort.Slice(r.nodes, func(i, j int) bool {
		if len(r.nodes[i].Labels) != len(r.nodes[j].Labels) {
			return len(r.nodes[i].Labels) > len(r.nodes[j].Labels)
		}
		return r.nodes[i].Name < r.nodes[j].Name
	})

	return r, nil
}

func check(d *Descriptor) error {
	if err := validate.Struct(d); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, fmt.Sprintf("invalid model %q", d.Name))
	}

	switch d.Kind {
	case KindNode:
		if len(d.Labels) == 0 {
			return errors.ValidationErrorf("node model %s declares no labels", d.Name)
		}
		if d.Type != "" {
			return errors.ValidationErrorf("node model %s declares a relationship type", d.Name)
		}
	case KindRelationship:
		if d.Type == "" {
			return errors.ValidationErrorf("relationship model %s declares no type", d.Name)
		}
		if len(d.Labels) > 0 || len(d.Relationships) > 0 {
			return errors.ValidationErrorf("relationship model %s may only declare a type and properties", d.Name)
		}
	default:
		return errors.ValidationErrorf("model %s has unknown kind %s", d.Name, d.Kind)
	}

	seen := make(map[string]bool, len(d.Relationships))
	for i := range d.Relationships {
		rel := &d.Relationships[i]
		if seen[rel.Name] {
			return errors.ValidationErrorf("model %s declares relationship property %s twice", d.Name, rel.Name)
		}
		seen[rel.Name] = true
		if rel.Direction == "" {
			rel.Direction = filter.Outgoing
		}
	}
	return nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return strings.Join(x, ":") == strings.Join(y, ":")
}

// Empty reports whether no model is registered. Hydration runs in relaxed mode
// against an empty registry.
func (r *Registry) Empty() bool {
	return r == nil || len(r.byName) == 0
}

// Get returns the descriptor registered under name. The descriptor must not be
// modified.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.byName[name]
	return d, ok
}

// LookupLabels returns the node model whose labels are a subset of labels. When
// several match, the one declaring the most labels wins, ties broken by name.
func (r *Registry) LookupLabels(labels []string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	for _, d := range r.nodes {
		if d.MatchesLabels(labels) {
			return d, true
		}
	}
	return nil, false
}

// LookupType returns the relationship model declaring exactly typ
func (r *Registry) LookupType(typ string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.byType[typ]
	return d, ok
}

// Names returns the registered model names, sorted
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetLabels returns the labels of the node model rel points at
func (r *Registry) TargetLabels(rel RelationshipProperty) []string {
	if d, ok := r.Get(rel.Target); ok {
		return d.Labels
	}
	return nil
}
