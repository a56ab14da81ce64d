// Package registry holds the entity declarations the query layer compiles against
// and the hydrator resolves records with.
//
// A Registry is built once, before any query runs, and is read-only afterwards.
package registry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/graphogm/internal/filter"
)

// Kind is the kind of graph entity a descriptor maps
type Kind int

const (
	KindNode Kind = iota
	KindRelationship
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "node" or "relationship"
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "node":
		return KindNode, nil
	case "relationship":
		return KindRelationship, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// UnmarshalYAML decodes a kind written as "node" or "relationship"
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML encodes the kind as its name
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// MarshalText encodes the kind as its name for JSON output
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RelationshipProperty is a declared relationship-valued property of a node
// model: the neighbours reached through relationships of Type in Direction,
// hydrated as Target entities.
type RelationshipProperty struct {
	Name      string           `yaml:"name" json:"name" validate:"required,identifier"`
	Direction filter.Direction `yaml:"direction" json:"direction" validate:"omitempty,oneof=INCOMING OUTGOING BOTH"`
	Type      string           `yaml:"type" json:"type" validate:"required,identifier"`
	// Target is the name of the node model on the other end
	Target string `yaml:"target" json:"target" validate:"required"`
}

// Descriptor declares one entity model
type Descriptor struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind Kind   `yaml:"kind" json:"kind"`

	// Labels of a node model. A node matches when its labels are a superset.
	Labels []string `yaml:"labels,omitempty" json:"labels,omitempty" validate:"dive,identifier"`
	// Type of a relationship model, matched exactly
	Type string `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,identifier"`

	// Properties whitelists projections and updates. Empty means undeclared.
	Properties    []string               `yaml:"properties,omitempty" json:"properties,omitempty" validate:"dive,identifier"`
	Relationships []RelationshipProperty `yaml:"relationships,omitempty" json:"relationships,omitempty" validate:"dive"`

	Hooks Hooks `yaml:"-" json:"-"`
}

// HasProperty reports whether name is declared. A descriptor without declared
// properties accepts every name.
func (d *Descriptor) HasProperty(name string) bool {
	if len(d.Properties) == 0 {
		return true
	}
	for _, p := range d.Properties {
		if p == name {
			return true
		}
	}
	return false
}

// Relationship returns the relationship-property called name
func (d *Descriptor) Relationship(name string) (RelationshipProperty, bool) {
	for _, r := range d.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return RelationshipProperty{}, false
}

func (d Descriptor) clone() *Descriptor {
	c := d
	c.Labels = append([]string(nil), d.Labels...)
	c.Properties = append([]string(nil), d.Properties...)
	c.Relationships = append([]RelationshipProperty(nil), d.Relationships...)
	c.Hooks = d.Hooks.clone()
	return &c
}

// MatchesLabels reports whether d is a node model whose labels are all in labels
func (d *Descriptor) MatchesLabels(labels []string) bool {
	if d.Kind != KindNode {
		return false
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	for _, l := range d.Labels {
		if _, ok := set[l]; !ok {
			return false
		}
	}
	return true
}
