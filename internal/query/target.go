// Package query assembles compiled filters, projections and options into
// complete parameterized Cypher statements.
package query

import (
	"strings"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/filter"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// Target is the primary entity of a statement
type Target struct {
	Kind   registry.Kind
	Labels []string
	Type   string
	// Properties whitelists projections and updates; empty accepts every name
	Properties []string
}

// TargetFor builds the target of a registered model
func TargetFor(d *registry.Descriptor) Target {
	return Target{
		Kind:       d.Kind,
		Labels:     append([]string(nil), d.Labels...),
		Type:       d.Type,
		Properties: append([]string(nil), d.Properties...),
	}
}

// NodeTarget is an ad hoc node target
func NodeTarget(labels ...string) Target {
	return Target{Kind: registry.KindNode, Labels: labels}
}

// RelationshipTarget is an ad hoc relationship target
func RelationshipTarget(typ string) Target {
	return Target{Kind: registry.KindRelationship, Type: typ}
}

// Variable returns the variable the target is bound to
func (t Target) Variable() string {
	if t.Kind == registry.KindRelationship {
		return relVar
	}
	return nodeVar
}

func (t Target) declares(prop string) bool {
	if len(t.Properties) == 0 {
		return true
	}
	for _, p := range t.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

func (t Target) validate() error {
	for _, l := range t.Labels {
		if !filter.IsValidIdentifier(l) {
			return errors.MalformedFilterf("", "invalid label %q", l)
		}
	}
	if t.Type != "" && !filter.IsValidIdentifier(t.Type) {
		return errors.MalformedFilterf("", "invalid relationship type %q", t.Type)
	}
	return nil
}

// pattern renders the match pattern binding the target
func (t Target) pattern() string {
	if t.Kind == registry.KindRelationship {
		if t.Type == "" {
			return "()-[" + relVar + "]->()"
		}
		return "()-[" + relVar + ":" + t.Type + "]->()"
	}
	return nodePattern(nodeVar, t.Labels)
}

func nodePattern(variable string, labels []string) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(variable)
	for _, l := range labels {
		sb.WriteString(":")
		sb.WriteString(l)
	}
	sb.WriteString(")")
	return sb.String()
}

func (t Target) compileOptions() []filter.Option {
	if t.Kind == registry.KindRelationship {
		return []filter.Option{filter.ForRelationships()}
	}
	return nil
}
