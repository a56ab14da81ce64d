// Package hydrate rebuilds entities from the raw records returned by the
// execution boundary, resolving them against the model registry and loading
// declared relationship-properties on request.
package hydrate

import (
	"strconv"

	"github.com/go-viper/mapstructure/v2"

	"github.com/rohankatakam/graphogm/internal/errors"
	"github.com/rohankatakam/graphogm/internal/graph"
	"github.com/rohankatakam/graphogm/internal/registry"
)

// Entity is one hydrated node or relationship
type Entity struct {
	Kind      registry.Kind `json:"kind"`
	ElementID string        `json:"elementId"`
	ID        int64         `json:"id"`

	Labels []string `json:"labels,omitempty"`
	Type   string   `json:"type,omitempty"`

	StartElementID string `json:"startElementId,omitempty"`
	EndElementID   string `json:"endElementId,omitempty"`

	Properties map[string]any `json:"properties"`

	// Model is the name of the resolved descriptor, empty in relaxed mode
	Model      string               `json:"model,omitempty"`
	Descriptor *registry.Descriptor `json:"-"`

	// Related holds attached and auto-fetched entities by relationship-property
	// name. It is nil unless something was attached.
	Related map[string][]*Entity `json:"related,omitempty"`
}

// Key identifies the underlying graph element
func (e *Entity) Key() string {
	if e.ElementID != "" {
		return e.Kind.String() + ":" + e.ElementID
	}
	return e.Kind.String() + "#" + strconv.FormatInt(e.ID, 10)
}

// attach appends related under name unless the same element is already there
func (e *Entity) attach(name string, related ...*Entity) {
	if e.Related == nil {
		e.Related = make(map[string][]*Entity)
	}
	list, ok := e.Related[name]
	if !ok {
		list = []*Entity{}
	}
	for _, r := range related {
		if !containsKey(list, r.Key()) {
			list = append(list, r)
		}
	}
	e.Related[name] = list
}

func containsKey(list []*Entity, key string) bool {
	for _, e := range list {
		if e.Key() == key {
			return true
		}
	}
	return false
}

func newNode(n graph.Node, d *registry.Descriptor) *Entity {
	e := &Entity{
		Kind:       registry.KindNode,
		ElementID:  n.ElementID,
		ID:         n.ID,
		Labels:     append([]string(nil), n.Labels...),
		Properties: copyProps(n.Props),
		Descriptor: d,
	}
	if d != nil {
		e.Model = d.Name
	}
	return e
}

func newRelationship(r graph.Relationship, d *registry.Descriptor) *Entity {
	e := &Entity{
		Kind:           registry.KindRelationship,
		ElementID:      r.ElementID,
		ID:             r.ID,
		Type:           r.Type,
		StartElementID: r.StartElementID,
		EndElementID:   r.EndElementID,
		Properties:     copyProps(r.Props),
		Descriptor:     d,
	}
	if d != nil {
		e.Model = d.Name
	}
	return e
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// Decode copies the properties of e into out, a pointer to a struct or map.
// Struct fields are matched by their `graph` tag, then case-insensitively by
// name; numeric and string values are converted where lossless.
func Decode(e *Entity, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "graph",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.InternalErrorf("failed to create decoder: %v", err)
	}
	if err := dec.Decode(e.Properties); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh,
			"failed to decode "+e.Key())
	}
	return nil
}
